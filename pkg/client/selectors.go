package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Selectors registers custom selector engines with the driver.
type Selectors struct {
	*channel.Owner
}

func newSelectors(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Selectors {
	return &Selectors{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
}

// Register installs a selector engine under the given name.
func (s *Selectors) Register(ctx context.Context, name, script string, contentScript bool) error {
	return s.Channel().Call(ctx, "register", map[string]any{
		"name":          name,
		"source":        script,
		"contentScript": contentScript,
	})
}
