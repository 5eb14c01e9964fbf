package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// BrowserType represents one installed browser engine.
type BrowserType struct {
	*channel.Owner

	init browserTypeInitializer
}

type browserTypeInitializer struct {
	Name           string `json:"name"`
	ExecutablePath string `json:"executablePath"`
}

func newBrowserType(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *BrowserType {
	bt := &BrowserType{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &bt.init)
	return bt
}

// Name returns the engine name, e.g. "chromium".
func (bt *BrowserType) Name() string {
	return bt.init.Name
}

// ExecutablePath returns the engine binary location.
func (bt *BrowserType) ExecutablePath() string {
	return bt.init.ExecutablePath
}

// LaunchOptions tunes a browser launch.
type LaunchOptions struct {
	Headless *bool    `json:"headless,omitempty"`
	Args     []string `json:"args,omitempty"`
	SlowMo   *float64 `json:"slowMo,omitempty"`
	Timeout  *float64 `json:"timeout,omitempty"`
}

// Launch starts a browser instance.
func (bt *BrowserType) Launch(ctx context.Context, opts LaunchOptions) (*Browser, error) {
	result, err := channel.SendAs[struct {
		Browser guidRef `json:"browser"`
	}](ctx, bt.Channel(), "launch", opts)
	if err != nil {
		return nil, err
	}
	return resolveAs[*Browser](ctx, bt.Connection(), result.Browser)
}
