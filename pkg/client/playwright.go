package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Playwright is the top-level object the driver announces right after the
// initialize handshake. Its initializer names the available browser engines.
type Playwright struct {
	*channel.Owner

	init playwrightInitializer
}

type playwrightInitializer struct {
	Chromium guidRef `json:"chromium"`
	Firefox  guidRef `json:"firefox"`
	Webkit   guidRef `json:"webkit"`
}

func newPlaywright(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Playwright {
	p := &Playwright{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &p.init)
	return p
}

// Chromium returns the Chromium browser type.
func (p *Playwright) Chromium(ctx context.Context) (*BrowserType, error) {
	return resolveAs[*BrowserType](ctx, p.Connection(), p.init.Chromium)
}

// Firefox returns the Firefox browser type.
func (p *Playwright) Firefox(ctx context.Context) (*BrowserType, error) {
	return resolveAs[*BrowserType](ctx, p.Connection(), p.init.Firefox)
}

// Webkit returns the WebKit browser type.
func (p *Playwright) Webkit(ctx context.Context) (*BrowserType, error) {
	return resolveAs[*BrowserType](ctx, p.Connection(), p.init.Webkit)
}

// Engine returns a browser type by name.
func (p *Playwright) Engine(ctx context.Context, name string) (*BrowserType, error) {
	switch name {
	case "chromium":
		return p.Chromium(ctx)
	case "firefox":
		return p.Firefox(ctx)
	case "webkit":
		return p.Webkit(ctx)
	}
	return nil, fmt.Errorf("unknown browser engine %q", name)
}

// Connect performs the initialize handshake on a fresh connection and waits
// for the Playwright object to materialize. The object is announced by a
// __create__ event that may arrive before or after the handshake response;
// WaitForObject covers both orderings.
func Connect(ctx context.Context, conn *channel.Connection) (*Playwright, error) {
	result, err := conn.SendMessage(ctx, "", "initialize", map[string]any{
		"sdkLanguage": "go",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	var parsed struct {
		Playwright guidRef `json:"playwright"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}
	return resolveAs[*Playwright](ctx, conn, parsed.Playwright)
}
