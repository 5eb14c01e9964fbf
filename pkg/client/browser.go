package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Browser event names usable with On/Once.
const (
	EventBrowserDisconnected = "disconnected"
)

// Browser is a launched browser instance.
type Browser struct {
	*channel.Owner

	init browserInitializer

	mu        sync.Mutex
	connected bool
	contexts  []*BrowserContext
}

type browserInitializer struct {
	Version string `json:"version"`
	Name    string `json:"name"`
}

func newBrowser(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Browser {
	b := &Browser{
		Owner:     channel.NewOwner(conn, parent, typeName, guid, initializer),
		connected: true,
	}
	_ = json.Unmarshal(initializer, &b.init)
	return b
}

// Version returns the browser version string.
func (b *Browser) Version() string {
	return b.init.Version
}

// IsConnected reports whether the browser is still attached to this client.
func (b *Browser) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Contexts returns the contexts created through this client.
func (b *Browser) Contexts() []*BrowserContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*BrowserContext, len(b.contexts))
	copy(out, b.contexts)
	return out
}

// ContextOptions tunes a new browser context.
type ContextOptions struct {
	UserAgent         *string   `json:"userAgent,omitempty"`
	Locale            *string   `json:"locale,omitempty"`
	TimezoneID        *string   `json:"timezoneId,omitempty"`
	Viewport          *Viewport `json:"viewport,omitempty"`
	IgnoreHTTPSErrors *bool     `json:"ignoreHTTPSErrors,omitempty"`
}

// Viewport is a page viewport size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewContext creates an isolated browsing context.
func (b *Browser) NewContext(ctx context.Context, opts ContextOptions) (*BrowserContext, error) {
	result, err := channel.SendAs[struct {
		Context guidRef `json:"context"`
	}](ctx, b.Channel(), "newContext", opts)
	if err != nil {
		return nil, err
	}
	bc, err := resolveAs[*BrowserContext](ctx, b.Connection(), result.Context)
	if err != nil {
		return nil, err
	}
	bc.setBrowser(b)
	b.mu.Lock()
	b.contexts = append(b.contexts, bc)
	b.mu.Unlock()
	return bc, nil
}

// Close shuts the browser down. The driver responds after the process exits
// and then disposes the whole subtree.
func (b *Browser) Close(ctx context.Context) error {
	return b.Channel().Call(ctx, "close", nil)
}

// OnEvent caches connection state and fans browser events out to listeners.
func (b *Browser) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "close":
		b.mu.Lock()
		b.connected = false
		b.mu.Unlock()
		b.Emit(EventBrowserDisconnected, b)
	default:
		b.Owner.OnEvent(method, params)
	}
}

func (b *Browser) removeContext(bc *BrowserContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.contexts {
		if existing == bc {
			b.contexts = append(b.contexts[:i], b.contexts[i+1:]...)
			return
		}
	}
}
