package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Page event names usable with On/Once.
const (
	EventPageConsole  = "console"
	EventPageDialog   = "dialog"
	EventPageDownload = "download"
	EventPageClose    = "close"
	EventPageCrash    = "crash"
)

// Page is a single tab (or popup) within a browser context.
type Page struct {
	*channel.Owner

	init pageInitializer

	// mu guards context, url and closed: the context back-pointer is set by
	// whichever goroutine tracks the page and read on the dispatch loop.
	mu      sync.Mutex
	context *BrowserContext
	url     string
	closed  bool
}

type pageInitializer struct {
	MainFrame guidRef `json:"mainFrame"`
	URL       string  `json:"url"`
}

func newPage(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Page {
	p := &Page{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &p.init)
	p.url = p.init.URL
	if bc, ok := parent.(*BrowserContext); ok {
		bc.trackPage(p)
	}
	return p
}

// Context returns the owning browser context.
func (p *Page) Context() *BrowserContext {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.context
}

func (p *Page) setContext(bc *BrowserContext) {
	p.mu.Lock()
	p.context = bc
	p.mu.Unlock()
}

// URL returns the last-known page URL, kept current by "navigated" events.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// IsClosed reports whether the page has closed.
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// MainFrame returns the page's main frame.
func (p *Page) MainFrame(ctx context.Context) (*Frame, error) {
	return resolveAs[*Frame](ctx, p.Connection(), p.init.MainFrame)
}

// GotoOptions tunes a navigation.
type GotoOptions struct {
	WaitUntil *string  `json:"waitUntil,omitempty"`
	Timeout   *float64 `json:"timeout,omitempty"`
	Referer   *string  `json:"referer,omitempty"`
}

type gotoParams struct {
	URL string `json:"url"`
	GotoOptions
}

// Goto navigates the page and returns the main resource response, which may
// be nil for same-document navigations.
func (p *Page) Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error) {
	result, err := channel.SendAs[struct {
		Response *guidRef `json:"response"`
	}](ctx, p.Channel(), "goto", gotoParams{URL: url, GotoOptions: opts})
	if err != nil {
		return nil, err
	}
	if result.Response == nil {
		return nil, nil
	}
	return resolveAs[*Response](ctx, p.Connection(), *result.Response)
}

// Reload reloads the current page.
func (p *Page) Reload(ctx context.Context) error {
	return p.Channel().Call(ctx, "reload", nil)
}

// Title returns the current document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	result, err := channel.SendAs[struct {
		Value string `json:"value"`
	}](ctx, p.Channel(), "title", nil)
	if err != nil {
		return "", err
	}
	return result.Value, nil
}

// Click clicks the first element matching the selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	return p.Channel().Call(ctx, "click", map[string]any{"selector": selector})
}

// Fill sets the value of the first input matching the selector.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.Channel().Call(ctx, "fill", map[string]any{
		"selector": selector,
		"value":    value,
	})
}

// Evaluate runs an expression in the page and returns its JSON value.
func (p *Page) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	result, err := channel.SendAs[struct {
		Value json.RawMessage `json:"value"`
	}](ctx, p.Channel(), "evaluateExpression", map[string]any{
		"expression": expression,
	})
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Close closes the page.
func (p *Page) Close(ctx context.Context) error {
	return p.Channel().Call(ctx, "close", nil)
}

// OnEvent keeps cached state current and fans page events out to listeners.
func (p *Page) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "navigated":
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(params, &payload); err == nil {
			p.mu.Lock()
			p.url = payload.URL
			p.mu.Unlock()
		}
	case "console":
		p.resolveAndEmit(EventPageConsole, params, "message")
	case "dialog":
		p.resolveAndEmit(EventPageDialog, params, "dialog")
	case "download":
		p.resolveAndEmit(EventPageDownload, params, "artifact")
	case "crash":
		p.Emit(EventPageCrash, p)
	case "close":
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		if bc := p.Context(); bc != nil {
			bc.untrackPage(p)
		}
		p.Emit(EventPageClose, p)
	default:
		p.Owner.OnEvent(method, params)
	}
}

// resolveAndEmit fetches the object an event references and emits it. The
// referenced object may still be in flight as a __create__, so the wait runs
// off the dispatch loop.
func (p *Page) resolveAndEmit(event string, params json.RawMessage, field string) {
	var payload map[string]guidRef
	if err := json.Unmarshal(params, &payload); err != nil {
		return
	}
	ref, ok := payload[field]
	if !ok {
		return
	}
	go func() {
		obj, err := p.Connection().WaitForObject(context.Background(), ref.GUID)
		if err != nil {
			return
		}
		p.Emit(event, obj)
	}()
}
