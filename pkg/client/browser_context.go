package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/odvcencio/marionette/pkg/channel"
	"github.com/odvcencio/marionette/pkg/logging"
)

// BrowserContext event names usable with On/Once.
const (
	EventContextPage  = "page"
	EventContextClose = "close"
)

// BrowserContext is an isolated browsing session within a browser.
type BrowserContext struct {
	*channel.Owner

	// mu guards browser and pages: both are written by caller goroutines
	// and read on the dispatch loop.
	mu      sync.Mutex
	browser *Browser
	pages   []*Page
}

func newBrowserContext(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *BrowserContext {
	bc := &BrowserContext{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	if b, ok := parent.(*Browser); ok {
		bc.setBrowser(b)
	}
	return bc
}

// Browser returns the owning browser, if this context was created through
// one.
func (bc *BrowserContext) Browser() *Browser {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.browser
}

func (bc *BrowserContext) setBrowser(b *Browser) {
	bc.mu.Lock()
	bc.browser = b
	bc.mu.Unlock()
}

// Pages returns the currently known pages of this context.
func (bc *BrowserContext) Pages() []*Page {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]*Page, len(bc.pages))
	copy(out, bc.pages)
	return out
}

// NewPage opens a new page in this context.
func (bc *BrowserContext) NewPage(ctx context.Context) (*Page, error) {
	result, err := channel.SendAs[struct {
		Page guidRef `json:"page"`
	}](ctx, bc.Channel(), "newPage", nil)
	if err != nil {
		return nil, err
	}
	page, err := resolveAs[*Page](ctx, bc.Connection(), result.Page)
	if err != nil {
		return nil, err
	}
	bc.trackPage(page)
	return page, nil
}

// Close closes the context and every page in it.
func (bc *BrowserContext) Close(ctx context.Context) error {
	err := bc.Channel().Call(ctx, "close", nil)
	if b := bc.Browser(); b != nil {
		b.removeContext(bc)
	}
	return err
}

// OnEvent tracks page announcements and context close.
//
// A "page" event only references the new page's guid; the Page node itself
// materializes via its own __create__ which the dispatch loop may not have
// processed yet. Waiting for it here would deadlock the loop on the very
// event it is about to deliver, so the resolution runs on its own goroutine.
func (bc *BrowserContext) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "page":
		var payload struct {
			Page guidRef `json:"page"`
		}
		if err := json.Unmarshal(params, &payload); err != nil {
			bc.Connection().Logger().Warn(logging.CategoryObject, "bad_page_event", err.Error(), map[string]any{
				"guid": bc.GUID(),
			})
			return
		}
		go func() {
			page, err := resolveAs[*Page](context.Background(), bc.Connection(), payload.Page)
			if err != nil {
				return
			}
			bc.trackPage(page)
			bc.Emit(EventContextPage, page)
		}()
	case "close":
		if b := bc.Browser(); b != nil {
			b.removeContext(bc)
		}
		bc.Emit(EventContextClose, bc)
	default:
		bc.Owner.OnEvent(method, params)
	}
}

func (bc *BrowserContext) trackPage(page *Page) {
	page.setContext(bc)
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for _, existing := range bc.pages {
		if existing == page {
			return
		}
	}
	bc.pages = append(bc.pages, page)
}

func (bc *BrowserContext) untrackPage(page *Page) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	for i, existing := range bc.pages {
		if existing == page {
			bc.pages = append(bc.pages[:i], bc.pages[i+1:]...)
			return
		}
	}
}
