package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/odvcencio/marionette/pkg/channel"
)

// Frame is one frame in a page's frame tree.
type Frame struct {
	*channel.Owner

	init frameInitializer

	mu  sync.Mutex
	url string
}

type frameInitializer struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	ParentFrame *guidRef `json:"parentFrame,omitempty"`
}

func newFrame(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *Frame {
	f := &Frame{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &f.init)
	f.url = f.init.URL
	return f
}

// Name returns the frame's name attribute.
func (f *Frame) Name() string {
	return f.init.Name
}

// URL returns the last-known frame URL.
func (f *Frame) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// ParentFrame returns the parent frame, or nil for a main frame.
func (f *Frame) ParentFrame(ctx context.Context) (*Frame, error) {
	if f.init.ParentFrame == nil {
		return nil, nil
	}
	return resolveAs[*Frame](ctx, f.Connection(), *f.init.ParentFrame)
}

// Goto navigates the frame.
func (f *Frame) Goto(ctx context.Context, url string, opts GotoOptions) (*Response, error) {
	result, err := channel.SendAs[struct {
		Response *guidRef `json:"response"`
	}](ctx, f.Channel(), "goto", gotoParams{URL: url, GotoOptions: opts})
	if err != nil {
		return nil, err
	}
	if result.Response == nil {
		return nil, nil
	}
	return resolveAs[*Response](ctx, f.Connection(), *result.Response)
}

// Title returns the frame document's title.
func (f *Frame) Title(ctx context.Context) (string, error) {
	result, err := channel.SendAs[struct {
		Value string `json:"value"`
	}](ctx, f.Channel(), "title", nil)
	if err != nil {
		return "", err
	}
	return result.Value, nil
}

// OnEvent keeps the cached URL current.
func (f *Frame) OnEvent(method string, params json.RawMessage) {
	switch method {
	case "navigated":
		var payload struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(params, &payload); err == nil {
			f.mu.Lock()
			f.url = payload.URL
			f.mu.Unlock()
		}
	default:
		f.Owner.OnEvent(method, params)
	}
}
