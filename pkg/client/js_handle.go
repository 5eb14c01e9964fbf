package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
)

// JSHandle is a reference to a JavaScript value living in the page.
type JSHandle struct {
	*channel.Owner

	init jsHandleInitializer
}

type jsHandleInitializer struct {
	Preview string `json:"preview"`
}

func newJSHandle(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *JSHandle {
	h := &JSHandle{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &h.init)
	return h
}

// Preview returns a short textual rendering of the value.
func (h *JSHandle) Preview() string { return h.init.Preview }

// JSONValue serializes the remote value.
func (h *JSHandle) JSONValue(ctx context.Context) (json.RawMessage, error) {
	result, err := channel.SendAs[struct {
		Value json.RawMessage `json:"value"`
	}](ctx, h.Channel(), "jsonValue", nil)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Release drops the remote reference, allowing the value to be collected.
func (h *JSHandle) Release(ctx context.Context) error {
	return h.Channel().Call(ctx, "dispose", nil)
}

// ElementHandle is a JSHandle pointing at a DOM element.
type ElementHandle struct {
	*channel.Owner

	init jsHandleInitializer
}

func newElementHandle(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) *ElementHandle {
	h := &ElementHandle{
		Owner: channel.NewOwner(conn, parent, typeName, guid, initializer),
	}
	_ = json.Unmarshal(initializer, &h.init)
	return h
}

// Preview returns a short textual rendering of the element.
func (h *ElementHandle) Preview() string { return h.init.Preview }

// Click clicks the element.
func (h *ElementHandle) Click(ctx context.Context) error {
	return h.Channel().Call(ctx, "click", nil)
}

// TextContent returns the element's text content.
func (h *ElementHandle) TextContent(ctx context.Context) (string, error) {
	result, err := channel.SendAs[struct {
		Value string `json:"value"`
	}](ctx, h.Channel(), "textContent", nil)
	if err != nil {
		return "", err
	}
	return result.Value, nil
}
