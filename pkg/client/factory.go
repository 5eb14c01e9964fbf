// Package client provides the typed wrappers for the driver's protocol
// classes and the factory the connection uses to construct them. The
// wrappers are thin: every method is a direct call through the object's
// channel, and cached state is only what protocol events deliver.
package client

import (
	"context"
	"encoding/json"

	"github.com/odvcencio/marionette/pkg/channel"
	"github.com/odvcencio/marionette/pkg/protocol"
)

// parentContracts lists the parent type names each protocol class accepts.
// The root pseudo-object's type name is "Root". A class missing from the
// table accepts any parent.
var parentContracts = map[string][]string{
	"Playwright":     {"Root"},
	"BrowserType":    {"Root", "Playwright"},
	"Browser":        {"BrowserType"},
	"BrowserContext": {"Browser", "Playwright"},
	"Page":           {"BrowserContext"},
	"Frame":          {"Page", "Frame"},
	"Worker":         {"Page", "BrowserContext"},
	"Request":        {"BrowserContext", "Page"},
	"Response":       {"BrowserContext", "Page", "Request"},
	"Route":          {"BrowserContext", "Page"},
	"ConsoleMessage": {"BrowserContext", "Page"},
	"Dialog":         {"BrowserContext", "Page"},
	"JSHandle":       {"Frame", "Page", "Worker"},
	"ElementHandle":  {"Frame", "Page", "Worker"},
	"Artifact":       {"Root", "Browser", "BrowserContext"},
	"Stream":         {"Root", "Artifact"},
	"Selectors":      {"Root", "Playwright"},
}

type constructor func(conn *channel.Connection, parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) channel.ChannelOwner

var constructors = map[string]constructor{
	"Playwright":     func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newPlaywright(c, p, t, g, i) },
	"BrowserType":    func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newBrowserType(c, p, t, g, i) },
	"Browser":        func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newBrowser(c, p, t, g, i) },
	"BrowserContext": func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newBrowserContext(c, p, t, g, i) },
	"Page":           func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newPage(c, p, t, g, i) },
	"Frame":          func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newFrame(c, p, t, g, i) },
	"Worker":         func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newWorker(c, p, t, g, i) },
	"Request":        func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newRequest(c, p, t, g, i) },
	"Response":       func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newResponse(c, p, t, g, i) },
	"Route":          func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newRoute(c, p, t, g, i) },
	"ConsoleMessage": func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newConsoleMessage(c, p, t, g, i) },
	"Dialog":         func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newDialog(c, p, t, g, i) },
	"JSHandle":       func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newJSHandle(c, p, t, g, i) },
	"ElementHandle":  func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newElementHandle(c, p, t, g, i) },
	"Artifact":       func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newArtifact(c, p, t, g, i) },
	"Stream":         func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newStream(c, p, t, g, i) },
	"Selectors":      func(c *channel.Connection, p channel.ChannelOwner, t, g string, i json.RawMessage) channel.ChannelOwner { return newSelectors(c, p, t, g, i) },
}

// Factory builds typed wrapper nodes and enforces parent contracts.
type Factory struct{}

// NewFactory returns the standard object factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Create implements channel.ObjectFactory. A wrong parent kind is a protocol
// error (the connection drops the event). An unknown type name is not: the
// driver may announce classes this client predates, so those become generic
// nodes.
func (f *Factory) Create(parent channel.ChannelOwner, typeName, guid string, initializer json.RawMessage) (channel.ChannelOwner, error) {
	if parent == nil {
		return nil, protocol.NewProtocolError("create %s %q without a parent", typeName, guid)
	}
	conn := parent.Connection()

	if allowed, ok := parentContracts[typeName]; ok {
		if !parentAllowed(parent.TypeName(), allowed) {
			return nil, protocol.NewProtocolError(
				"%s %q cannot be a child of %s %q", typeName, guid, parent.TypeName(), parent.GUID())
		}
	}

	ctor, known := constructors[typeName]
	if !known {
		return channel.NewOwner(conn, parent, typeName, guid, initializer), nil
	}
	return ctor(conn, parent, typeName, guid, initializer), nil
}

func parentAllowed(parentType string, allowed []string) bool {
	for _, t := range allowed {
		if t == parentType {
			return true
		}
	}
	return false
}

// as downcasts a registry node to its concrete wrapper, returning a typed
// failure instead of panicking on mismatch.
func as[T channel.ChannelOwner](obj channel.ChannelOwner) (T, error) {
	t, ok := obj.(T)
	if !ok {
		var zero T
		return zero, protocol.NewProtocolError("object %q has type %s, not the expected kind", obj.GUID(), obj.TypeName())
	}
	return t, nil
}

// guidRef is how initializers and results point at other protocol objects.
type guidRef struct {
	GUID string `json:"guid"`
}

// resolveAs waits for the referenced object to exist and downcasts it.
func resolveAs[T channel.ChannelOwner](ctx context.Context, conn *channel.Connection, ref guidRef) (T, error) {
	var zero T
	if ref.GUID == "" {
		return zero, protocol.NewProtocolError("empty object reference")
	}
	obj, err := conn.WaitForObject(ctx, ref.GUID)
	if err != nil {
		return zero, err
	}
	return as[T](obj)
}
