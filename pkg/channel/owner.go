// Package channel implements the object-graph connection layer: the
// correlation engine that turns the driver's asynchronous, multiplexed frame
// stream into synchronous-feeling remote-object calls, and the local mirror
// of server-side object lifetimes built purely from protocol events.
package channel

import (
	"encoding/json"
	"fmt"

	"github.com/odvcencio/marionette/pkg/protocol"
)

// ChannelOwner is one remote object mirrored locally. Concrete wrapper types
// embed *Owner and override OnEvent to cache state or fan out to user
// handlers.
type ChannelOwner interface {
	// GUID returns the server-assigned identity, stable for the object's
	// lifetime.
	GUID() string

	// TypeName returns the protocol class, e.g. "Page".
	TypeName() string

	// Parent returns the owning parent, or nil for the connection root.
	Parent() ChannelOwner

	// Initializer returns the immutable creation payload.
	Initializer() json.RawMessage

	// Channel returns the RPC proxy bound to this object's guid.
	Channel() *Channel

	// Connection returns the connection this object lives on.
	Connection() *Connection

	// OnEvent handles a protocol event addressed to this object. It must
	// not block the dispatch loop; long-running work belongs in a spawned
	// goroutine.
	OnEvent(method string, params json.RawMessage)

	// IsDisposed reports whether the object has been removed from the
	// registry.
	IsDisposed() bool

	// WasCollected reports whether disposal was due to server-side GC.
	WasCollected() bool

	// Children returns a snapshot of the currently owned children.
	Children() []ChannelOwner

	base() *Owner
}

// Owner is the base implementation every wrapper embeds. Parent links are
// plain references resolved through the connection registry; children are the
// owning direction. All tree mutation goes through the connection's lock.
type Owner struct {
	EventEmitter

	conn        *Connection
	guid        string
	typeName    string
	initializer json.RawMessage
	channel     *Channel

	// Guarded by conn.mu.
	parent       ChannelOwner
	children     map[string]ChannelOwner
	disposed     bool
	wasCollected bool
}

// NewOwner initializes the base node. Wrapper constructors call this before
// returning; registration with the connection and the parent happens in the
// dispatch loop, not here.
func NewOwner(conn *Connection, parent ChannelOwner, typeName, guid string, initializer json.RawMessage) *Owner {
	o := &Owner{
		conn:        conn,
		guid:        guid,
		typeName:    typeName,
		initializer: initializer,
		parent:      parent,
		children:    make(map[string]ChannelOwner),
	}
	o.channel = &Channel{conn: conn, guid: guid}
	return o
}

func (o *Owner) GUID() string                 { return o.guid }
func (o *Owner) TypeName() string             { return o.typeName }
func (o *Owner) Initializer() json.RawMessage { return o.initializer }
func (o *Owner) Channel() *Channel            { return o.channel }
func (o *Owner) Connection() *Connection      { return o.conn }
func (o *Owner) base() *Owner                 { return o }

// Parent returns the current parent under the connection lock.
func (o *Owner) Parent() ChannelOwner {
	o.conn.mu.RLock()
	defer o.conn.mu.RUnlock()
	return o.parent
}

// IsDisposed reports whether this node has been disposed.
func (o *Owner) IsDisposed() bool {
	o.conn.mu.RLock()
	defer o.conn.mu.RUnlock()
	return o.disposed
}

// WasCollected reports whether the node was disposed because the server
// garbage collected it.
func (o *Owner) WasCollected() bool {
	o.conn.mu.RLock()
	defer o.conn.mu.RUnlock()
	return o.wasCollected
}

// Children returns a snapshot of the currently owned children.
func (o *Owner) Children() []ChannelOwner {
	o.conn.mu.RLock()
	defer o.conn.mu.RUnlock()
	out := make([]ChannelOwner, 0, len(o.children))
	for _, child := range o.children {
		out = append(out, child)
	}
	return out
}

// OnEvent is the default handler: unrecognized events are logged at debug
// level and otherwise ignored.
func (o *Owner) OnEvent(method string, params json.RawMessage) {
	o.conn.log.Debug("object", "unhandled_event", "event without a handler", map[string]any{
		"guid":   o.guid,
		"method": method,
	})
}

// Dispose removes this node and its whole subtree from the registry,
// recursively and with the same reason. Safe to call repeatedly: a second
// call finds an empty subtree and a detached parent.
func (o *Owner) Dispose(reason string) {
	o.conn.mu.Lock()
	if o.disposed {
		o.conn.mu.Unlock()
		return
	}
	o.disposed = true
	if reason == protocol.DisposeReasonGC {
		o.wasCollected = true
	}
	// Snapshot then clear so recursion never iterates a map being mutated
	// and the lock is not held across the recursive calls.
	children := make([]ChannelOwner, 0, len(o.children))
	for _, child := range o.children {
		children = append(children, child)
	}
	o.children = make(map[string]ChannelOwner)

	parent := o.parent
	o.parent = nil
	if parent != nil {
		delete(parent.base().children, o.guid)
	}
	delete(o.conn.objects, o.guid)
	o.conn.mu.Unlock()

	o.conn.objectDisposed(o.guid, o.typeName, reason)
	for _, child := range children {
		child.base().Dispose(reason)
	}
}

// adopt moves child under o without destroying it. Detach and attach happen
// under one critical section so the tree is never observably inconsistent.
func (o *Owner) adopt(child ChannelOwner) {
	cb := child.base()
	o.conn.mu.Lock()
	defer o.conn.mu.Unlock()
	if prev := cb.parent; prev != nil {
		delete(prev.base().children, cb.guid)
	}
	o.children[cb.guid] = child
	cb.parent = o.wrapperOf()
}

// addChild inserts a freshly created node. Caller holds conn.mu.
func (o *Owner) addChildLocked(child ChannelOwner) {
	o.children[child.GUID()] = child
}

// wrapperOf returns the registered wrapper for this base node, falling back
// to the base itself for the connection root.
func (o *Owner) wrapperOf() ChannelOwner {
	if obj, ok := o.conn.objects[o.guid]; ok {
		return obj
	}
	return o
}

func (o *Owner) String() string {
	return fmt.Sprintf("<%s guid=%q>", o.typeName, o.guid)
}
