package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odvcencio/marionette/pkg/logging"
	"github.com/odvcencio/marionette/pkg/protocol"
	"github.com/odvcencio/marionette/pkg/transport"
)

const tracerName = "github.com/odvcencio/marionette/pkg/channel"

// ObjectFactory constructs the wrapper for a freshly announced remote object.
// It enforces the expected parent type for each protocol class. An unknown
// type name must not be an error; implementations return a generic node so
// driver-added types never break the dispatch loop.
type ObjectFactory interface {
	Create(parent ChannelOwner, typeName, guid string, initializer json.RawMessage) (ChannelOwner, error)
}

// ObjectFactoryFunc adapts a function to the ObjectFactory interface.
type ObjectFactoryFunc func(parent ChannelOwner, typeName, guid string, initializer json.RawMessage) (ChannelOwner, error)

// Create implements ObjectFactory.
func (f ObjectFactoryFunc) Create(parent ChannelOwner, typeName, guid string, initializer json.RawMessage) (ChannelOwner, error) {
	return f(parent, typeName, guid, initializer)
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Connection owns the registry of remote objects, the pending-call table and
// the dispatch loop. One dispatch loop per connection consumes frames in
// arrival order; it is the only writer to the registry. Any number of caller
// goroutines may have calls outstanding concurrently.
type Connection struct {
	transport transport.Transport
	factory   ObjectFactory
	log       *logging.Logger

	nextID atomic.Uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan callResult

	// mu guards the object registry and every node's parent/children links.
	mu      sync.RWMutex
	objects map[string]ChannelOwner
	root    *Owner

	waitersMu sync.Mutex
	waiters   map[string][]chan ChannelOwner

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Options configures a Connection.
type Options struct {
	// Factory constructs typed wrappers. Nil falls back to generic nodes.
	Factory ObjectFactory

	// Logger receives structured protocol events. Nil discards.
	Logger *logging.Logger
}

// NewConnection creates a connection over the given transport. Run must be
// started before any call can complete.
func NewConnection(t transport.Transport, opts Options) *Connection {
	c := &Connection{
		transport: t,
		factory:   opts.Factory,
		log:       opts.Logger,
		pending:   make(map[uint32]chan callResult),
		objects:   make(map[string]ChannelOwner),
		waiters:   make(map[string][]chan ChannelOwner),
		closed:    make(chan struct{}),
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	if c.factory == nil {
		c.factory = ObjectFactoryFunc(func(parent ChannelOwner, typeName, guid string, initializer json.RawMessage) (ChannelOwner, error) {
			return NewOwner(c, parent, typeName, guid, initializer), nil
		})
	}
	// The root pseudo-object exists only to receive the very first
	// __create__ before any other node does.
	c.root = NewOwner(c, nil, "Root", "", nil)
	c.objects[""] = c.root
	return c
}

// Root returns the connection-level pseudo-object bound to the empty guid.
func (c *Connection) Root() ChannelOwner {
	return c.root
}

// Logger returns the structured logger this connection writes to.
func (c *Connection) Logger() *logging.Logger {
	return c.log
}

// Object looks up a registered object by guid.
func (c *Connection) Object(guid string) (ChannelOwner, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[guid]
	return obj, ok
}

// SendMessage transmits one request and suspends the caller until the
// matching response arrives, the context ends, or the connection closes.
// Calls may be outstanding concurrently and responses may complete in any
// order; ids are allocated from a strictly increasing counter and never
// reused.
func (c *Connection) SendMessage(ctx context.Context, guid, method string, params any) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, c.closedError()
	default:
	}

	if guid != "" {
		c.mu.RLock()
		_, known := c.objects[guid]
		c.mu.RUnlock()
		if !known {
			// Wrappers only hand out channels after registration, so a
			// missing guid means the object has since been disposed.
			return nil, fmt.Errorf("%s on %q: %w", method, guid, protocol.ErrObjectDisposed)
		}
	}

	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		rawParams = data
	}

	id := c.nextID.Add(1)
	ch := make(chan callResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	pendingCalls.Inc()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "channel.send")
	span.SetAttributes(
		attribute.String("rpc.method", method),
		attribute.String("marionette.guid", guid),
		attribute.Int64("rpc.id", int64(id)),
	)
	defer span.End()

	frame, err := protocol.Encode(protocol.NewRequest(id, guid, method, rawParams))
	if err != nil {
		c.removePending(id)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	if err := c.transport.Send(ctx, frame); err != nil {
		c.removePending(id)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("send %s: %w", method, err)
	}
	messagesSent.WithLabelValues(method).Inc()

	select {
	case res := <-ch:
		callLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if res.err != nil {
			span.SetStatus(codes.Error, res.err.Error())
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		// Abandoning the wait: a late response for this id is then an
		// unmatched response and gets logged by the dispatch loop.
		c.removePending(id)
		span.SetStatus(codes.Error, ctx.Err().Error())
		return nil, ctx.Err()
	case <-c.closed:
		span.SetStatus(codes.Error, "connection closed")
		return nil, c.closedError()
	}
}

// WaitForObject resolves once the object with the given guid is registered.
// It returns immediately if the object already exists. This is the primitive
// for the announce-before-create race: a response can name an object whose
// __create__ event has not been dispatched yet.
func (c *Connection) WaitForObject(ctx context.Context, guid string) (ChannelOwner, error) {
	c.mu.RLock()
	if obj, ok := c.objects[guid]; ok {
		c.mu.RUnlock()
		return obj, nil
	}
	c.mu.RUnlock()

	ch := make(chan ChannelOwner, 1)
	c.waitersMu.Lock()
	c.waiters[guid] = append(c.waiters[guid], ch)
	c.waitersMu.Unlock()
	defer c.removeWaiter(guid, ch)

	// Re-check: the object may have registered between the lookup and the
	// waiter insertion.
	c.mu.RLock()
	if obj, ok := c.objects[guid]; ok {
		c.mu.RUnlock()
		return obj, nil
	}
	c.mu.RUnlock()

	select {
	case obj := <-ch:
		return obj, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closedError()
	}
}

// Run is the dispatch loop. It consumes frames one at a time, fully handling
// each (registry mutation included) before reading the next, and returns when
// the frame stream ends or the transport errors. On return every outstanding
// call is failed with a connection-closed error.
func (c *Connection) Run(ctx context.Context) error {
	for {
		frame, err := c.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				c.shutdown(nil)
				return nil
			}
			if ctx.Err() != nil {
				c.shutdown(ctx.Err())
				return ctx.Err()
			}
			c.shutdown(err)
			return fmt.Errorf("receive frame: %w", err)
		}
		c.dispatch(frame)
	}
}

// dispatch classifies one frame and routes it. Per-frame failures are logged
// and dropped; nothing here may take the loop down.
func (c *Connection) dispatch(frame json.RawMessage) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		dispatchErrors.WithLabelValues("decode").Inc()
		c.log.Error(logging.CategoryDispatch, "decode_failure", err.Error(), nil)
		return
	}

	if msg.Response != nil {
		messagesReceived.WithLabelValues("response").Inc()
		c.dispatchResponse(msg.Response)
		return
	}
	messagesReceived.WithLabelValues("event").Inc()
	c.dispatchEvent(msg.Event)
}

func (c *Connection) dispatchResponse(resp *protocol.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()
	if !ok {
		// Stale or duplicate id. Cannot be delivered to anyone; report
		// and keep the loop alive.
		dispatchErrors.WithLabelValues("stale_id").Inc()
		c.log.Error(logging.CategoryDispatch, "unmatched_response", "response with no pending call", map[string]any{
			"id": resp.ID,
		})
		return
	}
	pendingCalls.Dec()

	if resp.Error != nil {
		ch <- callResult{err: protocol.Classify(resp.Error.Error)}
		return
	}
	result := resp.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	ch <- callResult{result: result}
}

func (c *Connection) dispatchEvent(ev *protocol.Event) {
	switch ev.Method {
	case protocol.MethodCreate:
		c.handleCreate(ev)
	case protocol.MethodDispose:
		c.handleDispose(ev)
	case protocol.MethodAdopt:
		c.handleAdopt(ev)
	default:
		c.handleObjectEvent(ev)
	}
}

func (c *Connection) handleCreate(ev *protocol.Event) {
	params, err := protocol.ParseParams[protocol.CreateParams](ev.Params)
	if err != nil {
		dispatchErrors.WithLabelValues("factory").Inc()
		c.log.Error(logging.CategoryDispatch, "bad_create", err.Error(), map[string]any{"guid": ev.GUID})
		return
	}

	c.mu.Lock()
	parent, ok := c.objects[ev.GUID]
	if !ok {
		c.mu.Unlock()
		dispatchErrors.WithLabelValues("unknown_parent").Inc()
		c.log.Error(logging.CategoryDispatch, "unknown_parent", "create names a parent that does not exist", map[string]any{
			"parent": ev.GUID,
			"guid":   params.GUID,
			"type":   params.Type,
		})
		return
	}
	c.mu.Unlock()

	obj, err := c.factory.Create(parent, params.Type, params.GUID, params.Initializer)
	if err != nil {
		dispatchErrors.WithLabelValues("factory").Inc()
		c.log.Error(logging.CategoryDispatch, "factory_failure", err.Error(), map[string]any{
			"guid": params.GUID,
			"type": params.Type,
		})
		return
	}

	c.mu.Lock()
	// The lock was released around the factory call; the parent may have
	// been disposed in that window. Registering the child then would leave
	// it unreachable from the root, so drop the event instead.
	if parent.base().disposed {
		c.mu.Unlock()
		dispatchErrors.WithLabelValues("disposed_parent").Inc()
		c.log.Warn(logging.CategoryDispatch, "parent_disposed", "create raced a parent dispose", map[string]any{
			"parent": ev.GUID,
			"guid":   params.GUID,
			"type":   params.Type,
		})
		return
	}
	c.objects[params.GUID] = obj
	parent.base().addChildLocked(obj)
	c.mu.Unlock()

	objectsActive.Inc()
	objectsCreated.WithLabelValues(params.Type).Inc()
	c.log.Debug(logging.CategoryObject, "created", "", map[string]any{
		"guid": params.GUID,
		"type": params.Type,
	})
	c.notifyWaiters(params.GUID, obj)
}

func (c *Connection) handleDispose(ev *protocol.Event) {
	c.mu.RLock()
	obj, ok := c.objects[ev.GUID]
	c.mu.RUnlock()
	if !ok {
		// Late dispose for something already cleaned up locally.
		c.log.Debug(logging.CategoryDispatch, "dispose_unknown", "", map[string]any{"guid": ev.GUID})
		return
	}
	reason := ""
	if params, err := protocol.ParseParams[protocol.DisposeParams](ev.Params); err == nil {
		reason = params.Reason
	}
	if reason == "" {
		reason = "protocol"
	}
	obj.base().Dispose(reason)
}

func (c *Connection) handleAdopt(ev *protocol.Event) {
	params, err := protocol.ParseParams[protocol.AdoptParams](ev.Params)
	if err != nil {
		dispatchErrors.WithLabelValues("adopt").Inc()
		c.log.Error(logging.CategoryDispatch, "bad_adopt", err.Error(), map[string]any{"guid": ev.GUID})
		return
	}

	c.mu.RLock()
	newParent, parentOK := c.objects[ev.GUID]
	child, childOK := c.objects[params.GUID]
	c.mu.RUnlock()
	if !parentOK || !childOK {
		dispatchErrors.WithLabelValues("adopt").Inc()
		c.log.Error(logging.CategoryDispatch, "bad_adopt", "adopt names an unknown object", map[string]any{
			"parent": ev.GUID,
			"child":  params.GUID,
		})
		return
	}
	newParent.base().adopt(child)
}

func (c *Connection) handleObjectEvent(ev *protocol.Event) {
	c.mu.RLock()
	obj, ok := c.objects[ev.GUID]
	c.mu.RUnlock()
	if !ok {
		// Expected under concurrent teardown: events can trail a dispose.
		dispatchErrors.WithLabelValues("unknown_object").Inc()
		c.log.Debug(logging.CategoryDispatch, "event_unknown_object", "", map[string]any{
			"guid":   ev.GUID,
			"method": ev.Method,
		})
		return
	}
	obj.OnEvent(ev.Method, ev.Params)
}

// Close tears the connection down, failing all outstanding calls.
func (c *Connection) Close() error {
	c.shutdown(nil)
	return nil
}

// shutdown fails every pending call and waiter exactly once and closes the
// transport.
func (c *Connection) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.closed)
		_ = c.transport.Close()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[uint32]chan callResult)
		c.pendingMu.Unlock()
		for _, ch := range pending {
			ch <- callResult{err: c.closedError()}
			pendingCalls.Dec()
		}

		c.log.Info(logging.CategoryConnection, "closed", "", map[string]any{
			"pending_failed": len(pending),
		})
	})
}

func (c *Connection) closedError() error {
	if c.closeErr != nil {
		return fmt.Errorf("%w: %v", protocol.ErrConnectionClosed, c.closeErr)
	}
	return protocol.ErrConnectionClosed
}

func (c *Connection) removePending(id uint32) {
	c.pendingMu.Lock()
	_, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
	if ok {
		pendingCalls.Dec()
	}
}

func (c *Connection) notifyWaiters(guid string, obj ChannelOwner) {
	c.waitersMu.Lock()
	chans := c.waiters[guid]
	delete(c.waiters, guid)
	c.waitersMu.Unlock()
	for _, ch := range chans {
		ch <- obj
	}
}

func (c *Connection) removeWaiter(guid string, ch chan ChannelOwner) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()
	chans := c.waiters[guid]
	for i, existing := range chans {
		if existing == ch {
			c.waiters[guid] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(c.waiters[guid]) == 0 {
		delete(c.waiters, guid)
	}
}

// objectDisposed records bookkeeping for one disposed node.
func (c *Connection) objectDisposed(guid, typeName, reason string) {
	objectsActive.Dec()
	objectsDisposed.WithLabelValues(reason).Inc()
	c.log.Debug(logging.CategoryObject, "disposed", "", map[string]any{
		"guid":   guid,
		"type":   typeName,
		"reason": reason,
	})
}
