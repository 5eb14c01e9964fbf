package channel

import "sync"

// EventListener receives one application-level event payload.
type EventListener func(payload any)

// EventEmitter fans application events out to registered listeners. Emission
// is fire-and-forget with respect to the dispatch loop: listeners run on
// their own goroutine, so a slow handler never stalls frame processing.
type EventEmitter struct {
	mu        sync.Mutex
	listeners map[string][]*registeredListener
}

type registeredListener struct {
	fn   EventListener
	once bool
}

// On registers a listener for the named event.
func (e *EventEmitter) On(name string, fn EventListener) {
	e.register(name, fn, false)
}

// Once registers a listener removed after its first invocation.
func (e *EventEmitter) Once(name string, fn EventListener) {
	e.register(name, fn, true)
}

func (e *EventEmitter) register(name string, fn EventListener, once bool) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]*registeredListener)
	}
	e.listeners[name] = append(e.listeners[name], &registeredListener{fn: fn, once: once})
}

// RemoveListeners drops every listener for the named event.
func (e *EventEmitter) RemoveListeners(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, name)
}

// ListenerCount returns the number of listeners for the named event.
func (e *EventEmitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[name])
}

// Emit delivers payload to every listener registered for name. The snapshot
// is taken under the lock; the calls happen on a spawned goroutine.
func (e *EventEmitter) Emit(name string, payload any) {
	e.mu.Lock()
	regs := e.listeners[name]
	if len(regs) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]EventListener, 0, len(regs))
	kept := regs[:0]
	for _, reg := range regs {
		snapshot = append(snapshot, reg.fn)
		if !reg.once {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, name)
	} else {
		e.listeners[name] = kept
	}
	e.mu.Unlock()

	go func() {
		for _, fn := range snapshot {
			fn(payload)
		}
	}()
}
