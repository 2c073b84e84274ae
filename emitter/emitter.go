// Package emitter is an in-process observer list that satisfies broker.Sink.
package emitter

import (
	"context"
	"sync"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
)

// Listener receives an event payload.
type Listener func(payload any)

type entry struct {
	id   uint64
	fn   Listener
	once bool
}

// Emitter dispatches events synchronously to listeners in registration order.
// It is safe for concurrent use; listeners run outside the internal lock.
type Emitter struct {
	mu        sync.Mutex
	next      uint64
	listeners map[string][]entry
	isReady   bool
	ready     chan struct{}
}

var _ cbroker.Sink = (*Emitter)(nil)

// New returns an empty Emitter.
func New() *Emitter {
	return &Emitter{
		listeners: make(map[string][]entry),
		ready:     make(chan struct{}),
	}
}

// On registers fn for event and returns a function that removes it.
func (e *Emitter) On(event string, fn Listener) func() { return e.add(event, fn, false) }

// Once registers fn for the next emission of event only.
func (e *Emitter) Once(event string, fn Listener) func() { return e.add(event, fn, true) }

func (e *Emitter) add(event string, fn Listener, once bool) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	id := e.next
	e.listeners[event] = append(e.listeners[event], entry{id: id, fn: fn, once: once})

	return func() { e.off(event, id) }
}

func (e *Emitter) off(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.listeners[event]
	for i, ent := range list {
		if ent.id == id {
			e.listeners[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit calls every listener registered for event.
func (e *Emitter) Emit(event string, payload any) {
	e.mu.Lock()
	list := e.listeners[event]
	calls := make([]Listener, 0, len(list))
	kept := list[:0:0]

	for _, ent := range list {
		calls = append(calls, ent.fn)
		if !ent.once {
			kept = append(kept, ent)
		}
	}

	e.listeners[event] = kept
	e.mu.Unlock()

	for _, fn := range calls {
		fn(payload)
	}
}

// MarkReady sets the ready flag and releases Ready waiters. Repeated calls are ignored.
func (e *Emitter) MarkReady() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isReady {
		return
	}

	e.isReady = true
	close(e.ready)
}

// IsReady reports whether the provider feeding this emitter reached readiness.
func (e *Emitter) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.isReady
}

// Ready is closed once MarkReady was called.
func (e *Emitter) Ready() <-chan struct{} { return e.ready }

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.listeners[event])
}

// Messages returns a channel fed by every "message" event until ctx is done.
// When the buffer is full Emit blocks until the reader catches up or ctx is done.
func (e *Emitter) Messages(ctx context.Context, buffer int) <-chan any {
	ch := make(chan any, buffer)

	var mu sync.Mutex

	done := false
	off := e.On(cbroker.EventMessage, func(payload any) {
		mu.Lock()
		defer mu.Unlock()

		if done {
			return
		}

		select {
		case ch <- payload:
		case <-ctx.Done():
		}
	})

	go func() {
		<-ctx.Done()
		off()
		mu.Lock()
		done = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}
