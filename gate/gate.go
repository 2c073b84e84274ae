// Package gate tracks broker readiness and defers operations issued before it.
package gate

import (
	"sync"

	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

// State is the readiness state of a provider.
type State int

const (
	Initializing State = iota
	AwaitingBroker
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case AwaitingBroker:
		return "awaiting_broker"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Op is a gated operation. deferred is true when it runs on flush rather than on the
// caller's goroutine.
type Op func(deferred bool) error

// Gate runs operations immediately once Ready and queues them, in call order, before that.
// It is safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	state   State
	pending []Op
	ready   chan struct{}
	closed  chan struct{}
	onErr   func(error)
}

// New returns a gate in the Initializing state. onErr receives errors of deferred
// operations, which have no caller left to return to; it may be nil.
func New(onErr func(error)) *Gate {
	return &Gate{
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
		onErr:  onErr,
	}
}

// Begin moves Initializing to AwaitingBroker. It reports whether the transition happened.
func (g *Gate) Begin() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Initializing {
		return false
	}

	g.state = AwaitingBroker

	return true
}

// Do runs op on the calling goroutine and returns its error when Ready, queues it while
// the broker is not ready yet and returns ErrClosed after Close.
func (g *Gate) Do(op Op) error {
	g.mu.Lock()

	switch g.state {
	case Ready:
		g.mu.Unlock()

		return op(false)
	case Closed:
		g.mu.Unlock()

		return berr.ErrClosed
	default:
		g.pending = append(g.pending, op)
		g.mu.Unlock()

		return nil
	}
}

// Open flushes deferred operations in order and then marks the gate Ready.
// Operations queued while flushing are drained too, so no later call can overtake them.
// It reports false when the gate was already Ready or Closed.
func (g *Gate) Open() bool {
	g.mu.Lock()
	if g.state == Ready || g.state == Closed {
		g.mu.Unlock()
		return false
	}

	for {
		batch := g.pending
		g.pending = nil

		if len(batch) == 0 {
			g.state = Ready
			close(g.ready)
			g.mu.Unlock()

			return true
		}

		g.mu.Unlock()

		for _, op := range batch {
			if err := op(true); err != nil && g.onErr != nil {
				g.onErr(err)
			}
		}

		g.mu.Lock()
		if g.state == Closed {
			g.mu.Unlock()
			return false
		}
	}
}

// Close is terminal. Deferred operations that never ran are dropped.
// It reports false when the gate was already closed.
func (g *Gate) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Closed {
		return false
	}

	g.state = Closed
	g.pending = nil
	close(g.closed)

	return true
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Pending returns the number of deferred operations.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.pending)
}

// Ready is closed when the gate becomes Ready.
func (g *Gate) Ready() <-chan struct{} { return g.ready }

// Done is closed when the gate is closed.
func (g *Gate) Done() <-chan struct{} { return g.closed }
