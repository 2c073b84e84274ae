package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

type binding struct {
	exchange string
	pattern  string
}

type queueState struct {
	name     string
	bindings []binding
	tags     []string
	handlers map[string]cbroker.Handler
	next     int
	backlog  []cbroker.Delivery
	outbox   []dispatch
	draining bool
}

// Broker is a thread-safe in-process broker with exchange/queue/binding semantics.
// Messages routed to a queue without consumers wait in its backlog.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]cbroker.ExchangeOptions
	queues    map[string]*queueState
}

var _ cbroker.Dialer = (*Broker)(nil)

// New creates an empty broker.
func New() *Broker {
	return &Broker{
		exchanges: make(map[string]cbroker.ExchangeOptions),
		queues:    make(map[string]*queueState),
	}
}

// Dial returns a connection that is ready immediately.
func (b *Broker) Dial(ctx context.Context, _ cbroker.Options) (cbroker.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ready := make(chan struct{})
	close(ready)

	return &conn{b: b, ready: ready}, nil
}

// Depth returns the number of undelivered messages in queue.
func (b *Broker) Depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[queue]; ok {
		return len(q.backlog)
	}

	return 0
}

// HasExchange reports whether name is declared.
func (b *Broker) HasExchange(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.exchanges[name]

	return ok
}

// HasQueue reports whether name is declared.
func (b *Broker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.queues[name]

	return ok
}

func (b *Broker) declareExchange(name string, opts cbroker.ExchangeOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if opts.Kind == "" {
		opts.Kind = cbroker.DefaultExchangeKind
	}

	if existing, ok := b.exchanges[name]; ok && existing.Kind != opts.Kind {
		return fmt.Errorf("%w: inmemory exchange %q redeclared as %s (was %s)",
			berr.ErrConnectFailed, name, opts.Kind, existing.Kind)
	}

	b.exchanges[name] = opts

	return nil
}

func (b *Broker) declareQueue(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.queues[name]; !ok {
		b.queues[name] = &queueState{name: name, handlers: make(map[string]cbroker.Handler)}
	}
}

type dispatch struct {
	h cbroker.Handler
	d cbroker.Delivery
}

func (b *Broker) publish(exchange, routingKey string, msg cbroker.Publishing) error {
	b.mu.Lock()

	opts, ok := b.exchanges[exchange]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: inmemory exchange %q not declared", berr.ErrPublishFailed, exchange)
	}

	d := cbroker.Delivery{Data: msg.Body, ContentType: msg.ContentType, RoutingKey: routingKey}

	var drain []*queueState

	for _, q := range b.queues {
		if !q.routes(exchange, opts.Kind, routingKey) {
			continue
		}

		h := q.pick()
		if h == nil {
			q.backlog = append(q.backlog, d)
			continue
		}

		if q.enqueue(dispatch{h: h, d: d}) {
			drain = append(drain, q)
		}
	}

	b.mu.Unlock()

	for _, q := range drain {
		b.drain(q)
	}

	return nil
}

// enqueue appends to the queue's outbox and reports whether the caller must drain it.
// Callers hold b.mu.
func (q *queueState) enqueue(ds ...dispatch) bool {
	q.outbox = append(q.outbox, ds...)
	if q.draining || len(q.outbox) == 0 {
		return false
	}

	q.draining = true

	return true
}

// drain delivers the outbox in FIFO order outside the lock. Only one goroutine drains a
// queue at a time; deliveries enqueued meanwhile, including by handlers, are picked up
// before it returns.
func (b *Broker) drain(q *queueState) {
	for {
		b.mu.Lock()
		if len(q.outbox) == 0 {
			q.draining = false
			b.mu.Unlock()

			return
		}

		next := q.outbox[0]
		q.outbox = q.outbox[1:]
		b.mu.Unlock()

		next.h(next.d)
	}
}

func (q *queueState) routes(exchange, kind, routingKey string) bool {
	for _, bd := range q.bindings {
		if bd.exchange == exchange && cbroker.Match(kind, bd.pattern, routingKey) {
			return true
		}
	}

	return false
}

// pick returns the next consumer in round-robin order, or nil.
func (q *queueState) pick() cbroker.Handler {
	if len(q.tags) == 0 {
		return nil
	}

	tag := q.tags[q.next%len(q.tags)]
	q.next++

	return q.handlers[tag]
}

func (b *Broker) bind(queue, exchange, pattern string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.exchanges[exchange]; !ok {
		return fmt.Errorf("%w: inmemory exchange %q not declared", berr.ErrNotBound, exchange)
	}

	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: inmemory queue %q not declared", berr.ErrNotBound, queue)
	}

	bd := binding{exchange: exchange, pattern: pattern}
	for _, existing := range q.bindings {
		if existing == bd {
			return nil
		}
	}

	q.bindings = append(q.bindings, bd)

	return nil
}

func (b *Broker) unbind(queue, exchange, pattern string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: inmemory queue %q not declared", berr.ErrNotBound, queue)
	}

	bd := binding{exchange: exchange, pattern: pattern}
	for i, existing := range q.bindings {
		if existing == bd {
			q.bindings = append(q.bindings[:i:i], q.bindings[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: inmemory queue %q has no binding %s/%s", berr.ErrNotBound, queue, exchange, pattern)
}

func (b *Broker) subscribe(queue string, h cbroker.Handler) (string, error) {
	b.mu.Lock()

	q, ok := b.queues[queue]
	if !ok {
		b.mu.Unlock()
		return "", fmt.Errorf("%w: inmemory queue %q not declared", berr.ErrSubscribeFailed, queue)
	}

	tag := "ctag-" + uuid.NewString()
	q.tags = append(q.tags, tag)
	q.handlers[tag] = h
	pending := make([]dispatch, 0, len(q.backlog))
	for _, d := range q.backlog {
		pending = append(pending, dispatch{h: h, d: d})
	}

	q.backlog = nil
	mustDrain := q.enqueue(pending...)

	b.mu.Unlock()

	if mustDrain {
		b.drain(q)
	}

	return tag, nil
}

func (b *Broker) unsubscribe(queue, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return fmt.Errorf("%w: inmemory queue %q not declared", berr.ErrSubscribeFailed, queue)
	}

	if _, ok := q.handlers[tag]; !ok {
		return fmt.Errorf("%w: inmemory unknown consumer tag %q", berr.ErrSubscribeFailed, tag)
	}

	delete(q.handlers, tag)

	for i, t := range q.tags {
		if t == tag {
			q.tags = append(q.tags[:i:i], q.tags[i+1:]...)
			break
		}
	}

	return nil
}

func (b *Broker) deleteQueue(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.queues, name)
}

func (b *Broker) deleteExchange(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.exchanges, name)

	for _, q := range b.queues {
		kept := q.bindings[:0:0]
		for _, bd := range q.bindings {
			if bd.exchange != name {
				kept = append(kept, bd)
			}
		}

		q.bindings = kept
	}
}
