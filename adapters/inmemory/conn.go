package inmemory

import (
	"context"
	"fmt"
	"sync"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

type conn struct {
	b     *Broker
	ready chan struct{}

	mu     sync.Mutex
	closed bool
	subs   map[string]string // consumer tag -> queue
}

func (c *conn) Ready() <-chan struct{} { return c.ready }

func (c *conn) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("inmemory: %w", berr.ErrClosed)
	}

	return nil
}

func (c *conn) Exchange(ctx context.Context, name string, opts cbroker.ExchangeOptions) (cbroker.Exchange, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	if err := c.b.declareExchange(name, opts); err != nil {
		return nil, err
	}

	return &exchange{c: c, name: name}, nil
}

func (c *conn) Queue(ctx context.Context, name string, _ cbroker.QueueOptions) (cbroker.Queue, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	c.b.declareQueue(name)

	return &queue{c: c, name: name}, nil
}

// Disconnect cancels the consumers opened through this connection.
func (c *conn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for tag, q := range subs {
		_ = c.b.unsubscribe(q, tag) // the queue may already be gone
	}

	return nil
}

func (c *conn) track(tag, queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs == nil {
		c.subs = make(map[string]string)
	}

	c.subs[tag] = queue
}

func (c *conn) untrack(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.subs, tag)
}

type exchange struct {
	c    *conn
	name string
}

func (e *exchange) Name() string { return e.name }

func (e *exchange) Publish(ctx context.Context, routingKey string, msg cbroker.Publishing) error {
	if err := e.c.check(ctx); err != nil {
		return err
	}

	return e.c.b.publish(e.name, routingKey, msg)
}

func (e *exchange) Destroy() error {
	e.c.b.deleteExchange(e.name)
	return nil
}

type queue struct {
	c    *conn
	name string
}

func (q *queue) Name() string { return q.name }

func (q *queue) Bind(ctx context.Context, exchange, pattern string) error {
	if err := q.c.check(ctx); err != nil {
		return err
	}

	return q.c.b.bind(q.name, exchange, pattern)
}

func (q *queue) Unbind(ctx context.Context, ex cbroker.Exchange, pattern string) error {
	if err := q.c.check(ctx); err != nil {
		return err
	}

	return q.c.b.unbind(q.name, ex.Name(), pattern)
}

func (q *queue) Subscribe(ctx context.Context, h cbroker.Handler) (string, error) {
	if err := q.c.check(ctx); err != nil {
		return "", err
	}

	tag, err := q.c.b.subscribe(q.name, h)
	if err != nil {
		return "", err
	}

	q.c.track(tag, q.name)

	return tag, nil
}

func (q *queue) Unsubscribe(ctx context.Context, tag string) error {
	if err := q.c.check(ctx); err != nil {
		return err
	}

	q.c.untrack(tag)

	return q.c.b.unsubscribe(q.name, tag)
}

func (q *queue) Destroy() error {
	q.c.b.deleteQueue(q.name)
	return nil
}
