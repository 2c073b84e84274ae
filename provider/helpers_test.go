package provider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	"github.com/next-trace/scg-event-provider/emitter"
	"github.com/next-trace/scg-event-provider/provider"
)

const fakeConsumerTag = "test123"

// journal records broker calls in the order they happen, across handles.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	j.calls = append(j.calls, call)
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]string(nil), j.calls...)
}

type published struct {
	routingKey string
	msg        cbroker.Publishing
}

type fakeExchange struct {
	j    *journal
	name string

	mu         sync.Mutex
	publishes  []published
	publishErr error
}

func (e *fakeExchange) Name() string { return e.name }

func (e *fakeExchange) Publish(_ context.Context, routingKey string, msg cbroker.Publishing) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.publishes = append(e.publishes, published{routingKey: routingKey, msg: msg})

	return e.publishErr
}

func (e *fakeExchange) Destroy() error {
	e.j.add("exchange.destroy")
	return nil
}

func (e *fakeExchange) sent() []published {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]published(nil), e.publishes...)
}

type bindCall struct {
	exchange string
	pattern  string
}

type unbindCall struct {
	exchange cbroker.Exchange
	pattern  string
}

type fakeQueue struct {
	j    *journal
	name string

	mu           sync.Mutex
	binds        []bindCall
	unbinds      []unbindCall
	handlers     []cbroker.Handler
	unsubscribes []string
}

func (q *fakeQueue) Name() string { return q.name }

func (q *fakeQueue) Bind(_ context.Context, exchange, pattern string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.binds = append(q.binds, bindCall{exchange: exchange, pattern: pattern})

	return nil
}

func (q *fakeQueue) Unbind(ctx context.Context, exchange cbroker.Exchange, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.j.add("queue.unbind")
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unbinds = append(q.unbinds, unbindCall{exchange: exchange, pattern: pattern})

	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, h cbroker.Handler) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers = append(q.handlers, h)

	return fakeConsumerTag, nil
}

func (q *fakeQueue) Unsubscribe(_ context.Context, tag string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.unsubscribes = append(q.unsubscribes, tag)

	return nil
}

func (q *fakeQueue) Destroy() error {
	q.j.add("queue.destroy")
	return nil
}

func (q *fakeQueue) handler(i int) cbroker.Handler {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.handlers[i]
}

func (q *fakeQueue) subscribed() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.handlers)
}

type exchangeCall struct {
	name string
	opts cbroker.ExchangeOptions
}

type fakeConn struct {
	j     *journal
	ready chan struct{}
	errs  chan error

	mu        sync.Mutex
	exchanges []exchangeCall
	queues    []string
	ex        *fakeExchange
	q         *fakeQueue
}

func (c *fakeConn) Ready() <-chan struct{} { return c.ready }

func (c *fakeConn) Exchange(_ context.Context, name string, opts cbroker.ExchangeOptions) (cbroker.Exchange, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exchanges = append(c.exchanges, exchangeCall{name: name, opts: opts})
	c.ex = &fakeExchange{j: c.j, name: name}

	return c.ex, nil
}

func (c *fakeConn) Queue(_ context.Context, name string, _ cbroker.QueueOptions) (cbroker.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queues = append(c.queues, name)
	c.q = &fakeQueue{j: c.j, name: name}

	return c.q, nil
}

func (c *fakeConn) Disconnect() error {
	c.j.add("connection.disconnect")
	return nil
}

func (c *fakeConn) NotifyError() <-chan error { return c.errs }

func (c *fakeConn) exchange() *fakeExchange {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ex
}

func (c *fakeConn) queue() *fakeQueue {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.q
}

type fakeDialer struct {
	conn   *fakeConn
	err    error
	dialed chan cbroker.Options
}

func newFakeDialer() *fakeDialer {
	j := &journal{}

	return &fakeDialer{
		conn: &fakeConn{
			j:     j,
			ready: make(chan struct{}),
			errs:  make(chan error, 1),
		},
		dialed: make(chan cbroker.Options, 1),
	}
}

func (d *fakeDialer) Dial(_ context.Context, opts cbroker.Options) (cbroker.Connection, error) {
	d.dialed <- opts
	if d.err != nil {
		return nil, d.err
	}

	return d.conn, nil
}

func testOptions() *cbroker.Options {
	return &cbroker.Options{QueueName: "queue", ExchangeName: "exchange"}
}

type harness struct {
	p      *provider.Provider
	em     *emitter.Emitter
	dialer *fakeDialer
	conn   *fakeConn
}

func newHarness(t *testing.T, opts *cbroker.Options) *harness {
	t.Helper()

	d := newFakeDialer()
	em := emitter.New()

	p, err := provider.New(em, opts, d)
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Close(context.Background()) })

	return &harness{p: p, em: em, dialer: d, conn: d.conn}
}

// fireReady emits the connection ready signal and waits for the provider to become ready.
func (h *harness) fireReady(t *testing.T) {
	t.Helper()

	close(h.conn.ready)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	require.NoError(t, h.p.Wait(ctx))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

var errBoom = errors.New("boom")
