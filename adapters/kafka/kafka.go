package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

const headerContentType = "content-type"

// Connection is a broker session over a producer client and per-subscription consumers.
type Connection struct {
	producer    Producer
	newConsumer ConsumerFactory
	ready       chan struct{}

	mu        sync.Mutex
	errs      chan error
	exchanges map[string]string
	queues    []*queue
	closed    bool
}

var (
	_ cbroker.Connection    = (*Connection)(nil)
	_ cbroker.ErrorNotifier = (*Connection)(nil)
)

// NewWithClients wraps injected clients and pings the cluster in the background.
// Ready is closed on the first successful ping; a failed ping is reported on NotifyError.
func NewWithClients(ctx context.Context, p Producer, f ConsumerFactory) *Connection {
	c := &Connection{
		producer:    p,
		newConsumer: f,
		ready:       make(chan struct{}),
		errs:        make(chan error, 4),
		exchanges:   map[string]string{},
	}

	go c.await(ctx)

	return c
}

func (c *Connection) await(ctx context.Context) {
	if err := c.producer.Ping(ctx); err != nil {
		if ctx.Err() == nil {
			c.notify(fmt.Errorf("%w: kafka ping: %w", berr.ErrConnectFailed, err))
		}

		return
	}

	close(c.ready)
}

func (c *Connection) notify(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.errs <- err:
	default:
	}
}

func (c *Connection) Ready() <-chan struct{} { return c.ready }

func (c *Connection) NotifyError() <-chan error { return c.errs }

func (c *Connection) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return berr.ErrClosed
	}

	return nil
}

// Exchange names a topic. The kind decides how binding patterns filter record keys.
func (c *Connection) Exchange(ctx context.Context, name string, opts cbroker.ExchangeOptions) (cbroker.Exchange, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	kind := opts.Kind
	if kind == "" {
		kind = cbroker.DefaultExchangeKind
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.exchanges[name]; ok && prev != kind {
		return nil, fmt.Errorf("%w: kafka topic %s declared as %s", berr.ErrConnectFailed, name, prev)
	}

	c.exchanges[name] = kind

	return &exchange{conn: c, name: name}, nil
}

// Queue names a consumer group.
func (c *Connection) Queue(ctx context.Context, name string, _ cbroker.QueueOptions) (cbroker.Queue, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	q := &queue{conn: c, name: name, consumers: map[string]*groupConsumer{}}

	c.mu.Lock()
	c.queues = append(c.queues, q)
	c.mu.Unlock()

	return q, nil
}

func (c *Connection) kind(exchange string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k, ok := c.exchanges[exchange]

	return k, ok
}

// Disconnect stops every consumer and closes the producer.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	queues := c.queues
	c.queues = nil
	close(c.errs)
	c.mu.Unlock()

	for _, q := range queues {
		q.stopAll()
	}

	c.producer.Close()

	return nil
}

type exchange struct {
	conn *Connection
	name string
}

func (e *exchange) Name() string { return e.name }

func (e *exchange) Publish(ctx context.Context, routingKey string, msg cbroker.Publishing) error {
	if err := e.conn.check(ctx); err != nil {
		return err
	}

	rec := &kgo.Record{Topic: e.name, Key: []byte(routingKey), Value: []byte(msg.Body)}
	if msg.ContentType != "" {
		rec.Headers = []kgo.RecordHeader{{Key: headerContentType, Value: []byte(msg.ContentType)}}
	}

	if err := e.conn.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return wrapProduceErr(e.name, err)
	}

	return nil
}

// Destroy forgets the topic locally.
func (e *exchange) Destroy() error {
	e.conn.mu.Lock()
	defer e.conn.mu.Unlock()

	delete(e.conn.exchanges, e.name)

	return nil
}

func wrapProduceErr(topic string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("%w: kafka publish to %q: %w", berr.ErrPublishFailed, topic, err)
}

type binding struct {
	topic   string
	kind    string
	pattern string
}

type groupConsumer struct {
	client     Consumer
	cancel     context.CancelFunc
	done       chan struct{}
	delivering atomic.Bool
}

// stop cancels polling and waits for the poll goroutine to close the client. Called
// from inside a delivery it only cancels: the poll goroutine is the one running it.
func (g *groupConsumer) stop() {
	g.cancel()

	if g.delivering.Load() {
		return
	}

	<-g.done
}

type queue struct {
	conn *Connection
	name string

	mu        sync.Mutex
	bindings  []binding
	consumers map[string]*groupConsumer
}

func (q *queue) Name() string { return q.name }

func (q *queue) Bind(ctx context.Context, exchange, pattern string) error {
	if err := q.conn.check(ctx); err != nil {
		return err
	}

	kind, ok := q.conn.kind(exchange)
	if !ok {
		return fmt.Errorf("%w: kafka topic %s not declared", berr.ErrNotBound, exchange)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, b := range q.bindings {
		if b.topic == exchange && b.pattern == pattern {
			return nil
		}
	}

	q.bindings = append(q.bindings, binding{topic: exchange, kind: kind, pattern: pattern})

	return nil
}

func (q *queue) Unbind(ctx context.Context, ex cbroker.Exchange, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, b := range q.bindings {
		if b.topic == ex.Name() && b.pattern == pattern {
			q.bindings = append(q.bindings[:i], q.bindings[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: kafka group %s has no binding %s on %s", berr.ErrNotBound, q.name, pattern, ex.Name())
}

func (q *queue) topics() []string {
	seen := map[string]bool{}
	topics := make([]string, 0, len(q.bindings))

	for _, b := range q.bindings {
		if !seen[b.topic] {
			seen[b.topic] = true
			topics = append(topics, b.topic)
		}
	}

	return topics
}

func (q *queue) matches(topic, key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, b := range q.bindings {
		if b.topic == topic && cbroker.Match(b.kind, b.pattern, key) {
			return true
		}
	}

	return false
}

// Subscribe joins the consumer group and polls until unsubscribed.
func (q *queue) Subscribe(ctx context.Context, h cbroker.Handler) (string, error) {
	if err := q.conn.check(ctx); err != nil {
		return "", err
	}

	q.mu.Lock()
	topics := q.topics()
	q.mu.Unlock()

	if len(topics) == 0 {
		return "", fmt.Errorf("%w: kafka group %s has no bindings", berr.ErrNotBound, q.name)
	}

	cl, err := q.conn.newConsumer(q.name, topics)
	if err != nil {
		return "", fmt.Errorf("kafka consumer %s: %w", q.name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	g := &groupConsumer{client: cl, cancel: cancel, done: make(chan struct{})}
	tag := "ctag-" + uuid.NewString()

	q.mu.Lock()
	q.consumers[tag] = g
	q.mu.Unlock()

	go q.poll(pollCtx, g, h)

	return tag, nil
}

func (q *queue) poll(ctx context.Context, g *groupConsumer, h cbroker.Handler) {
	defer func() {
		g.client.Close()
		close(g.done)
	}()

	for {
		fetches := g.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			q.conn.notify(fmt.Errorf("kafka fetch %s[%d]: %w", topic, partition, err))
		})

		fetches.EachRecord(func(r *kgo.Record) {
			if ctx.Err() != nil {
				return
			}

			key := string(r.Key)
			if !q.matches(r.Topic, key) {
				return
			}

			g.delivering.Store(true)
			defer g.delivering.Store(false)

			h(cbroker.Delivery{
				Data:        string(r.Value),
				ContentType: contentType(r.Headers),
				RoutingKey:  key,
			})
		})
	}
}

func contentType(headers []kgo.RecordHeader) string {
	for _, hd := range headers {
		if strings.EqualFold(hd.Key, headerContentType) {
			return string(hd.Value)
		}
	}

	return ""
}

func (q *queue) Unsubscribe(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	g, ok := q.consumers[tag]
	delete(q.consumers, tag)
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: kafka consumer %s not found", berr.ErrSubscribeFailed, tag)
	}

	g.stop()

	return nil
}

func (q *queue) stopAll() {
	q.mu.Lock()
	consumers := q.consumers
	q.consumers = map[string]*groupConsumer{}
	q.mu.Unlock()

	for _, g := range consumers {
		g.stop()
	}
}

// Destroy stops the group's consumers and drops its bindings. Committed offsets stay on the cluster.
func (q *queue) Destroy() error {
	q.stopAll()

	q.mu.Lock()
	q.bindings = nil
	q.mu.Unlock()

	return nil
}
