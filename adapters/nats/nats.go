package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

// Connection is a broker session over a NATS client.
type Connection struct {
	client Client
	ready  chan struct{}
	errs   *notifier

	mu        sync.Mutex
	exchanges map[string]string
	closed    bool
}

var (
	_ cbroker.Connection    = (*Connection)(nil)
	_ cbroker.ErrorNotifier = (*Connection)(nil)
)

// NewWithClient wraps an injected client. The connection is ready immediately.
func NewWithClient(c Client) *Connection {
	ready := make(chan struct{})
	close(ready)

	return &Connection{
		client:    c,
		ready:     ready,
		errs:      newNotifier(),
		exchanges: map[string]string{},
	}
}

func (c *Connection) Ready() <-chan struct{} { return c.ready }

func (c *Connection) NotifyError() <-chan error { return c.errs.ch }

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

// Exchange records name as a subject prefix. Redeclaring with another kind fails.
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
		return nil, fmt.Errorf("%w: nats exchange %s declared as %s", berr.ErrConnectFailed, name, prev)
	}

	c.exchanges[name] = kind

	return &exchange{conn: c, name: name}, nil
}

func (c *Connection) Queue(ctx context.Context, name string, _ cbroker.QueueOptions) (cbroker.Queue, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}

	return &queue{
		conn:      c,
		name:      name,
		bindings:  map[string]binding{},
		consumers: map[string][]func() error{},
	}, nil
}

func (c *Connection) kind(exchange string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k, ok := c.exchanges[exchange]

	return k, ok
}

// Disconnect drains and closes the client.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	c.mu.Unlock()

	err := c.client.Close()
	c.errs.close()

	if err != nil {
		return fmt.Errorf("nats close: %w", err)
	}

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

	var headers map[string]string
	if msg.ContentType != "" {
		headers = map[string]string{headerContentType: msg.ContentType}
	}

	subj := publishSubject(e.name, routingKey)
	if err := e.conn.client.Publish(subj, []byte(msg.Body), headers); err != nil {
		return fmt.Errorf("nats publish %s: %w", subj, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (e *exchange) Destroy() error {
	e.conn.mu.Lock()
	defer e.conn.mu.Unlock()

	delete(e.conn.exchanges, e.name)

	return nil
}

type binding struct {
	exchange string
	subject  string
}

type queue struct {
	conn *Connection
	name string

	mu        sync.Mutex
	bindings  map[string]binding
	consumers map[string][]func() error
}

func bindingKey(exchange, pattern string) string { return exchange + "\x00" + pattern }

func (q *queue) Name() string { return q.name }

// Bind applies to subscriptions started after it.
func (q *queue) Bind(ctx context.Context, exchange, pattern string) error {
	if err := q.conn.check(ctx); err != nil {
		return err
	}

	kind, ok := q.conn.kind(exchange)
	if !ok {
		return fmt.Errorf("%w: nats exchange %s not declared", berr.ErrNotBound, exchange)
	}

	subj, err := bindSubject(exchange, kind, pattern)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.bindings[bindingKey(exchange, pattern)] = binding{exchange: exchange, subject: subj}

	return nil
}

func (q *queue) Unbind(ctx context.Context, ex cbroker.Exchange, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	key := bindingKey(ex.Name(), pattern)
	if _, ok := q.bindings[key]; !ok {
		return fmt.Errorf("%w: nats queue %s has no binding %s on %s", berr.ErrNotBound, q.name, pattern, ex.Name())
	}

	delete(q.bindings, key)

	return nil
}

// Subscribe joins the queue group on every bound subject under one consumer tag.
func (q *queue) Subscribe(ctx context.Context, h cbroker.Handler) (string, error) {
	if err := q.conn.check(ctx); err != nil {
		return "", err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.bindings) == 0 {
		return "", fmt.Errorf("%w: nats queue %s has no bindings", berr.ErrNotBound, q.name)
	}

	unsubs := make([]func() error, 0, len(q.bindings))

	for _, b := range q.bindings {
		prefix := b.exchange + "."

		unsub, err := q.conn.client.QueueSubscribe(b.subject, q.name, func(m *nats.Msg) {
			d := cbroker.Delivery{
				Data:       string(m.Data),
				RoutingKey: strings.TrimPrefix(m.Subject, prefix),
			}
			if m.Header != nil {
				d.ContentType = m.Header.Get(headerContentType)
			}

			h(d)
		})
		if err != nil {
			for _, u := range unsubs {
				_ = u()
			}

			return "", fmt.Errorf("nats subscribe %s: %w", b.subject, errors.Join(berr.ErrSubscribeFailed, err))
		}

		unsubs = append(unsubs, unsub)
	}

	tag := "ctag-" + uuid.NewString()
	q.consumers[tag] = unsubs

	return tag, nil
}

func (q *queue) Unsubscribe(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	unsubs, ok := q.consumers[tag]
	delete(q.consumers, tag)
	q.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: nats consumer %s not found", berr.ErrSubscribeFailed, tag)
	}

	return unsubscribeAll(unsubs)
}

func (q *queue) Destroy() error {
	q.mu.Lock()
	consumers := q.consumers
	q.consumers = map[string][]func() error{}
	q.bindings = map[string]binding{}
	q.mu.Unlock()

	var errs []error
	for _, unsubs := range consumers {
		if err := unsubscribeAll(unsubs); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func unsubscribeAll(unsubs []func() error) error {
	var errs []error

	for _, u := range unsubs {
		if err := u(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func publishSubject(exchange, routingKey string) string {
	if routingKey == "" {
		return exchange
	}

	return exchange + "." + routingKey
}

// bindSubject maps an exchange binding to a NATS subject.
func bindSubject(exchange, kind, pattern string) (string, error) {
	switch kind {
	case "fanout":
		return exchange + ".>", nil
	case "direct":
		return publishSubject(exchange, pattern), nil
	}

	if pattern == "" {
		return exchange, nil
	}

	words := strings.Split(pattern, ".")
	for i, w := range words {
		if w == "#" {
			if i != len(words)-1 {
				return "", fmt.Errorf("%w: pattern %q has no nats equivalent", berr.ErrNotBound, pattern)
			}

			words[i] = ">"
		}
	}

	return exchange + "." + strings.Join(words, "."), nil
}
