package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

const product = "scg-event-provider"

// Channel is the subset of *amqp.Channel used by the transport.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)

// Dialer opens AMQP connections from provider options (URL, ConnTimeout, ClientName).
type Dialer struct{}

var _ cbroker.Dialer = Dialer{}

// NewDialer returns a RabbitMQ dialer.
func NewDialer() Dialer { return Dialer{} }

// Dial connects and opens the channel used for every exchange and queue of the session.
func (Dialer) Dial(ctx context.Context, opts cbroker.Options) (cbroker.Connection, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrConnectFailed)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := opts.ConnTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	props := amqp.Table{"product": product}
	if opts.ClientName != "" {
		props["connection_name"] = opts.ClientName
	}

	conn, err := amqp.DialConfig(opts.URL, amqp.Config{
		Locale:     "en_US",
		Properties: props,
		Dial:       amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rabbitmq dial: %w", berr.ErrConnectFailed, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: rabbitmq channel: %w", berr.ErrConnectFailed, err)
	}

	c := newConnection(ch, conn.Close)
	go c.forward(conn.NotifyClose(make(chan *amqp.Error, 1)))

	return c, nil
}

// Connection is a broker session over one AMQP channel.
type Connection struct {
	ch        Channel
	closeConn func() error
	ready     chan struct{}
	errs      chan error
}

var (
	_ cbroker.Connection    = (*Connection)(nil)
	_ cbroker.ErrorNotifier = (*Connection)(nil)
)

// NewWithChannel wraps an already open channel. Disconnect closes only the channel.
func NewWithChannel(ch Channel) *Connection { return newConnection(ch, nil) }

func newConnection(ch Channel, closeConn func() error) *Connection {
	ready := make(chan struct{})
	close(ready)

	return &Connection{ch: ch, closeConn: closeConn, ready: ready, errs: make(chan error, 1)}
}

func (c *Connection) forward(notify <-chan *amqp.Error) {
	defer close(c.errs)

	for e := range notify {
		if e == nil {
			continue
		}

		select {
		case c.errs <- fmt.Errorf("rabbitmq connection closed: %w", e):
		default:
		}
	}
}

// Ready is closed: amqp.DialConfig returns an open connection.
func (c *Connection) Ready() <-chan struct{} { return c.ready }

// NotifyError reports unexpected connection closes.
func (c *Connection) NotifyError() <-chan error { return c.errs }

func (c *Connection) Exchange(ctx context.Context, name string, opts cbroker.ExchangeOptions) (cbroker.Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := opts.Kind
	if kind == "" {
		kind = cbroker.DefaultExchangeKind
	}

	if err := c.ch.ExchangeDeclare(
		name,
		kind,
		opts.Durable,
		opts.AutoDelete,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("rabbitmq declare exchange %s: %w", name, errors.Join(berr.ErrConnectFailed, err))
	}

	return &exchange{ch: c.ch, name: name}, nil
}

func (c *Connection) Queue(ctx context.Context, name string, opts cbroker.QueueOptions) (cbroker.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := c.ch.QueueDeclare(
		name,
		opts.Durable,
		opts.AutoDelete,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("rabbitmq declare queue %s: %w", name, errors.Join(berr.ErrConnectFailed, err))
	}

	return &queue{ch: c.ch, name: name}, nil
}

// Disconnect closes the channel and then the connection.
func (c *Connection) Disconnect() error {
	var errs []error

	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		errs = append(errs, fmt.Errorf("close channel: %w", err))
	}

	if c.closeConn != nil {
		if err := c.closeConn(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	return errors.Join(errs...)
}
