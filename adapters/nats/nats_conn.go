package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

const headerContentType = "Content-Type"

// Client is the subset of a NATS connection used by the transport.
type Client interface {
	// Publish publishes data to subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error
	// QueueSubscribe joins group on subject and returns a function that removes the subscription.
	QueueSubscribe(subject, group string, cb nats.MsgHandler) (func() error, error)
	// Close drains pending messages and closes the connection.
	Close() error
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Add(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsClient) QueueSubscribe(subject, group string, cb nats.MsgHandler) (func() error, error) {
	sub, err := c.nc.QueueSubscribe(subject, group, cb)
	if err != nil {
		return nil, err
	}

	if err := c.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	return sub.Unsubscribe, nil
}

func (c natsClient) Close() error {
	if c.nc.IsClosed() {
		return nil
	}

	err := c.nc.Drain()
	c.nc.Close()

	return err
}

// Dialer connects to NATS using provider options (URL, ClientName, ConnTimeout).
type Dialer struct {
	// MaxReconnects is passed to nats.MaxReconnects when non-zero.
	MaxReconnects int
}

var _ cbroker.Dialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, opts cbroker.Options) (cbroker.Connection, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("%w: nats url required", berr.ErrConnectFailed)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	errs := newNotifier()

	natsOpts := []nats.Option{
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			if sub != nil {
				err = fmt.Errorf("nats subscription %s: %w", sub.Subject, err)
			}

			errs.send(err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				errs.send(fmt.Errorf("nats disconnected: %w", err))
			}
		}),
		nats.ClosedHandler(func(*nats.Conn) { errs.close() }),
	}

	if opts.ClientName != "" {
		natsOpts = append(natsOpts, nats.Name(opts.ClientName))
	}

	if opts.ConnTimeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(opts.ConnTimeout))
	}

	if d.MaxReconnects != 0 {
		natsOpts = append(natsOpts, nats.MaxReconnects(d.MaxReconnects))
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: nats connect: %w", berr.ErrConnectFailed, err)
	}

	c := NewWithClient(natsClient{nc: nc})
	c.errs = errs

	return c, nil
}

// notifier is an error channel that tolerates sends after close.
type notifier struct {
	mu     sync.Mutex
	ch     chan error
	closed bool
}

func newNotifier() *notifier { return &notifier{ch: make(chan error, 8)} }

func (n *notifier) send(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}

	select {
	case n.ch <- err:
	default:
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.closed {
		n.closed = true
		close(n.ch)
	}
}
