package broker

import "context"

// CatchAllPattern binds a queue to every routing key published on an exchange.
const CatchAllPattern = "#"

// Dialer opens a broker session. It is injected into the provider so tests and
// alternative transports can substitute their own implementation.
type Dialer interface {
	Dial(ctx context.Context, opts Options) (Connection, error)
}

// DialFunc adapts a plain function to Dialer.
type DialFunc func(ctx context.Context, opts Options) (Connection, error)

func (f DialFunc) Dial(ctx context.Context, opts Options) (Connection, error) { return f(ctx, opts) }

// Connection is a live broker session owned by exactly one provider.
// Ready is closed once the session can declare exchanges and queues.
type Connection interface {
	Ready() <-chan struct{}
	Exchange(ctx context.Context, name string, opts ExchangeOptions) (Exchange, error)
	Queue(ctx context.Context, name string, opts QueueOptions) (Queue, error)
	Disconnect() error
}

// ErrorNotifier is implemented by connections that report asynchronous broker errors.
// The returned channel is closed when the connection goes away.
type ErrorNotifier interface {
	NotifyError() <-chan error
}

// Exchange is a broker-side routing entity scoped to one name.
type Exchange interface {
	Name() string
	Publish(ctx context.Context, routingKey string, msg Publishing) error
	Destroy() error
}

// Queue is a broker-side buffer scoped to one name.
type Queue interface {
	Name() string
	Bind(ctx context.Context, exchange, pattern string) error
	Unbind(ctx context.Context, exchange Exchange, pattern string) error
	// Subscribe registers handler and returns the consumer tag once the broker acknowledged it.
	Subscribe(ctx context.Context, handler Handler) (string, error)
	Unsubscribe(ctx context.Context, consumerTag string) error
	Destroy() error
}
