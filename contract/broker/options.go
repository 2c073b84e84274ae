package broker

import "time"

// Options is the provider configuration. QueueName and ExchangeName are required;
// the remaining fields are passed through to the Dialer.
type Options struct {
	QueueName    string
	ExchangeName string

	URL         string
	Brokers     []string
	ClientName  string
	ConnTimeout time.Duration

	ExchangeKind string // defaults to "topic"
	Durable      bool
	AutoDelete   bool

	// ExpectBinary makes untyped inbound payloads decode as base64 binary.
	ExpectBinary bool
	// TypedPayloads wraps payloads in a kind-tagged envelope.
	TypedPayloads bool
}

// ExchangeOptions controls exchange declaration.
type ExchangeOptions struct {
	Kind       string
	Durable    bool
	AutoDelete bool
}

// QueueOptions controls queue declaration.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
}

// DefaultExchangeKind is used when Options.ExchangeKind is empty.
const DefaultExchangeKind = "topic"

// ExchangeOptions derives exchange declaration options.
func (o Options) ExchangeOptions() ExchangeOptions {
	kind := o.ExchangeKind
	if kind == "" {
		kind = DefaultExchangeKind
	}

	return ExchangeOptions{Kind: kind, Durable: o.Durable, AutoDelete: o.AutoDelete}
}

// QueueOptions derives queue declaration options.
func (o Options) QueueOptions() QueueOptions {
	return QueueOptions{Durable: o.Durable, AutoDelete: o.AutoDelete}
}
