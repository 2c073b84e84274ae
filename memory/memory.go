package memory

import (
	"context"

	"github.com/next-trace/scg-event-provider/adapters/inmemory"
	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	"github.com/next-trace/scg-event-provider/emitter"
	"github.com/next-trace/scg-event-provider/provider"
)

// New constructs a provider backed by a fresh in-memory broker and returns it with its
// emitter and a cleanup function that closes the provider.
func New(opts *cbroker.Options, o ...provider.Option) (*provider.Provider, *emitter.Emitter, func(), error) {
	return NewWithBroker(inmemory.New(), opts, o...)
}

// NewWithBroker is New over a shared broker, so several providers can exchange messages.
func NewWithBroker(
	b *inmemory.Broker,
	opts *cbroker.Options,
	o ...provider.Option,
) (*provider.Provider, *emitter.Emitter, func(), error) {
	em := emitter.New()

	p, err := provider.New(em, opts, b, o...)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() { _ = p.Close(context.Background()) }

	return p, em, cleanup, nil
}
