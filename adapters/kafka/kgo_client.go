package kafka

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

// Producer is the subset of *kgo.Client used for publishing.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Consumer is the subset of *kgo.Client used by a group subscription.
type Consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// ConsumerFactory builds a consumer joined to group and reading topics.
type ConsumerFactory func(group string, topics []string) (Consumer, error)

var (
	_ Producer = (*kgo.Client)(nil)
	_ Consumer = (*kgo.Client)(nil)
)

// Dialer builds franz-go clients from provider options (Brokers, ClientName, ConnTimeout).
type Dialer struct {
	TLS *tls.Config
}

var _ cbroker.Dialer = Dialer{}

func (d Dialer) clientOpts(opts cbroker.Options) []kgo.Opt {
	kopts := []kgo.Opt{kgo.SeedBrokers(opts.Brokers...)}
	if opts.ClientName != "" {
		kopts = append(kopts, kgo.ClientID(opts.ClientName))
	}

	if opts.ConnTimeout > 0 {
		kopts = append(kopts, kgo.DialTimeout(opts.ConnTimeout))
	}

	if d.TLS != nil {
		kopts = append(kopts, kgo.DialTLSConfig(d.TLS))
	}

	return kopts
}

// Dial creates the producer client. The connection becomes ready once the cluster answers a ping.
func (d Dialer) Dial(ctx context.Context, opts cbroker.Options) (cbroker.Connection, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers required", berr.ErrConnectFailed)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prod, err := kgo.NewClient(append(d.clientOpts(opts), kgo.AllowAutoTopicCreation())...)
	if err != nil {
		return nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrConnectFailed, err)
	}

	factory := func(group string, topics []string) (Consumer, error) {
		cl, err := kgo.NewClient(append(d.clientOpts(opts),
			kgo.ConsumerGroup(group),
			kgo.ConsumeTopics(topics...),
		)...)
		if err != nil {
			return nil, err
		}

		return cl, nil
	}

	return NewWithClients(ctx, prod, factory), nil
}
