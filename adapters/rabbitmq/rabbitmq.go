package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

type exchange struct {
	ch   Channel
	name string
}

func (e *exchange) Name() string { return e.name }

func (e *exchange) Publish(ctx context.Context, routingKey string, msg cbroker.Publishing) error {
	err := e.ch.PublishWithContext(
		ctx,
		e.name,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: msg.ContentType,
			Body:        []byte(msg.Body),
		},
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq publish %s: %w", e.name, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (e *exchange) Destroy() error {
	if err := e.ch.ExchangeDelete(e.name, false, false); err != nil {
		return fmt.Errorf("rabbitmq delete exchange %s: %w", e.name, err)
	}

	return nil
}

type queue struct {
	ch   Channel
	name string
}

func (q *queue) Name() string { return q.name }

func (q *queue) Bind(ctx context.Context, exchange, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := q.ch.QueueBind(q.name, pattern, exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq bind %s to %s: %w", q.name, exchange, errors.Join(berr.ErrNotBound, err))
	}

	return nil
}

func (q *queue) Unbind(ctx context.Context, ex cbroker.Exchange, pattern string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := q.ch.QueueUnbind(q.name, pattern, ex.Name(), nil); err != nil {
		return fmt.Errorf("rabbitmq unbind %s from %s: %w", q.name, ex.Name(), errors.Join(berr.ErrNotBound, err))
	}

	return nil
}

// Subscribe starts an auto-ack consumer. Consume returns once the broker confirmed the
// consumer, so the returned tag is acknowledged.
func (q *queue) Subscribe(ctx context.Context, h cbroker.Handler) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tag := "ctag-" + uuid.NewString()

	deliveries, err := q.ch.Consume(
		q.name,
		tag,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("rabbitmq consume %s: %w", q.name, errors.Join(berr.ErrSubscribeFailed, err))
	}

	go func() {
		for d := range deliveries {
			h(cbroker.Delivery{
				Data:        string(d.Body),
				ContentType: d.ContentType,
				RoutingKey:  d.RoutingKey,
			})
		}
	}()

	return tag, nil
}

func (q *queue) Unsubscribe(ctx context.Context, tag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := q.ch.Cancel(tag, false); err != nil {
		return fmt.Errorf("rabbitmq cancel %s: %w", tag, errors.Join(berr.ErrSubscribeFailed, err))
	}

	return nil
}

func (q *queue) Destroy() error {
	if _, err := q.ch.QueueDelete(q.name, false, false, false); err != nil {
		return fmt.Errorf("rabbitmq delete queue %s: %w", q.name, err)
	}

	return nil
}
