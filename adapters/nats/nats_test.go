package nats

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
)

type sentMsg struct {
	subject string
	data    []byte
	headers map[string]string
}

type fakeSub struct {
	subject, group string
	cb             nats.MsgHandler
	active         bool
}

type fakeClient struct {
	mu         sync.Mutex
	sent       []sentMsg
	subs       []*fakeSub
	publishErr error
	closed     bool
}

func (f *fakeClient) Publish(subject string, data []byte, headers map[string]string) error {
	if f.publishErr != nil {
		return f.publishErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{subject: subject, data: data, headers: headers})

	return nil
}

func (f *fakeClient) QueueSubscribe(subject, group string, cb nats.MsgHandler) (func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &fakeSub{subject: subject, group: group, cb: cb, active: true}
	f.subs = append(f.subs, s)

	return func() error {
		f.mu.Lock()
		defer f.mu.Unlock()
		s.active = false

		return nil
	}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBindSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind, pattern, want string
		wantErr             bool
	}{
		{kind: "topic", pattern: "#", want: "events.>"},
		{kind: "topic", pattern: "orders.*", want: "events.orders.*"},
		{kind: "topic", pattern: "orders.#", want: "events.orders.>"},
		{kind: "topic", pattern: "#.created", wantErr: true},
		{kind: "topic", pattern: "", want: "events"},
		{kind: "direct", pattern: "orders", want: "events.orders"},
		{kind: "fanout", pattern: "ignored", want: "events.>"},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.pattern, func(t *testing.T) {
			t.Parallel()

			got, err := bindSubject("events", tt.kind, tt.pattern)
			if tt.wantErr {
				assert.ErrorIs(t, err, berr.ErrNotBound)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDial_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := Dialer{}.Dial(context.Background(), cbroker.Options{})
	assert.ErrorIs(t, err, berr.ErrConnectFailed)
}

func TestExchange_PublishSetsSubjectAndHeaders(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	c := NewWithClient(fc)

	ex, err := c.Exchange(context.Background(), "events", cbroker.ExchangeOptions{})
	require.NoError(t, err)
	require.NoError(t, ex.Publish(context.Background(), "orders", cbroker.Publishing{Body: "hi", ContentType: "text/plain"}))
	require.NoError(t, ex.Publish(context.Background(), "orders", cbroker.Publishing{Body: "raw"}))

	require.Len(t, fc.sent, 2)
	assert.Equal(t, "events.orders", fc.sent[0].subject)
	assert.Equal(t, []byte("hi"), fc.sent[0].data)
	assert.Equal(t, map[string]string{"Content-Type": "text/plain"}, fc.sent[0].headers)
	assert.Nil(t, fc.sent[1].headers)
}

func TestExchange_PublishFailure(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{publishErr: nats.ErrConnectionClosed}
	ex, err := NewWithClient(fc).Exchange(context.Background(), "events", cbroker.ExchangeOptions{})
	require.NoError(t, err)

	err = ex.Publish(context.Background(), "orders", cbroker.Publishing{Body: "x"})
	assert.ErrorIs(t, err, berr.ErrPublishFailed)
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestExchange_KindMismatch(t *testing.T) {
	t.Parallel()

	c := NewWithClient(&fakeClient{})
	_, err := c.Exchange(context.Background(), "events", cbroker.ExchangeOptions{Kind: "topic"})
	require.NoError(t, err)

	_, err = c.Exchange(context.Background(), "events", cbroker.ExchangeOptions{Kind: "fanout"})
	assert.ErrorIs(t, err, berr.ErrConnectFailed)
}

func TestQueue_SubscribeUsesQueueGroup(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	c := NewWithClient(fc)
	ctx := context.Background()

	ex, err := c.Exchange(ctx, "events", cbroker.ExchangeOptions{})
	require.NoError(t, err)
	q, err := c.Queue(ctx, "orders", cbroker.QueueOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Bind(ctx, "events", cbroker.CatchAllPattern))

	var got []cbroker.Delivery
	tag, err := q.Subscribe(ctx, func(d cbroker.Delivery) { got = append(got, d) })
	require.NoError(t, err)
	assert.NotEmpty(t, tag)

	require.Len(t, fc.subs, 1)
	sub := fc.subs[0]
	assert.Equal(t, "events.>", sub.subject)
	assert.Equal(t, "orders", sub.group)

	hdr := nats.Header{}
	hdr.Set("Content-Type", "application/json")
	sub.cb(&nats.Msg{Subject: "events.orders", Data: []byte(`{"a":1}`), Header: hdr})

	require.Len(t, got, 1)
	assert.Equal(t, cbroker.Delivery{Data: `{"a":1}`, ContentType: "application/json", RoutingKey: "orders"}, got[0])

	require.NoError(t, q.Unsubscribe(ctx, tag))
	assert.False(t, sub.active)

	err = q.Unsubscribe(ctx, tag)
	assert.ErrorIs(t, err, berr.ErrSubscribeFailed)

	require.NoError(t, q.Unbind(ctx, ex, cbroker.CatchAllPattern))
	assert.ErrorIs(t, q.Unbind(ctx, ex, cbroker.CatchAllPattern), berr.ErrNotBound)
}

func TestQueue_BindRequiresExchange(t *testing.T) {
	t.Parallel()

	q, err := NewWithClient(&fakeClient{}).Queue(context.Background(), "orders", cbroker.QueueOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, q.Bind(context.Background(), "missing", "#"), berr.ErrNotBound)

	_, err = q.Subscribe(context.Background(), func(cbroker.Delivery) {})
	assert.ErrorIs(t, err, berr.ErrNotBound)
}

func TestQueue_DestroyRemovesSubscriptions(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	c := NewWithClient(fc)
	ctx := context.Background()

	_, err := c.Exchange(ctx, "events", cbroker.ExchangeOptions{})
	require.NoError(t, err)
	q, err := c.Queue(ctx, "orders", cbroker.QueueOptions{})
	require.NoError(t, err)
	require.NoError(t, q.Bind(ctx, "events", "#"))

	_, err = q.Subscribe(ctx, func(cbroker.Delivery) {})
	require.NoError(t, err)
	require.NoError(t, q.Destroy())

	require.Len(t, fc.subs, 1)
	assert.False(t, fc.subs[0].active)
}

func TestConnection_Disconnect(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	c := NewWithClient(fc)

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	assert.True(t, fc.closed)

	_, ok := <-c.NotifyError()
	assert.False(t, ok)

	_, err := c.Exchange(context.Background(), "events", cbroker.ExchangeOptions{})
	assert.ErrorIs(t, err, berr.ErrClosed)
}

func TestNotifier_SendAfterClose(t *testing.T) {
	t.Parallel()

	n := newNotifier()
	n.send(errors.New("first"))
	n.close()
	n.send(errors.New("late"))
	n.close()

	err, ok := <-n.ch
	require.True(t, ok)
	assert.EqualError(t, err, "first")

	_, ok = <-n.ch
	assert.False(t, ok)
}
