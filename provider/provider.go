package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/next-trace/scg-event-provider/codec"
	cbroker "github.com/next-trace/scg-event-provider/contract/broker"
	berr "github.com/next-trace/scg-event-provider/contract/errors"
	"github.com/next-trace/scg-event-provider/gate"
)

// session holds the broker handles. Fields are filled in setup order; all of them are
// set once the gate is Ready.
type session struct {
	conn     cbroker.Connection
	exchange cbroker.Exchange
	queue    cbroker.Queue
	bound    bool
}

// Provider is single-use: once closed it cannot be reopened.
type Provider struct {
	sink   cbroker.Sink
	opts   cbroker.Options
	dialer cbroker.Dialer
	logger *slog.Logger
	gate   *gate.Gate

	ctx      context.Context //nolint:containedctx // scopes the background setup
	cancel   context.CancelFunc
	initDone chan struct{}

	mu       sync.Mutex
	sess     session
	released bool
	tag      string
}

// New validates its arguments and starts connecting in the background.
// Checks run in order: sink, options, queue name, exchange name, dialer.
func New(sink cbroker.Sink, opts *cbroker.Options, dialer cbroker.Dialer, o ...Option) (*Provider, error) {
	switch {
	case sink == nil:
		return nil, fmt.Errorf("new provider: %w", berr.ErrEmitterNotSet)
	case opts == nil:
		return nil, fmt.Errorf("new provider: %w", berr.ErrOptionsNotSet)
	case opts.QueueName == "":
		return nil, fmt.Errorf("new provider: %w", berr.ErrQueueNameNotSet)
	case opts.ExchangeName == "":
		return nil, fmt.Errorf("new provider: %w", berr.ErrExchangeNameNotSet)
	case dialer == nil:
		return nil, fmt.Errorf("new provider: %w", berr.ErrDialerNotSet)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		sink:     sink,
		opts:     *opts,
		dialer:   dialer,
		logger:   slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		initDone: make(chan struct{}),
	}

	for _, f := range o {
		f(p)
	}

	p.logger = p.logger.With("queue", p.opts.QueueName, "exchange", p.opts.ExchangeName)
	p.gate = gate.New(func(err error) { p.report("deferred operation", err) })
	p.gate.Begin()

	go p.setup()

	return p, nil
}

func (p *Provider) setup() {
	defer close(p.initDone)

	ctx := p.ctx

	conn, err := p.dialer.Dial(ctx, p.opts)
	if err != nil {
		p.abort("dial", errors.Join(berr.ErrConnectFailed, err))
		return
	}

	if !p.claim(func(s *session) { s.conn = conn }) {
		p.release("disconnect", conn.Disconnect)
		return
	}

	if en, ok := conn.(cbroker.ErrorNotifier); ok {
		go p.watchErrors(en.NotifyError())
	}

	select {
	case <-conn.Ready():
	case <-ctx.Done():
		return
	}

	p.logger.DebugContext(ctx, "connection ready")

	ex, err := conn.Exchange(ctx, p.opts.ExchangeName, p.opts.ExchangeOptions())
	if err != nil {
		p.abort("declare exchange", errors.Join(berr.ErrConnectFailed, err))
		return
	}

	if !p.claim(func(s *session) { s.exchange = ex }) {
		p.release("destroy exchange", ex.Destroy)
		return
	}

	p.logger.DebugContext(ctx, "exchange declared")

	q, err := conn.Queue(ctx, p.opts.QueueName, p.opts.QueueOptions())
	if err != nil {
		p.abort("declare queue", errors.Join(berr.ErrConnectFailed, err))
		return
	}

	if !p.claim(func(s *session) { s.queue = q }) {
		p.release("destroy queue", q.Destroy)
		return
	}

	p.logger.DebugContext(ctx, "queue declared")

	if err := q.Bind(ctx, p.opts.ExchangeName, cbroker.CatchAllPattern); err != nil {
		p.abort("bind queue", errors.Join(berr.ErrConnectFailed, err))
		return
	}

	if !p.claim(func(s *session) { s.bound = true }) {
		return
	}

	p.logger.DebugContext(ctx, "queue bound", "pattern", cbroker.CatchAllPattern)

	if !p.gate.Open() {
		return
	}

	p.sink.MarkReady()
	p.sink.Emit(cbroker.EventReady, nil)
	p.logger.InfoContext(ctx, "provider ready")
}

// claim records a handle produced by setup. It reports false once Close has taken the
// session, in which case setup owns the handle and must release it.
func (p *Provider) claim(store func(s *session)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.released {
		return false
	}

	store(&p.sess)

	return true
}

// release tears down a handle that setup obtained after Close.
func (p *Provider) release(step string, fn func() error) {
	if err := fn(); err != nil {
		p.logger.Debug("late "+step+" failed", "error", err)
	}
}

// abort reports a setup failure. The provider stays AwaitingBroker; there is no retry.
func (p *Provider) abort(step string, err error) {
	if p.ctx.Err() != nil {
		return
	}

	p.report(step, err)
}

func (p *Provider) report(label string, err error) {
	p.logger.Error("provider "+label+" failed", "error", err)
	p.sink.Emit(cbroker.EventError, err)
}

func (p *Provider) watchErrors(ch <-chan error) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case err, ok := <-ch:
			if !ok {
				return
			}

			p.report("broker", err)
		}
	}
}

func (p *Provider) session() session {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sess
}

// Publish encodes msg and publishes it to the exchange with the queue name as routing key.
// Encoding errors are returned immediately. Before readiness the publish is queued and
// its failure, if any, is reported on the Sink as an "error" event.
func (p *Provider) Publish(ctx context.Context, msg any) error {
	encode := codec.Encode
	if p.opts.TypedPayloads {
		encode = codec.EncodeTyped
	}

	payload, err := encode(msg)
	if err != nil {
		return fmt.Errorf("provider publish serialize: %w", errors.Join(berr.ErrSerializationFailed, err))
	}

	pub := cbroker.Publishing{Body: payload.Body, ContentType: payload.ContentType}

	return p.gate.Do(func(deferred bool) error {
		return p.publish(opCtx(ctx, deferred), pub)
	})
}

func (p *Provider) publish(ctx context.Context, pub cbroker.Publishing) error {
	if err := p.session().exchange.Publish(ctx, p.opts.QueueName, pub); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("provider publish: %w", errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

// Subscribe registers a consumer on the queue. Every delivery is decoded and emitted as a
// "message" event. The consumer tag is captured once the broker acknowledges the
// subscription; subscribing again replaces it.
func (p *Provider) Subscribe(ctx context.Context) error {
	return p.gate.Do(func(deferred bool) error {
		return p.subscribe(opCtx(ctx, deferred))
	})
}

func (p *Provider) subscribe(ctx context.Context) error {
	tag, err := p.session().queue.Subscribe(ctx, p.deliver)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("provider subscribe: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	p.mu.Lock()
	p.tag = tag
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "subscribed", "consumer_tag", tag)

	return nil
}

func (p *Provider) deliver(d cbroker.Delivery) {
	v := codec.Decode(d.Data, d.ContentType, codec.DecodeOptions{
		ExpectBinary: p.opts.ExpectBinary,
		Typed:        p.opts.TypedPayloads,
	})
	p.sink.Emit(cbroker.EventMessage, v)
}

// Unsubscribe cancels the current consumer. Without one it does nothing.
func (p *Provider) Unsubscribe(ctx context.Context) error {
	p.mu.Lock()
	tag, q := p.tag, p.sess.queue
	p.mu.Unlock()

	if tag == "" || q == nil {
		p.logger.DebugContext(ctx, "unsubscribe without consumer")
		return nil
	}

	if err := q.Unsubscribe(ctx, tag); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("provider unsubscribe: %w", errors.Join(berr.ErrSubscribeFailed, err))
	}

	p.mu.Lock()
	if p.tag == tag {
		p.tag = ""
	}
	p.mu.Unlock()

	p.logger.DebugContext(ctx, "unsubscribed", "consumer_tag", tag)

	return nil
}

// Close unbinds the queue, destroys the queue and the exchange and disconnects. Every
// step is attempted; their errors are joined. A pending setup is cancelled first; handles
// it still obtains after ctx expired are released by setup itself. Close is idempotent.
func (p *Provider) Close(ctx context.Context) error {
	if !p.gate.Close() {
		return nil
	}

	p.cancel()

	var errs []error

	select {
	case <-p.initDone:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	p.mu.Lock()
	s := p.sess
	p.released = true
	p.tag = ""
	p.mu.Unlock()

	if s.bound {
		if err := s.queue.Unbind(context.WithoutCancel(ctx), s.exchange, cbroker.CatchAllPattern); err != nil {
			errs = append(errs, fmt.Errorf("unbind queue: %w", err))
		}
	}

	if s.queue != nil {
		if err := s.queue.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy queue: %w", err))
		}
	}

	if s.exchange != nil {
		if err := s.exchange.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy exchange: %w", err))
		}
	}

	if s.conn != nil {
		if err := s.conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
	}

	p.logger.InfoContext(ctx, "provider closed")

	return errors.Join(errs...)
}

// Wait blocks until the provider is ready, closed or ctx is done.
func (p *Provider) Wait(ctx context.Context) error {
	select {
	case <-p.gate.Ready():
		return nil
	case <-p.gate.Done():
		return berr.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the readiness state.
func (p *Provider) State() gate.State { return p.gate.State() }

// ConsumerTag returns the tag of the active subscription, or "".
func (p *Provider) ConsumerTag() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.tag
}

// Options returns a copy of the configuration.
func (p *Provider) Options() cbroker.Options { return p.opts }

// opCtx detaches deferred operations from the caller's cancellation: the caller has
// already returned and the operation must not be lost.
func opCtx(ctx context.Context, deferred bool) context.Context {
	if deferred {
		return context.WithoutCancel(ctx)
	}

	return ctx
}
