// Package dispatch implements the gateway's concurrent dispatch core: it
// looks up tools in the registry, validates arguments, enforces the global
// concurrency ceiling and per-invocation deadline, and normalises every
// outcome into the success/failure taxonomy the transports consume.
//
// One invocation moves through the states
//
//	Received → Validated → SlotAcquired → Dispatched → {Succeeded | Failed | TimedOut}
//
// A concurrency slot is held from SlotAcquired until the terminal state and
// is released exactly once on every exit path, including handler panics and
// deadline expiry. When the deadline fires the slot is released immediately;
// the abandoned handler call is left to drain on its own goroutine.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/bananabit/fluxgate/internal/events"
	"github.com/bananabit/fluxgate/internal/observe"
	"github.com/bananabit/fluxgate/internal/tool"
)

// Default policy values, applied by [New] when the config leaves them zero.
const (
	DefaultMaxConcurrent  = 5
	DefaultRequestTimeout = 300 * time.Second
	DefaultQueueWait      = 30 * time.Second
)

// Invocation is one tool call to be dispatched. It is consumed exactly once.
type Invocation struct {
	// Tool is the registered tool name.
	Tool string

	// Args is the raw argument mapping as decoded from the request.
	Args map[string]any

	// CorrelationID ties the result back to the request. Assigned by
	// [NewInvocation] when the caller does not supply one.
	CorrelationID string

	// SubmittedAt anchors the deadline computation.
	SubmittedAt time.Time
}

// NewInvocation builds an Invocation with a fresh correlation id and the
// current time as submission timestamp.
func NewInvocation(toolName string, args map[string]any) Invocation {
	return Invocation{
		Tool:          toolName,
		Args:          args,
		CorrelationID: uuid.NewString(),
		SubmittedAt:   time.Now(),
	}
}

// Config holds the dispatcher's policy knobs.
type Config struct {
	// MaxConcurrent is the size of the global concurrency slot pool.
	MaxConcurrent int

	// RequestTimeout bounds one invocation from submission to upstream
	// response.
	RequestTimeout time.Duration

	// QueueWait bounds how long a blocking Dispatch waits for a free slot
	// before giving up with a capacity failure.
	QueueWait time.Duration
}

// Option configures a Dispatcher beyond its Config.
type Option func(*Dispatcher)

// WithMetrics injects a metrics instance instead of the process-global one.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithPublisher injects an event publisher. Defaults to a no-op.
func WithPublisher(p events.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// Dispatcher is the concurrent dispatch core. Safe for concurrent use.
type Dispatcher struct {
	registry  *tool.Registry
	slots     *semaphore.Weighted
	cfg       Config
	metrics   *observe.Metrics
	publisher events.Publisher

	inFlight atomic.Int64
}

// New creates a Dispatcher over the given (already populated) registry.
// Zero config fields fall back to the package defaults.
func New(registry *tool.Registry, cfg Config, opts ...Option) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.QueueWait <= 0 {
		cfg.QueueWait = DefaultQueueWait
	}

	d := &Dispatcher{
		registry:  registry,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:       cfg,
		publisher: events.NoopPublisher{},
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Registry returns the tool registry backing this dispatcher.
func (d *Dispatcher) Registry() *tool.Registry { return d.registry }

// InFlight returns the number of invocations currently holding a slot.
func (d *Dispatcher) InFlight() int64 { return d.inFlight.Load() }

// Dispatch runs one invocation, blocking up to the configured queue wait for
// a free concurrency slot. This is the discipline used by the synchronous
// transport.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (any, error) {
	return d.dispatch(ctx, inv, true)
}

// TryDispatch runs one invocation but fails immediately with a capacity
// error when the slot pool is exhausted. This is the discipline used by the
// bidirectional channel, which must never queue unboundedly.
func (d *Dispatcher) TryDispatch(ctx context.Context, inv Invocation) (any, error) {
	return d.dispatch(ctx, inv, false)
}

func (d *Dispatcher) dispatch(ctx context.Context, inv Invocation, block bool) (any, error) {
	start := time.Now()
	payload, err := d.run(ctx, inv, block)

	status := "success"
	if err != nil {
		status = string(KindOf(err))
	}
	attrs := metric.WithAttributes(
		attribute.String("tool", inv.Tool),
		attribute.String("status", status),
	)
	mctx := context.WithoutCancel(ctx)
	d.metrics.ToolCalls.Add(mctx, 1, attrs)
	d.metrics.DispatchDuration.Record(mctx, time.Since(start).Seconds(), attrs)

	if pubErr := d.publisher.PublishInvocation(mctx, &events.InvocationEvent{
		CorrelationID: inv.CorrelationID,
		Tool:          inv.Tool,
		Outcome:       status,
		DurationMs:    time.Since(start).Milliseconds(),
		Timestamp:     time.Now().UTC(),
	}); pubErr != nil {
		slog.Debug("dispatch: event publish failed", "tool", inv.Tool, "err", pubErr)
	}

	return payload, err
}

func (d *Dispatcher) run(ctx context.Context, inv Invocation, block bool) (any, error) {
	// Received → Validated. Lookup and validation failures never touch the
	// slot pool.
	desc, err := d.registry.Lookup(inv.Tool)
	if err != nil {
		return nil, Wrap(KindUnknownTool, err)
	}
	args, err := desc.ValidateArgs(inv.Args)
	if err != nil {
		return nil, Wrap(KindValidation, err)
	}

	// Validated → SlotAcquired.
	if err := d.acquire(ctx, inv.Tool, block); err != nil {
		return nil, err
	}
	defer func() {
		d.slots.Release(1)
		d.inFlight.Add(-1)
		d.metrics.SlotsInUse.Add(context.WithoutCancel(ctx), -1)
	}()
	d.inFlight.Add(1)
	d.metrics.SlotsInUse.Add(ctx, 1)

	// SlotAcquired → Dispatched, bounded by submission time + timeout.
	submitted := inv.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now()
	}
	cctx, cancel := context.WithDeadline(ctx, submitted.Add(d.cfg.RequestTimeout))
	defer cancel()

	return d.invoke(cctx, desc, inv, args)
}

// acquire draws one slot from the pool using the requested discipline.
func (d *Dispatcher) acquire(ctx context.Context, toolName string, block bool) error {
	if !block {
		if !d.slots.TryAcquire(1) {
			d.metrics.SlotRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "channel")))
			return Errorf(KindCapacity, "all %d concurrency slots in use", d.cfg.MaxConcurrent)
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.QueueWait)
	defer cancel()
	if err := d.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			// The caller went away while queued.
			return Wrap(KindInternal, ctx.Err())
		}
		d.metrics.SlotRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "sync")))
		return Errorf(KindCapacity, "no concurrency slot freed within %s", d.cfg.QueueWait)
	}
	return nil
}

type outcome struct {
	payload any
	err     error
}

// invoke runs the handler on its own goroutine so that deadline expiry
// releases the slot immediately instead of waiting for the slow call to
// return. A panic inside the handler is recovered there and surfaced as an
// internal fault.
func (d *Dispatcher) invoke(ctx context.Context, desc *tool.Descriptor, inv Invocation, args map[string]any) (any, error) {
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				observe.Logger(ctx).Error("dispatch: tool handler panic",
					"tool", desc.Name,
					"correlation_id", inv.CorrelationID,
					"panic", r,
				)
				done <- outcome{err: &Error{Kind: KindInternal, Message: "internal error"}}
			}
		}()
		p, err := desc.Handler(ctx, args)
		done <- outcome{payload: p, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, d.classify(desc.Name, inv.CorrelationID, o.err)
		}
		return o.payload, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, Errorf(KindTimeout, "tool %q exceeded the %s deadline", desc.Name, d.cfg.RequestTimeout)
		}
		// Caller cancellation, e.g. client disconnect on the sync transport.
		return nil, Wrap(KindInternal, ctx.Err())
	}
}

// classify normalises a handler error into the taxonomy. Errors the adapters
// already classified pass through; everything else is an internal fault whose
// detail is logged but not surfaced.
func (d *Dispatcher) classify(toolName, correlationID string, err error) error {
	if de, ok := AsError(err); ok {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, err)
	}
	slog.Error("dispatch: unclassified handler fault",
		"tool", toolName,
		"correlation_id", correlationID,
		"err", err,
	)
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}
