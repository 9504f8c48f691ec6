// Package emitter buffers telemetry events and delivers them in batches
// through a swappable transport.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"telemetryagent/internal/event"
	"telemetryagent/internal/observer"
	"telemetryagent/internal/transport"
)

// Defaults applied by New for zero option values.
const (
	DefaultBufferSize       = 1
	DefaultFlushInterval    = 10 * time.Second
	DefaultMaxQueuedBatches = 100
	DefaultCloseTimeout     = 5 * time.Second
)

// ErrClosed is returned by operations on an emitter that is closing or closed.
var ErrClosed = errors.New("emitter is closed")

// Options configures an Emitter.
type Options struct {
	Endpoint     string
	NewTransport transport.Factory

	// BufferSize is the number of events that triggers a flush.
	// 1 sends every event on its own.
	BufferSize int

	// FlushInterval flushes a partial buffer periodically. Negative disables it.
	FlushInterval time.Duration

	// MaxQueuedBatches bounds the full batches waiting for the worker. Past it
	// the oldest batch is dropped and reported as failed. Negative is unbounded.
	MaxQueuedBatches int

	// CloseTimeout bounds each of the two waits in Close.
	CloseTimeout time.Duration

	Observer observer.Observer
	Logger   zerolog.Logger
	Clock    clock.Clock
}

func (o *Options) setDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.FlushInterval == 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.MaxQueuedBatches == 0 {
		o.MaxQueuedBatches = DefaultMaxQueuedBatches
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// Stats holds cumulative event counters.
type Stats struct {
	Emitted int64
	Sent    int64
	Failed  int64
	Dropped int64
}

type current struct {
	transport.Transport
}

// Emitter accumulates events and delivers them in batches. Emit is safe for
// concurrent use. A single worker goroutine delivers full batches and
// flushes the buffer on the flush interval; at most one delivery runs at a
// time.
type Emitter struct {
	opts     Options
	log      zerolog.Logger
	observer observer.Observer
	tr       atomic.Pointer[current]

	mu    sync.Mutex
	buf   []event.Event
	ready []event.Batch
	state State

	flushMu sync.Mutex

	kick   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	ticker *clock.Ticker

	sendCtx     context.Context
	forceCancel context.CancelFunc
	closeMu     sync.Mutex

	emitted atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// New builds the transport for opts.Endpoint and starts the worker.
// An endpoint the factory rejects fails construction.
func New(opts Options) (*Emitter, error) {
	if opts.NewTransport == nil {
		return nil, fmt.Errorf("emitter requires a transport factory")
	}
	opts.setDefaults()

	log := opts.Logger.With().Str("component", "emitter").Logger()

	t, err := opts.NewTransport(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for %q: %w", opts.Endpoint, err)
	}

	sendCtx, forceCancel := context.WithCancel(context.Background())
	e := &Emitter{
		opts:        opts,
		log:         log,
		observer:    observer.Safe(opts.Observer, log),
		buf:         make([]event.Event, 0, opts.BufferSize),
		kick:        make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		sendCtx:     sendCtx,
		forceCancel: forceCancel,
	}
	e.tr.Store(&current{t})

	if opts.FlushInterval > 0 {
		e.ticker = opts.Clock.Ticker(opts.FlushInterval)
	}

	log.Info().
		Str("endpoint", t.Endpoint()).
		Int("buffer_size", opts.BufferSize).
		Dur("flush_interval", opts.FlushInterval).
		Msg("Emitter started")

	go e.run()
	return e, nil
}

// Emit adds ev to the buffer. When the buffer reaches BufferSize it is
// handed to the worker and the buffer is empty again on return. Delivery
// errors never surface here; they go to the observer.
func (e *Emitter) Emit(ev event.Event) error {
	e.mu.Lock()
	if e.state != Running {
		e.mu.Unlock()
		return ErrClosed
	}

	e.buf = append(e.buf, ev)
	e.emitted.Add(1)

	full := len(e.buf) >= e.opts.BufferSize
	var dropped event.Batch
	if full {
		e.ready = append(e.ready, e.buf)
		e.buf = make([]event.Event, 0, e.opts.BufferSize)
		if e.opts.MaxQueuedBatches > 0 && len(e.ready) > e.opts.MaxQueuedBatches {
			dropped = e.ready[0]
			e.ready[0] = nil
			e.ready = e.ready[1:]
		}
	}
	e.mu.Unlock()

	if dropped != nil {
		e.dropped.Add(int64(len(dropped)))
		e.log.Warn().
			Int("count", len(dropped)).
			Int("max_queued_batches", e.opts.MaxQueuedBatches).
			Msg("Delivery queue full, dropping oldest batch")
		e.observer.OnFailure(0, dropped)
	}
	if full {
		e.wake()
	}
	return nil
}

func (e *Emitter) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Flush synchronously delivers every queued batch and the current buffer on
// the calling goroutine. It waits for a delivery already in progress. The
// returned error joins the causes of failed deliveries; the failed events
// themselves are reported to the observer.
func (e *Emitter) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	var errs []error
	for _, b := range e.takeAll() {
		if err := ctx.Err(); err != nil {
			e.report(event.FailedAll(b, err))
			errs = append(errs, err)
			continue
		}
		if out := e.deliver(ctx, b); out.Err != nil {
			errs = append(errs, out.Err)
		}
	}
	return errors.Join(errs...)
}

// takeAll empties the ready queue and the buffer, oldest first.
func (e *Emitter) takeAll() []event.Batch {
	e.mu.Lock()
	defer e.mu.Unlock()

	batches := e.ready
	e.ready = nil
	if len(e.buf) > 0 {
		batches = append(batches, e.buf)
		e.buf = make([]event.Event, 0, e.opts.BufferSize)
	}
	return batches
}

func (e *Emitter) popReady() (event.Batch, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.ready) == 0 {
		return nil, false
	}
	b := e.ready[0]
	e.ready[0] = nil
	e.ready = e.ready[1:]
	return b, true
}

// sealBuffer moves a partial buffer to the ready queue.
func (e *Emitter) sealBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buf) > 0 {
		e.ready = append(e.ready, e.buf)
		e.buf = make([]event.Event, 0, e.opts.BufferSize)
	}
}

func (e *Emitter) run() {
	defer close(e.done)

	var tick <-chan time.Time
	if e.ticker != nil {
		tick = e.ticker.C
		defer e.ticker.Stop()
	}

	for {
		select {
		case <-e.stop:
			if err := e.Flush(e.sendCtx); err != nil {
				e.log.Warn().Err(err).Msg("Final flush incomplete")
			}
			return
		case <-e.kick:
			e.deliverReady()
		case <-tick:
			e.sealBuffer()
			e.deliverReady()
		}
	}
}

// deliverReady sends queued batches one at a time until the queue is empty
// or the emitter starts closing.
func (e *Emitter) deliverReady() {
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		e.flushMu.Lock()
		b, ok := e.popReady()
		if !ok {
			e.flushMu.Unlock()
			return
		}
		e.deliver(e.sendCtx, b)
		e.flushMu.Unlock()
	}
}

// deliver sends one batch on the transport current at call time.
func (e *Emitter) deliver(ctx context.Context, b event.Batch) event.Outcome {
	t := e.tr.Load()
	out := t.Send(ctx, b)
	if out.Err != nil {
		e.log.Warn().
			Err(out.Err).
			Str("endpoint", t.Endpoint()).
			Int("sent", out.Success).
			Int("failed", len(out.Failed)).
			Msg("Batch delivery failed")
	}
	e.report(out)
	return out
}

func (e *Emitter) report(out event.Outcome) {
	e.sent.Add(int64(out.Success))
	e.failed.Add(int64(len(out.Failed)))
	if out.OK() {
		e.observer.OnSuccess(out.Success)
		return
	}
	e.observer.OnFailure(out.Success, out.Failed)
}

// ChangeEndpoint replaces the transport with one built for endpoint.
// Batches already handed to the old transport finish there; later
// deliveries use the new one. On error the current transport stays.
func (e *Emitter) ChangeEndpoint(endpoint string) error {
	if e.State() != Running {
		return ErrClosed
	}

	t, err := e.opts.NewTransport(endpoint)
	if err != nil {
		return fmt.Errorf("failed to create transport for %q: %w", endpoint, err)
	}

	old := e.tr.Swap(&current{t})
	e.log.Info().
		Str("old_endpoint", old.Endpoint()).
		Str("new_endpoint", t.Endpoint()).
		Msg("Endpoint changed")

	if err := old.Close(); err != nil {
		e.log.Warn().Err(err).Str("endpoint", old.Endpoint()).Msg("Failed to close previous transport")
	}
	return nil
}

// Endpoint returns the endpoint of the current transport.
func (e *Emitter) Endpoint() string {
	return e.tr.Load().Endpoint()
}

// Stats returns a snapshot of the event counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted: e.emitted.Load(),
		Sent:    e.sent.Load(),
		Failed:  e.failed.Load(),
		Dropped: e.dropped.Load(),
	}
}

// Pending returns the number of events not yet handed to the transport.
func (e *Emitter) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.buf)
	for _, b := range e.ready {
		n += len(b)
	}
	return n
}
