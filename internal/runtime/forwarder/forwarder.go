// Package forwarder provides the active forwarder: a connection that buffers
// posted messages and hands them downstream from a pool of workers that grows
// with the backlog and shrinks when idle.
package forwarder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Jeffail/shutdown"

	"github.com/drblury/msgflow/internal/runtime/clock"
	"github.com/drblury/msgflow/internal/runtime/config"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
	"github.com/drblury/msgflow/internal/runtime/queue"
)

// Options configures the worker pool.
type Options struct {
	// ThreadLimit caps the number of live workers. Defaults to 1.
	ThreadLimit int
	// MaxIdle is how long a worker waits for a message before retiring.
	MaxIdle time.Duration
	// SpawnThresholdFactor is the queued-messages-per-worker ratio that
	// triggers another worker. Defaults to 1.
	SpawnThresholdFactor float64

	Hooks   WorkerHooks
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Metrics
	Clock   clock.Clock
	Name    string
}

// OptionsFromConfig converts a ForwarderConfig.
func OptionsFromConfig(cfg config.ForwarderConfig) Options {
	return Options{
		ThreadLimit:          cfg.ThreadLimit,
		MaxIdle:              cfg.MaxIdleDuration,
		SpawnThresholdFactor: cfg.SpawnThresholdFactor,
	}
}

// Stats is a point-in-time view of the worker pool.
type Stats struct {
	Live      int    `json:"live"`
	HighWater int    `json:"high_water"`
	Spawned   uint64 `json:"spawned"`
	Retired   uint64 `json:"retired"`
	// Forwarded counts messages every downstream sink accepted.
	Forwarded uint64 `json:"forwarded"`
	// Failed counts failed sink deliveries, so one message can add several.
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
}

type workerKey struct{}

// delivery is what a worker shares with onForwardError through the delivery
// context. failed is reset before each message.
type delivery struct {
	wc     *WorkerContext
	failed atomic.Bool
}

// Forwarder decouples producers from downstream sinks.
//
// Post and PostAsync enqueue into the internal buffer, applying its overflow
// policy, and may start a worker. With ThreadLimit 1 delivery order matches
// the buffer order. With more workers messages taken by different workers
// can reach downstream sinks in any relative order.
type Forwarder[M any] struct {
	name    string
	buffer  queue.Buffer[M]
	out     *fabric.Fanout[M]
	limit   int32
	maxIdle time.Duration
	factor  float64
	hooks   WorkerHooks
	log     loggingpkg.ServiceLogger
	metrics *metricspkg.Metrics
	clock   clock.Clock

	live      atomic.Int32
	highWater atomic.Int32
	spawned   atomic.Uint64
	retired   atomic.Uint64
	forwarded atomic.Uint64
	failed    atomic.Uint64
	nextID    atomic.Uint64

	closed   atomic.Bool
	inflight atomic.Int64
	changed  chan struct{}

	sig     *shutdown.Signaller
	hardCtx context.Context
	cancel  context.CancelFunc
}

// New builds a forwarder that drains buffer.
func New[M any](buffer queue.Buffer[M], opts Options) (*Forwarder[M], error) {
	if buffer == nil {
		return nil, errspkg.ErrSinkRequired
	}
	if opts.ThreadLimit < 0 || opts.MaxIdle < 0 || opts.SpawnThresholdFactor < 0 {
		return nil, &errspkg.ConfigurationError{Component: "forwarder", Reason: "limits must not be negative"}
	}
	if opts.ThreadLimit == 0 {
		opts.ThreadLimit = config.DefaultThreadLimit
	}
	if opts.MaxIdle == 0 {
		opts.MaxIdle = config.DefaultMaxIdleDuration
	}
	if opts.SpawnThresholdFactor == 0 {
		opts.SpawnThresholdFactor = config.DefaultSpawnThresholdFactor
	}

	f := &Forwarder[M]{
		name:    idspkg.ComponentName("forwarder", opts.Name),
		buffer:  buffer,
		limit:   int32(min(opts.ThreadLimit, 1<<30)),
		maxIdle: opts.MaxIdle,
		factor:  opts.SpawnThresholdFactor,
		hooks:   opts.Hooks,
		log:     loggingpkg.OrNop(opts.Logger),
		metrics: opts.Metrics,
		clock:   clock.OrReal(opts.Clock),
		changed: make(chan struct{}, 1),
		sig:     shutdown.NewSignaller(),
	}
	f.hardCtx, f.cancel = context.WithCancel(context.Background())
	f.out = fabric.New[M](fabric.Options{
		Name:    f.name,
		Logger:  f.log,
		Metrics: opts.Metrics,
		OnError: f.onForwardError,
	})
	return f, nil
}

// NewQueue builds a forwarder over a FIFO receiver.
func NewQueue[M any](qopts queue.Options, opts Options) (*Forwarder[M], error) {
	if qopts.Clock == nil {
		qopts.Clock = opts.Clock
	}
	return New[M](queue.New[M](qopts), opts)
}

// NewPriority builds a forwarder over a priority receiver.
func NewPriority[M any](less func(a, b M) bool, qopts queue.Options, opts Options) (*Forwarder[M], error) {
	if qopts.Clock == nil {
		qopts.Clock = opts.Clock
	}
	buffer, err := queue.NewPriority(less, qopts)
	if err != nil {
		return nil, err
	}
	return New[M](buffer, opts)
}

// Name returns the component name used in logs and metrics.
func (f *Forwarder[M]) Name() string { return f.name }

func (f *Forwarder[M]) Connect(sink fabric.Sink[M]) fabric.Sink[M] { return f.out.Connect(sink) }

func (f *Forwarder[M]) Subscribe(sink fabric.Sink[M]) *fabric.Subscription {
	return f.out.Subscribe(sink)
}

func (f *Forwarder[M]) Disconnect(sink fabric.Sink[M]) { f.out.Disconnect(sink) }

func (f *Forwarder[M]) DisconnectAll() { f.out.DisconnectAll() }

// Downstream returns the fan-out workers deliver to, for weak subscriptions.
func (f *Forwarder[M]) Downstream() *fabric.Fanout[M] { return f.out }

// Post enqueues msg and returns without waiting for delivery, unless the
// buffer blocks the producer. It returns ErrForwarderClosed after Close.
func (f *Forwarder[M]) Post(msg M) error {
	return f.enqueue(func() error { return f.buffer.Post(msg) })
}

func (f *Forwarder[M]) PostAsync(ctx context.Context, msg M) error {
	return f.enqueue(func() error { return f.buffer.PostAsync(ctx, msg) })
}

func (f *Forwarder[M]) enqueue(post func() error) error {
	f.inflight.Add(1)
	defer func() {
		if f.inflight.Add(-1) == 0 && f.closed.Load() {
			f.notify()
		}
	}()
	if f.closed.Load() {
		return errspkg.ErrForwarderClosed
	}

	err := post()
	f.maybeSpawn()
	return err
}

// maybeSpawn starts a worker when live*factor < queued and live < limit.
func (f *Forwarder[M]) maybeSpawn() {
	select {
	case <-f.sig.HardStopChan():
		return
	default:
	}

	var live int32
	for {
		live = f.live.Load()
		if live >= f.limit {
			return
		}
		if float64(live)*f.factor >= float64(f.buffer.Count()) {
			return
		}
		if f.live.CompareAndSwap(live, live+1) {
			break
		}
	}
	live++

	high := f.highWater.Load()
	for live > high && !f.highWater.CompareAndSwap(high, live) {
		high = f.highWater.Load()
	}
	f.spawned.Add(1)
	f.metrics.RecordWorkerSpawned(f.name, int(live), int(f.highWater.Load()))

	go f.work(f.nextID.Add(1))
}

func (f *Forwarder[M]) work(id uint64) {
	wc := &WorkerContext{Forwarder: f.name, WorkerID: id, StartedAt: f.clock.Now()}
	f.hooks.start(*wc)

	// Polling stops early on soft stop so an empty buffer ends the worker;
	// downstream delivery only stops on hard stop.
	pollCtx, cancel := f.sig.SoftStopCtx(f.hardCtx)
	defer cancel()
	d := &delivery{wc: wc}
	deliverCtx := context.WithValue(f.hardCtx, workerKey{}, d)

	reason := RetireIdle
	for {
		if f.hardCtx.Err() != nil {
			reason = RetireShutdown
			break
		}
		msg, ok := f.buffer.Poll(pollCtx, f.maxIdle)
		if !ok {
			if pollCtx.Err() != nil {
				reason = RetireShutdown
			}
			break
		}
		d.failed.Store(false)
		_ = f.out.PostAsync(deliverCtx, msg)
		if d.failed.Load() {
			continue
		}
		wc.Forwarded++
		f.forwarded.Add(1)
		f.metrics.RecordForwarded(f.name, nil)
	}

	live := f.live.Add(-1)
	f.retired.Add(1)
	f.metrics.RecordWorkerRetired(f.name, int(live))

	wc.Duration = f.clock.Now().Sub(wc.StartedAt)
	wc.Reason = reason
	f.hooks.retire(*wc)

	// A post may have landed between the last poll and the decrement.
	if !f.buffer.IsEmpty() {
		f.maybeSpawn()
	}
	f.notify()
}

func (f *Forwarder[M]) onForwardError(ctx context.Context, err error) {
	f.failed.Add(1)
	f.metrics.RecordForwarded(f.name, err)
	wc := WorkerContext{Forwarder: f.name}
	if d, ok := ctx.Value(workerKey{}).(*delivery); ok {
		d.failed.Store(true)
		wc = *d.wc
	}
	f.hooks.forwardError(wc, err)
}

func (f *Forwarder[M]) notify() {
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Close stops accepting messages and waits for the workers to drain the
// buffer. When ctx ends first the workers are stopped after their current
// message, anything still buffered is discarded and ctx.Err() is returned.
func (f *Forwarder[M]) Close(ctx context.Context) error {
	if f.closed.Swap(true) {
		select {
		case <-f.sig.HasStoppedChan():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.sig.TriggerSoftStop()

	for !f.quiescent() {
		if f.live.Load() == 0 && !f.buffer.IsEmpty() {
			f.maybeSpawn()
		}
		select {
		case <-f.changed:
		case <-ctx.Done():
			return f.hardStop(ctx.Err())
		}
	}

	f.cancel()
	f.sig.TriggerHasStopped()
	return nil
}

func (f *Forwarder[M]) quiescent() bool {
	return f.live.Load() == 0 && f.inflight.Load() == 0 && f.buffer.IsEmpty()
}

func (f *Forwarder[M]) hardStop(cause error) error {
	f.sig.TriggerHardStop()
	f.cancel()
	for f.live.Load() > 0 {
		<-f.changed
	}
	if left := f.buffer.ReceiveAll(); len(left) > 0 {
		f.log.Error("Forwarder closed with undelivered messages", cause, loggingpkg.LogFields{
			"forwarder": f.name,
			"discarded": len(left),
		})
	}
	f.sig.TriggerHasStopped()
	return cause
}

// Stats returns worker pool counters. Values are read independently and may
// be mutually inconsistent under load.
func (f *Forwarder[M]) Stats() Stats {
	return Stats{
		Live:      int(f.live.Load()),
		HighWater: int(f.highWater.Load()),
		Spawned:   f.spawned.Load(),
		Retired:   f.retired.Load(),
		Forwarded: f.forwarded.Load(),
		Failed:    f.failed.Load(),
		Queued:    f.buffer.Count(),
		Dropped:   f.buffer.Dropped(),
	}
}

// Buffer exposes the internal receiver for diagnostics.
func (f *Forwarder[M]) Buffer() queue.Buffer[M] { return f.buffer }
