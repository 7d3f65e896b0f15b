package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/msgflow/internal/runtime/logging"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
)

// Options configures a Fanout.
type Options struct {
	// Name labels diagnostics and metrics. Generated when empty.
	Name string
	// Logger receives per-sink delivery failures. Failures are swallowed
	// when nil.
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Metrics
	// OnError is called for every delivery failure, after it is logged. It
	// may run concurrently from PostAsync.
	OnError func(ctx context.Context, err error)
}

type entry[M any] struct {
	id  uint64
	key any
	// resolve returns the target, or false once a weak target is reclaimed.
	resolve func() (Sink[M], bool)
}

// Fanout delivers every posted message to all connected sinks.
//
// The subscriber list is copy-on-write: posts iterate an immutable snapshot
// without locking, and sinks connected during an in-flight post may miss it.
// A failing or panicking sink never stops delivery to the others and never
// surfaces to the producer.
type Fanout[M any] struct {
	name    string
	log     loggingpkg.ServiceLogger
	metrics *metricspkg.Metrics
	onError func(ctx context.Context, err error)

	mu     sync.Mutex
	subs   atomic.Pointer[[]*entry[M]]
	nextID atomic.Uint64
}

// New returns an empty Fanout.
func New[M any](opts Options) *Fanout[M] {
	f := &Fanout[M]{
		name:    idspkg.ComponentName("fanout", opts.Name),
		log:     loggingpkg.OrNop(opts.Logger),
		metrics: opts.Metrics,
		onError: opts.OnError,
	}
	f.subs.Store(&[]*entry[M]{})
	return f
}

// Name returns the component name used in logs and metrics.
func (f *Fanout[M]) Name() string { return f.name }

func (f *Fanout[M]) Connect(sink Sink[M]) Sink[M] {
	if sink == nil {
		return nil
	}
	f.add(identityOf(sink), func() (Sink[M], bool) { return sink, true })
	return sink
}

// Subscribe connects sink and returns a handle that removes exactly this
// entry, independent of how the sink compares.
func (f *Fanout[M]) Subscribe(sink Sink[M]) *Subscription {
	if sink == nil {
		return &Subscription{}
	}
	id := f.add(identityOf(sink), func() (Sink[M], bool) { return sink, true })
	return &Subscription{cancel: func() { f.removeWhere(func(e *entry[M]) bool { return e.id == id }) }}
}

func (f *Fanout[M]) Disconnect(sink Sink[M]) {
	key := identityOf(sink)
	if key == nil {
		return
	}
	f.removeWhere(func(e *entry[M]) bool { return e.key == key })
}

func (f *Fanout[M]) DisconnectAll() {
	f.mu.Lock()
	f.subs.Store(&[]*entry[M]{})
	f.mu.Unlock()
}

// Len returns the number of live subscriptions.
func (f *Fanout[M]) Len() int {
	n := 0
	for _, e := range *f.subs.Load() {
		if _, ok := e.resolve(); ok {
			n++
		}
	}
	return n
}

// Post delivers msg to each sink in registration order. It always returns
// nil; sink failures are reported to the logger and metrics.
func (f *Fanout[M]) Post(msg M) error {
	sinks := f.live()
	for _, sink := range sinks {
		f.report(context.Background(), f.deliver(func() error { return sink.Post(msg) }))
	}
	return nil
}

// PostAsync invokes every sink concurrently and waits for all of them. With a
// single sink the call passes straight through. The only error returned is
// ctx.Err() when the caller's context ended.
func (f *Fanout[M]) PostAsync(ctx context.Context, msg M) error {
	sinks := f.live()
	switch len(sinks) {
	case 0:
	case 1:
		f.report(ctx, f.deliver(func() error { return sinks[0].PostAsync(ctx, msg) }))
	default:
		var g errgroup.Group
		for _, sink := range sinks {
			g.Go(func() error {
				f.report(ctx, f.deliver(func() error { return sink.PostAsync(ctx, msg) }))
				return nil
			})
		}
		_ = g.Wait()
	}
	return ctx.Err()
}

func (f *Fanout[M]) add(key any, resolve func() (Sink[M], bool)) uint64 {
	id := f.nextID.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()

	old := *f.subs.Load()
	next := make([]*entry[M], len(old), len(old)+1)
	copy(next, old)
	next = append(next, &entry[M]{id: id, key: key, resolve: resolve})
	f.subs.Store(&next)
	return id
}

func (f *Fanout[M]) removeWhere(match func(*entry[M]) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	old := *f.subs.Load()
	next := make([]*entry[M], 0, len(old))
	for _, e := range old {
		if !match(e) {
			next = append(next, e)
		}
	}
	if len(next) != len(old) {
		f.subs.Store(&next)
	}
}

// live resolves the current snapshot and compacts reclaimed weak entries.
func (f *Fanout[M]) live() []Sink[M] {
	snapshot := *f.subs.Load()
	sinks := make([]Sink[M], 0, len(snapshot))
	dead := false
	for _, e := range snapshot {
		if sink, ok := e.resolve(); ok {
			sinks = append(sinks, sink)
		} else {
			dead = true
		}
	}
	if dead {
		f.removeWhere(func(e *entry[M]) bool {
			_, ok := e.resolve()
			return !ok
		})
	}
	return sinks
}

func (f *Fanout[M]) deliver(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("msgflow: sink panicked: %v", r)
		}
	}()
	return call()
}

func (f *Fanout[M]) report(ctx context.Context, err error) {
	switch {
	case err == nil:
		f.metrics.RecordDelivery(f.name, false)
	case errors.Is(err, errspkg.ErrMessageDropped):
		f.metrics.RecordDelivery(f.name, false)
		f.log.Debug("Subscriber dropped message", loggingpkg.LogFields{"component": f.name})
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		f.metrics.RecordDelivery(f.name, false)
	default:
		f.metrics.RecordDelivery(f.name, true)
		f.log.Error("Subscriber failed to accept message", err, loggingpkg.LogFields{"component": f.name})
		if f.onError != nil {
			f.onError(ctx, err)
		}
	}
}

// Subscription removes a single Subscribe entry.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Cancel removes the entry. Further calls do nothing.
func (s *Subscription) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.once.Do(s.cancel)
}
