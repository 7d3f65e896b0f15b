// Package queue implements buffering sinks: a FIFO Receiver and a
// PriorityReceiver, both bounded with block, drop-newest or drop-oldest
// overflow handling.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drblury/msgflow/internal/runtime/clock"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	idspkg "github.com/drblury/msgflow/internal/runtime/ids"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
)

// Buffer is a Sink that can be drained. Both receivers implement it and the
// forwarder owns one.
type Buffer[M any] interface {
	fabric.Sink[M]
	Waitable

	TryReceive() (M, bool)
	TryReceiveTimeout(timeout time.Duration) (M, bool)
	Poll(ctx context.Context, timeout time.Duration) (M, bool)
	Receive(ctx context.Context) (M, error)
	ReceiveAll() []M

	Count() int
	IsEmpty() bool
	IsFull() bool
	Capacity() int
	Enqueued() uint64
	Dropped() uint64
}

// Receiver buffers posted messages in arrival order.
//
// Count, IsEmpty and IsFull are point-in-time snapshots and only suitable for
// diagnostics and heuristics.
type Receiver[M any] struct {
	name         string
	capacity     int
	policy       OverflowPolicy
	blockTimeout time.Duration
	clock        clock.Clock
	metrics      *metricspkg.Metrics

	mu    sync.RWMutex
	items store[M]
	// ready is closed while the buffer holds at least one message.
	ready chan struct{}
	// space is closed and replaced whenever a slot frees up and producers
	// are waiting for one.
	space   chan struct{}
	waiting int

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// New returns an empty FIFO receiver.
func New[M any](opts Options) *Receiver[M] {
	return newReceiver[M]("receiver", &fifo[M]{}, opts)
}

func newReceiver[M any](kind string, items store[M], opts Options) *Receiver[M] {
	blockTimeout := opts.BlockTimeout
	if blockTimeout < 0 {
		blockTimeout = 0
	}
	return &Receiver[M]{
		name:         idspkg.ComponentName(kind, opts.Name),
		capacity:     opts.capacity(),
		policy:       opts.policy(),
		blockTimeout: blockTimeout,
		clock:        clock.OrReal(opts.Clock),
		metrics:      opts.Metrics,
		items:        items,
		ready:        make(chan struct{}),
		space:        make(chan struct{}),
	}
}

// Name returns the component name used in metrics.
func (r *Receiver[M]) Name() string { return r.name }

// Policy returns the configured overflow policy.
func (r *Receiver[M]) Policy() OverflowPolicy { return r.policy }

// Post enqueues msg, blocking the calling goroutine under the Block policy.
// It returns ErrMessageDropped when the message was discarded.
func (r *Receiver[M]) Post(msg M) error {
	return r.enqueue(context.Background(), msg)
}

// PostAsync behaves like Post but also stops waiting for space when ctx ends,
// returning ctx.Err() without enqueueing.
func (r *Receiver[M]) PostAsync(ctx context.Context, msg M) error {
	return r.enqueue(ctx, msg)
}

func (r *Receiver[M]) enqueue(ctx context.Context, msg M) error {
	var timer clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	r.mu.Lock()
	for {
		if r.items.len() < r.capacity {
			r.pushLocked(msg)
			r.mu.Unlock()
			return nil
		}

		switch r.policy {
		case DropNewest:
			r.mu.Unlock()
			r.recordDrop()
			return errspkg.ErrMessageDropped
		case DropOldest:
			r.replaceOldestLocked(msg)
			r.mu.Unlock()
			r.recordDrop()
			return nil
		}

		space := r.space
		r.waiting++
		r.mu.Unlock()

		var expired <-chan time.Time
		if r.blockTimeout > 0 {
			if timer == nil {
				timer = r.clock.NewTimer(r.blockTimeout)
			}
			expired = timer.C()
		}

		select {
		case <-space:
			r.mu.Lock()
			r.waiting--
		case <-expired:
			r.mu.Lock()
			r.waiting--
			if r.items.len() < r.capacity {
				r.pushLocked(msg)
				r.mu.Unlock()
				return nil
			}
			r.mu.Unlock()
			r.recordDrop()
			return errspkg.ErrMessageDropped
		case <-ctx.Done():
			r.mu.Lock()
			r.waiting--
			r.mu.Unlock()
			return ctx.Err()
		}
	}
}

func (r *Receiver[M]) pushLocked(msg M) {
	r.items.push(msg)
	r.enqueued.Add(1)
	depth := r.items.len()
	if depth == 1 {
		close(r.ready)
	}
	r.metrics.RecordEnqueued(r.name, depth)
}

// replaceOldestLocked evicts the oldest message and pushes msg in one step.
// The buffer never becomes empty in between, so ready stays closed.
func (r *Receiver[M]) replaceOldestLocked(msg M) {
	r.items.evictOldest()
	r.items.push(msg)
	r.enqueued.Add(1)
	r.metrics.RecordEnqueued(r.name, r.items.len())
}

func (r *Receiver[M]) popLocked() M {
	msg := r.items.pop()
	r.afterRemoveLocked()
	return msg
}

func (r *Receiver[M]) afterRemoveLocked() {
	depth := r.items.len()
	if depth == 0 {
		r.ready = make(chan struct{})
	}
	if r.waiting > 0 {
		close(r.space)
		r.space = make(chan struct{})
	}
	r.metrics.SetQueueDepth(r.name, depth)
}

func (r *Receiver[M]) recordDrop() {
	r.dropped.Add(1)
	r.metrics.RecordDropped(r.name, r.policy.String())
}

// TryReceive dequeues the next message without waiting.
func (r *Receiver[M]) TryReceive() (M, bool) {
	return r.Poll(context.Background(), 0)
}

// TryReceiveTimeout waits up to timeout for a message. A negative timeout
// waits indefinitely; zero does not wait.
func (r *Receiver[M]) TryReceiveTimeout(timeout time.Duration) (M, bool) {
	return r.Poll(context.Background(), timeout)
}

// Receive waits until a message arrives or ctx ends.
func (r *Receiver[M]) Receive(ctx context.Context) (M, error) {
	msg, ok := r.Poll(ctx, -1)
	if !ok {
		return msg, ctx.Err()
	}
	return msg, nil
}

// Poll waits up to timeout for a message and gives up early when ctx ends.
// A negative timeout waits until ctx ends.
func (r *Receiver[M]) Poll(ctx context.Context, timeout time.Duration) (M, bool) {
	var (
		zero    M
		timer   clock.Timer
		expired <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		r.mu.Lock()
		if r.items.len() > 0 {
			msg := r.popLocked()
			r.mu.Unlock()
			return msg, true
		}
		ready := r.ready
		r.mu.Unlock()

		if timeout == 0 {
			return zero, false
		}
		if timeout > 0 && timer == nil {
			timer = r.clock.NewTimer(timeout)
			expired = timer.C()
		}

		select {
		case <-ready:
		case <-expired:
			return zero, false
		case <-ctx.Done():
			return zero, false
		}
	}
}

// ReceiveAll drains the buffer atomically, preserving delivery order.
func (r *Receiver[M]) ReceiveAll() []M {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items.len() == 0 {
		return nil
	}
	out := r.items.drain()
	r.afterRemoveLocked()
	return out
}

// Ready returns a channel that is closed while the buffer is non-empty.
// Another consumer may still win the race for the message.
func (r *Receiver[M]) Ready() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

func (r *Receiver[M]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items.len()
}

func (r *Receiver[M]) IsEmpty() bool { return r.Count() == 0 }

func (r *Receiver[M]) IsFull() bool { return r.Count() >= r.capacity }

func (r *Receiver[M]) Capacity() int { return r.capacity }

// Enqueued is the number of messages ever accepted.
func (r *Receiver[M]) Enqueued() uint64 { return r.enqueued.Load() }

// Dropped is the number of messages discarded by the overflow policy.
func (r *Receiver[M]) Dropped() uint64 { return r.dropped.Load() }
