package forwarder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
	"github.com/drblury/msgflow/internal/runtime/fabric"
	metricspkg "github.com/drblury/msgflow/internal/runtime/metrics"
	"github.com/drblury/msgflow/internal/runtime/queue"
)

type recorder[M any] struct {
	mu   sync.Mutex
	msgs []M
}

func (r *recorder[M]) sink() fabric.Sink[M] {
	return fabric.SinkFunc[M](func(_ context.Context, msg M) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
		return nil
	})
}

func (r *recorder[M]) received() []M {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]M(nil), r.msgs...)
}

func (r *recorder[M]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func closeNow(t *testing.T, f interface{ Close(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Close(ctx))
}

func TestForwarder_SingleWorkerPreservesFIFO(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, err := NewQueue[int](queue.Options{}, Options{ThreadLimit: 1, MaxIdle: 50 * time.Millisecond})
	require.NoError(t, err)
	rec := &recorder[int]{}
	f.Connect(rec.sink())

	want := make([]int, 500)
	for i := range want {
		want[i] = i
		require.NoError(t, f.Post(i))
	}

	require.Eventually(t, func() bool { return rec.count() == len(want) }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, rec.received())
	closeNow(t, f)
}

func TestForwarder_PriorityOrderWithSingleWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	first := make(chan struct{})
	var once sync.Once
	rec := &recorder[int]{}

	f, err := NewPriority(func(a, b int) bool { return a < b }, queue.Options{}, Options{ThreadLimit: 1})
	require.NoError(t, err)
	f.Connect(fabric.SinkFunc[int](func(ctx context.Context, msg int) error {
		once.Do(func() {
			close(first)
			<-gate
		})
		return rec.sink().PostAsync(ctx, msg)
	}))

	require.NoError(t, f.Post(0))
	<-first
	for _, v := range []int{5, 1, 5, 3} {
		require.NoError(t, f.Post(v))
	}
	close(gate)

	require.Eventually(t, func() bool { return rec.count() == 5 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{0, 5, 5, 3, 1}, rec.received())
	closeNow(t, f)
}

func TestForwarder_LiveWorkersNeverExceedLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	const limit = 3
	var active, peak atomic.Int32
	var delivered atomic.Int32

	f, err := NewQueue[int](queue.Options{}, Options{ThreadLimit: limit, MaxIdle: 20 * time.Millisecond})
	require.NoError(t, err)
	f.Connect(fabric.SinkFunc[int](func(context.Context, int) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
		delivered.Add(1)
		return nil
	}))

	var producers sync.WaitGroup
	for p := range 4 {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := range 100 {
				assert.NoError(t, f.Post(p*100+i))
				assert.LessOrEqual(t, f.Stats().Live, limit)
			}
		}()
	}
	producers.Wait()

	require.Eventually(t, func() bool { return delivered.Load() == 400 }, 10*time.Second, 5*time.Millisecond)
	stats := f.Stats()
	assert.LessOrEqual(t, stats.HighWater, limit)
	assert.LessOrEqual(t, int(peak.Load()), limit)
	assert.Equal(t, uint64(400), stats.Forwarded)

	require.Eventually(t, func() bool { return f.Stats().Live == 0 }, 5*time.Second, 5*time.Millisecond)
	closeNow(t, f)
}

func TestForwarder_WorkersRetireWhenIdle(t *testing.T) {
	defer goleak.VerifyNone(t)

	var retired []WorkerContext
	var mu sync.Mutex
	f, err := NewQueue[string](queue.Options{}, Options{
		MaxIdle: 20 * time.Millisecond,
		Hooks: WorkerHooks{OnWorkerRetire: func(ctx WorkerContext) {
			mu.Lock()
			defer mu.Unlock()
			retired = append(retired, ctx)
		}},
		Name: "idle-test",
	})
	require.NoError(t, err)
	rec := &recorder[string]{}
	f.Connect(rec.sink())

	require.NoError(t, f.Post("ping"))
	require.Eventually(t, func() bool {
		s := f.Stats()
		return s.Live == 0 && s.Retired == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Len(t, retired, 1)
	assert.Equal(t, RetireIdle, retired[0].Reason)
	assert.Equal(t, "idle-test", retired[0].Forwarder)
	assert.Equal(t, uint64(1), retired[0].Forwarded)
	mu.Unlock()

	require.NoError(t, f.Post("pong"))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), f.Stats().Spawned)
	closeNow(t, f)
}

func TestForwarder_FailuresDoNotKillWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	var (
		mu       sync.Mutex
		failures []error
		workerID uint64
	)
	reg := prometheus.NewRegistry()
	m := metricspkg.New("test", reg)
	require.NoError(t, m.Register())

	f, err := NewQueue[int](queue.Options{}, Options{Name: "failing", Metrics: m, Hooks: WorkerHooks{
		OnForwardError: func(ctx WorkerContext, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, err)
			workerID = ctx.WorkerID
		},
	}})
	require.NoError(t, err)

	rec := &recorder[int]{}
	f.Connect(fabric.SinkFunc[int](func(_ context.Context, msg int) error {
		switch msg {
		case 1:
			return errors.New("rejected")
		case 2:
			panic("exploded")
		}
		return nil
	}))
	f.Connect(rec.sink())

	for i := range 4 {
		require.NoError(t, f.Post(i))
	}

	require.Eventually(t, func() bool { return rec.count() == 4 }, 2*time.Second, 5*time.Millisecond)
	closeNow(t, f)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, failures, 2)
	assert.Equal(t, uint64(1), workerID)
	assert.Equal(t, uint64(2), f.Stats().Failed)
	assert.Equal(t, uint64(2), f.Stats().Forwarded)
	assert.Equal(t, uint64(1), f.Stats().Spawned)
	assert.Equal(t, 2.0, forwardedCount(t, reg, "ok"))
	assert.Equal(t, 2.0, forwardedCount(t, reg, "error"))
}

func TestForwarder_FailedMessageNotCountedAsForwarded(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	m := metricspkg.New("test", reg)
	require.NoError(t, m.Register())

	f, err := NewQueue[int](queue.Options{}, Options{Name: "single", Metrics: m})
	require.NoError(t, err)

	var attempts atomic.Int32
	f.Connect(fabric.SinkFunc[int](func(context.Context, int) error {
		attempts.Add(1)
		return errors.New("rejected")
	}))

	require.NoError(t, f.Post(1))
	require.Eventually(t, func() bool { return f.Stats().Failed == 1 }, 2*time.Second, 5*time.Millisecond)
	closeNow(t, f)

	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, uint64(0), f.Stats().Forwarded)
	assert.Equal(t, 0.0, forwardedCount(t, reg, "ok"))
	assert.Equal(t, 1.0, forwardedCount(t, reg, "error"))
}

func forwardedCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "test_forwarder_forwarded_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == result {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestForwarder_BackpressureFromBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	taken := make(chan struct{}, 1)
	f, err := NewQueue[int](queue.Options{Capacity: 2, Policy: queue.DropNewest}, Options{})
	require.NoError(t, err)
	f.Connect(fabric.SinkFunc[int](func(context.Context, int) error {
		select {
		case taken <- struct{}{}:
		default:
		}
		<-gate
		return nil
	}))

	require.NoError(t, f.Post(1))
	<-taken
	require.NoError(t, f.Post(2))
	require.NoError(t, f.Post(3))
	assert.ErrorIs(t, f.Post(4), errspkg.ErrMessageDropped)
	assert.Equal(t, uint64(1), f.Stats().Dropped)

	close(gate)
	closeNow(t, f)
}

func TestForwarder_CloseDrainsBuffer(t *testing.T) {
	defer goleak.VerifyNone(t)

	f, err := NewQueue[int](queue.Options{}, Options{ThreadLimit: 2, MaxIdle: time.Minute})
	require.NoError(t, err)
	rec := &recorder[int]{}
	f.Connect(fabric.SinkFunc[int](func(ctx context.Context, msg int) error {
		time.Sleep(100 * time.Microsecond)
		return rec.sink().PostAsync(ctx, msg)
	}))

	for i := range 200 {
		require.NoError(t, f.Post(i))
	}
	closeNow(t, f)

	assert.Equal(t, 200, rec.count())
	assert.Equal(t, 0, f.Stats().Live)
	assert.ErrorIs(t, f.Post(1), errspkg.ErrForwarderClosed)
	assert.ErrorIs(t, f.PostAsync(context.Background(), 1), errspkg.ErrForwarderClosed)
	closeNow(t, f)
}

func TestForwarder_CloseHardStopsOnContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	var retireReason atomic.Value
	f, err := NewQueue[int](queue.Options{}, Options{Hooks: WorkerHooks{
		OnWorkerRetire: func(ctx WorkerContext) { retireReason.Store(ctx.Reason) },
	}})
	require.NoError(t, err)
	started := make(chan struct{})
	var once sync.Once
	f.Connect(fabric.SinkFunc[int](func(ctx context.Context, _ int) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return ctx.Err()
	}))

	require.NoError(t, f.Post(1))
	require.NoError(t, f.Post(2))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, f.Stats().Live)
	assert.Equal(t, 0, f.Stats().Queued)
	assert.Equal(t, RetireShutdown, retireReason.Load())
}

func TestForwarder_ChainsIntoFabric(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := fabric.New[int](fabric.Options{})
	f, err := NewQueue[int](queue.Options{}, Options{})
	require.NoError(t, err)
	rec := &recorder[int]{}

	fabric.Chain[int](src, f).Connect(rec.sink())
	require.NoError(t, src.Post(42))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)
	closeNow(t, f)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New[int](nil, Options{})
	assert.ErrorIs(t, err, errspkg.ErrSinkRequired)

	var cfgErr *errspkg.ConfigurationError
	_, err = NewQueue[int](queue.Options{}, Options{ThreadLimit: -1})
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewPriority[int](nil, queue.Options{}, Options{})
	assert.ErrorIs(t, err, errspkg.ErrComparatorRequired)
}
