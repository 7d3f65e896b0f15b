package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/msgflow/internal/runtime/clock"
	"github.com/drblury/msgflow/internal/runtime/config"
	errspkg "github.com/drblury/msgflow/internal/runtime/errors"
)

func sendAll(t *testing.T, r *Receiver[int], values ...int) {
	t.Helper()
	for _, v := range values {
		err := r.Post(v)
		if err != nil {
			require.ErrorIs(t, err, errspkg.ErrMessageDropped)
		}
	}
}

func sequence(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestReceiver_FIFO(t *testing.T) {
	r := New[int](Options{Capacity: 100})
	sendAll(t, r, sequence(1, 50)...)

	assert.Equal(t, 50, r.Count())
	assert.Equal(t, sequence(1, 50), r.ReceiveAll())
	assert.True(t, r.IsEmpty())
	assert.Nil(t, r.ReceiveAll())
}

func TestReceiver_TryReceive(t *testing.T) {
	r := New[string](Options{})

	_, ok := r.TryReceive()
	assert.False(t, ok)

	require.NoError(t, r.Post("a"))
	require.NoError(t, r.PostAsync(context.Background(), "b"))

	v, ok := r.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = r.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, uint64(2), r.Enqueued())
}

func TestReceiver_DefaultsToUnbounded(t *testing.T) {
	r := New[int](Options{})
	assert.Equal(t, config.Unbounded, r.Capacity())
	assert.Equal(t, Block, r.Policy())

	sendAll(t, r, sequence(1, 5000)...)
	assert.False(t, r.IsFull())
	assert.Equal(t, 5000, r.Count())
}

func TestReceiver_DropNewestKeepsFirstValues(t *testing.T) {
	const limit, total = 5, 12
	r := New[int](Options{Capacity: limit, Policy: DropNewest})

	for i := 1; i <= total; i++ {
		err := r.Post(i)
		if i <= limit {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, errspkg.ErrMessageDropped)
		}
	}

	assert.True(t, r.IsFull())
	assert.Equal(t, uint64(total-limit), r.Dropped())
	assert.Equal(t, sequence(1, limit), r.ReceiveAll())
}

func TestReceiver_DropOldestKeepsLastValues(t *testing.T) {
	const limit, total = 5, 12
	r := New[int](Options{Capacity: limit, Policy: DropOldest})

	for i := 1; i <= total; i++ {
		require.NoError(t, r.Post(i))
	}

	assert.Equal(t, uint64(total-limit), r.Dropped())
	assert.Equal(t, uint64(total), r.Enqueued())
	assert.Equal(t, sequence(total-limit+1, total), r.ReceiveAll())
}

func isReady(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestReceiver_DropOldestCapacityOne(t *testing.T) {
	r := New[int](Options{Capacity: 1, Policy: DropOldest})

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.Post(i))
		assert.True(t, isReady(r.Ready()), "ready after post %d", i)
	}

	assert.Equal(t, uint64(3), r.Dropped())
	assert.Equal(t, uint64(4), r.Enqueued())

	got, ok := r.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 4, got)
	assert.False(t, isReady(r.Ready()))

	require.NoError(t, r.Post(5))
	assert.True(t, isReady(r.Ready()))
	assert.Equal(t, []int{5}, r.ReceiveAll())
}

func TestReceiver_DropNewestCapacityOne(t *testing.T) {
	r := New[int](Options{Capacity: 1, Policy: DropNewest})

	require.NoError(t, r.Post(1))
	require.ErrorIs(t, r.Post(2), errspkg.ErrMessageDropped)
	assert.True(t, isReady(r.Ready()))

	assert.Equal(t, []int{1}, r.ReceiveAll())
	assert.False(t, isReady(r.Ready()))
	assert.Equal(t, uint64(1), r.Dropped())
}

func TestReceiver_DropOldestCapacityOneConcurrent(t *testing.T) {
	r := New[int](Options{Capacity: 1, Policy: DropOldest})

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				assert.NoError(t, r.Post(p*1000+i))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Count())
	assert.True(t, isReady(r.Ready()))
	assert.Equal(t, uint64(800), r.Enqueued())
	assert.Equal(t, uint64(799), r.Dropped())
}

func TestReceiver_BlockHonorsTimeout(t *testing.T) {
	const blockFor = 60 * time.Millisecond
	r := New[int](Options{Capacity: 1, Policy: Block, BlockTimeout: blockFor})
	require.NoError(t, r.Post(1))

	start := time.Now()
	err := r.Post(2)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, errspkg.ErrMessageDropped)
	assert.GreaterOrEqual(t, elapsed, blockFor)
	assert.Less(t, elapsed, blockFor+250*time.Millisecond)
	assert.Equal(t, []int{1}, r.ReceiveAll())
	assert.Equal(t, uint64(1), r.Dropped())
}

func TestReceiver_BlockTimeoutWithManualClock(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	r := New[int](Options{Capacity: 1, BlockTimeout: time.Minute, Clock: clk})
	require.NoError(t, r.Post(1))

	done := make(chan error, 1)
	go func() { done <- r.Post(2) }()

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(59 * time.Second)
	select {
	case err := <-done:
		t.Fatalf("producer returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	clk.Advance(time.Second)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, errspkg.ErrMessageDropped)
	case <-time.After(time.Second):
		t.Fatal("producer did not time out")
	}
}

func TestReceiver_BlockedProducerResumesWhenSpaceFrees(t *testing.T) {
	r := New[int](Options{Capacity: 1})
	require.NoError(t, r.Post(1))

	done := make(chan error, 1)
	go func() { done <- r.Post(2) }()

	select {
	case <-done:
		t.Fatal("producer should block on a full queue")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := r.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer was not released")
	}
	assert.Equal(t, []int{2}, r.ReceiveAll())
}

func TestReceiver_EachFreedSlotGoesToOneProducer(t *testing.T) {
	const producers = 4
	r := New[int](Options{Capacity: 1})
	require.NoError(t, r.Post(0))

	var wg sync.WaitGroup
	for i := 1; i <= producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Post(i))
		}()
	}

	var got []int
	for len(got) < producers+1 {
		v, ok := r.TryReceiveTimeout(time.Second)
		require.True(t, ok, "expected another message after %v", got)
		got = append(got, v)
		assert.LessOrEqual(t, r.Count(), 1)
	}
	wg.Wait()

	sort.Ints(got)
	assert.Equal(t, sequence(0, producers), got)
}

func TestReceiver_PostAsyncStopsOnContext(t *testing.T) {
	r := New[int](Options{Capacity: 1})
	require.NoError(t, r.Post(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.PostAsync(ctx, 2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), r.Dropped())
	assert.Equal(t, 1, r.Count())
}

func TestReceiver_TryReceiveTimeout(t *testing.T) {
	r := New[int](Options{})

	start := time.Now()
	_, ok := r.TryReceiveTimeout(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = r.Post(9)
	}()
	v, ok := r.TryReceiveTimeout(-1)
	require.True(t, ok)
	assert.Equal(t, 9, v)
}

func TestReceiver_TryReceiveTimeoutWithManualClock(t *testing.T) {
	clk := clock.NewManual(time.Unix(0, 0))
	r := New[int](Options{Clock: clk})

	done := make(chan bool, 1)
	go func() {
		_, ok := r.TryReceiveTimeout(time.Second)
		done <- ok
	}()

	require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Second)
	assert.False(t, <-done)
	assert.Equal(t, 0, clk.Waiters())
}

func TestReceiver_Receive(t *testing.T) {
	r := New[int](Options{})

	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = r.Post(3)
	}()
	v, err := r.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReceiver_ReadySignal(t *testing.T) {
	r := New[int](Options{})

	select {
	case <-r.Ready():
		t.Fatal("empty receiver reported ready")
	default:
	}

	require.NoError(t, r.Post(1))
	select {
	case <-r.Ready():
	default:
		t.Fatal("expected ready after post")
	}

	r.ReceiveAll()
	select {
	case <-r.Ready():
		t.Fatal("drained receiver reported ready")
	default:
	}
}

func TestReceiver_ConcurrentProducersAndConsumers(t *testing.T) {
	const producers, perProducer = 8, 200
	r := New[int](Options{Capacity: 16})

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				assert.NoError(t, r.PostAsync(context.Background(), p*perProducer+i))
			}
		}()
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]bool)
	)
	var consumers sync.WaitGroup
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, ok := r.TryReceiveTimeout(200 * time.Millisecond)
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	consumers.Wait()
	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, uint64(producers*perProducer), r.Enqueued())
}

func TestParseOverflowPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want OverflowPolicy
	}{
		{"", Block},
		{"block", Block},
		{"Drop-Newest", DropNewest},
		{" drop-oldest ", DropOldest},
	}
	for _, tt := range tests {
		got, err := ParseOverflowPolicy(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseOverflowPolicy("spill")
	assert.Error(t, err)
	assert.Equal(t, "drop-oldest", DropOldest.String())
	assert.Equal(t, "OverflowPolicy(9)", OverflowPolicy(9).String())
}

func TestOptionsFromConfig(t *testing.T) {
	opts, err := OptionsFromConfig(config.QueueConfig{Capacity: 8, OverflowPolicy: "drop-newest", BlockTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Options{Capacity: 8, Policy: DropNewest, BlockTimeout: time.Second}, opts)

	_, err = OptionsFromConfig(config.QueueConfig{OverflowPolicy: "bogus"})
	assert.Error(t, err)
}
