package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitAny_ReturnsReadyIndex(t *testing.T) {
	a := New[int](Options{})
	b := New[string](Options{})
	c, err := NewPriority(func(x, y int) bool { return x < y }, Options{})
	require.NoError(t, err)

	require.NoError(t, b.Post("hello"))
	idx, err := WaitAny(context.Background(), a, b, c)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestWaitAny_WakesOnPost(t *testing.T) {
	a := New[int](Options{})
	b := New[int](Options{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = a.Post(1)
	}()

	idx, err := WaitAny(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	v, ok := a.TryReceive()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestWaitAny_ContextEnds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	idx, err := WaitAny(ctx, New[int](Options{}))
	assert.Equal(t, -1, idx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
