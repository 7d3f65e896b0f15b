package queue

import (
	"context"
	"reflect"
)

// Waitable exposes a "has data" signal.
type Waitable interface {
	Ready() <-chan struct{}
}

// WaitAny blocks until one of the waitables has data and returns its index.
// When several are ready the lowest index wins. It returns -1 and ctx.Err()
// when ctx ends first.
func WaitAny(ctx context.Context, waitables ...Waitable) (int, error) {
	cases := make([]reflect.SelectCase, 0, len(waitables)+1)
	for i, w := range waitables {
		ch := w.Ready()
		select {
		case <-ch:
			return i, nil
		default:
		}
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(waitables) {
		return -1, ctx.Err()
	}
	return chosen, nil
}
