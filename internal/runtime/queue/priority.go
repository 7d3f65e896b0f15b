package queue

import errspkg "github.com/drblury/msgflow/internal/runtime/errors"

// PriorityReceiver dequeues the highest-priority message first. Messages of
// equal priority leave in arrival order.
//
// Under DropOldest the earliest-inserted message is evicted regardless of its
// priority; DropNewest rejects the incoming message.
type PriorityReceiver[M any] struct {
	*Receiver[M]
}

// NewPriority returns an empty priority receiver. less(a, b) reports whether
// a has lower priority than b.
func NewPriority[M any](less func(a, b M) bool, opts Options) (*PriorityReceiver[M], error) {
	if less == nil {
		return nil, errspkg.ErrComparatorRequired
	}
	return &PriorityReceiver[M]{
		Receiver: newReceiver[M]("priority-receiver", &priorityHeap[M]{less: less}, opts),
	}, nil
}
