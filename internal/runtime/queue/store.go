package queue

import "container/heap"

// store is the ordering strategy behind a receiver. Callers hold the
// receiver lock.
type store[M any] interface {
	len() int
	push(msg M)
	// pop removes the next message to deliver.
	pop() M
	// evictOldest removes the earliest-inserted message.
	evictOldest() M
	// drain removes everything in delivery order.
	drain() []M
}

type fifo[M any] struct {
	items []M
	head  int
}

func (q *fifo[M]) len() int { return len(q.items) - q.head }

func (q *fifo[M]) push(msg M) {
	if q.head > 0 && q.head >= len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	q.items = append(q.items, msg)
}

func (q *fifo[M]) pop() M {
	var zero M
	msg := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return msg
}

func (q *fifo[M]) evictOldest() M { return q.pop() }

func (q *fifo[M]) drain() []M {
	out := make([]M, q.len())
	copy(out, q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}

type prioritized[M any] struct {
	msg M
	seq uint64
}

// priorityHeap pops the highest priority first and breaks ties by arrival.
type priorityHeap[M any] struct {
	items   []prioritized[M]
	less    func(a, b M) bool
	nextSeq uint64
}

func (h *priorityHeap[M]) Len() int { return len(h.items) }

func (h *priorityHeap[M]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if h.less(b.msg, a.msg) {
		return true
	}
	if h.less(a.msg, b.msg) {
		return false
	}
	return a.seq < b.seq
}

func (h *priorityHeap[M]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *priorityHeap[M]) Push(x any) { h.items = append(h.items, x.(prioritized[M])) }

func (h *priorityHeap[M]) Pop() any {
	n := len(h.items)
	item := h.items[n-1]
	h.items[n-1] = prioritized[M]{}
	h.items = h.items[:n-1]
	return item
}

func (h *priorityHeap[M]) len() int { return len(h.items) }

func (h *priorityHeap[M]) push(msg M) {
	heap.Push(h, prioritized[M]{msg: msg, seq: h.nextSeq})
	h.nextSeq++
}

func (h *priorityHeap[M]) pop() M {
	return heap.Pop(h).(prioritized[M]).msg
}

func (h *priorityHeap[M]) evictOldest() M {
	oldest := 0
	for i := 1; i < len(h.items); i++ {
		if h.items[i].seq < h.items[oldest].seq {
			oldest = i
		}
	}
	return heap.Remove(h, oldest).(prioritized[M]).msg
}

func (h *priorityHeap[M]) drain() []M {
	out := make([]M, 0, len(h.items))
	for len(h.items) > 0 {
		out = append(out, h.pop())
	}
	return out
}
