package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is one element of the linked list
type node[T any] struct {
	value T
	next  atomic.Pointer[node[T]]
}

// Queue is an unbounded multi-producer single-consumer queue.
//
//   - Push never blocks and may be called from any number of goroutines
//   - items leave through the channel returned by Recv, in the order their
//     Push calls linked them into the list; pushes from one goroutine keep
//     their order
//   - Close stops new pushes, queued items are still delivered and the
//     channel is closed afterwards
type Queue[T any] struct {
	head   atomic.Pointer[node[T]] // sentinel, owned by the consumer
	tail   atomic.Pointer[node[T]]
	out    chan T
	done   chan struct{}
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewQueue creates a queue and starts its consumer goroutine.
func NewQueue[T any]() *Queue[T] {
	sentinel := &node[T]{}
	q := &Queue[T]{
		out:  make(chan T),
		done: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	go q.consume()
	return q
}

// Push appends an item. Returns false if the queue is closed.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &node[T]{value: value}
	var backoff uint8
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.wake()
				return true
			}
		} else {
			// another producer linked a node but has not moved tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		// spin a little under contention, then yield
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// wake signals the consumer. Holding mu closes the window between the
// consumer's emptiness check and its Wait.
func (q *Queue[T]) wake() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *Queue[T]) consume() {
	defer close(q.done)
	defer close(q.out)

	for {
		head := q.head.Load()
		next := head.next.Load()
		if next != nil {
			value := next.value
			q.head.Store(next)
			var zero T
			next.value = zero
			q.out <- value
			continue
		}

		q.mu.Lock()
		for q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		drained := q.head.Load().next.Load() == nil
		q.mu.Unlock()

		if drained && q.closed.Load() {
			return
		}
	}
}

// Recv returns the consumer channel. It is closed once the queue is closed
// and drained.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close rejects further pushes. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)
	q.wake()
}

// Done is closed when the consumer goroutine has exited.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

// IsClosed reports whether Close was called.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len counts the queued items. O(n), meant for tests and debugging.
func (q *Queue[T]) Len() int {
	count := 0
	for cur := q.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}
