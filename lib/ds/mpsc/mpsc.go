// Package mpsc provides a lock-free multi-producer single-consumer queue.
//
// The queue is unbounded and allocation-light: each element costs one linked
// node. Any number of goroutines may Push concurrently; exactly one consumer
// drains the queue through the Recv channel. Ordering between concurrent
// producers is determined by which Push completes first, not by which
// started first.
//
// The field store uses this queue to hand expiry bookkeeping events from the
// write path to the sweeper goroutine that owns the per-shard volatile set,
// so the set itself never needs internal locking.
package mpsc

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node is one element of the internal linked list.
type node[T any] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// Queue is a lock-free multi-producer single-consumer queue.
type Queue[T any] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	consumer sync.WaitGroup
	closed   atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// New creates a queue and starts its internal consumer goroutine.
func New[T any]() *Queue[T] {
	sentinel := &node[T]{}

	q := &Queue[T]{out: make(chan *T)}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push appends value to the queue.
// Returns false if value is nil or the queue is closed.
//
// Thread-safety: safe for concurrent use by any number of goroutines.
func (q *Queue[T]) Push(value *T) bool {
	if value == nil || q.closed.Load() {
		return false
	}

	newNode := &node[T]{value: value}

	var backoff uint8
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// The tail CAS may lose to a helping producer; the tail
				// still converges.
				q.tail.CompareAndSwap(tailNode, newNode)
				q.cond.Signal()
				return true
			}
		} else {
			// Another producer appended but has not advanced the tail yet.
			q.tail.CompareAndSwap(tailNode, next)
		}

		// Exponential backoff: spin at low contention, yield at high.
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// consume moves elements from the linked list to the output channel.
func (q *Queue[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			hasItems = true

			value := next.value
			q.head.Store(next)
			q.out <- value
			next.value = nil
		}

		if !hasItems && q.closed.Load() {
			return
		}

		if !hasItems {
			q.mu.Lock()
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns the receive-only channel the consumer drains from.
func (q *Queue[T]) Recv() <-chan *T {
	return q.out
}

// Close prevents further writes. Elements already queued are still
// delivered before the Recv channel is closed.
func (q *Queue[T]) Close() {
	q.closed.Store(true)
	q.cond.Signal()
}

// IsClosed reports whether the queue has been closed.
func (q *Queue[T]) IsClosed() bool {
	return q.closed.Load()
}
