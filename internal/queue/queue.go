package queue

import (
	"sync"
)

// Queue is an unbounded, thread-safe FIFO queue.
// Ready receives a signal after every Enqueue; one signal may cover several items.
type Queue[T any] struct {
	items []T
	ready chan struct{}
	mu    sync.Mutex
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	return &Queue[T]{
		ready: make(chan struct{}, 1),
	}
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueue appends a value and signals Ready without blocking
func (q *Queue[T]) Enqueue(value T) {
	q.mu.Lock()
	q.items = append(q.items, value)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest value
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	value := q.items[0]
	var zero T
	q.items[0] = zero // avoid memory leak
	q.items = q.items[1:]
	return value, true
}

// DequeueAll empties the queue and returns its values in order
func (q *Queue[T]) DequeueAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Items returns a copy of the queued values without removing them
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]T(nil), q.items...)
}

// Ready is signalled when values are enqueued
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}
