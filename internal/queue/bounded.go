// Package queue provides the fixed-capacity stage edges used between the
// capture, inference and transport stages of a camera pipeline.
package queue

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Policy controls producer behavior on a full queue.
type Policy int

const (
	// DropOldest discards the oldest element to make room; Put never blocks.
	DropOldest Policy = iota
	// Block makes Put wait until a consumer frees a slot.
	Block
)

// Bounded is a fixed-capacity single-producer/single-consumer queue.
// All operations are safe against a concurrent Close.
type Bounded[T any] struct {
	mu      sync.Mutex
	notFull *sync.Cond
	hasItem *sync.Cond

	items    []T
	capacity int
	policy   Policy
	closed   bool
	dropped  uint64
}

func NewBounded[T any](capacity int, policy Policy) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Bounded[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		policy:   policy,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.hasItem = sync.NewCond(&q.mu)
	return q
}

// Put enqueues one element according to the queue policy.
func (q *Bounded[T]) Put(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	if len(q.items) >= q.capacity {
		switch q.policy {
		case DropOldest:
			q.items = q.items[1:]
			q.dropped++
		case Block:
			for len(q.items) >= q.capacity && !q.closed {
				q.notFull.Wait()
			}
			if q.closed {
				return ErrClosed
			}
		}
	}

	q.items = append(q.items, v)
	q.hasItem.Signal()
	return nil
}

// Get blocks until an element is available or the queue closes. The second
// return is false only when the queue is closed and drained.
func (q *Bounded[T]) Get() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.hasItem.Wait()
	}
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	v := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, true
}

// TryGet returns immediately; false means the queue is currently empty.
func (q *Bounded[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	q.notFull.Signal()
	return v, true
}

func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped reports how many elements the DropOldest policy has discarded.
func (q *Bounded[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes all waiters. Elements already queued remain readable.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.hasItem.Broadcast()
}
