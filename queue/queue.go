// Package queue implements the sized FIFO queue shared by every controller:
// an ordered buffer of (value, size) pairs with a running total size.
package queue

import (
	"math"

	"github.com/relaystream/streams/serr"
)

// Queue is a sized FIFO buffer of values of type T. The zero value is a
// valid, empty queue.
type Queue[T any] struct {
	entries []entry[T]
	total   float64
}

type entry[T any] struct {
	value T
	size  float64
}

// ValidateSize rejects a size that is negative, NaN, or infinite.
func ValidateSize(size float64) error {
	if math.IsNaN(size) || math.IsInf(size, 0) || size < 0 {
		return serr.New(serr.Range, "queue.Queue.Enqueue", "size must be a finite, non-negative number")
	}
	return nil
}

// Enqueue appends value at the tail with the given size. It fails with a
// Range error if size is negative, NaN, or infinite.
func (q *Queue[T]) Enqueue(value T, size float64) error {
	if err := ValidateSize(size); err != nil {
		return err
	}
	q.entries = append(q.entries, entry[T]{value: value, size: size})
	q.total += size
	return nil
}

// Dequeue removes and returns the head entry. ok is false on an empty queue.
func (q *Queue[T]) Dequeue() (value T, ok bool) {
	if len(q.entries) == 0 {
		return value, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	q.total -= head.size
	if len(q.entries) == 0 {
		// Snap to exactly zero to avoid floating point drift.
		q.total = 0
	}
	return head.value, true
}

// Peek returns the head entry without removing it.
func (q *Queue[T]) Peek() (value T, ok bool) {
	if len(q.entries) == 0 {
		return value, false
	}
	return q.entries[0].value, true
}

// PeekSize returns the size recorded for the head entry.
func (q *Queue[T]) PeekSize() (size float64, ok bool) {
	if len(q.entries) == 0 {
		return 0, false
	}
	return q.entries[0].size, true
}

// Reset empties the queue and snaps the total size to zero.
func (q *Queue[T]) Reset() {
	q.entries = nil
	q.total = 0
}

// Len returns the number of entries currently queued.
func (q *Queue[T]) Len() int { return len(q.entries) }

// TotalSize returns the running total of enqueued sizes.
func (q *Queue[T]) TotalSize() float64 { return q.total }
