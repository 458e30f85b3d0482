// Package idxheap implements a bounded binary min-heap whose elements learn
// their own position. Every move writes the element's new slot back through a
// callback, which is what allows O(log n) removal of an arbitrary element given
// only the element itself.
package idxheap

import (
	"container/heap"
	"errors"
)

// NotQueued is the index reported to elements that leave the heap.
const NotQueued = -1

// ErrFull is returned by Push when the heap is at capacity.
var ErrFull = errors.New("idxheap: heap is full")

// Heap is a bounded min-heap over T.
// Ordering is delegated to less; position tracking to setIndex.
type Heap[T any] struct {
	items    []T
	capacity int
	less     func(a, b T) bool
	setIndex func(e T, i int)
}

// New creates an empty heap holding at most capacity elements.
// Panics if capacity is not positive or either callback is nil.
func New[T any](capacity int, less func(a, b T) bool, setIndex func(e T, i int)) *Heap[T] {
	if capacity <= 0 {
		panic("idxheap.New: capacity must be positive")
	}
	if less == nil || setIndex == nil {
		panic("idxheap.New: less and setIndex must not be nil")
	}
	return &Heap[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		less:     less,
		setIndex: setIndex,
	}
}

// adapter exposes heap.Interface without leaking Push/Pop(any) on Heap itself.
type adapter[T any] struct{ h *Heap[T] }

func (a adapter[T]) Len() int           { return len(a.h.items) }
func (a adapter[T]) Less(i, j int) bool { return a.h.less(a.h.items[i], a.h.items[j]) }

func (a adapter[T]) Swap(i, j int) {
	items := a.h.items
	items[i], items[j] = items[j], items[i]
	a.h.setIndex(items[i], i)
	a.h.setIndex(items[j], j)
}

func (a adapter[T]) Push(x any) {
	e := x.(T)
	a.h.setIndex(e, len(a.h.items))
	a.h.items = append(a.h.items, e)
}

func (a adapter[T]) Pop() any {
	old := a.h.items
	n := len(old)
	e := old[n-1]
	var zero T
	old[n-1] = zero
	a.h.items = old[:n-1]
	a.h.setIndex(e, NotQueued)
	return e
}

// Len returns the number of queued elements.
func (h *Heap[T]) Len() int { return len(h.items) }

// Cap returns the configured capacity.
func (h *Heap[T]) Cap() int { return h.capacity }

// Full reports whether Push would fail.
func (h *Heap[T]) Full() bool { return len(h.items) >= h.capacity }

// Push inserts e. The element's index is written back before Push returns.
func (h *Heap[T]) Push(e T) error {
	if h.Full() {
		return ErrFull
	}
	heap.Push(adapter[T]{h}, e)
	return nil
}

// Peek returns the minimum without removing it.
func (h *Heap[T]) Peek() (T, bool) {
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return h.items[0], true
}

// PopMin removes and returns the minimum. Its index is reset to NotQueued.
func (h *Heap[T]) PopMin() (T, bool) {
	if len(h.items) == 0 {
		var zero T
		return zero, false
	}
	return heap.Pop(adapter[T]{h}).(T), true
}

// Remove deletes the element at slot i, as previously reported through
// setIndex. Panics on an out-of-range slot: the caller's bookkeeping is broken.
func (h *Heap[T]) Remove(i int) T {
	if i < 0 || i >= len(h.items) {
		panic("idxheap.Remove: index out of range")
	}
	return heap.Remove(adapter[T]{h}, i).(T)
}

// Fix restores ordering after the key of the element at slot i changed.
func (h *Heap[T]) Fix(i int) {
	if i < 0 || i >= len(h.items) {
		panic("idxheap.Fix: index out of range")
	}
	heap.Fix(adapter[T]{h}, i)
}

// At returns the element at slot i.
func (h *Heap[T]) At(i int) T { return h.items[i] }
