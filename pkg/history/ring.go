// Package history provides a fixed-capacity, insertion-ordered buffer of
// observations used by the analyzers' sliding windows.
package history

// Ring is a bounded FIFO history. Pushing into a full ring evicts the oldest
// item. Capacity is fixed at construction.
type Ring[T any] struct {
	items []T
	head  int // index of the oldest item
	size  int
}

// New creates a ring holding at most capacity items.
// A non-positive capacity is treated as 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// ForWindow sizes a ring for a time window of seconds at the given sample rate.
func ForWindow[T any](seconds, sampleRate int) *Ring[T] {
	return New[T](seconds * sampleRate)
}

// Push appends item, evicting the oldest one when full.
func (r *Ring[T]) Push(item T) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.head+r.size)%capacity] = item
		r.size++
		return
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % capacity
}

// Recent returns the last n items in temporal order (oldest first).
// It returns fewer items when the history is shorter, and nil when n <= 0.
func (r *Ring[T]) Recent(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.items[(r.head+start+i)%len(r.items)]
	}
	return out
}

// All returns every item in temporal order.
func (r *Ring[T]) All() []T {
	return r.Recent(r.size)
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Clear drops all items. Capacity is unchanged.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
