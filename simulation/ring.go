package simulation

import "sync"

// Ring is a thread-safe, fixed-size buffer that overwrites its oldest entry
// when full. Iteration order is oldest to newest.
type Ring[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int // next write position
	tail     int // oldest element
}

// NewRing creates a Ring holding at most capacity elements.
// Panics if capacity is less than 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("Ring capacity must be at least 1")
	}
	return &Ring[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an element, overwriting the oldest one when the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[r.head] = item
	r.head = (r.head + 1) % r.capacity

	if r.size < r.capacity {
		r.size++
	} else {
		r.tail = (r.tail + 1) % r.capacity
	}
}

// All returns a copy of every element, oldest first.
func (r *Ring[T]) All() []T {
	return r.Last(r.Capacity())
}

// Last returns up to n of the most recent elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.size == 0 {
		return []T{}
	}
	if n > r.size {
		n = r.size
	}

	result := make([]T, n)
	start := r.size - n
	for i := 0; i < n; i++ {
		result[i] = r.data[(r.tail+start+i)%r.capacity]
	}
	return result
}

// Newest returns the most recent element and whether one exists.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.data[(r.head-1+r.capacity)%r.capacity], true
}

// Size returns the current number of elements.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of elements.
func (r *Ring[T]) Capacity() int {
	return r.capacity // immutable
}

// Clear removes all elements.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.size = 0
	r.head = 0
	r.tail = 0
}
