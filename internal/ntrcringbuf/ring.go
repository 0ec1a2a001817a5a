// Package ntrcringbuf provides a fixed-capacity buffer of recent values.
package ntrcringbuf

import "sync"

// Ring keeps the most recent values added to it, up to a fixed capacity,
// overwriting the oldest value when full. It's safe for concurrent use.
type Ring[T any] struct {
	mtx  sync.Mutex
	buf  []T // allocated at construction
	next int // index of the next write
	size int // number of values stored
}

// New returns an empty ring with the given capacity. A capacity less than 1 is
// treated as 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Add val to the ring. If the ring was full, the oldest value is overwritten,
// and returned along with true.
func (r *Ring[T]) Add(val T) (evicted T, ok bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.size == len(r.buf) {
		evicted, ok = r.buf[r.next], true
	} else {
		r.size++
	}

	r.buf[r.next] = val
	r.next = (r.next + 1) % len(r.buf)

	return evicted, ok
}

// Recent returns up to n values, newest first. If n is less than 1, every
// value is returned.
func (r *Ring[T]) Recent(n int) []T {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if n < 1 || n > r.size {
		n = r.size
	}

	values := make([]T, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		values = append(values, r.buf[idx])
	}
	return values
}

// Len returns the number of values in the ring.
func (r *Ring[T]) Len() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	return r.size
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}
