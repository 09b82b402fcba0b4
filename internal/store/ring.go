package store

// Ring is a fixed-capacity sequence with index wraparound. Once full,
// each Add overwrites the oldest element.
type Ring[T any] struct {
	values []T
	size   int
	idx    int
	filled bool
}

// NewRing creates a ring holding at most size elements.
func NewRing[T any](size int) *Ring[T] {
	return &Ring[T]{values: make([]T, size), size: size}
}

// Add appends a value, evicting the oldest when the ring is full.
func (r *Ring[T]) Add(v T) {
	if r.size == 0 {
		return
	}
	r.values[r.idx] = v
	r.idx = (r.idx + 1) % r.size
	if r.idx == 0 {
		r.filled = true
	}
}

// Values returns the retained elements oldest first.
func (r *Ring[T]) Values() []T {
	if !r.filled {
		return append([]T{}, r.values[:r.idx]...)
	}
	out := make([]T, 0, r.size)
	out = append(out, r.values[r.idx:]...)
	out = append(out, r.values[:r.idx]...)
	return out
}

// Len reports how many elements the ring currently holds.
func (r *Ring[T]) Len() int {
	if r.filled {
		return r.size
	}
	return r.idx
}
