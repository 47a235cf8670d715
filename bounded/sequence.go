package bounded

import "github.com/wippyai/wasm-runtime/errors"

// Sequence is a fixed-capacity, stable-insertion-order container. Go has
// no const generics, so the compile-time capacity N becomes a constructor
// argument fixed for the lifetime of the value — nothing in this package
// ever grows a Sequence past the capacity it was built with (see
// DESIGN.md for why this is the idiomatic Go rendering of "capacity N"
// rather than a type parameter).
type Sequence[T any] struct {
	provider Provider
	items    []T
	cap      int
}

// NewSequence creates a Sequence with capacity n backed by provider.
func NewSequence[T any](provider Provider, n int) *Sequence[T] {
	return &Sequence[T]{provider: provider, cap: n, items: make([]T, 0, n)}
}

// Len returns the current number of elements.
func (s *Sequence[T]) Len() int { return len(s.items) }

// Cap returns the fixed capacity.
func (s *Sequence[T]) Cap() int { return s.cap }

// Push appends v. Fails with CapacityExceeded, leaving length unchanged,
// when the sequence is already at capacity.
func (s *Sequence[T]) Push(v T) error {
	if len(s.items) >= s.cap {
		return errors.CapacityExceeded(errors.PhaseRuntime, nil, s.cap)
	}
	s.items = append(s.items, v)
	return nil
}

// Pop removes and returns the last element. Total: returns false on an
// empty sequence rather than erroring, since every other mutation here is
// total too.
func (s *Sequence[T]) Pop() (T, bool) {
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, true
}

// Get returns the element at idx.
func (s *Sequence[T]) Get(idx int) (T, bool) {
	var zero T
	if idx < 0 || idx >= len(s.items) {
		return zero, false
	}
	return s.items[idx], true
}

// GetMut returns a pointer to the element at idx for in-place mutation.
func (s *Sequence[T]) GetMut(idx int) (*T, bool) {
	if idx < 0 || idx >= len(s.items) {
		return nil, false
	}
	return &s.items[idx], true
}

// Iter calls fn for each element in insertion order, stopping early if fn
// returns false.
func (s *Sequence[T]) Iter(fn func(int, T) bool) {
	for i, v := range s.items {
		if !fn(i, v) {
			return
		}
	}
}

// Clear removes all elements without releasing the underlying capacity.
func (s *Sequence[T]) Clear() {
	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.items = s.items[:0]
}

// Retain keeps only elements for which keep returns true, preserving
// relative order.
func (s *Sequence[T]) Retain(keep func(T) bool) {
	n := 0
	for _, v := range s.items {
		if keep(v) {
			s.items[n] = v
			n++
		}
	}
	var zero T
	for i := n; i < len(s.items); i++ {
		s.items[i] = zero
	}
	s.items = s.items[:n]
}
