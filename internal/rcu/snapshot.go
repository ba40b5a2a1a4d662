package rcu

import (
	"sync/atomic"
)

// Snapshot holds an immutable value behind an atomic pointer.
//
// Readers call Load without locking and always see a complete value.
// Writers build a fresh copy and publish it with Replace; a published value
// must never be mutated afterwards. Used for the admission rule table, which
// is read on every request and replaced on reload.
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

// NewSnapshot publishes init as the first value.
func NewSnapshot[T any](init *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(init)
	return s
}

// Load returns the current value.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Replace publishes next and returns the value it replaced.
func (s *Snapshot[T]) Replace(next *T) *T {
	return s.ptr.Swap(next)
}
