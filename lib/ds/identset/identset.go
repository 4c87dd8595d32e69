// Package identset provides a generic unordered set keyed by identity.
//
// The set is designed as a building block for index structures that track
// references to externally owned records: elements are compared with Go's
// built-in comparability (pointer identity for pointer types), never by
// content. It supports constant-time add/delete/contains, snapshot iteration
// and a rebuild operation that copies all elements into a freshly allocated
// table (Go maps never shrink their bucket arrays, so rebuilding after heavy
// deletion is the only way to return that memory).
//
// Thread-safety: this type is not thread-safe. Callers must provide external
// synchronization when the set is shared between goroutines.
package identset

import "unsafe"

// Rough per-element bookkeeping cost of a Go map bucket slot. Used only for
// the MemUsage estimate.
const (
	mapHeaderBytes = 48
	slotExtraBytes = 16
)

// Set is an unordered hash set of comparable elements.
type Set[E comparable] struct {
	items map[E]struct{}
}

// New creates an empty set with capacity for at least sizeHint elements.
func New[E comparable](sizeHint int) *Set[E] {
	return &Set[E]{items: make(map[E]struct{}, sizeHint)}
}

// Add inserts e into the set.
// Returns false if e was already present.
func (s *Set[E]) Add(e E) bool {
	if _, ok := s.items[e]; ok {
		return false
	}
	s.items[e] = struct{}{}
	return true
}

// Delete removes e from the set.
// Returns false if e was not present.
func (s *Set[E]) Delete(e E) bool {
	if _, ok := s.items[e]; !ok {
		return false
	}
	delete(s.items, e)
	return true
}

// Contains reports whether e is in the set.
func (s *Set[E]) Contains(e E) bool {
	_, ok := s.items[e]
	return ok
}

// Len returns the number of elements in the set.
func (s *Set[E]) Len() int {
	return len(s.items)
}

// Each calls fn for every element until fn returns false.
// The set must not be mutated during the walk; use Items for a snapshot
// when the caller intends to delete while iterating.
func (s *Set[E]) Each(fn func(E) bool) {
	for e := range s.items {
		if !fn(e) {
			return
		}
	}
}

// Items returns all elements as a freshly allocated slice, in no
// particular order.
func (s *Set[E]) Items() []E {
	out := make([]E, 0, len(s.items))
	for e := range s.items {
		out = append(out, e)
	}
	return out
}

// Any returns an arbitrary element of the set.
func (s *Set[E]) Any() (E, bool) {
	for e := range s.items {
		return e, true
	}
	var zero E
	return zero, false
}

// Rebuild copies all elements into a new set backed by a freshly allocated
// table sized for the current element count. The receiver is left untouched.
func (s *Set[E]) Rebuild() *Set[E] {
	n := New[E](len(s.items))
	for e := range s.items {
		n.items[e] = struct{}{}
	}
	return n
}

// MemUsage returns an estimate of the bytes held by the set's own table,
// excluding whatever the elements themselves reference.
func (s *Set[E]) MemUsage() int {
	var e E
	return mapHeaderBytes + len(s.items)*(int(unsafe.Sizeof(e))+slotExtraBytes)
}
