package volatile

import (
	"sort"
	"unsafe"
)

// maxVectorEntries is the hard cap on a vector bucket's size. A vector that
// would grow past this is promoted to an ordered index, split into two
// windows, or converted to an auxiliary set.
const maxVectorEntries = 127

const sliceHeaderBytes = 24

// vector is a growable array of entry references kept sorted ascending by
// expiration time. The backing slice is always re-shrunk to the smallest
// power-of-two size class that holds the current elements, so the
// structure's memory footprint can be recomputed from the capacity alone.
type vector[E comparable] struct {
	entries []E
}

// sizeClassFor returns the allocation class for n elements: the smallest
// power of two >= n.
func sizeClassFor(n int) int {
	c := 1
	for c < n {
		c <<= 1
	}
	return c
}

func newVector[E comparable](capacity int) *vector[E] {
	return &vector[E]{entries: make([]E, 0, sizeClassFor(capacity))}
}

func (v *vector[E]) len() int {
	return len(v.entries)
}

// grow reallocates if one more element would exceed the current class.
func (v *vector[E]) grow() {
	if len(v.entries) < cap(v.entries) {
		return
	}
	next := make([]E, len(v.entries), sizeClassFor(len(v.entries)+1))
	copy(next, v.entries)
	v.entries = next
}

// shrink reallocates if the current elements fit a smaller class.
func (v *vector[E]) shrink() {
	if c := sizeClassFor(len(v.entries)); c < cap(v.entries) {
		next := make([]E, len(v.entries), c)
		copy(next, v.entries)
		v.entries = next
	}
}

// insertAt inserts e at index i, shifting the tail right.
func (v *vector[E]) insertAt(i int, e E) {
	v.grow()
	var zero E
	v.entries = append(v.entries, zero)
	copy(v.entries[i+1:], v.entries[i:])
	v.entries[i] = e
}

// removeAt removes the element at index i, shifting the tail left, and
// re-shrinks the allocation.
func (v *vector[E]) removeAt(i int) {
	copy(v.entries[i:], v.entries[i+1:])
	var zero E
	v.entries[len(v.entries)-1] = zero
	v.entries = v.entries[:len(v.entries)-1]
	v.shrink()
}

// push appends e, growing the allocation class as needed.
func (v *vector[E]) push(e E) {
	v.grow()
	v.entries = append(v.entries, e)
}

// pop removes and returns the last element and re-shrinks. The vector must
// not be empty.
func (v *vector[E]) pop() E {
	last := len(v.entries) - 1
	e := v.entries[last]
	var zero E
	v.entries[last] = zero
	v.entries = v.entries[:last]
	v.shrink()
	return e
}

// find returns the index of e by identity, or -1. Linear scan.
func (v *vector[E]) find(e E) int {
	for i := range v.entries {
		if v.entries[i] == e {
			return i
		}
	}
	return -1
}

// insertSorted places e at the first index whose expiry is >= the new
// entry's, found by binary search.
func (v *vector[E]) insertSorted(expiryOf ExpiryFunc[E], e E, exp int64) {
	i := sort.Search(len(v.entries), func(i int) bool {
		return expiryOf(v.entries[i]) >= exp
	})
	v.insertAt(i, e)
}

// splitAt moves the elements from index i onward into a new vector and
// re-shrinks the receiver. Cost is proportional to the right half only; the
// left half is never rescanned.
func (v *vector[E]) splitAt(i int) *vector[E] {
	right := newVector[E](len(v.entries) - i)
	right.entries = right.entries[:len(v.entries)-i]
	copy(right.entries, v.entries[i:])

	var zero E
	for j := i; j < len(v.entries); j++ {
		v.entries[j] = zero
	}
	v.entries = v.entries[:i]
	v.shrink()
	return right
}

// dropFront removes the first n elements in one move and re-shrinks.
func (v *vector[E]) dropFront(n int) {
	copy(v.entries, v.entries[n:])
	var zero E
	for j := len(v.entries) - n; j < len(v.entries); j++ {
		v.entries[j] = zero
	}
	v.entries = v.entries[:len(v.entries)-n]
	v.shrink()
}

// sortByExpiry restores exact ascending expiry order. Only split needs
// this; in-place updates within one fine window are allowed to leave the
// order approximate.
func (v *vector[E]) sortByExpiry(expiryOf ExpiryFunc[E]) {
	sort.SliceStable(v.entries, func(i, j int) bool {
		return expiryOf(v.entries[i]) < expiryOf(v.entries[j])
	})
}

// memUsage returns the bytes held by the backing allocation.
func (v *vector[E]) memUsage() int {
	var e E
	return sliceHeaderBytes + cap(v.entries)*int(unsafe.Sizeof(e))
}
