package volatile

import (
	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// Iterator walks every tracked entry in approximately ascending expiration
// order: windows are visited in key order, vector entries in sorted order,
// and auxiliary-set entries in arbitrary order.
//
// The set must not be mutated while an iterator is live; Reset revalidates
// the iterator against the current state.
type Iterator[E comparable] struct {
	set *Set[E]

	// current window, valid only while iterating an index root
	inIndex   bool
	windowKey uint64

	buf    []E
	bufPos int
	done   bool
}

// Iter returns an iterator positioned before the first entry.
func (s *Set[E]) Iter() *Iterator[E] {
	it := &Iterator[E]{set: s}
	it.Reset()
	return it
}

// Reset repositions the iterator before the first entry of the set's
// current state.
func (it *Iterator[E]) Reset() {
	it.inIndex = false
	it.windowKey = 0
	it.buf = it.buf[:0]
	it.bufPos = 0
	it.done = false

	switch cur := it.set.root.(type) {
	case nil:
		it.done = true
	case single[E]:
		it.buf = append(it.buf, cur.entry)
	case *vector[E]:
		it.buf = append(it.buf, cur.entries...)
	case *identset.Set[E]:
		it.buf = cur.Items()
	case *omap.Map[bucket[E]]:
		it.inIndex = true
		k, wb, ok := cur.Min()
		if !ok {
			it.done = true
			return
		}
		it.windowKey = k
		it.fillFromWindow(wb)
	default:
		panic(unknownBucket[E](it.set.root))
	}
}

// Next returns the next entry, or false when the iteration is exhausted.
func (it *Iterator[E]) Next() (E, bool) {
	var zero E
	for {
		if it.done {
			return zero, false
		}
		if it.bufPos < len(it.buf) {
			e := it.buf[it.bufPos]
			it.bufPos++
			return e, true
		}
		if !it.inIndex {
			it.done = true
			return zero, false
		}
		it.advanceWindow()
	}
}

// advanceWindow moves to the window after windowKey, or marks the iterator
// done.
func (it *Iterator[E]) advanceWindow() {
	idx, ok := it.set.root.(*omap.Map[bucket[E]])
	if !ok {
		it.done = true
		return
	}
	k, wb, ok := idx.SeekGreater(it.windowKey)
	if !ok {
		it.done = true
		return
	}
	it.windowKey = k
	it.fillFromWindow(wb)
}

func (it *Iterator[E]) fillFromWindow(wb bucket[E]) {
	it.buf = it.buf[:0]
	it.bufPos = 0
	switch cur := wb.(type) {
	case single[E]:
		it.buf = append(it.buf, cur.entry)
	case *vector[E]:
		it.buf = append(it.buf, cur.entries...)
	case *identset.Set[E]:
		it.buf = cur.Items()
	default:
		panic(unknownBucket[E](wb))
	}
}
