package volatile

import (
	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// NoExpiry is the sentinel expiration value meaning "absent": entries with
// this value are never tracked, and Update treats it as "the entry had (or
// will have) no expiration".
const NoExpiry int64 = -1

// ExpiryFunc reads the expiration timestamp of an entry, in milliseconds
// since the epoch. The set never stores expiries itself; it re-reads them
// through this accessor whenever it needs to compare or route entries.
type ExpiryFunc[E comparable] func(E) int64

// Set tracks which entries of a larger container currently carry an
// expiration time. Entries are externally owned references; the set stores
// and compares them by identity only and adapts its internal representation
// to the number and spread of tracked expiries (see the package
// documentation for the encoding lifecycle).
//
// Thread-safety: a Set is not thread-safe. The embedding engine must
// serialize all access, including iteration and defragmentation.
type Set[E comparable] struct {
	root     bucket[E]
	expiryOf ExpiryFunc[E]
}

// New creates an empty set that reads entry expiries through expiryOf.
func New[E comparable](expiryOf ExpiryFunc[E]) *Set[E] {
	if expiryOf == nil {
		panic("volatile: nil expiry accessor")
	}
	return &Set[E]{expiryOf: expiryOf}
}

// Init resets the set to the empty state, dropping all structural
// allocations. Entries themselves are untouched.
func (s *Set[E]) Init() {
	s.root = nil
}

// IsEmpty reports whether the set tracks no entries.
func (s *Set[E]) IsEmpty() bool {
	return s.root == nil
}

// Len returns the number of tracked entries. Cost is proportional to the
// number of windows, not entries.
func (s *Set[E]) Len() int {
	return bucketLen[E](s.root)
}

// MemUsage returns the bytes held by the set's structural allocations
// (vectors, auxiliary sets, index nodes). The entries themselves are owned
// by the caller and never counted.
func (s *Set[E]) MemUsage() int {
	return bucketMemUsage[E](s.root)
}

// --------------------------------------------------------------------------
// Add
// --------------------------------------------------------------------------

// Add starts tracking e. The entry must carry a valid expiration time; the
// caller is responsible for not adding the same entry twice.
func (s *Set[E]) Add(e E) {
	exp := s.expiryOf(e)
	if exp < 0 {
		panic("volatile: added entry has no expiration time")
	}
	s.addWithExpiry(e, exp)
}

func (s *Set[E]) addWithExpiry(e E, exp int64) {
	switch cur := s.root.(type) {
	case nil:
		s.root = single[E]{e}
	case single[E]:
		s.root = newPair(s.expiryOf, cur.entry, e)
	case *vector[E]:
		if cur.len() < maxVectorEntries {
			cur.insertSorted(s.expiryOf, e, exp)
			return
		}
		idx := s.promoteVector(cur)
		s.indexAdd(idx, e, exp)
		s.root = idx
	case *identset.Set[E]:
		cur.Add(e)
	case *omap.Map[bucket[E]]:
		s.indexAdd(cur, e, exp)
	default:
		panic(unknownBucket[E](s.root))
	}
}

// promoteVector turns a full root vector into an ordered index. If every
// element shares one coarse window the vector is wrapped whole under that
// window's end; otherwise each element is re-filed individually.
func (s *Set[E]) promoteVector(v *vector[E]) *omap.Map[bucket[E]] {
	idx := omap.New[bucket[E]]()

	coarse := coarseBucketTs(s.expiryOf(v.entries[0]))
	sameCoarse := true
	for _, e := range v.entries[1:] {
		if coarseBucketTs(s.expiryOf(e)) != coarse {
			sameCoarse = false
			break
		}
	}

	if sameCoarse {
		idx.Set(uint64(coarse), v)
		return idx
	}
	for _, e := range v.entries {
		s.indexAdd(idx, e, s.expiryOf(e))
	}
	return idx
}

// indexAdd files e under the owning window of an ordered index: the
// smallest existing key greater than the expiry, provided that window still
// lies within the entry's coarse window. If no such window exists a fresh
// fine-grained window is created.
func (s *Set[E]) indexAdd(idx *omap.Map[bucket[E]], e E, exp int64) {
	for {
		k, wb, ok := idx.SeekGreater(uint64(exp))
		if !ok || int64(k) > coarseBucketTs(exp) {
			idx.Set(uint64(fineBucketTs(exp)), single[E]{e})
			return
		}
		nb, retry := s.windowAdd(idx, k, wb, e, exp)
		if !retry {
			idx.Set(k, nb)
			return
		}
		// A split rearranged the windows; route the entry again.
	}
}

// windowAdd inserts e into the bucket of window k. A full vector bucket is
// first split into two windows (retry=true, both halves already stored);
// if no split point exists it degrades to an auxiliary set.
func (s *Set[E]) windowAdd(idx *omap.Map[bucket[E]], k uint64, wb bucket[E], e E, exp int64) (nb bucket[E], retry bool) {
	switch cur := wb.(type) {
	case single[E]:
		return newPair(s.expiryOf, cur.entry, e), false
	case *vector[E]:
		if cur.len() < maxVectorEntries {
			cur.insertSorted(s.expiryOf, e, exp)
			return cur, false
		}
		if s.splitWindow(idx, k, cur) {
			return nil, true
		}
		return newAuxFromVector(cur, e), false
	case *identset.Set[E]:
		cur.Add(e)
		return cur, false
	default:
		panic(unknownBucket[E](wb))
	}
}

// splitWindow divides a full vector bucket across two windows. The right
// segment keeps the original key; the left segment is re-keyed at the fine
// window end of its largest expiry, which is strictly below the original
// key. Returns false when all elements share one fine window and no split
// is possible.
func (s *Set[E]) splitWindow(idx *omap.Map[bucket[E]], k uint64, v *vector[E]) bool {
	v.sortByExpiry(s.expiryOf)
	at := splitPoint(s.expiryOf, v)
	if at == 0 {
		return false
	}

	right := v.splitAt(at)
	leftKey := fineBucketTs(s.expiryOf(v.entries[v.len()-1]))
	if uint64(leftKey) >= k {
		panic("volatile: split produced a non-shrinking window key")
	}

	idx.Set(uint64(leftKey), collapseVector(v))
	idx.Set(k, collapseVector(right))
	return true
}

// collapseVector reduces a one-element vector to a Single.
func collapseVector[E comparable](v *vector[E]) bucket[E] {
	if v.len() == 1 {
		return single[E]{v.pop()}
	}
	return v
}

// --------------------------------------------------------------------------
// Remove
// --------------------------------------------------------------------------

// Remove stops tracking e, reading its expiry through the accessor. It is
// only safe while the entry still reports the expiry that was in effect
// when it was added; use RemoveWithExpiry when the entry may already have
// been mutated or freed.
func (s *Set[E]) Remove(e E) bool {
	return s.RemoveWithExpiry(e, s.expiryOf(e))
}

// RemoveWithExpiry stops tracking e using a caller-captured expiration
// value. The value must match what was in effect when the entry was added
// or last updated; the set cannot verify it against the (possibly stale)
// entry. Returns false if the entry is not tracked.
func (s *Set[E]) RemoveWithExpiry(e E, expiry int64) bool {
	switch cur := s.root.(type) {
	case nil:
		return false
	case single[E]:
		if cur.entry != e {
			return false
		}
		s.root = nil
		return true
	case *vector[E]:
		i := cur.find(e)
		if i < 0 {
			return false
		}
		cur.removeAt(i)
		s.root = shrinkVectorBucket(cur)
		return true
	case *identset.Set[E]:
		if !cur.Delete(e) {
			return false
		}
		s.root = shrinkAuxBucket(cur)
		return true
	case *omap.Map[bucket[E]]:
		if !s.indexRemove(cur, e, expiry) {
			return false
		}
		s.root = collapseIndex(cur)
		return true
	default:
		panic(unknownBucket[E](s.root))
	}
}

// indexRemove locates the owning window the same way insertion does and
// removes e from its bucket, deleting the window key if the bucket
// empties.
func (s *Set[E]) indexRemove(idx *omap.Map[bucket[E]], e E, expiry int64) bool {
	k, wb, ok := idx.SeekGreater(uint64(expiry))
	if !ok {
		return false
	}
	switch cur := wb.(type) {
	case single[E]:
		if cur.entry != e {
			return false
		}
		idx.Delete(k)
		return true
	case *vector[E]:
		i := cur.find(e)
		if i < 0 {
			return false
		}
		cur.removeAt(i)
		if nb := shrinkVectorBucket(cur); nb == nil {
			idx.Delete(k)
		} else {
			idx.Set(k, nb)
		}
		return true
	case *identset.Set[E]:
		if !cur.Delete(e) {
			return false
		}
		if nb := shrinkAuxBucket(cur); nb == nil {
			idx.Delete(k)
		} else {
			idx.Set(k, nb)
		}
		return true
	default:
		panic(unknownBucket[E](wb))
	}
}

// shrinkVectorBucket collapses a shrinking vector toward Single/Empty.
func shrinkVectorBucket[E comparable](v *vector[E]) bucket[E] {
	switch v.len() {
	case 0:
		return nil
	case 1:
		return single[E]{v.pop()}
	}
	return v
}

// shrinkAuxBucket downgrades an auxiliary set toward Single/Empty.
func shrinkAuxBucket[E comparable](a *identset.Set[E]) bucket[E] {
	switch a.Len() {
	case 0:
		return nil
	case 1:
		e, _ := a.Any()
		return single[E]{e}
	}
	return a
}

// collapseIndex folds an ordered index back into a bare bucket once it has
// at most one window left: an empty index becomes Empty, and a lone window
// holding a Single or non-full vector becomes the root bucket itself.
func collapseIndex[E comparable](idx *omap.Map[bucket[E]]) bucket[E] {
	switch idx.Len() {
	case 0:
		return nil
	case 1:
		_, wb, _ := idx.Min()
		switch w := wb.(type) {
		case single[E]:
			return w
		case *vector[E]:
			if w.len() < maxVectorEntries {
				return w
			}
		}
	}
	return idx
}

// --------------------------------------------------------------------------
// Update
// --------------------------------------------------------------------------

// Update re-files an entry whose expiration changed, or swaps one entry
// reference for another. oldExpiry and newExpiry are the values in effect
// before and after the caller's mutation; NoExpiry marks absence on either
// side. When both expiries fall in the same fine-grained window the entry
// reference is swapped in place, reusing its position; otherwise the
// update degrades to remove-then-add.
func (s *Set[E]) Update(old, new E, oldExpiry, newExpiry int64) bool {
	oldAbsent := oldExpiry < 0
	newAbsent := newExpiry < 0

	switch {
	case oldAbsent && newAbsent:
		return true
	case oldAbsent:
		s.addWithExpiry(new, newExpiry)
		return true
	case newAbsent:
		return s.RemoveWithExpiry(old, oldExpiry)
	}

	if fineBucketTs(oldExpiry) == fineBucketTs(newExpiry) {
		return s.replaceInPlace(s.root, old, new, oldExpiry, true)
	}

	if !s.RemoveWithExpiry(old, oldExpiry) {
		return false
	}
	s.addWithExpiry(new, newExpiry)
	return true
}

// replaceInPlace swaps old for new inside whichever bucket holds it,
// without re-sorting. Vector order may drift by less than one fine window,
// which consumers of the approximate ordering tolerate; exact order is
// restored the next time the bucket is split.
func (s *Set[E]) replaceInPlace(b bucket[E], old, new E, oldExpiry int64, root bool) bool {
	switch cur := b.(type) {
	case nil:
		return false
	case single[E]:
		if cur.entry != old {
			return false
		}
		if root {
			s.root = single[E]{new}
		}
		return true
	case *vector[E]:
		i := cur.find(old)
		if i < 0 {
			return false
		}
		cur.entries[i] = new
		return true
	case *identset.Set[E]:
		if !cur.Delete(old) {
			return false
		}
		cur.Add(new)
		return true
	case *omap.Map[bucket[E]]:
		k, wb, ok := cur.SeekGreater(uint64(oldExpiry))
		if !ok {
			return false
		}
		if sw, isSingle := wb.(single[E]); isSingle {
			if sw.entry != old {
				return false
			}
			cur.Set(k, single[E]{new})
			return true
		}
		return s.replaceInPlace(wb, old, new, oldExpiry, false)
	default:
		panic(unknownBucket[E](b))
	}
}

// --------------------------------------------------------------------------
// Earliest expiry estimate
// --------------------------------------------------------------------------

// EstimatedEarliestExpiry returns an approximation of the smallest tracked
// expiration time, or false if the set is empty. For an ordered-index root
// the estimate is the end of the earliest window, which overshoots the true
// minimum by less than one window width; all other representations report
// the exact minimum.
func (s *Set[E]) EstimatedEarliestExpiry() (int64, bool) {
	switch cur := s.root.(type) {
	case nil:
		return 0, false
	case single[E]:
		return s.expiryOf(cur.entry), true
	case *vector[E]:
		return s.expiryOf(cur.entries[0]), true
	case *identset.Set[E]:
		min := int64(-1)
		cur.Each(func(e E) bool {
			if exp := s.expiryOf(e); min < 0 || exp < min {
				min = exp
			}
			return true
		})
		return min, true
	case *omap.Map[bucket[E]]:
		k, _, ok := cur.Min()
		if !ok {
			panic("volatile: empty ordered index at root")
		}
		return int64(k), true
	default:
		panic(unknownBucket[E](s.root))
	}
}
