package volatile

import (
	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// RemoveExpired removes up to maxCount entries whose expiration time is at
// or before now, invoking onExpired for each before it is dropped from the
// set. It returns the number of entries removed.
//
// Windows that end at or before now hold only expired entries and are
// drained wholesale without reading per-entry expiries. The first window
// ending after now may mix expired and live entries and is filtered
// entry by entry; no later window can hold an expired entry, so the scan
// stops there.
//
// The callback must not mutate the set.
func (s *Set[E]) RemoveExpired(now int64, maxCount int, onExpired func(E)) int {
	if maxCount <= 0 || s.root == nil {
		return 0
	}

	switch cur := s.root.(type) {
	case single[E]:
		if s.expiryOf(cur.entry) > now {
			return 0
		}
		if onExpired != nil {
			onExpired(cur.entry)
		}
		s.root = nil
		return 1
	case *vector[E]:
		n := s.expireVectorPrefix(cur, now, maxCount, onExpired)
		s.root = shrinkVectorBucket(cur)
		return n
	case *identset.Set[E]:
		n := s.expireFromAux(cur, now, maxCount, onExpired)
		s.root = shrinkAuxBucket(cur)
		return n
	case *omap.Map[bucket[E]]:
		n := s.expireFromIndex(cur, now, maxCount, onExpired)
		s.root = collapseIndex(cur)
		return n
	default:
		panic(unknownBucket[E](s.root))
	}
}

// expireVectorPrefix drops the leading run of expired entries. Vectors are
// sorted ascending by expiry, so the expired entries form a prefix and are
// removed in a single shift.
func (s *Set[E]) expireVectorPrefix(v *vector[E], now int64, maxCount int, onExpired func(E)) int {
	n := 0
	for n < v.len() && n < maxCount && s.expiryOf(v.entries[n]) <= now {
		n++
	}
	if n == 0 {
		return 0
	}
	if onExpired != nil {
		for _, e := range v.entries[:n] {
			onExpired(e)
		}
	}
	v.dropFront(n)
	return n
}

// expireFromAux scans an auxiliary set for expired entries. The set is
// unordered, so every member's expiry is read.
func (s *Set[E]) expireFromAux(a *identset.Set[E], now int64, maxCount int, onExpired func(E)) int {
	expired := make([]E, 0, min(maxCount, a.Len()))
	a.Each(func(e E) bool {
		if s.expiryOf(e) <= now {
			expired = append(expired, e)
		}
		return len(expired) < maxCount
	})
	for _, e := range expired {
		if onExpired != nil {
			onExpired(e)
		}
		a.Delete(e)
	}
	return len(expired)
}

// expireFromIndex walks windows in ascending key order, draining each fully
// expired window and filtering the single boundary window that straddles
// now.
func (s *Set[E]) expireFromIndex(idx *omap.Map[bucket[E]], now int64, maxCount int, onExpired func(E)) int {
	total := 0
	for total < maxCount {
		k, wb, ok := idx.Min()
		if !ok {
			break
		}

		boundary := int64(k) > now
		n, drained := s.expireWindow(wb, now, boundary, maxCount-total, onExpired)
		total += n

		if drained {
			idx.Delete(k)
		} else if n > 0 {
			idx.Set(k, reshrinkWindow[E](wb))
		}
		if boundary || !drained {
			break
		}
	}
	return total
}

// expireWindow removes expired entries from one window bucket. For a fully
// expired window every entry is dropped without reading its expiry; for the
// boundary window entries are filtered individually. drained reports that
// the bucket is now empty.
func (s *Set[E]) expireWindow(wb bucket[E], now int64, boundary bool, budget int, onExpired func(E)) (n int, drained bool) {
	switch cur := wb.(type) {
	case single[E]:
		if boundary && s.expiryOf(cur.entry) > now {
			return 0, false
		}
		if onExpired != nil {
			onExpired(cur.entry)
		}
		return 1, true
	case *vector[E]:
		if boundary {
			n = s.expireVectorPrefix(cur, now, budget, onExpired)
			return n, cur.len() == 0
		}
		n = cur.len()
		if n > budget {
			n = budget
		}
		if onExpired != nil {
			for _, e := range cur.entries[:n] {
				onExpired(e)
			}
		}
		cur.dropFront(n)
		return n, cur.len() == 0
	case *identset.Set[E]:
		if boundary {
			n = s.expireFromAux(cur, now, budget, onExpired)
			return n, cur.Len() == 0
		}
		victims := make([]E, 0, min(budget, cur.Len()))
		cur.Each(func(e E) bool {
			victims = append(victims, e)
			return len(victims) < budget
		})
		for _, e := range victims {
			if onExpired != nil {
				onExpired(e)
			}
			cur.Delete(e)
		}
		return len(victims), cur.Len() == 0
	default:
		panic(unknownBucket[E](wb))
	}
}

// reshrinkWindow collapses a partially drained window bucket toward Single.
func reshrinkWindow[E comparable](wb bucket[E]) bucket[E] {
	switch cur := wb.(type) {
	case *vector[E]:
		return shrinkVectorBucket(cur)
	case *identset.Set[E]:
		return shrinkAuxBucket(cur)
	}
	return wb
}
