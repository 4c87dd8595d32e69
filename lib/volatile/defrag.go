package volatile

import (
	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// defragWindowStep bounds how many index windows one ScanDefrag call
// rebuilds, so a large set is compacted across several cooperative steps.
const defragWindowStep = 16

// DefragCursor records the progress of a resumable defragmentation walk.
// The zero value starts a new walk; a cursor must not be reused after the
// set has been reinitialized.
type DefragCursor struct {
	inIndex   bool
	windowKey uint64
}

// ScanDefrag compacts the set's structural allocations by rebuilding them
// into fresh, right-sized memory. Go maps and btree nodes never shrink in
// place, so after heavy churn a rebuild is the only way to return their
// slack.
//
// Non-index roots are compacted in a single call. An ordered-index root is
// walked incrementally: the first call rebuilds the index tree itself, then
// each call rebuilds up to defragWindowStep window buckets, returning a
// cursor for the next call. done reports that the walk has finished;
// onRelocate, if non-nil, receives the size of every allocation that was
// rebuilt.
//
// Mutations between the calls of one walk are tolerated: the cursor
// resumes at the next window key still present, so a window created or
// removed in the meantime may be skipped by this walk, never corrupted. A
// cursor must not outlive an Init.
func (s *Set[E]) ScanDefrag(cur DefragCursor, onRelocate func(bytes int)) (next DefragCursor, done bool) {
	report := func(bytes int) {
		if onRelocate != nil {
			onRelocate(bytes)
		}
	}

	switch root := s.root.(type) {
	case nil, single[E]:
		return DefragCursor{}, true
	case *vector[E]:
		rebuildVector(root)
		report(root.memUsage())
		return DefragCursor{}, true
	case *identset.Set[E]:
		s.root = root.Rebuild()
		report(root.MemUsage())
		return DefragCursor{}, true
	case *omap.Map[bucket[E]]:
		return s.defragIndex(root, cur, report)
	default:
		panic(unknownBucket[E](s.root))
	}
}

func (s *Set[E]) defragIndex(idx *omap.Map[bucket[E]], cur DefragCursor, report func(int)) (DefragCursor, bool) {
	if !cur.inIndex {
		idx = idx.Rebuild()
		s.root = idx
		report(idx.MemUsage())
		cur = DefragCursor{inIndex: true}
	}

	for step := 0; step < defragWindowStep; step++ {
		var (
			k  uint64
			wb bucket[E]
			ok bool
		)
		if cur.windowKey == 0 {
			k, wb, ok = idx.Min()
		} else {
			k, wb, ok = idx.SeekGreater(cur.windowKey)
		}
		if !ok {
			return DefragCursor{}, true
		}

		switch w := wb.(type) {
		case single[E]:
			// nothing allocated beyond the index slot
		case *vector[E]:
			rebuildVector(w)
			report(w.memUsage())
		case *identset.Set[E]:
			idx.Set(k, w.Rebuild())
			report(w.MemUsage())
		default:
			panic(unknownBucket[E](wb))
		}
		cur.windowKey = k
	}
	return cur, false
}

// rebuildVector moves the backing slice into a fresh allocation of the same
// size class.
func rebuildVector[E comparable](v *vector[E]) {
	next := make([]E, len(v.entries), cap(v.entries))
	copy(next, v.entries)
	v.entries = next
}
