package volatile

import (
	"fmt"

	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// bucket is the sum type over the set's five representations:
//
//	nil                      - Empty
//	single[E]                - exactly one entry, stored inline
//	*vector[E]               - up to 127 entries, sorted by expiry
//	*identset.Set[E]         - unordered fallback for entries that cannot
//	                           be split into narrower windows
//	*omap.Map[bucket[E]]     - ordered index of window-end keys, each
//	                           holding one of the three variants above
//	                           (never a nested index)
//
// Every mutating operation takes a bucket and returns the (possibly
// different) bucket the caller must store back.
type bucket[E comparable] interface{}

// single holds exactly one entry reference.
type single[E comparable] struct {
	entry E
}

func unknownBucket[E comparable](b bucket[E]) string {
	return fmt.Sprintf("volatile: unknown bucket type %T", b)
}

// newPair builds the two-entry vector for a Single -> Vector promotion.
// The pair is placed in sorted order directly, without the general sort
// routine.
func newPair[E comparable](expiryOf ExpiryFunc[E], a, b E) *vector[E] {
	v := newVector[E](2)
	if expiryOf(a) <= expiryOf(b) {
		v.push(a)
		v.push(b)
	} else {
		v.push(b)
		v.push(a)
	}
	return v
}

// newAuxFromVector converts a full vector plus one extra entry into an
// auxiliary set.
func newAuxFromVector[E comparable](v *vector[E], extra E) *identset.Set[E] {
	aux := identset.New[E](v.len() + 1)
	for _, e := range v.entries {
		aux.Add(e)
	}
	aux.Add(extra)
	return aux
}

// splitPoint searches outward from the vector's midpoint, alternating left
// and right, for the first adjacent pair whose fine-grained windows differ.
// It returns the index where the right segment would begin, or 0 if every
// element maps to the same fine window. The vector must be sorted and hold
// at least two elements.
func splitPoint[E comparable](expiryOf ExpiryFunc[E], v *vector[E]) int {
	n := v.len()
	if n < 2 {
		panic("volatile: split on bucket with fewer than two entries")
	}

	differs := func(i int) bool {
		return fineBucketTs(expiryOf(v.entries[i-1])) != fineBucketTs(expiryOf(v.entries[i]))
	}

	mid := n / 2
	for off := 0; ; off++ {
		lo, hi := mid-off, mid+off
		if lo < 1 && hi >= n {
			return 0
		}
		if lo >= 1 && differs(lo) {
			return lo
		}
		if off > 0 && hi < n && differs(hi) {
			return hi
		}
	}
}

// bucketLen counts the entries in a bucket, descending into index windows.
func bucketLen[E comparable](b bucket[E]) int {
	switch cur := b.(type) {
	case nil:
		return 0
	case single[E]:
		return 1
	case *vector[E]:
		return cur.len()
	case *identset.Set[E]:
		return cur.Len()
	case *omap.Map[bucket[E]]:
		n := 0
		cur.Ascend(func(_ uint64, wb bucket[E]) bool {
			n += bucketLen[E](wb)
			return true
		})
		return n
	default:
		panic(unknownBucket[E](b))
	}
}

// bucketMemUsage sums the structural allocations of a bucket. Entries
// themselves are never counted; a Single costs nothing beyond the root
// slot.
func bucketMemUsage[E comparable](b bucket[E]) int {
	switch cur := b.(type) {
	case nil, single[E]:
		return 0
	case *vector[E]:
		return cur.memUsage()
	case *identset.Set[E]:
		return cur.MemUsage()
	case *omap.Map[bucket[E]]:
		total := cur.MemUsage()
		cur.Ascend(func(_ uint64, wb bucket[E]) bool {
			total += bucketMemUsage[E](wb)
			return true
		})
		return total
	default:
		panic(unknownBucket[E](b))
	}
}
