package volatile

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/hfxdb/hfx/lib/ds/identset"
	"github.com/hfxdb/hfx/lib/ds/omap"
)

// testEntry stands in for an externally owned entry. The set stores the
// pointer only; expiries are read through the accessor.
type testEntry struct {
	id       int
	expireAt int64
}

func newTestSet() *Set[*testEntry] {
	return New(func(e *testEntry) int64 { return e.expireAt })
}

// collect drains an iterator into a slice.
func collect(s *Set[*testEntry]) []*testEntry {
	var out []*testEntry
	it := s.Iter()
	for {
		e, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// checkInvariants validates the structural invariants of the current
// representation: window keys strictly bound their entries' expiries, every
// owning key is the smallest key greater than the entry's expiry, index
// windows never nest, and Len agrees with a full walk.
func checkInvariants(t *testing.T, s *Set[*testEntry]) {
	t.Helper()

	idx, ok := s.root.(*omap.Map[bucket[*testEntry]])
	if !ok {
		return
	}

	var keys []uint64
	idx.Ascend(func(k uint64, wb bucket[*testEntry]) bool {
		keys = append(keys, k)
		if _, nested := wb.(*omap.Map[bucket[*testEntry]]); nested {
			t.Fatalf("window %d holds a nested ordered index", k)
		}
		if wb == nil {
			t.Fatalf("window %d holds an empty bucket", k)
		}
		return true
	})
	if len(keys) == 0 {
		t.Fatal("ordered index at root has no windows")
	}

	prev := uint64(0)
	i := 0
	idx.Ascend(func(k uint64, wb bucket[*testEntry]) bool {
		eachWindowEntry(t, wb, func(e *testEntry) {
			if uint64(e.expireAt) >= k {
				t.Fatalf("entry %d (expiry %d) filed under window %d, not strictly before it",
					e.id, e.expireAt, k)
			}
			if i > 0 && uint64(e.expireAt) < prev {
				t.Fatalf("entry %d (expiry %d) in window %d belongs in an earlier window (prev key %d)",
					e.id, e.expireAt, k, prev)
			}
		})
		prev = k
		i++
		return true
	})
}

func eachWindowEntry(t *testing.T, wb bucket[*testEntry], fn func(*testEntry)) {
	t.Helper()
	switch cur := wb.(type) {
	case single[*testEntry]:
		fn(cur.entry)
	case *vector[*testEntry]:
		for _, e := range cur.entries {
			fn(e)
		}
	case *identset.Set[*testEntry]:
		cur.Each(func(e *testEntry) bool {
			fn(e)
			return true
		})
	default:
		t.Fatalf("unexpected window bucket type %T", wb)
	}
}

// TestLifecycleTransitions walks the representation through every growth
// and collapse transition and checks that no entry is lost or duplicated.
func TestLifecycleTransitions(t *testing.T) {
	s := newTestSet()
	if !s.IsEmpty() {
		t.Fatal("fresh set is not empty")
	}

	rng := rand.New(rand.NewSource(1))
	entries := make([]*testEntry, 400)
	for i := range entries {
		entries[i] = &testEntry{id: i, expireAt: rng.Int63n(60_000)}
	}

	for i, e := range entries {
		s.Add(e)
		if s.Len() != i+1 {
			t.Fatalf("Len = %d after %d adds", s.Len(), i+1)
		}
	}
	checkInvariants(t, s)

	if _, ok := s.root.(*omap.Map[bucket[*testEntry]]); !ok {
		t.Fatalf("400 spread entries should reach an ordered index, got %T", s.root)
	}

	got := collect(s)
	if len(got) != len(entries) {
		t.Fatalf("iterated %d entries, want %d", len(got), len(entries))
	}
	seen := make(map[*testEntry]bool, len(got))
	for _, e := range got {
		if seen[e] {
			t.Fatalf("entry %d yielded twice", e.id)
		}
		seen[e] = true
	}

	// Remove in random order, all the way back to Empty.
	rng.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
	for i, e := range entries {
		if !s.Remove(e) {
			t.Fatalf("Remove(%d) failed with %d entries left", e.id, s.Len())
		}
		if s.Len() != len(entries)-i-1 {
			t.Fatalf("Len = %d, want %d", s.Len(), len(entries)-i-1)
		}
		if i%37 == 0 {
			checkInvariants(t, s)
		}
	}
	if !s.IsEmpty() || s.root != nil {
		t.Fatal("set did not collapse back to Empty")
	}
}

// TestSmallSetStaysUnindexed verifies the Single and Vector stages.
func TestSmallSetStaysUnindexed(t *testing.T) {
	s := newTestSet()

	a := &testEntry{id: 0, expireAt: 300}
	s.Add(a)
	if _, ok := s.root.(single[*testEntry]); !ok {
		t.Fatalf("one entry should be Single, got %T", s.root)
	}

	b := &testEntry{id: 1, expireAt: 100}
	s.Add(b)
	v, ok := s.root.(*vector[*testEntry])
	if !ok {
		t.Fatalf("two entries should be a vector, got %T", s.root)
	}
	if v.entries[0] != b || v.entries[1] != a {
		t.Fatal("pair vector is not sorted by expiry")
	}

	if !s.Remove(a) {
		t.Fatal("Remove(a) failed")
	}
	if sg, ok := s.root.(single[*testEntry]); !ok || sg.entry != b {
		t.Fatalf("removal should collapse back to Single(b), got %T", s.root)
	}
}

// TestVectorStaysSorted adds 100 scrambled expiries and expects the root
// vector in exact ascending order.
func TestVectorStaysSorted(t *testing.T) {
	s := newTestSet()
	exps := make([]int64, 100)
	rng := rand.New(rand.NewSource(7))
	for i := range exps {
		exps[i] = rng.Int63n(1_000_000)
		s.Add(&testEntry{id: i, expireAt: exps[i]})
	}

	v, ok := s.root.(*vector[*testEntry])
	if !ok {
		t.Fatalf("100 entries should still be a vector, got %T", s.root)
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i] < exps[j] })
	for i, e := range v.entries {
		if e.expireAt != exps[i] {
			t.Fatalf("vector[%d].expireAt = %d, want %d", i, e.expireAt, exps[i])
		}
	}
}

// TestFullVectorSameFineWindowBecomesAuxSet: 127 entries in one 16 ms
// window cannot be split, so the 128th pushes the window into an auxiliary
// set under a single coarse index key.
func TestFullVectorSameFineWindowBecomesAuxSet(t *testing.T) {
	s := newTestSet()
	base := int64(1000) // fine window [992, 1008)
	for i := 0; i < maxVectorEntries; i++ {
		s.Add(&testEntry{id: i, expireAt: base + int64(i%8)})
	}
	if _, ok := s.root.(*vector[*testEntry]); !ok {
		t.Fatalf("127 entries should still be a vector, got %T", s.root)
	}

	s.Add(&testEntry{id: maxVectorEntries, expireAt: base})

	idx, ok := s.root.(*omap.Map[bucket[*testEntry]])
	if !ok {
		t.Fatalf("128th entry should promote to an ordered index, got %T", s.root)
	}
	if idx.Len() != 1 {
		t.Fatalf("index has %d windows, want 1", idx.Len())
	}
	k, wb, _ := idx.Min()
	if int64(k) != coarseBucketTs(base) {
		t.Fatalf("window key = %d, want coarse end %d", k, coarseBucketTs(base))
	}
	aux, ok := wb.(*identset.Set[*testEntry])
	if !ok {
		t.Fatalf("unsplittable window should degrade to auxiliary set, got %T", wb)
	}
	if aux.Len() != maxVectorEntries+1 {
		t.Fatalf("aux set holds %d entries, want %d", aux.Len(), maxVectorEntries+1)
	}
	checkInvariants(t, s)
}

// TestFullVectorSplitsAcrossFineWindows: a full vector spanning two fine
// windows splits into two vector windows instead of degrading.
func TestFullVectorSplitsAcrossFineWindows(t *testing.T) {
	s := newTestSet()
	for i := 0; i < maxVectorEntries; i++ {
		exp := int64(1000)
		if i >= 64 {
			exp = 2000 // different fine window, same coarse window
		}
		s.Add(&testEntry{id: i, expireAt: exp + int64(i%8)})
	}
	s.Add(&testEntry{id: maxVectorEntries, expireAt: 2004})

	idx, ok := s.root.(*omap.Map[bucket[*testEntry]])
	if !ok {
		t.Fatalf("want ordered index, got %T", s.root)
	}
	if idx.Len() != 2 {
		t.Fatalf("index has %d windows, want 2 after the split", idx.Len())
	}
	idx.Ascend(func(k uint64, wb bucket[*testEntry]) bool {
		if _, isAux := wb.(*identset.Set[*testEntry]); isAux {
			t.Fatalf("window %d degraded to aux set despite a valid split point", k)
		}
		return true
	})
	if s.Len() != maxVectorEntries+1 {
		t.Fatalf("Len = %d, want %d", s.Len(), maxVectorEntries+1)
	}
	checkInvariants(t, s)
}

// TestManyIdenticalExpiries: 200 entries sharing one expiry can never be
// split, so they must all end in a single auxiliary-set window and never
// spread across index keys.
func TestManyIdenticalExpiries(t *testing.T) {
	s := newTestSet()
	for i := 0; i < 200; i++ {
		s.Add(&testEntry{id: i, expireAt: 5000})
	}

	idx, ok := s.root.(*omap.Map[bucket[*testEntry]])
	if !ok {
		t.Fatalf("want ordered index, got %T", s.root)
	}
	if idx.Len() != 1 {
		t.Fatalf("identical expiries spread across %d windows, want 1", idx.Len())
	}
	_, wb, _ := idx.Min()
	if _, ok := wb.(*identset.Set[*testEntry]); !ok {
		t.Fatalf("want auxiliary set, got %T", wb)
	}

	got := collect(s)
	if len(got) != 200 {
		t.Fatalf("iterated %d entries, want 200", len(got))
	}
	seen := make(map[*testEntry]bool)
	for _, e := range got {
		if seen[e] {
			t.Fatalf("entry %d yielded twice", e.id)
		}
		seen[e] = true
	}
}

// TestPromotionCoarseFastPath: a full vector in one 16 ms window plus one
// entry in a different coarse window takes the wrap-whole-vector promotion
// and ends with exactly two windows.
func TestPromotionCoarseFastPath(t *testing.T) {
	s := newTestSet()
	for i := 0; i < maxVectorEntries; i++ {
		s.Add(&testEntry{id: i, expireAt: 1000 + int64(i%8)})
	}
	outlier := &testEntry{id: maxVectorEntries, expireAt: 10_000}
	s.Add(outlier)

	idx, ok := s.root.(*omap.Map[bucket[*testEntry]])
	if !ok {
		t.Fatalf("want ordered index, got %T", s.root)
	}
	if idx.Len() != 2 {
		t.Fatalf("index has %d windows, want 2", idx.Len())
	}

	k, wb, _ := idx.Min()
	if int64(k) != coarseBucketTs(1000) {
		t.Fatalf("first window key = %d, want the coarse end %d", k, coarseBucketTs(1000))
	}
	if v, ok := wb.(*vector[*testEntry]); !ok || v.len() != maxVectorEntries {
		t.Fatalf("first window should hold the whole promoted vector, got %T", wb)
	}

	k2, wb2, ok := idx.SeekGreater(k)
	if !ok || int64(k2) != fineBucketTs(outlier.expireAt) {
		t.Fatalf("second window key = %d/%v, want %d", k2, ok, fineBucketTs(outlier.expireAt))
	}
	if sg, ok := wb2.(single[*testEntry]); !ok || sg.entry != outlier {
		t.Fatalf("second window should be Single(outlier), got %T", wb2)
	}
	if s.Len() != maxVectorEntries+1 {
		t.Fatalf("Len = %d, want %d", s.Len(), maxVectorEntries+1)
	}
	checkInvariants(t, s)
}

// TestIndexCollapsesToBareBucket checks §-style collapse: removals that
// leave one window with a small bucket fold the index away entirely.
func TestIndexCollapsesToBareBucket(t *testing.T) {
	s := newTestSet()
	// entries[0] and entries[1] share one fine window; the rest are spread.
	entries := []*testEntry{
		{id: 0, expireAt: 1000},
		{id: 1, expireAt: 1001},
	}
	for i := 2; i < 200; i++ {
		entries = append(entries, &testEntry{id: i, expireAt: 10_000 + int64(i)*100})
	}
	for _, e := range entries {
		s.Add(e)
	}
	if _, ok := s.root.(*omap.Map[bucket[*testEntry]]); !ok {
		t.Fatalf("want ordered index, got %T", s.root)
	}

	for _, e := range entries[2:] {
		if !s.Remove(e) {
			t.Fatalf("Remove(%d) failed", e.id)
		}
	}
	if _, ok := s.root.(*vector[*testEntry]); !ok {
		t.Fatalf("one remaining window with a small vector should collapse, got %T", s.root)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	if !s.Remove(entries[1]) {
		t.Fatal("Remove(1) failed")
	}
	if _, ok := s.root.(single[*testEntry]); !ok {
		t.Fatalf("want Single, got %T", s.root)
	}
}

// TestRemoveUnknownEntry verifies misses are reported without mutation.
func TestRemoveUnknownEntry(t *testing.T) {
	s := newTestSet()
	in := &testEntry{id: 0, expireAt: 500}
	out := &testEntry{id: 1, expireAt: 500}
	s.Add(in)

	if s.Remove(out) {
		t.Fatal("removed an entry that was never added")
	}
	if s.Len() != 1 {
		t.Fatalf("miss mutated the set, Len = %d", s.Len())
	}
	if s.Remove(out) || !s.Remove(in) {
		t.Fatal("identity-based removal misrouted")
	}
}

// TestRemoveWithStaleEntry removes via a captured expiry after the entry
// itself was mutated, which plain Remove cannot do.
func TestRemoveWithStaleEntry(t *testing.T) {
	s := newTestSet()
	for i := 0; i < 200; i++ {
		s.Add(&testEntry{id: i, expireAt: int64(i) * 50})
	}
	e := &testEntry{id: 200, expireAt: 4321}
	s.Add(e)

	captured := e.expireAt
	e.expireAt = 999_999 // entry mutated elsewhere

	if !s.RemoveWithExpiry(e, captured) {
		t.Fatal("RemoveWithExpiry with the captured value failed")
	}
	if s.Len() != 200 {
		t.Fatalf("Len = %d, want 200", s.Len())
	}
}

// TestUpdateInPlaceSameFineWindow swaps the reference without re-filing
// when the expiry moves within one fine window.
func TestUpdateInPlaceSameFineWindow(t *testing.T) {
	s := newTestSet()
	var entries []*testEntry
	for i := 0; i < 300; i++ {
		e := &testEntry{id: i, expireAt: int64(i) * 64}
		entries = append(entries, e)
		s.Add(e)
	}

	old := entries[150]
	repl := &testEntry{id: 999, expireAt: old.expireAt + 3} // same 16 ms window
	if !s.Update(old, repl, old.expireAt, repl.expireAt) {
		t.Fatal("in-place update failed")
	}
	if s.Len() != 300 {
		t.Fatalf("Len = %d, want 300", s.Len())
	}
	if s.Remove(old) {
		t.Fatal("old reference still tracked after update")
	}
	if !s.Remove(repl) {
		t.Fatal("replacement not tracked after update")
	}
}

// TestUpdateAcrossWindows degrades to remove-then-add and re-files the
// entry under its new window.
func TestUpdateAcrossWindows(t *testing.T) {
	s := newTestSet()
	var entries []*testEntry
	for i := 0; i < 300; i++ {
		e := &testEntry{id: i, expireAt: int64(i) * 64}
		entries = append(entries, e)
		s.Add(e)
	}

	e := entries[10]
	oldExp := e.expireAt
	e.expireAt = 100_000
	if !s.Update(e, e, oldExp, e.expireAt) {
		t.Fatal("cross-window update failed")
	}
	checkInvariants(t, s)
	if s.Len() != 300 {
		t.Fatalf("Len = %d, want 300", s.Len())
	}
	if !s.RemoveWithExpiry(e, e.expireAt) {
		t.Fatal("entry not reachable under its new expiry")
	}
}

// TestUpdateAbsentSides covers the add-only / remove-only / no-op forms.
func TestUpdateAbsentSides(t *testing.T) {
	s := newTestSet()
	e := &testEntry{id: 0, expireAt: 777}

	if !s.Update(nil, nil, NoExpiry, NoExpiry) {
		t.Fatal("double-absent update should be a trivial success")
	}
	if !s.Update(nil, e, NoExpiry, e.expireAt) {
		t.Fatal("absent-to-present update should add")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	if !s.Update(e, nil, e.expireAt, NoExpiry) {
		t.Fatal("present-to-absent update should remove")
	}
	if !s.IsEmpty() {
		t.Fatal("set not empty after removing its only entry")
	}
}

// TestEstimatedEarliestExpiry checks exactness for flat representations and
// the bounded overshoot for an indexed root.
func TestEstimatedEarliestExpiry(t *testing.T) {
	s := newTestSet()
	if _, ok := s.EstimatedEarliestExpiry(); ok {
		t.Fatal("empty set reported an earliest expiry")
	}

	s.Add(&testEntry{id: 0, expireAt: 5000})
	s.Add(&testEntry{id: 1, expireAt: 3000})
	if got, ok := s.EstimatedEarliestExpiry(); !ok || got != 3000 {
		t.Fatalf("vector estimate = %d/%v, want exact 3000", got, ok)
	}

	minExp := int64(1 << 62)
	for i := 0; i < 300; i++ {
		exp := int64(10_000 + i*37)
		if exp < minExp {
			minExp = exp
		}
		s.Add(&testEntry{id: 2 + i, expireAt: exp})
	}
	got, ok := s.EstimatedEarliestExpiry()
	if !ok {
		t.Fatal("populated set reported no earliest expiry")
	}
	if got <= 3000 || got > 3000+coarseGranularityMs {
		t.Fatalf("index estimate = %d, want in (3000, %d]", got, 3000+coarseGranularityMs)
	}
}

// TestInitReleasesEverything resets a populated set.
func TestInitReleasesEverything(t *testing.T) {
	s := newTestSet()
	for i := 0; i < 500; i++ {
		s.Add(&testEntry{id: i, expireAt: int64(i) * 13})
	}
	s.Init()
	if !s.IsEmpty() || s.Len() != 0 || s.MemUsage() != 0 {
		t.Fatal("Init left residual state")
	}
	s.Add(&testEntry{id: 0, expireAt: 42})
	if s.Len() != 1 {
		t.Fatal("set unusable after Init")
	}
}

// TestMemUsageTracksPopulation checks the accounting grows with inserts,
// shrinks with removals, and is zero for the allocation-free forms.
func TestMemUsageTracksPopulation(t *testing.T) {
	s := newTestSet()
	if s.MemUsage() != 0 {
		t.Fatalf("empty set MemUsage = %d, want 0", s.MemUsage())
	}
	s.Add(&testEntry{id: 0, expireAt: 10})
	if s.MemUsage() != 0 {
		t.Fatalf("Single MemUsage = %d, want 0", s.MemUsage())
	}

	var entries []*testEntry
	for i := 1; i < 400; i++ {
		e := &testEntry{id: i, expireAt: int64(i) * 100}
		entries = append(entries, e)
		s.Add(e)
	}
	full := s.MemUsage()
	if full <= 0 {
		t.Fatalf("populated MemUsage = %d, want > 0", full)
	}

	for _, e := range entries {
		s.Remove(e)
	}
	if got := s.MemUsage(); got >= full {
		t.Fatalf("MemUsage after mass removal = %d, not below %d", got, full)
	}
}
