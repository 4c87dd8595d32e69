package volatile

import "testing"

func entryExpiry(e *testEntry) int64 { return e.expireAt }

// TestSizeClassFor verifies the power-of-two allocation classes.
func TestSizeClassFor(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8},
		{8, 8}, {9, 16}, {100, 128}, {127, 128}, {128, 128},
	}
	for _, tt := range tests {
		if got := sizeClassFor(tt.n); got != tt.want {
			t.Errorf("sizeClassFor(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

// TestVectorInsertSortedKeepsOrder inserts expiries in scrambled order and
// expects ascending order afterwards.
func TestVectorInsertSortedKeepsOrder(t *testing.T) {
	v := newVector[*testEntry](1)
	for _, exp := range []int64{500, 100, 900, 300, 700, 200, 800} {
		e := &testEntry{expireAt: exp}
		v.insertSorted(entryExpiry, e, exp)
	}
	for i := 1; i < v.len(); i++ {
		if v.entries[i-1].expireAt > v.entries[i].expireAt {
			t.Fatalf("entries out of order at %d: %d > %d", i,
				v.entries[i-1].expireAt, v.entries[i].expireAt)
		}
	}
}

// TestVectorShrinksAfterRemove checks the capacity tracks the size class on
// the way down, not just up.
func TestVectorShrinksAfterRemove(t *testing.T) {
	v := newVector[*testEntry](1)
	for i := 0; i < 100; i++ {
		v.push(&testEntry{expireAt: int64(i)})
	}
	if cap(v.entries) != 128 {
		t.Fatalf("capacity after 100 pushes = %d, want 128", cap(v.entries))
	}
	for v.len() > 3 {
		v.removeAt(0)
	}
	if cap(v.entries) != 4 {
		t.Fatalf("capacity after shrinking to 3 = %d, want 4", cap(v.entries))
	}
}

// TestVectorSplitAt verifies the split moves exactly the right segment and
// shrinks the left one.
func TestVectorSplitAt(t *testing.T) {
	v := newVector[*testEntry](1)
	for i := 0; i < 10; i++ {
		v.push(&testEntry{id: i, expireAt: int64(i)})
	}

	right := v.splitAt(6)
	if v.len() != 6 || right.len() != 4 {
		t.Fatalf("split lengths = %d/%d, want 6/4", v.len(), right.len())
	}
	for i, e := range v.entries {
		if e.id != i {
			t.Errorf("left[%d].id = %d, want %d", i, e.id, i)
		}
	}
	for i, e := range right.entries {
		if e.id != 6+i {
			t.Errorf("right[%d].id = %d, want %d", i, e.id, 6+i)
		}
	}
	if cap(v.entries) != 8 {
		t.Errorf("left capacity = %d, want 8", cap(v.entries))
	}
}

// TestVectorDropFront removes a prefix in one shift.
func TestVectorDropFront(t *testing.T) {
	v := newVector[*testEntry](1)
	for i := 0; i < 8; i++ {
		v.push(&testEntry{id: i})
	}
	v.dropFront(5)
	if v.len() != 3 {
		t.Fatalf("len after dropFront(5) = %d, want 3", v.len())
	}
	for i, e := range v.entries {
		if e.id != 5+i {
			t.Errorf("entries[%d].id = %d, want %d", i, e.id, 5+i)
		}
	}
	if cap(v.entries) != 4 {
		t.Errorf("capacity = %d, want 4", cap(v.entries))
	}
}

// TestVectorPop removes from the tail and re-shrinks the allocation.
func TestVectorPop(t *testing.T) {
	v := newVector[*testEntry](1)
	for i := 0; i < 9; i++ {
		v.push(&testEntry{id: i})
	}
	for i := 8; i >= 0; i-- {
		e := v.pop()
		if e.id != i {
			t.Fatalf("pop returned id %d, want %d", e.id, i)
		}
		if v.len() != i {
			t.Fatalf("len after pop = %d, want %d", v.len(), i)
		}
	}
	if cap(v.entries) != 1 {
		t.Errorf("capacity after draining = %d, want 1", cap(v.entries))
	}
}

// TestVectorFindByIdentity checks that lookup matches the reference, not the
// expiry.
func TestVectorFindByIdentity(t *testing.T) {
	a := &testEntry{expireAt: 10}
	b := &testEntry{expireAt: 10}
	v := newVector[*testEntry](2)
	v.push(a)

	if i := v.find(a); i != 0 {
		t.Errorf("find(a) = %d, want 0", i)
	}
	if i := v.find(b); i != -1 {
		t.Errorf("find(b) = %d, want -1 for a distinct entry with equal expiry", i)
	}
}
