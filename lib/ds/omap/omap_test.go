package omap

import (
	"math/rand"
	"sort"
	"testing"
)

// TestKeyEncodingPreservesOrder checks that byte comparison of encoded keys
// matches numeric comparison, including around byte boundaries.
func TestKeyEncodingPreservesOrder(t *testing.T) {
	values := []uint64{0, 1, 255, 256, 65_535, 65_536, 1 << 32, (1 << 32) + 1, 1<<63 - 1, 1 << 63}
	for i := 1; i < len(values); i++ {
		a, b := EncodeKey(values[i-1]), EncodeKey(values[i])
		for j := 0; j < 8; j++ {
			if a[j] < b[j] {
				break
			}
			if a[j] > b[j] {
				t.Fatalf("encoded %d sorts after %d", values[i-1], values[i])
			}
		}
		if DecodeKey(a) != values[i-1] {
			t.Fatalf("DecodeKey(EncodeKey(%d)) = %d", values[i-1], DecodeKey(a))
		}
	}
}

// TestSetGetDelete covers the basic map contract, including overwrite.
func TestSetGetDelete(t *testing.T) {
	m := New[string]()
	m.Set(100, "a")
	m.Set(200, "b")
	m.Set(100, "a2")

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if v, ok := m.Get(100); !ok || v != "a2" {
		t.Fatalf("Get(100) = %q/%v, want overwrite to a2", v, ok)
	}
	if _, ok := m.Get(150); ok {
		t.Fatal("Get(150) found a missing key")
	}

	if v, ok := m.Delete(100); !ok || v != "a2" {
		t.Fatalf("Delete(100) = %q/%v", v, ok)
	}
	if _, ok := m.Delete(100); ok {
		t.Fatal("second Delete(100) reported success")
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d after delete, want 1", m.Len())
	}
}

// TestMinAndAscendOrder inserts keys in random order and expects numeric
// ascending traversal.
func TestMinAndAscendOrder(t *testing.T) {
	m := New[int]()
	rng := rand.New(rand.NewSource(5))
	keys := make([]uint64, 200)
	for i := range keys {
		keys[i] = uint64(rng.Int63n(1 << 40))
		m.Set(keys[i], i)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	if k, _, ok := m.Min(); !ok || k != keys[0] {
		t.Fatalf("Min = %d/%v, want %d", k, ok, keys[0])
	}

	var got []uint64
	m.Ascend(func(k uint64, _ int) bool {
		got = append(got, k)
		return true
	})
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("Ascend out of order at %d: %d >= %d", i, got[i-1], got[i])
		}
	}
}

// TestSeekGreater checks the strict lower-bound search used for window
// routing.
func TestSeekGreater(t *testing.T) {
	m := New[string]()
	m.Set(16, "a")
	m.Set(32, "b")
	m.Set(8192, "c")

	tests := []struct {
		ts     uint64
		wantK  uint64
		wantOK bool
	}{
		{0, 16, true},
		{15, 16, true},
		{16, 32, true}, // strictly greater, never equal
		{31, 32, true},
		{32, 8192, true},
		{8191, 8192, true},
		{8192, 0, false},
	}
	for _, tt := range tests {
		k, _, ok := m.SeekGreater(tt.ts)
		if ok != tt.wantOK || k != tt.wantK {
			t.Errorf("SeekGreater(%d) = %d/%v, want %d/%v", tt.ts, k, ok, tt.wantK, tt.wantOK)
		}
	}
}

// TestAscendEarlyStop verifies the traversal honors the callback verdict.
func TestAscendEarlyStop(t *testing.T) {
	m := New[int]()
	for i := 0; i < 50; i++ {
		m.Set(uint64(i)*10, i)
	}
	visited := 0
	m.Ascend(func(uint64, int) bool {
		visited++
		return visited < 7
	})
	if visited != 7 {
		t.Fatalf("visited %d keys after early stop, want 7", visited)
	}
}

// TestRebuildPreservesContent checks the compaction copy.
func TestRebuildPreservesContent(t *testing.T) {
	m := New[int]()
	for i := 0; i < 500; i++ {
		m.Set(uint64(i)*3, i)
	}
	for i := 0; i < 400; i++ {
		m.Delete(uint64(i) * 3)
	}

	r := m.Rebuild()
	if r == m {
		t.Fatal("Rebuild returned the receiver")
	}
	if r.Len() != m.Len() {
		t.Fatalf("rebuilt Len = %d, want %d", r.Len(), m.Len())
	}
	m.Ascend(func(k uint64, v int) bool {
		got, ok := r.Get(k)
		if !ok || got != v {
			t.Fatalf("rebuilt map lost key %d", k)
		}
		return true
	})
}
