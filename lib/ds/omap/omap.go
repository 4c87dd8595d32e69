// Package omap provides an ordered map keyed by 64-bit timestamps.
//
// Keys are encoded as fixed-width 8-byte big-endian strings before they reach
// the underlying B-tree, so that raw byte comparison and numeric comparison
// agree. This is the property index structures rely on when they seek the
// smallest key strictly greater than a timestamp.
//
// The map supports ordered insertion, point lookup, seek, ascending walks,
// removal and a full rebuild. Rebuild copies every element into freshly
// allocated tree nodes; long-lived maps that have seen many deletions can be
// compacted this way during incremental defragmentation.
//
// Thread-safety: this type is not thread-safe. Callers must provide external
// synchronization when the map is shared between goroutines.
package omap

import (
	"bytes"
	"encoding/binary"

	"github.com/google/btree"
)

const (
	// btreeDegree keeps nodes small; maps built on omap typically hold tens
	// of keys, not thousands.
	btreeDegree = 4

	treeHeaderBytes   = 64
	itemOverheadBytes = 24
)

// item is a single key-value pair stored in the tree.
type item[V any] struct {
	key [8]byte
	val V
}

// Map is an ordered map from uint64 timestamps to values of type V.
type Map[V any] struct {
	tree *btree.BTreeG[item[V]]
}

// EncodeKey converts a timestamp to its fixed-width big-endian form.
func EncodeKey(ts uint64) [8]byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], ts)
	return k
}

// DecodeKey converts a fixed-width big-endian key back to a timestamp.
func DecodeKey(k [8]byte) uint64 {
	return binary.BigEndian.Uint64(k[:])
}

func less[V any](a, b item[V]) bool {
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// New creates an empty map.
func New[V any]() *Map[V] {
	return &Map[V]{tree: btree.NewG[item[V]](btreeDegree, less[V])}
}

// Set inserts or replaces the value stored under ts.
func (m *Map[V]) Set(ts uint64, v V) {
	m.tree.ReplaceOrInsert(item[V]{key: EncodeKey(ts), val: v})
}

// Get returns the value stored under ts.
func (m *Map[V]) Get(ts uint64) (V, bool) {
	it, ok := m.tree.Get(item[V]{key: EncodeKey(ts)})
	return it.val, ok
}

// Delete removes the value stored under ts and returns it.
func (m *Map[V]) Delete(ts uint64) (V, bool) {
	it, ok := m.tree.Delete(item[V]{key: EncodeKey(ts)})
	return it.val, ok
}

// Min returns the smallest key and its value.
func (m *Map[V]) Min() (uint64, V, bool) {
	it, ok := m.tree.Min()
	if !ok {
		var zero V
		return 0, zero, false
	}
	return DecodeKey(it.key), it.val, true
}

// SeekGreater returns the smallest key strictly greater than ts, with its
// value.
func (m *Map[V]) SeekGreater(ts uint64) (uint64, V, bool) {
	var (
		found bool
		hit   item[V]
	)
	m.tree.AscendGreaterOrEqual(item[V]{key: EncodeKey(ts + 1)}, func(it item[V]) bool {
		hit = it
		found = true
		return false
	})
	if !found {
		var zero V
		return 0, zero, false
	}
	return DecodeKey(hit.key), hit.val, true
}

// Ascend walks all pairs in ascending key order until fn returns false.
// The map must not be mutated during the walk.
func (m *Map[V]) Ascend(fn func(ts uint64, v V) bool) {
	m.tree.Ascend(func(it item[V]) bool {
		return fn(DecodeKey(it.key), it.val)
	})
}

// Len returns the number of keys in the map.
func (m *Map[V]) Len() int {
	return m.tree.Len()
}

// Rebuild copies all pairs into a new map backed by freshly allocated tree
// nodes. The receiver is left untouched.
func (m *Map[V]) Rebuild() *Map[V] {
	n := New[V]()
	m.tree.Ascend(func(it item[V]) bool {
		n.tree.ReplaceOrInsert(it)
		return true
	})
	return n
}

// MemUsage returns an estimate of the bytes held by the map's own nodes,
// excluding whatever the values reference.
func (m *Map[V]) MemUsage() int {
	return treeHeaderBytes + m.tree.Len()*(8+itemOverheadBytes)
}
