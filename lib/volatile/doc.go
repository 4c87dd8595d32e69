// Package volatile implements a compact, adaptive set that tracks which
// entries of a larger container currently carry an expiration time. It is
// the expiration index behind the field store: the embedding engine owns
// the entries, the set only references them by identity and reads their
// expiries through a caller-supplied accessor.
//
// The package focuses on:
//   - Near-zero overhead for the overwhelmingly common small sets
//   - Bounded-batch reclamation of expired entries without scanning live ones
//   - A cheap, approximate answer to "when does the next entry expire?"
//
// Representation Lifecycle:
//
// The set adapts its internal representation to the number of tracked
// entries and the spread of their expiration times:
//
//   - Empty: a nil root, no allocation at all.
//
//   - Single: one entry stored inline in the root, no allocation.
//
//   - Vector: up to 127 entries in a slice kept sorted ascending by expiry.
//     The backing array is re-shrunk to power-of-two size classes after
//     every mutation, so memory accounting can be derived from capacity.
//
//   - Ordered Index: an ordered map from window-end timestamps to buckets.
//     A window is a half-open time interval whose end is a multiple of a
//     power-of-two granularity between 16 ms and 8192 ms; every entry filed
//     under a window key expires strictly before that key, and under the
//     smallest key that qualifies. Reclamation exploits this: any window
//     whose key is in the past holds only expired entries and is drained
//     wholesale, and at most one boundary window ever needs per-entry
//     filtering.
//
//   - Auxiliary Set: an unordered hash set used as the fallback for a
//     window whose entries all share one 16 ms window and therefore cannot
//     be split any further.
//
// Transitions are driven by mutations: a Single grows into a Vector, a full
// Vector is promoted into an Ordered Index, a full window inside the index
// splits into two narrower windows or degrades to an Auxiliary Set, and
// removals collapse each structure back down, all the way to nil. No entry
// is ever lost or duplicated across a transition.
//
// Thread-safety: none. The embedding engine must serialize every call,
// including iteration, reclamation and defragmentation. The field store
// does this by funneling all set access through a single sweeper goroutine
// per shard.
package volatile
