// Package fieldstore provides a sharded in-memory store for named fields
// with optional per-field expiration.
//
// The package focuses on:
//   - Lock-free reads and writes through a sharded concurrent hash map
//   - Per-field TTLs reclaimed in bounded batches by background sweepers
//   - A compact expiration index that costs nothing for fields without TTLs
//
// Key Components:
//
//   - Store: the public API. Field names are hashed with a per-store seed
//     and routed to one of N shards; all read and write operations go
//     straight to the shard's concurrent map.
//
//   - Immutable Fields: every write publishes a fresh *Field. A pointer
//     therefore identifies one generation of a field, which lets the
//     expiration index track generations by identity and lets the sweeper
//     delete a field only if the map still holds the exact generation that
//     expired.
//
//   - Sweeper: one goroutine per shard owns that shard's expiration index
//     (a volatile.Set over *Field). Writes that change expiration tracking
//     enqueue an event on a lock-free MPSC queue; the sweeper folds events
//     into the index and periodically reclaims expired fields in batches,
//     so foreground operations never pay for index maintenance.
//
// Expired fields become unreadable immediately (Get and Has check the
// expiry on the read path) and are physically removed by the next sweep.
package fieldstore
