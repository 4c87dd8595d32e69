package fieldstore

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/hfxdb/hfx/lib/volatile"
)

// --------------------------------------------------------------------------
// Field Type
// --------------------------------------------------------------------------

// Field is one stored field. Fields are immutable once published: every
// write creates a fresh *Field, so a pointer read from the map never
// changes underneath its reader and the expiration index can identify a
// field generation by its pointer alone.
type Field struct {
	Name     string
	Value    []byte
	ExpireAt int64 // unix milliseconds, 0 = no expiration
}

// expired reports whether the field's expiration time has passed.
func (f *Field) expired(nowMs int64) bool {
	return f.ExpireAt != 0 && nowMs >= f.ExpireAt
}

// trackExpiry maps a field to the expiration value the volatile set
// understands: absent for nil fields and fields without an expiration.
func trackExpiry(f *Field) int64 {
	if f == nil || f.ExpireAt == 0 {
		return volatile.NoExpiry
	}
	return f.ExpireAt
}

// fieldExpiry is the accessor the volatile set reads expiries through.
// Only fields with a real expiration are ever tracked.
func fieldExpiry(f *Field) int64 {
	return f.ExpireAt
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

// uintKey is the hashed form of a field name used for shard routing and as
// the map key.
type uintKey uint64

// generateSeed creates a random per-store seed for hash distribution.
func generateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// hashName hashes a field name with the store seed using FNV-1a.
func hashName(s string, seed uint64) uintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return uintKey(hash)
}

// identityHasher feeds the pre-hashed key to the shard maps.
func identityHasher() func(uintKey, uint64) uint64 {
	return func(key uintKey, mapSeed uint64) uint64 {
		return uint64(key) ^ mapSeed
	}
}
