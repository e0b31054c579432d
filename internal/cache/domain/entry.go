package domain

import "time"

// Entry is one cached value as seen by callers.
type Entry struct {
	Key        string
	Value      []byte
	Version    uint64
	ExpiresAt  time.Time // zero means no expiry
	LastAccess time.Time
}

// Expired reports whether the entry's TTL has passed at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTL returns the remaining lifetime, or 0 for entries without expiry.
func (e Entry) TTL(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return max(e.ExpiresAt.Sub(now), time.Nanosecond)
}

// Tombstone remembers the version of a deleted key.
type Tombstone struct {
	Version   uint64
	DeletedAt time.Time
}

// ApplyResult is the outcome of applying a replication message.
type ApplyResult int

const (
	Applied ApplyResult = iota + 1
	Stale
)

func (r ApplyResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// ReplicationMessage carries one key version from a primary to a replica.
// Tombstone messages replicate deletes.
type ReplicationMessage struct {
	Key       string    `cbor:"1,keyasint"`
	Value     []byte    `cbor:"2,keyasint,omitempty"`
	Version   uint64    `cbor:"3,keyasint"`
	ExpiresAt time.Time `cbor:"4,keyasint"`
	Tombstone bool      `cbor:"5,keyasint,omitempty"`
	Origin    string    `cbor:"6,keyasint,omitempty"`
}

// VersionedKey is the anti-entropy fingerprint of a key.
type VersionedKey struct {
	Key       string `cbor:"1,keyasint"`
	Version   uint64 `cbor:"2,keyasint"`
	Tombstone bool   `cbor:"3,keyasint,omitempty"`
}

// StoreStats is a point-in-time view of a shard store.
type StoreStats struct {
	Entries    int
	Tombstones int
	Bytes      int64
	Pinned     int
	Capacity   int64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
}
