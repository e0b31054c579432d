package port

import (
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
)

//go:generate mockgen -destination=../service/mocks/store_mock.go -package=mocks -source=store.go

// ShardStore is the single-node in-memory store.
type ShardStore interface {
	// Get returns a live entry and records the access. Expired entries are
	// dropped and reported as a miss.
	Get(key string) (domain.Entry, bool)

	// Set stores value under the next version for key. A pinned entry is
	// never evicted until MarkResolved releases it.
	Set(key string, value []byte, ttl time.Duration, pin bool) (uint64, error)

	// Delete removes key and records a tombstone. It returns whether a live
	// entry existed and the tombstone version.
	Delete(key string) (bool, uint64)

	// ApplyReplicated applies msg if its version is newer than anything the
	// store has seen for the key.
	ApplyReplicated(msg domain.ReplicationMessage) (domain.ApplyResult, error)

	// MarkResolved unpins key if it still holds version.
	MarkResolved(key string, version uint64)

	// Export returns the current state of key, entry or tombstone, as a
	// replication message without touching it.
	Export(key string) (domain.ReplicationMessage, bool)

	// Scan visits every entry and tombstone until fn returns false.
	Scan(fn func(msg domain.ReplicationMessage) bool)

	// PurgeExpired drops entries whose TTL passed before now.
	PurgeExpired(now time.Time) int

	// PurgeTombstones drops tombstones older than cutoff.
	PurgeTombstones(cutoff time.Time) int

	Stats() domain.StoreStats
}
