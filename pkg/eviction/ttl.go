package eviction

import (
	"time"

	"github.com/google/btree"
)

type ttlItem struct {
	expiresAt time.Time
	key       string
}

func ttlLess(a, b ttlItem) bool {
	if a.expiresAt.Equal(b.expiresAt) {
		return a.key < b.key
	}
	return a.expiresAt.Before(b.expiresAt)
}

type ttlRecord struct {
	item ttlItem
	size int64
}

// ttl orders keys by expiry. Keys without an expiry are tracked for
// accounting but never become candidates.
type ttl struct {
	tree    *btree.BTreeG[ttlItem]
	records map[string]ttlRecord
	now     func() time.Time
	bytes   int64
}

func newTTL(now func() time.Time) *ttl {
	return &ttl{
		tree:    btree.NewG(16, ttlLess),
		records: make(map[string]ttlRecord),
		now:     now,
	}
}

func (t *ttl) Add(key string, size int64, expiresAt time.Time) {
	t.Remove(key)

	rec := ttlRecord{item: ttlItem{expiresAt: expiresAt, key: key}, size: size}
	t.records[key] = rec
	t.bytes += size
	if !expiresAt.IsZero() {
		t.tree.ReplaceOrInsert(rec.item)
	}
}

// Touch does not change expiry ordering.
func (t *ttl) Touch(string) {}

func (t *ttl) Remove(key string) {
	rec, ok := t.records[key]
	if !ok {
		return
	}
	delete(t.records, key)
	t.bytes -= rec.size
	if !rec.item.expiresAt.IsZero() {
		t.tree.Delete(rec.item)
	}
}

// EvictionCandidate returns the earliest-expiring key once it has expired.
func (t *ttl) EvictionCandidate() (string, bool) {
	min, ok := t.tree.Min()
	if !ok {
		return "", false
	}
	if min.expiresAt.After(t.now()) {
		return "", false
	}
	return min.key, true
}

func (t *ttl) Len() int {
	return len(t.records)
}

func (t *ttl) Size() int64 {
	return t.bytes
}

// Reclaimable counts only expired keys, the ones EvictionCandidate can return.
func (t *ttl) Reclaimable(exclude string) int64 {
	now := t.now()
	var total int64
	t.tree.Ascend(func(item ttlItem) bool {
		if item.expiresAt.After(now) {
			return false
		}
		if item.key != exclude {
			total += t.records[item.key].size
		}
		return true
	})
	return total
}
