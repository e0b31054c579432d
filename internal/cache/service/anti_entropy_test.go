package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
)

func TestAntiEntropy_RepairsBothDirections(t *testing.T) {
	c := newTestCluster(t, "A", "B")
	a, b := c.nodes["A"], c.nodes["B"]
	snap := a.RingSnapshot()

	var primaryA []string
	for i := 0; len(primaryA) < 3; i++ {
		key := fmt.Sprintf("ae:%d", i)
		if p, _ := snap.Primary(key); p.ID == "A" {
			primaryA = append(primaryA, key)
		}
	}
	missing, newerOnB, deleted := primaryA[0], primaryA[1], primaryA[2]

	// a write B never saw
	_, err := a.store.Set(missing, []byte("only-on-a"), 0, false)
	require.NoError(t, err)

	// B holds a newer version than A, e.g. pushed by an older primary
	c.set(newerOnB, "old")
	_, err = b.store.ApplyReplicated(domain.ReplicationMessage{Key: newerOnB, Value: []byte("newer"), Version: 1 << 40})
	require.NoError(t, err)

	// a delete B never saw
	c.set(deleted, "doomed")
	a.store.Delete(deleted)

	a.antiEntropy.runRound(context.Background())

	msg, ok := b.store.Export(missing)
	require.True(t, ok)
	assert.Equal(t, "only-on-a", string(msg.Value))

	msg, ok = a.store.Export(newerOnB)
	require.True(t, ok)
	assert.Equal(t, uint64(1<<40), msg.Version)
	assert.Equal(t, "newer", string(msg.Value))

	msg, ok = b.store.Export(deleted)
	require.True(t, ok)
	assert.True(t, msg.Tombstone)

	// a second round finds nothing to do
	a.antiEntropy.runRound(context.Background())
	localA, err := a.antiEntropy.index(snap, "A", "B")
	require.NoError(t, err)
	localB, err := b.antiEntropy.index(snap, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, localA.tree.Root(), localB.tree.Root())
}

func TestAntiEntropy_DigestServesTreeAndBuckets(t *testing.T) {
	c := newTestCluster(t, "A", "B")
	for i := 0; i < 20; i++ {
		c.set(fmt.Sprintf("d:%d", i), "v")
	}
	b := c.nodes["B"]

	root, err := b.Digest(context.Background(), domain.DigestRequest{Primary: "A", Indices: []int32{0}})
	require.NoError(t, err)
	require.Len(t, root.Hashes, 1)
	assert.NotEmpty(t, root.Hashes[0])

	all := make([]int32, testConfig("B").MerkleBuckets)
	for i := range all {
		all[i] = int32(i)
	}
	resp, err := b.Digest(context.Background(), domain.DigestRequest{Primary: "A", Buckets: all})
	require.NoError(t, err)
	snap := b.RingSnapshot()
	for _, k := range resp.Keys {
		p, _ := snap.Primary(k.Key)
		assert.Equal(t, "A", p.ID)
	}

	_, err = b.Digest(context.Background(), domain.DigestRequest{})
	assert.Error(t, err)
}
