package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/inproc"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/membership"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/memstore"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
)

// fakeClock is a settable time source shared by the nodes of a test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(id string) Config {
	cfg := DefaultConfig()
	cfg.NodeID = id
	cfg.Address = id
	cfg.ReplicationFactor = 2
	cfg.VirtualNodes = 32
	cfg.ReplicationTimeout = 2 * time.Second
	cfg.ReplicationRetries = 0
	cfg.RetryBackoff = resilience.Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond, Multiplier: 2}
	cfg.ReplicationWorkers = 4
	cfg.ReplicationQueue = 64
	cfg.MerkleBuckets = 64
	cfg.RebalanceRate = 100000
	cfg.RebalanceBurst = 1000
	return cfg
}

func newTestStore(t *testing.T) *memstore.Store {
	t.Helper()
	store, err := memstore.New(memstore.Config{Capacity: 1 << 20})
	require.NoError(t, err)
	return store
}

// newTestService builds a node that believes in topo without running any
// membership protocol.
func newTestService(t *testing.T, cfg Config, store port.ShardStore, peers port.PeerClient, gate port.MembershipGate, topo domain.Topology, opts ...Option) *CacheServiceImpl {
	t.Helper()
	svc, err := NewCacheService(cfg, store, peers, gate, opts...)
	require.NoError(t, err)
	if topo.Epoch > 0 {
		topo.VirtualNodes = cfg.VirtualNodes
		svc.coordinator.install(topo)
		svc.migration.waitRebalance()
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	return svc
}

func activeTopology(epoch uint64, ids ...string) domain.Topology {
	topo := domain.Topology{Epoch: epoch}
	for _, id := range ids {
		topo.Members = append(topo.Members, domain.NodeDescriptor{NodeID: id, Address: id, State: domain.StateActive, Term: 1})
	}
	return topo
}

// keyWithPrimary finds a key whose primary under snap is id.
func keyWithPrimary(t *testing.T, snap *hashring.Snapshot, id string) string {
	t.Helper()
	for i := 0; i < 10000; i++ {
		key := fmt.Sprintf("key-%d", i)
		if p, ok := snap.Primary(key); ok && p.ID == id {
			return key
		}
	}
	t.Fatalf("no key with primary %s", id)
	return ""
}

// testCluster wires nodes through an in-process transport and one shared
// local membership gate.
type testCluster struct {
	t     *testing.T
	tr    *inproc.Transport
	gate  *membership.LocalGate
	clock *fakeClock
	nodes map[string]*CacheServiceImpl
	order []string
}

func newTestCluster(t *testing.T, ids ...string) *testCluster {
	t.Helper()
	c := &testCluster{
		t:     t,
		tr:    inproc.NewTransport(),
		gate:  membership.NewLocalGate(),
		clock: newFakeClock(),
		nodes: make(map[string]*CacheServiceImpl),
	}
	t.Cleanup(c.closeAll)
	for _, id := range ids {
		c.join(id)
	}
	c.settle()
	return c
}

func (c *testCluster) start(id string) *CacheServiceImpl {
	c.t.Helper()
	svc, err := NewCacheService(testConfig(id), newTestStore(c.t), c.tr.Client(), c.gate, WithClock(c.clock.Now))
	require.NoError(c.t, err)
	c.tr.Register(id, svc)
	c.nodes[id] = svc
	c.order = append(c.order, id)
	return svc
}

// join adds a node, bootstrapping the cluster with the first one.
func (c *testCluster) join(id string) *CacheServiceImpl {
	c.t.Helper()
	var seeds []string
	if len(c.order) > 0 {
		seeds = []string{c.order[0]}
	}
	svc := c.start(id)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(c.t, svc.Bootstrap(ctx, seeds))
	return svc
}

// crash makes a node unreachable without telling anyone.
func (c *testCluster) crash(id string) {
	c.tr.Unregister(id)
	svc := c.nodes[id]
	delete(c.nodes, id)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = svc.Close(ctx)
}

// settle waits for every running rebalance to finish.
func (c *testCluster) settle() {
	for _, svc := range c.nodes {
		svc.migration.waitRebalance()
	}
}

func (c *testCluster) closeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, svc := range c.nodes {
		_ = svc.Close(ctx)
	}
}

// set writes through the key's primary as a client would.
func (c *testCluster) set(key, value string) uint64 {
	c.t.Helper()
	svc := c.any()
	primary, ok := svc.RingSnapshot().Primary(key)
	require.True(c.t, ok)
	version, err := c.nodes[primary.ID].Set(context.Background(), key, []byte(value), 0)
	require.NoError(c.t, err)
	return version
}

func (c *testCluster) any() *CacheServiceImpl {
	for _, id := range c.order {
		if svc, ok := c.nodes[id]; ok {
			return svc
		}
	}
	c.t.Fatal("cluster is empty")
	return nil
}

func TestCluster_BootstrapAndJoin(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")

	for id, svc := range c.nodes {
		topo, err := svc.Topology(context.Background())
		require.NoError(t, err)
		require.Len(t, topo.Members, 3, "node %s", id)
		for _, m := range topo.Members {
			require.Equal(t, domain.StateActive, m.State, "node %s sees %s", id, m.NodeID)
		}
		require.Equal(t, 3, svc.RingSnapshot().LiveLen())
	}
}

func TestCluster_ReadAfterWriteOnAckSet(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")

	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("user:%d", i)
		version := c.set(key, fmt.Sprintf("v%d", i))

		// R=2 and W=2, so every owner acknowledged
		for _, owner := range c.any().RingSnapshot().Owners(key, 2) {
			entry, found, err := c.nodes[owner.ID].Get(context.Background(), key)
			require.NoError(t, err)
			require.True(t, found, "key %s on %s", key, owner.ID)
			require.Equal(t, fmt.Sprintf("v%d", i), string(entry.Value))
			require.Equal(t, version, entry.Version)
		}
	}
}

func TestCluster_NonOwnerRedirects(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")
	snap := c.any().RingSnapshot()

	key := keyWithPrimary(t, snap, "A")
	owners := snap.Owners(key, 2)
	var outsider string
	for _, id := range []string{"A", "B", "C"} {
		if !containsNode(owners, id) {
			outsider = id
		}
	}

	_, err := c.nodes[outsider].Set(context.Background(), key, []byte("v"), 0)
	var notOwner *domain.NotOwnerError
	require.ErrorAs(t, err, &notOwner)
	require.Equal(t, "A", notOwner.Owner)
	require.Equal(t, c.nodes[outsider].coordinator.epoch(), notOwner.Epoch)
}

func TestCluster_DeadNodeRangesMoveToNextOwner(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")
	before := c.nodes["A"].RingSnapshot()

	values := make(map[string]string)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("item:%d", i)
		values[key] = fmt.Sprintf("value-%d", i)
		c.set(key, values[key])
	}

	c.crash("B")
	ctx := context.Background()
	tick := func() {
		for _, svc := range c.nodes {
			svc.detector.tick(ctx)
		}
	}
	tick()
	c.clock.Advance(testConfig("A").SuspectAfter + time.Second)
	tick()
	require.True(t, c.nodes["A"].detector.suspected("B"))
	c.clock.Advance(testConfig("A").DeadAfter)
	tick()

	require.Eventually(t, func() bool {
		for _, svc := range c.nodes {
			if _, ok := svc.coordinator.current().Member("B"); ok {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)
	c.settle()

	after := c.nodes["A"].RingSnapshot()
	for key, want := range values {
		old := before.Owners(key, 2)
		if old[0].ID != "B" {
			continue
		}
		primary, ok := after.Primary(key)
		require.True(t, ok)
		require.Equal(t, old[1].ID, primary.ID, "key %s moves to the next clockwise owner", key)

		entry, found, err := c.nodes[primary.ID].Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found, "key %s", key)
		require.Equal(t, want, string(entry.Value))
	}

	// re-replication restored R copies of every key
	for key := range values {
		for _, owner := range after.Owners(key, 2) {
			_, ok := c.nodes[owner.ID].store.Export(key)
			require.True(t, ok, "key %s on %s", key, owner.ID)
		}
	}
}

func TestCluster_JoinPrefetchesOwnedRanges(t *testing.T) {
	c := newTestCluster(t, "A", "B")

	values := make(map[string]string)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("doc:%d", i)
		values[key] = fmt.Sprintf("body-%d", i)
		c.set(key, values[key])
	}

	joined := c.join("C")
	c.settle()

	snap := joined.RingSnapshot()
	require.Equal(t, 3, snap.LiveLen())
	owned := 0
	for key, want := range values {
		if !snap.IsOwner(key, "C", 2) {
			continue
		}
		owned++
		entry, found, err := joined.Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, found, "key %s", key)
		require.Equal(t, want, string(entry.Value))
	}
	require.Positive(t, owned)
}

func TestCluster_GracefulLeaveHandsOffRanges(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")

	values := make(map[string]string)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("session:%d", i)
		values[key] = fmt.Sprintf("token-%d", i)
		c.set(key, values[key])
	}

	require.NoError(t, c.nodes["C"].LeaveCluster(context.Background()))
	c.crash("C")
	c.settle()

	for _, id := range []string{"A", "B"} {
		_, ok := c.nodes[id].coordinator.current().Member("C")
		require.False(t, ok)
	}
	snap := c.nodes["A"].RingSnapshot()
	require.Equal(t, 2, snap.Len())
	for key, want := range values {
		primary, _ := snap.Primary(key)
		entry, found, err := c.nodes[primary.ID].Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, found, "key %s", key)
		require.Equal(t, want, string(entry.Value))
	}
}

func TestCluster_DeleteReplicatesTombstone(t *testing.T) {
	c := newTestCluster(t, "A", "B", "C")
	c.set("gone", "soon")

	snap := c.any().RingSnapshot()
	owners := snap.Owners("gone", 2)
	existed, err := c.nodes[owners[0].ID].Delete(context.Background(), "gone")
	require.NoError(t, err)
	require.True(t, existed)

	for _, o := range owners {
		_, found, err := c.nodes[o.ID].Get(context.Background(), "gone")
		require.NoError(t, err)
		require.False(t, found, "owner %s", o.ID)
		msg, ok := c.nodes[o.ID].store.Export("gone")
		require.True(t, ok)
		require.True(t, msg.Tombstone)
	}
}
