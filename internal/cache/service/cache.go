package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/idgen"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
)

// CacheServiceImpl is a facade that composes the cache node's use-case
// services around one shard store and one ring.
type CacheServiceImpl struct {
	cfg    Config
	self   hashring.Node
	store  port.ShardStore
	peers  port.PeerClient
	gate   port.MembershipGate
	loader port.Loader
	sink   metrics.Sink
	ids    *idgen.Snowflake
	ring   *hashring.Ring
	now    func() time.Time

	pool   *resilience.WorkerPool
	bgCtx  context.Context
	stopBg context.CancelFunc
	wg     sync.WaitGroup

	keys        *keyOpsService
	replication *replicationService
	antiEntropy *antiEntropyService
	coordinator *coordinatorService
	detector    *failureDetector
	migration   *migrationService
	janitor     *janitorService
}

// Ensure CacheServiceImpl implements the node ports.
var (
	_ port.CacheService     = (*CacheServiceImpl)(nil)
	_ port.MembershipEvents = (*CacheServiceImpl)(nil)
)

// Option customizes a CacheServiceImpl.
type Option func(*options)

type options struct {
	loader  port.Loader
	sink    metrics.Sink
	idClock idgen.Clock
	now     func() time.Time
}

// WithLoader enables read-through on primary misses.
func WithLoader(l port.Loader) Option {
	return func(o *options) { o.loader = l }
}

func WithMetrics(sink metrics.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithIDClock sets the time source of write IDs, e.g. a Redis clock.
func WithIDClock(clock idgen.Clock) Option {
	return func(o *options) { o.idClock = clock }
}

// WithClock replaces time.Now for failure detection and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewCacheService builds the facade and all use-case services. The node is
// not part of any cluster until Bootstrap succeeds.
func NewCacheService(cfg Config, store port.ShardStore, peers port.PeerClient, gate port.MembershipGate, opts ...Option) (*CacheServiceImpl, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	o := options{sink: metrics.Nop{}, idClock: idgen.SystemClock{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	ids, err := idgen.New(idgen.WorkerIDFor(cfg.NodeID), o.idClock)
	if err != nil {
		return nil, err
	}

	bgCtx, stop := context.WithCancel(context.Background())
	svc := &CacheServiceImpl{
		cfg:    cfg,
		self:   hashring.Node{ID: cfg.NodeID, Addr: cfg.Address},
		store:  store,
		peers:  peers,
		gate:   gate,
		loader: o.loader,
		sink:   o.sink,
		ids:    ids,
		ring:   hashring.New(cfg.VirtualNodes),
		now:    o.now,
		pool:   resilience.NewWorkerPool(cfg.ReplicationWorkers, cfg.ReplicationQueue),
		bgCtx:  bgCtx,
		stopBg: stop,
	}

	svc.keys = newKeyOpsService(svc)
	svc.replication = newReplicationService(svc)
	svc.antiEntropy = newAntiEntropyService(svc)
	svc.coordinator = newCoordinatorService(svc)
	svc.detector = newFailureDetector(svc)
	svc.migration = newMigrationService(svc)
	svc.janitor = newJanitorService(svc)

	return svc, nil
}

// Get returns the entry for key if this node owns it.
func (s *CacheServiceImpl) Get(ctx context.Context, key string) (domain.Entry, bool, error) {
	return s.keys.get(ctx, key)
}

// Set writes key on the primary and replicates it.
func (s *CacheServiceImpl) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	return s.keys.set(ctx, key, value, ttl)
}

// Delete tombstones key on the primary and replicates the tombstone.
func (s *CacheServiceImpl) Delete(ctx context.Context, key string) (bool, error) {
	return s.keys.delete(ctx, key)
}

// ApplyReplicated applies a version pushed by a primary, a migration or a repair.
func (s *CacheServiceImpl) ApplyReplicated(ctx context.Context, msg domain.ReplicationMessage) (domain.ApplyResult, error) {
	return s.keys.applyReplicated(ctx, msg)
}

// Heartbeat records liveness of the sender.
func (s *CacheServiceImpl) Heartbeat(ctx context.Context, hb domain.Heartbeat) (domain.HeartbeatAck, error) {
	return s.detector.heartbeat(ctx, hb)
}

// Join admits a node in the Joining state.
func (s *CacheServiceImpl) Join(ctx context.Context, req domain.JoinRequest) (domain.JoinResponse, error) {
	return s.coordinator.join(ctx, req)
}

// Activate adds a joined node's tokens to the ring.
func (s *CacheServiceImpl) Activate(ctx context.Context, nodeID string) error {
	return s.coordinator.activate(ctx, nodeID)
}

// Leave starts a graceful leave of nodeID.
func (s *CacheServiceImpl) Leave(ctx context.Context, nodeID string) error {
	return s.migration.leave(ctx, nodeID)
}

// Membership votes on or commits a proposed membership change.
func (s *CacheServiceImpl) Membership(ctx context.Context, proposal domain.MembershipProposal) (domain.MembershipVote, error) {
	return s.coordinator.membership(ctx, proposal)
}

// Topology returns the committed topology.
func (s *CacheServiceImpl) Topology(ctx context.Context) (domain.Topology, error) {
	return s.coordinator.current(), nil
}

// FetchRange streams entries for a joining node or a missed read.
func (s *CacheServiceImpl) FetchRange(ctx context.Context, req domain.RangeRequest) ([]domain.ReplicationMessage, error) {
	return s.migration.fetchRange(ctx, req)
}

// Digest answers an anti-entropy tree or bucket query.
func (s *CacheServiceImpl) Digest(ctx context.Context, req domain.DigestRequest) (domain.DigestResponse, error) {
	return s.antiEntropy.digest(ctx, req)
}

// PeerJoined takes discovery evidence from gossip.
func (s *CacheServiceImpl) PeerJoined(nodeID, address string) {
	s.detector.peerJoined(nodeID, address)
}

// PeerLeft takes failure evidence from gossip.
func (s *CacheServiceImpl) PeerLeft(nodeID string) {
	s.detector.peerLeft(nodeID)
}

// Bootstrap forms a new cluster when seeds is empty, otherwise joins
// through the seeds and activates once this node's ranges are prefetched.
func (s *CacheServiceImpl) Bootstrap(ctx context.Context, seeds []string) error {
	if len(seeds) == 0 {
		return s.coordinator.bootstrap(ctx)
	}
	return s.migration.joinCluster(ctx, seeds)
}

// Start launches the heartbeat, anti-entropy and janitor workers.
func (s *CacheServiceImpl) Start() {
	s.goBackground(s.detector.run)
	s.goBackground(s.antiEntropy.run)
	s.goBackground(s.janitor.run)
}

func (s *CacheServiceImpl) goBackground(fn func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.bgCtx)
	}()
}

// LeaveCluster hands off this node's ranges and departs.
func (s *CacheServiceImpl) LeaveCluster(ctx context.Context) error {
	return s.migration.leave(ctx, s.self.ID)
}

// Close stops background work and waits for queued replication up to ctx.
func (s *CacheServiceImpl) Close(ctx context.Context) error {
	s.stopBg()
	s.migration.cancelRebalance()
	s.wg.Wait()
	return s.pool.Shutdown(ctx)
}

// RingSnapshot returns the ring view this node routes with.
func (s *CacheServiceImpl) RingSnapshot() *hashring.Snapshot {
	return s.ring.Snapshot()
}

// Stats returns the local store statistics.
func (s *CacheServiceImpl) Stats() domain.StoreStats {
	return s.store.Stats()
}
