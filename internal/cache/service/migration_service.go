package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// joinAttempts bounds the rounds over the seed list.
const joinAttempts = 5

// migrationService moves ranges between nodes: prefetch on join, handoff on
// leave, re-replication after any ring change and read-through to previous
// owners while a change settles.
type migrationService struct {
	core *CacheServiceImpl

	mu       sync.Mutex
	previous *hashring.Snapshot
	until    time.Time
	cancel   context.CancelFunc
	running  sync.WaitGroup
	gen      uint64
	base     *hashring.Snapshot // ring whose re-replication is not complete yet
}

// newMigrationService creates migration use-case service.
func newMigrationService(core *CacheServiceImpl) *migrationService {
	return &migrationService{core: core}
}

func (m *migrationService) limiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(m.core.cfg.RebalanceRate), max(m.core.cfg.RebalanceBurst, 1))
}

// ringChanged opens a read-through window on the previous ring and
// restarts re-replication for the new one. A newer change cancels the
// rebalance of an older one and plans from the last ring whose
// re-replication completed.
func (m *migrationService) ringChanged(prev, next *hashring.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.previous = prev
	m.until = m.core.now().Add(m.core.cfg.MigrationWindow)
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(m.core.bgCtx)
	m.cancel = cancel

	if m.base == nil {
		m.base = prev
	}
	before := m.base
	m.gen++
	gen := m.gen

	m.running.Add(1)
	go func() {
		defer m.running.Done()
		if !m.rebalance(ctx, before, next) {
			return
		}
		m.mu.Lock()
		if m.gen == gen {
			m.base = nil
		}
		m.mu.Unlock()
	}()
}

// cancelRebalance stops any running rebalance and waits for it to exit.
func (m *migrationService) cancelRebalance() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.running.Wait()
}

// waitRebalance blocks until every started rebalance finished.
func (m *migrationService) waitRebalance() {
	m.running.Wait()
}

type rebalancePush struct {
	msg     domain.ReplicationMessage
	targets []hashring.Node
}

// rebalance pushes every key this node is primary for under next to the
// owners that did not own it under prev. It reports false when ctx ended
// first.
func (m *migrationService) rebalance(ctx context.Context, prev, next *hashring.Snapshot) bool {
	rf := m.core.cfg.ReplicationFactor
	self := m.core.self.ID

	var plan []rebalancePush
	m.core.store.Scan(func(msg domain.ReplicationMessage) bool {
		owners := next.Owners(msg.Key, rf)
		if len(owners) == 0 || owners[0].ID != self {
			return ctx.Err() == nil
		}
		before := prev.Owners(msg.Key, rf)
		var targets []hashring.Node
		for _, o := range owners[1:] {
			if !containsNode(before, o.ID) {
				targets = append(targets, o)
			}
		}
		if len(targets) > 0 {
			plan = append(plan, rebalancePush{msg: msg, targets: targets})
		}
		return ctx.Err() == nil
	})
	if ctx.Err() != nil {
		return false
	}
	if len(plan) == 0 {
		return true
	}

	logger.Infow("Rebalance started", "keys", len(plan))
	pushed, failed := m.pushAll(ctx, plan)
	if ctx.Err() != nil {
		logger.Infow("Rebalance superseded", "pushed", pushed, "planned", len(plan))
		return false
	}
	logger.Infow("Rebalance finished", "pushed", pushed, "failed", failed)
	return true
}

// pushAll sends the plan at the configured rate. It stops early only when
// ctx ends; individual failures are left to anti-entropy.
func (m *migrationService) pushAll(ctx context.Context, plan []rebalancePush) (pushed, failed int) {
	limiter := m.limiter()
	for _, p := range plan {
		for _, target := range p.targets {
			if err := limiter.Wait(ctx); err != nil {
				return pushed, failed
			}
			msg := p.msg
			msg.Origin = m.core.self.ID
			if _, err := m.core.peers.ApplyReplicated(ctx, target, msg); err != nil {
				if ctx.Err() != nil {
					return pushed, failed
				}
				failed++
				logger.Debugw("Rebalance push failed", "key", msg.Key, "target", target.ID, "error", err.Error())
				continue
			}
			pushed++
			m.core.sink.Emit(metrics.RebalancePushed, 1, map[string]string{"target": target.ID})
		}
	}
	return pushed, failed
}

// readThrough asks the previous owners of key for it while a ring change
// settles. A tombstone found there is a miss.
func (m *migrationService) readThrough(ctx context.Context, key string) (domain.Entry, bool) {
	m.mu.Lock()
	prev, until := m.previous, m.until
	m.mu.Unlock()

	now := m.core.now()
	if prev == nil || now.After(until) {
		return domain.Entry{}, false
	}

	cur := m.core.ring.Snapshot()
	for _, owner := range prev.Owners(key, m.core.cfg.ReplicationFactor) {
		if owner.ID == m.core.self.ID || cur.IsDown(owner.ID) {
			continue
		}
		msgs, err := m.core.peers.FetchRange(ctx, owner, domain.RangeRequest{Requester: m.core.self.ID, Keys: []string{key}})
		if err != nil || len(msgs) == 0 {
			continue
		}
		msg := msgs[0]
		res, err := m.core.store.ApplyReplicated(msg)
		if err != nil {
			logger.Warnw("Read-through apply failed", "key", key, "owner", owner.ID, "error", err.Error())
		}
		if res == domain.Stale {
			// this node already knows a newer version, possibly a tombstone
			return m.core.store.Get(key)
		}
		if msg.Tombstone {
			return domain.Entry{}, false
		}
		entry := domain.Entry{Key: msg.Key, Value: msg.Value, Version: msg.Version, ExpiresAt: msg.ExpiresAt}
		if entry.Expired(now) {
			continue
		}
		return entry, true
	}
	return domain.Entry{}, false
}

// fetchRange returns the named keys, or every entry the requester will own
// under the planned topology.
func (m *migrationService) fetchRange(ctx context.Context, req domain.RangeRequest) ([]domain.ReplicationMessage, error) {
	var out []domain.ReplicationMessage
	if len(req.Keys) > 0 {
		for _, key := range req.Keys {
			if msg, ok := m.core.store.Export(key); ok {
				out = append(out, msg)
			}
		}
		return out, nil
	}

	if req.Requester == "" {
		return nil, fmt.Errorf("fetch range: requester is required")
	}
	rf := req.ReplicationFactor
	if rf <= 0 {
		rf = m.core.cfg.ReplicationFactor
	}
	planned := req.Planned.Ring()
	m.core.store.Scan(func(msg domain.ReplicationMessage) bool {
		if planned.IsOwner(msg.Key, req.Requester, rf) {
			out = append(out, msg)
		}
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// joinCluster joins through the first seed that answers, prefetches the
// ranges this node will own and then asks to be activated.
func (m *migrationService) joinCluster(ctx context.Context, seeds []string) error {
	req := domain.JoinRequest{NodeID: m.core.self.ID, Address: m.core.self.Addr, Term: m.core.coordinator.term}

	var (
		resp domain.JoinResponse
		seed hashring.Node
	)
	err := resilience.Retry(ctx, joinAttempts, m.core.cfg.RetryBackoff, func(ctx context.Context) error {
		var lastErr error
		for _, addr := range seeds {
			if addr == m.core.self.Addr {
				continue
			}
			target := hashring.Node{ID: addr, Addr: addr}
			r, err := m.core.peers.Join(ctx, target, req)
			if err == nil {
				resp, seed = r, target
				return nil
			}
			lastErr = err
			logger.Warnw("Join through seed failed", "seed", addr, "error", err.Error())
		}
		if lastErr == nil {
			lastErr = errors.New("no seed other than self")
		}
		return lastErr
	})
	if err != nil {
		return fmt.Errorf("join cluster: %w", err)
	}
	m.core.coordinator.install(resp.Topology)
	logger.Infow("Joined cluster", "seed", seed.Addr, "epoch", resp.Topology.Epoch, "tokens", len(resp.Tokens))

	self, _ := resp.Topology.Member(m.core.self.ID)
	planned, _, err := resp.Topology.Apply(domain.MembershipChange{
		Epoch: resp.Topology.Epoch + 1,
		Kind:  domain.ChangeActivate,
		Node:  self,
	})
	if err != nil {
		return fmt.Errorf("plan activation: %w", err)
	}
	m.prefetch(ctx, resp.Topology, planned)

	err = resilience.Retry(ctx, joinAttempts, m.core.cfg.RetryBackoff, func(ctx context.Context) error {
		return m.core.peers.Activate(ctx, seed, m.core.self.ID)
	})
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	m.core.coordinator.catchUp(ctx, seed)

	// writes that landed on the old owners during the first pass
	m.prefetch(ctx, resp.Topology, planned)
	logger.Infow("Node active", "epoch", m.core.coordinator.epoch())
	return nil
}

// prefetch pulls from every serving member the entries this node owns under
// planned. Sources that fail are skipped; read-through and anti-entropy
// cover what they held.
func (m *migrationService) prefetch(ctx context.Context, current, planned domain.Topology) {
	req := domain.RangeRequest{
		Requester:         m.core.self.ID,
		Planned:           planned,
		ReplicationFactor: m.core.cfg.ReplicationFactor,
	}

	applied := 0
	for _, src := range current.InState(domain.StateActive, domain.StateLeaving) {
		if src.NodeID == m.core.self.ID {
			continue
		}
		msgs, err := m.core.peers.FetchRange(ctx, src.RingNode(), req)
		if err != nil {
			logger.Warnw("Prefetch from member failed", "source", src.NodeID, "error", err.Error())
			continue
		}
		for _, msg := range msgs {
			res, err := m.core.store.ApplyReplicated(msg)
			if err != nil {
				logger.Warnw("Prefetch apply failed", "key", msg.Key, "error", err.Error())
				continue
			}
			if res == domain.Applied {
				applied++
			}
		}
	}
	logger.Infow("Prefetch finished", "applied", applied)
}

// leave runs a graceful leave of nodeID. Other nodes are asked to leave
// themselves.
func (m *migrationService) leave(ctx context.Context, nodeID string) error {
	topo := m.core.coordinator.current()
	member, ok := topo.Member(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s is not a member", domain.ErrMembershipRejected, nodeID)
	}
	if nodeID != m.core.self.ID {
		return m.core.peers.Leave(ctx, member.RingNode(), nodeID)
	}

	if member.State == domain.StateActive {
		next, err := m.core.coordinator.propose(ctx, domain.ChangeLeave, member)
		if err != nil {
			return fmt.Errorf("leave: %w", err)
		}
		topo = next
		member, _ = next.Member(nodeID)
	}

	planned, _, err := topo.Apply(domain.MembershipChange{Epoch: topo.Epoch + 1, Kind: domain.ChangeDepart, Node: member})
	if err != nil {
		return fmt.Errorf("plan departure: %w", err)
	}
	if err := m.handoff(ctx, planned.Ring()); err != nil {
		return err
	}

	if _, err := m.core.coordinator.propose(ctx, domain.ChangeDepart, member); err != nil {
		return fmt.Errorf("depart: %w", err)
	}
	logger.Infow("Left cluster", "node_id", nodeID)
	return nil
}

// handoff pushes every key this node is primary for to its owners once
// this node is gone.
func (m *migrationService) handoff(ctx context.Context, planned *hashring.Snapshot) error {
	cur := m.core.ring.Snapshot()
	rf := m.core.cfg.ReplicationFactor

	var plan []rebalancePush
	m.core.store.Scan(func(msg domain.ReplicationMessage) bool {
		if p, ok := cur.Primary(msg.Key); !ok || p.ID != m.core.self.ID {
			return true
		}
		if owners := planned.Owners(msg.Key, rf); len(owners) > 0 {
			plan = append(plan, rebalancePush{msg: msg, targets: owners})
		}
		return true
	})

	pushed, failed := m.pushAll(ctx, plan)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("handoff interrupted after %d pushes: %w", pushed, err)
	}
	logger.Infow("Handoff finished", "keys", len(plan), "pushed", pushed, "failed", failed)
	return nil
}
