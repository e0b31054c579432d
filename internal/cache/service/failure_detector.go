package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

const gossipReporter = "gossip"

// suspicion is local evidence that a member may be down.
type suspicion struct {
	since     time.Time
	reporters map[string]struct{}
}

// failureDetector sends heartbeats to every member and moves silent members
// to Suspected and then Dead. Suspected is local state only; Dead is
// committed through the coordinator.
type failureDetector struct {
	core *CacheServiceImpl

	mu       sync.Mutex
	lastSeen map[string]time.Time
	suspects map[string]*suspicion
	dead     map[string]bool // dead proposals in flight
}

// newFailureDetector creates failure detection use-case service.
func newFailureDetector(core *CacheServiceImpl) *failureDetector {
	return &failureDetector{
		core:     core,
		lastSeen: make(map[string]time.Time),
		suspects: make(map[string]*suspicion),
		dead:     make(map[string]bool),
	}
}

func (d *failureDetector) run(ctx context.Context) {
	ticker := time.NewTicker(d.core.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *failureDetector) tick(ctx context.Context) {
	d.sendHeartbeats(ctx)
	d.evaluate(ctx)
}

// sendHeartbeats probes every other member once. A probe that fails counts
// as this node's report against the target.
func (d *failureDetector) sendHeartbeats(ctx context.Context) {
	topo := d.core.coordinator.current()
	if _, ok := topo.Member(d.core.self.ID); !ok {
		return
	}
	hb := domain.Heartbeat{NodeID: d.core.self.ID, Term: d.core.coordinator.term, Epoch: topo.Epoch}

	var g errgroup.Group
	for _, m := range topo.Members {
		if m.NodeID == d.core.self.ID {
			continue
		}
		member := m
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, d.core.cfg.HeartbeatInterval)
			defer cancel()

			ack, err := d.core.peers.Heartbeat(probeCtx, member.RingNode(), hb)
			if err != nil {
				d.report(member.NodeID, d.core.self.ID)
				return nil
			}
			d.observe(member.NodeID)
			if ack.Epoch > topo.Epoch {
				d.core.coordinator.catchUp(ctx, member.RingNode())
			}
			return nil
		})
	}
	_ = g.Wait()
}

// heartbeat records that the sender is alive and pulls its topology when
// it is ahead of ours.
func (d *failureDetector) heartbeat(_ context.Context, hb domain.Heartbeat) (domain.HeartbeatAck, error) {
	d.observe(hb.NodeID)

	epoch := d.core.coordinator.epoch()
	if hb.Epoch > epoch {
		if m, ok := d.core.coordinator.current().Member(hb.NodeID); ok {
			go d.core.coordinator.catchUp(d.core.bgCtx, m.RingNode())
		}
	}
	return domain.HeartbeatAck{NodeID: d.core.self.ID, Term: d.core.coordinator.term, Epoch: epoch}, nil
}

// observe records liveness evidence and clears any suspicion.
func (d *failureDetector) observe(id string) {
	d.mu.Lock()
	d.lastSeen[id] = d.core.now()
	_, wasSuspect := d.suspects[id]
	delete(d.suspects, id)
	d.mu.Unlock()

	if wasSuspect {
		logger.Infow("Suspected node recovered", "node_id", id)
		d.core.sink.Emit(metrics.NodeStateChanges, 1, map[string]string{"state": string(domain.StateActive)})
		d.core.coordinator.markUp(id)
	}
}

// report adds a reporter to an existing suspicion. Reports against a node
// that is not suspected are ignored; silence alone starts a suspicion.
func (d *failureDetector) report(id, reporter string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.suspects[id]; ok {
		s.reporters[reporter] = struct{}{}
	}
}

// evaluate moves members along Active -> Suspected -> Dead.
func (d *failureDetector) evaluate(ctx context.Context) {
	topo := d.core.coordinator.current()
	now := d.core.now()

	var toDeclare []domain.NodeDescriptor
	d.mu.Lock()
	for _, m := range topo.Members {
		if m.NodeID == d.core.self.ID {
			continue
		}
		seen, ok := d.lastSeen[m.NodeID]
		if !ok {
			d.lastSeen[m.NodeID] = now
			continue
		}
		silence := now.Sub(seen)

		s, suspected := d.suspects[m.NodeID]
		if !suspected {
			if silence >= d.core.cfg.SuspectAfter {
				d.suspects[m.NodeID] = &suspicion{since: now, reporters: map[string]struct{}{}}
				logger.Warnw("Node suspected", "node_id", m.NodeID, "silence", silence.String())
				d.core.sink.Emit(metrics.NodeStateChanges, 1, map[string]string{"state": string(domain.StateSuspected)})
			}
			continue
		}

		if silence >= d.core.cfg.DeadAfter || len(s.reporters) >= d.core.cfg.SuspectConfirmations {
			if !d.dead[m.NodeID] {
				d.dead[m.NodeID] = true
				toDeclare = append(toDeclare, m)
			}
		}
	}
	d.mu.Unlock()

	for _, m := range toDeclare {
		d.declareDead(ctx, m)
	}
}

// declareDead stops routing to m at once and proposes its removal in the
// background. A failed proposal is retried on a later tick.
func (d *failureDetector) declareDead(ctx context.Context, m domain.NodeDescriptor) {
	logger.Warnw("Node declared dead", "node_id", m.NodeID)
	d.core.sink.Emit(metrics.NodeStateChanges, 1, map[string]string{"state": string(domain.StateDead)})
	d.core.coordinator.markDown(m.NodeID)

	go func() {
		proposeCtx, cancel := context.WithTimeout(ctx, 2*membershipRPCTimeout)
		defer cancel()

		_, err := d.core.coordinator.propose(proposeCtx, domain.ChangeDead, m)
		d.mu.Lock()
		delete(d.dead, m.NodeID)
		d.mu.Unlock()
		if err != nil {
			logger.Warnw("Dead node removal not committed", "node_id", m.NodeID, "error", err.Error())
		}
	}()
}

// forget drops all state about a node that left the topology.
func (d *failureDetector) forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastSeen, id)
	delete(d.suspects, id)
}

// peerJoined treats gossip discovery of a member as liveness evidence.
func (d *failureDetector) peerJoined(id, addr string) {
	if _, ok := d.core.coordinator.current().Member(id); !ok {
		logger.Debugw("Gossip discovered non-member", "node_id", id, "address", addr)
		return
	}
	d.observe(id)
}

// peerLeft treats a gossip failure as an independent report and suspects
// the member right away.
func (d *failureDetector) peerLeft(id string) {
	if id == d.core.self.ID {
		return
	}
	if _, ok := d.core.coordinator.current().Member(id); !ok {
		return
	}

	d.mu.Lock()
	s, ok := d.suspects[id]
	if !ok {
		s = &suspicion{since: d.core.now(), reporters: map[string]struct{}{}}
		d.suspects[id] = s
	}
	s.reporters[gossipReporter] = struct{}{}
	d.mu.Unlock()

	if !ok {
		logger.Warnw("Node suspected by gossip", "node_id", id)
		d.core.sink.Emit(metrics.NodeStateChanges, 1, map[string]string{"state": string(domain.StateSuspected)})
	}
}

// suspected reports whether id is currently suspected here.
func (d *failureDetector) suspected(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.suspects[id]
	return ok
}
