package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

// membershipRPCTimeout bounds each prepare and commit call.
const membershipRPCTimeout = 3 * time.Second

// coordinatorService owns the committed topology and runs the two-phase
// membership protocol. Proposals are serialized cluster-wide by the
// membership gate and need a majority of Active members.
type coordinatorService struct {
	core *CacheServiceImpl
	term uint64

	mu   sync.Mutex
	topo domain.Topology
	down map[string]struct{} // members declared dead here, not yet removed
}

// newCoordinatorService creates coordinator use-case service.
func newCoordinatorService(core *CacheServiceImpl) *coordinatorService {
	return &coordinatorService{
		core: core,
		term: uint64(core.now().UnixMilli()),
		topo: domain.Topology{VirtualNodes: core.cfg.VirtualNodes},
		down: make(map[string]struct{}),
	}
}

func (c *coordinatorService) epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topo.Epoch
}

func (c *coordinatorService) current() domain.Topology {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topo.Clone()
}

func (c *coordinatorService) selfDescriptor() domain.NodeDescriptor {
	return domain.NodeDescriptor{NodeID: c.core.self.ID, Address: c.core.self.Addr, Term: c.term}
}

// install adopts topo if it is newer than the committed one and rebuilds
// the ring from it. It reports whether topo was adopted.
func (c *coordinatorService) install(topo domain.Topology) bool {
	c.mu.Lock()
	if topo.Epoch <= c.topo.Epoch {
		c.mu.Unlock()
		return false
	}
	old := c.topo
	c.topo = topo.Clone()
	for id := range c.down {
		if _, ok := topo.Member(id); !ok {
			delete(c.down, id)
		}
	}
	down := make([]string, 0, len(c.down))
	for id := range c.down {
		down = append(down, id)
	}
	prev := c.core.ring.Snapshot()
	next := topo.Ring(down...)
	c.core.ring.Replace(next)
	c.mu.Unlock()

	for _, m := range old.Members {
		if _, ok := topo.Member(m.NodeID); !ok {
			c.core.peers.Forget(m.RingNode())
			c.core.detector.forget(m.NodeID)
		}
	}

	c.core.sink.Emit(metrics.RingSize, float64(next.Len()), nil)
	c.core.sink.Emit(metrics.RingEpoch, float64(topo.Epoch), nil)
	logger.Infow("Topology installed", "epoch", topo.Epoch, "members", len(topo.Members), "ring_nodes", next.Len())

	c.core.migration.ringChanged(prev, next)
	return true
}

// markDown skips a member for ownership until it is removed from the
// topology or heard from again.
func (c *coordinatorService) markDown(id string) {
	c.mu.Lock()
	if _, ok := c.topo.Member(id); !ok {
		c.mu.Unlock()
		return
	}
	if _, ok := c.down[id]; ok {
		c.mu.Unlock()
		return
	}
	c.down[id] = struct{}{}
	prev := c.core.ring.Snapshot()
	err := c.core.ring.MarkDown(id)
	next := c.core.ring.Snapshot()
	c.mu.Unlock()

	if err != nil {
		// joining members hold no tokens yet
		return
	}
	c.core.migration.ringChanged(prev, next)
}

// markUp reverses markDown.
func (c *coordinatorService) markUp(id string) {
	c.mu.Lock()
	if _, ok := c.down[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.down, id)
	prev := c.core.ring.Snapshot()
	err := c.core.ring.MarkUp(id)
	next := c.core.ring.Snapshot()
	c.mu.Unlock()

	if err == nil {
		c.core.migration.ringChanged(prev, next)
	}
}

// catchUp pulls the committed topology from target.
func (c *coordinatorService) catchUp(ctx context.Context, target hashring.Node) {
	topo, err := c.core.peers.Topology(ctx, target)
	if err != nil {
		logger.Debugw("Topology pull failed", "peer", target.ID, "error", err.Error())
		return
	}
	c.install(topo)
}

// bootstrap forms a one-node cluster.
func (c *coordinatorService) bootstrap(ctx context.Context) error {
	if _, err := c.propose(ctx, domain.ChangeJoin, c.selfDescriptor()); err != nil {
		return fmt.Errorf("bootstrap join: %w", err)
	}
	if _, err := c.propose(ctx, domain.ChangeActivate, c.selfDescriptor()); err != nil {
		return fmt.Errorf("bootstrap activate: %w", err)
	}
	logger.Infow("Cluster bootstrapped", "node_id", c.core.self.ID)
	return nil
}

// propose commits one membership change. It holds the gate for the whole
// prepare and commit exchange.
func (c *coordinatorService) propose(ctx context.Context, kind domain.ChangeKind, node domain.NodeDescriptor) (domain.Topology, error) {
	lease, err := c.core.gate.Acquire(ctx)
	if err != nil {
		return c.current(), fmt.Errorf("acquire membership gate: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warnw("Membership gate release failed", "error", err.Error())
		}
	}()

	topo, err := c.proposeUnderLease(ctx, lease.Epoch(), kind, node)
	if errors.Is(err, errStaleBase) {
		// a voter knew a newer topology and we pulled it; try once more
		topo, err = c.proposeUnderLease(ctx, lease.Epoch(), kind, node)
	}
	return topo, err
}

var errStaleBase = errors.New("proposal based on a stale topology")

func (c *coordinatorService) proposeUnderLease(ctx context.Context, gateEpoch uint64, kind domain.ChangeKind, node domain.NodeDescriptor) (domain.Topology, error) {
	base := c.current()
	change := domain.MembershipChange{
		Epoch:    max(gateEpoch, base.Epoch+1),
		Kind:     kind,
		Node:     node,
		Proposer: c.core.self.ID,
	}
	next, _, err := base.Apply(change)
	if err != nil {
		return base, err
	}

	voters := base.InState(domain.StateActive)
	required := 0
	if len(voters) > 0 {
		required = len(voters)/2 + 1
	}

	accepted, newest := c.collectVotes(ctx, voters, domain.MembershipProposal{
		Phase:     domain.PhasePrepare,
		Change:    change,
		BaseEpoch: base.Epoch,
	})
	if newest.Epoch > base.Epoch {
		c.catchUp(ctx, newest.RingNode())
		if c.epoch() > base.Epoch {
			return base, errStaleBase
		}
	}
	if accepted < required {
		return base, fmt.Errorf("%w: %s of %s accepted by %d of %d active members",
			domain.ErrMembershipRejected, kind, node.NodeID, accepted, required)
	}

	c.install(next)
	c.broadcastCommit(ctx, next, change)
	c.core.sink.Emit(metrics.NodeStateChanges, 1, map[string]string{"state": string(kind.TargetState())})
	logger.Infow("Membership change committed",
		"epoch", next.Epoch, "change", string(kind), "node_id", node.NodeID, "votes", accepted, "required", required)
	return next, nil
}

// voterEpoch is the highest epoch a voter reported.
type voterEpoch struct {
	domain.NodeDescriptor
	Epoch uint64
}

// collectVotes sends a prepare to every voter in parallel. This node votes
// for its own proposal when it is a voter.
func (c *coordinatorService) collectVotes(ctx context.Context, voters []domain.NodeDescriptor, proposal domain.MembershipProposal) (int, voterEpoch) {
	var (
		mu       sync.Mutex
		accepted int
		newest   voterEpoch
		g        errgroup.Group
	)
	for _, v := range voters {
		if v.NodeID == c.core.self.ID {
			mu.Lock()
			accepted++
			mu.Unlock()
			continue
		}
		voter := v
		g.Go(func() error {
			rpcCtx, cancel := context.WithTimeout(ctx, membershipRPCTimeout)
			defer cancel()

			vote, err := c.core.peers.Membership(rpcCtx, voter.RingNode(), proposal)
			if err != nil {
				logger.Warnw("Membership prepare failed", "voter", voter.NodeID, "error", err.Error())
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if vote.Accepted {
				accepted++
			} else {
				logger.Infow("Membership prepare rejected", "voter", voter.NodeID, "reason", vote.Reason)
			}
			if vote.Epoch > newest.Epoch {
				newest = voterEpoch{NodeDescriptor: voter, Epoch: vote.Epoch}
			}
			return nil
		})
	}
	_ = g.Wait()
	return accepted, newest
}

// broadcastCommit sends the committed topology to every member and to the
// subject of the change. Members that miss it catch up through heartbeats.
func (c *coordinatorService) broadcastCommit(ctx context.Context, topo domain.Topology, change domain.MembershipChange) {
	targets := make(map[string]hashring.Node, len(topo.Members)+1)
	for _, m := range topo.Members {
		targets[m.NodeID] = m.RingNode()
	}
	targets[change.Node.NodeID] = change.Node.RingNode()
	delete(targets, c.core.self.ID)

	proposal := domain.MembershipProposal{Phase: domain.PhaseCommit, Change: change, Topology: topo}
	var g errgroup.Group
	for _, t := range targets {
		target := t
		g.Go(func() error {
			rpcCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), membershipRPCTimeout)
			defer cancel()
			if _, err := c.core.peers.Membership(rpcCtx, target, proposal); err != nil {
				logger.Warnw("Membership commit not delivered", "target", target.ID, "epoch", topo.Epoch, "error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()
}

// membership handles a remote proposal.
func (c *coordinatorService) membership(_ context.Context, p domain.MembershipProposal) (domain.MembershipVote, error) {
	switch p.Phase {
	case domain.PhasePrepare:
		cur := c.current()
		if p.BaseEpoch < cur.Epoch {
			return domain.MembershipVote{Epoch: cur.Epoch, Reason: "stale base epoch"}, nil
		}
		if p.BaseEpoch == cur.Epoch {
			if err := cur.Validate(p.Change); err != nil {
				return domain.MembershipVote{Epoch: cur.Epoch, Reason: err.Error()}, nil
			}
		}
		return domain.MembershipVote{Accepted: true, Epoch: cur.Epoch}, nil

	case domain.PhaseCommit:
		if p.Topology.Epoch == 0 {
			return domain.MembershipVote{}, fmt.Errorf("%w: commit without topology", domain.ErrMembershipRejected)
		}
		c.install(p.Topology)
		return domain.MembershipVote{Accepted: true, Epoch: c.epoch()}, nil

	default:
		return domain.MembershipVote{}, fmt.Errorf("%w: unknown phase %q", domain.ErrMembershipRejected, p.Phase)
	}
}

// join admits a node as Joining. A retried join returns the same answer. A
// member that restarted with a newer term is removed first.
func (c *coordinatorService) join(ctx context.Context, req domain.JoinRequest) (domain.JoinResponse, error) {
	if req.NodeID == "" || req.Address == "" {
		return domain.JoinResponse{}, fmt.Errorf("%w: node id and address are required", domain.ErrMembershipRejected)
	}

	cur := c.current()
	node := domain.NodeDescriptor{NodeID: req.NodeID, Address: req.Address, Term: req.Term}
	if m, ok := cur.Member(req.NodeID); ok {
		switch {
		case m.State == domain.StateJoining && m.Address == req.Address:
			return c.joinResponse(req.NodeID, cur), nil
		case req.Term > m.Term && m.State != domain.StateJoining:
			logger.Infow("Member restarted, replacing", "node_id", req.NodeID, "old_term", m.Term, "new_term", req.Term)
			if _, err := c.propose(ctx, domain.ChangeDead, m); err != nil {
				return domain.JoinResponse{}, err
			}
		}
	}

	topo, err := c.propose(ctx, domain.ChangeJoin, node)
	if err != nil {
		return domain.JoinResponse{}, err
	}
	return c.joinResponse(req.NodeID, topo), nil
}

func (c *coordinatorService) joinResponse(nodeID string, topo domain.Topology) domain.JoinResponse {
	return domain.JoinResponse{
		Tokens:   hashring.TokenHashes(nodeID, topo.VirtualNodes),
		Topology: topo,
	}
}

// activate moves a Joining node onto the ring.
func (c *coordinatorService) activate(ctx context.Context, nodeID string) error {
	m, ok := c.current().Member(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s is not a member", domain.ErrMembershipRejected, nodeID)
	}
	if m.State == domain.StateActive {
		return nil
	}
	_, err := c.propose(ctx, domain.ChangeActivate, m)
	return err
}
