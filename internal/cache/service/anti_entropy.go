package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/merkle"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

// keyIndex is a Merkle tree over a key range together with the keys of
// each bucket.
type keyIndex struct {
	tree    *merkle.Tree
	buckets map[int][]domain.VersionedKey
}

// antiEntropyService periodically compares each primary range with its
// replicas and repairs divergence in both directions.
type antiEntropyService struct {
	core *CacheServiceImpl

	mu     sync.Mutex
	served map[string]*keyIndex // by primary, answering remote digests
}

// newAntiEntropyService creates anti-entropy use-case service.
func newAntiEntropyService(core *CacheServiceImpl) *antiEntropyService {
	return &antiEntropyService{
		core:   core,
		served: make(map[string]*keyIndex),
	}
}

func (s *antiEntropyService) run(ctx context.Context) {
	ticker := time.NewTicker(s.core.cfg.AntiEntropyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runRound(ctx)
		}
	}
}

// runRound reconciles this node's primary range with every live peer.
func (s *antiEntropyService) runRound(ctx context.Context) {
	snap := s.core.ring.Snapshot()
	for _, peer := range snap.Nodes() {
		if peer.ID == s.core.self.ID || snap.IsDown(peer.ID) {
			continue
		}
		if err := s.reconcile(ctx, snap, peer); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnw("AE: reconcile failed", "peer", peer.ID, "error", err.Error())
		}
	}
}

func (s *antiEntropyService) bucketOf(key string) int {
	return int(xxhash.Sum64String(key) % uint64(s.core.cfg.MerkleBuckets))
}

// index builds the tree over keys whose primary is primary and which holder
// also owns under snap.
func (s *antiEntropyService) index(snap *hashring.Snapshot, primary, holder string) (*keyIndex, error) {
	rf := s.core.cfg.ReplicationFactor
	buckets := make(map[int][]domain.VersionedKey)
	var items []merkle.Item

	s.core.store.Scan(func(msg domain.ReplicationMessage) bool {
		owners := snap.Owners(msg.Key, rf)
		if len(owners) == 0 || owners[0].ID != primary || !containsNode(owners, holder) {
			return true
		}
		items = append(items, merkle.Item{Key: msg.Key, Version: msg.Version})
		b := s.bucketOf(msg.Key)
		buckets[b] = append(buckets[b], domain.VersionedKey{Key: msg.Key, Version: msg.Version, Tombstone: msg.Tombstone})
		return true
	})

	tree, err := merkle.Build(s.core.cfg.MerkleBuckets, items, s.bucketOf)
	if err != nil {
		return nil, err
	}
	return &keyIndex{tree: tree, buckets: buckets}, nil
}

// reconcile diffs this node's range against peer, pushes versions the peer
// lacks and pulls versions the peer has newer.
func (s *antiEntropyService) reconcile(ctx context.Context, snap *hashring.Snapshot, peer hashring.Node) error {
	local, err := s.index(snap, s.core.self.ID, peer.ID)
	if err != nil {
		return err
	}
	epoch := s.core.coordinator.epoch()

	diff, err := merkle.Diff(ctx, local.tree, func(ctx context.Context, indices []int) ([]string, error) {
		resp, err := s.core.peers.Digest(ctx, peer, domain.DigestRequest{
			Primary: s.core.self.ID,
			Epoch:   epoch,
			Indices: toInt32(indices),
		})
		return resp.Hashes, err
	})
	if err != nil {
		return fmt.Errorf("diff: %w", err)
	}
	if len(diff) == 0 {
		s.core.sink.Emit(metrics.ReplicationLagVersions, 0, map[string]string{"peer": peer.ID})
		return nil
	}

	resp, err := s.core.peers.Digest(ctx, peer, domain.DigestRequest{
		Primary: s.core.self.ID,
		Epoch:   epoch,
		Buckets: toInt32(diff),
	})
	if err != nil {
		return fmt.Errorf("fetch buckets: %w", err)
	}
	remote := make(map[string]domain.VersionedKey, len(resp.Keys))
	for _, k := range resp.Keys {
		remote[k.Key] = k
	}

	var (
		lag     uint64
		repairs int
		pull    []string
	)
	for _, b := range diff {
		for _, lk := range local.buckets[b] {
			rk, ok := remote[lk.Key]
			delete(remote, lk.Key)
			if ok && rk.Version >= lk.Version {
				if rk.Version > lk.Version {
					pull = append(pull, lk.Key)
				}
				continue
			}
			if ok {
				lag += lk.Version - rk.Version
			} else {
				lag += lk.Version
			}

			msg, found := s.core.store.Export(lk.Key)
			if !found {
				continue
			}
			msg.Origin = s.core.self.ID
			if _, err := s.core.peers.ApplyReplicated(ctx, peer, msg); err != nil {
				return fmt.Errorf("push %q: %w", lk.Key, err)
			}
			repairs++
		}
	}
	for key := range remote {
		pull = append(pull, key)
	}

	if len(pull) > 0 {
		sort.Strings(pull)
		msgs, err := s.core.peers.FetchRange(ctx, peer, domain.RangeRequest{Requester: s.core.self.ID, Keys: pull})
		if err != nil {
			return fmt.Errorf("pull: %w", err)
		}
		for _, msg := range msgs {
			res, err := s.core.store.ApplyReplicated(msg)
			if err != nil {
				logger.Warnw("AE: apply pulled version failed", "key", msg.Key, "error", err.Error())
				continue
			}
			if res == domain.Applied {
				repairs++
			}
		}
	}

	s.core.sink.Emit(metrics.ReplicationLagVersions, float64(lag), map[string]string{"peer": peer.ID})
	if repairs > 0 {
		s.core.sink.Emit(metrics.AntiEntropyRepairs, float64(repairs), map[string]string{"peer": peer.ID})
		logger.Infow("AE: repaired divergence", "peer", peer.ID, "buckets", len(diff), "repairs", repairs)
	}
	return nil
}

// digest answers a peer's tree walk over the range it is primary for. A
// root query rebuilds the tree; deeper queries reuse it so one walk sees a
// consistent tree.
func (s *antiEntropyService) digest(_ context.Context, req domain.DigestRequest) (domain.DigestResponse, error) {
	if req.Primary == "" {
		return domain.DigestResponse{}, fmt.Errorf("digest: primary is required")
	}
	rebuild := len(req.Indices) == 1 && req.Indices[0] == 0
	idx, err := s.servedIndex(req.Primary, rebuild)
	if err != nil {
		return domain.DigestResponse{}, err
	}

	if len(req.Buckets) > 0 {
		var keys []domain.VersionedKey
		for _, b := range req.Buckets {
			keys = append(keys, idx.buckets[int(b)]...)
		}
		return domain.DigestResponse{Keys: keys}, nil
	}

	hashes, err := idx.tree.Nodes(toInts(req.Indices))
	if err != nil {
		return domain.DigestResponse{}, err
	}
	return domain.DigestResponse{Hashes: hashes}, nil
}

func (s *antiEntropyService) servedIndex(primary string, rebuild bool) (*keyIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.served[primary]; ok && !rebuild {
		return idx, nil
	}
	idx, err := s.index(s.core.ring.Snapshot(), primary, s.core.self.ID)
	if err != nil {
		return nil, err
	}
	s.served[primary] = idx
	return idx, nil
}

func containsNode(nodes []hashring.Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

func toInt32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func toInts(in []int32) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}
