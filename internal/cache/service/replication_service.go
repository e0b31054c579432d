package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/go-distributed-cache/pkg/resilience"
	"github.com/anthanhphan/gosdk/logger"
)

// pendingWrite tracks one write from Pending through Acked(k) to Committed,
// or to TimedOut when the caller stops waiting. The primary's own copy
// counts as the first ack.
type pendingWrite struct {
	id       int64
	key      string
	version  uint64
	required int
	acked    int
	waiting  int
	failed   []string
	quorum   chan struct{} // closed when acked reaches required
	settled  chan struct{} // closed when every replica answered or gave up
}

// replicationService fans writes out to replicas on the worker pool.
type replicationService struct {
	core *CacheServiceImpl

	mu     sync.Mutex
	writes map[int64]*pendingWrite
	seq    atomic.Int64
}

// newReplicationService creates replication use-case service.
func newReplicationService(core *CacheServiceImpl) *replicationService {
	return &replicationService{
		core:   core,
		writes: make(map[int64]*pendingWrite),
	}
}

// write stores key locally, pinned until replication resolves, then
// replicates it to owners[1:]. With wait set it blocks until the write
// quorum acknowledged or the replication timeout passed.
func (s *replicationService) write(ctx context.Context, key string, value []byte, ttl time.Duration, owners []hashring.Node, wait bool) (uint64, error) {
	replicas := owners[1:]
	version, err := s.core.store.Set(key, value, ttl, len(replicas) > 0)
	if err != nil {
		return 0, err
	}
	s.checkDegraded(key, owners)
	if len(replicas) == 0 {
		return version, nil
	}

	msg, ok := s.core.store.Export(key)
	if !ok {
		msg = domain.ReplicationMessage{Key: key, Value: value, Version: version}
	}
	msg.Origin = s.core.self.ID
	return version, s.replicate(ctx, msg, version, replicas, wait)
}

// remove deletes key locally and replicates the tombstone.
func (s *replicationService) remove(ctx context.Context, key string, owners []hashring.Node, wait bool) (bool, error) {
	existed, version := s.core.store.Delete(key)
	s.checkDegraded(key, owners)
	replicas := owners[1:]
	if len(replicas) == 0 {
		return existed, nil
	}

	msg, ok := s.core.store.Export(key)
	if !ok {
		msg = domain.ReplicationMessage{Key: key, Version: version, Tombstone: true}
	}
	msg.Origin = s.core.self.ID
	return existed, s.replicate(ctx, msg, version, replicas, wait)
}

func (s *replicationService) checkDegraded(key string, owners []hashring.Node) {
	if len(owners) >= s.core.cfg.ReplicationFactor {
		return
	}
	s.core.sink.Emit(metrics.ReplicationDegraded, 1, nil)
	logger.Warnw("Replication degraded, not enough live owners",
		"key", key, "owners", len(owners), "replication_factor", s.core.cfg.ReplicationFactor)
}

func (s *replicationService) nextID() int64 {
	id, err := s.core.ids.Next()
	if err != nil {
		// negative IDs never collide with snowflake IDs
		return -s.seq.Add(1)
	}
	return id
}

func (s *replicationService) replicate(ctx context.Context, msg domain.ReplicationMessage, version uint64, replicas []hashring.Node, wait bool) error {
	w := &pendingWrite{
		id:       s.nextID(),
		key:      msg.Key,
		version:  version,
		required: min(s.core.cfg.Quorum(), len(replicas)+1),
		acked:    1,
		waiting:  len(replicas),
		quorum:   make(chan struct{}),
		settled:  make(chan struct{}),
	}
	if w.acked >= w.required {
		close(w.quorum)
	}

	s.mu.Lock()
	s.writes[w.id] = w
	s.mu.Unlock()

	for _, replica := range replicas {
		target := replica
		job := func() {
			s.resolve(w, target, s.push(s.core.bgCtx, target, msg))
		}
		if err := s.core.pool.Submit(ctx, job); err != nil {
			s.resolve(w, target, err)
		}
	}

	if !wait {
		return nil
	}
	return s.await(ctx, w)
}

// await blocks until the write quorum is reached. A write that misses it
// still stands locally and keeps replicating in the background.
func (s *replicationService) await(ctx context.Context, w *pendingWrite) error {
	timer := time.NewTimer(s.core.cfg.ReplicationTimeout)
	defer timer.Stop()

	select {
	case <-w.quorum:
		return nil
	case <-w.settled:
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-w.quorum:
		return nil
	default:
	}

	s.mu.Lock()
	acked := w.acked
	s.mu.Unlock()

	s.core.sink.Emit(metrics.ReplicationTimeouts, 1, nil)
	logger.Warnw("Write quorum not reached",
		"write_id", w.id, "key", w.key, "version", w.version, "acked", acked, "required", w.required)
	return &domain.ReplicationTimeoutError{Key: w.key, Version: w.version, Acked: acked, Required: w.required}
}

// push delivers msg to one replica with bounded retries.
func (s *replicationService) push(ctx context.Context, target hashring.Node, msg domain.ReplicationMessage) error {
	attempts := s.core.cfg.ReplicationRetries + 1
	return resilience.Retry(ctx, attempts, s.core.cfg.RetryBackoff, func(ctx context.Context) error {
		_, err := s.core.peers.ApplyReplicated(ctx, target, msg)
		if errors.Is(err, domain.ErrCapacityExceeded) || errors.Is(err, domain.ErrInvalidKey) {
			return resilience.Permanent(err)
		}
		return err
	})
}

// resolve records one replica's outcome. A Stale answer is an ack: the
// replica already holds this version or a newer one.
func (s *replicationService) resolve(w *pendingWrite, target hashring.Node, err error) {
	s.mu.Lock()
	w.waiting--
	if err == nil {
		w.acked++
		if w.acked == w.required {
			close(w.quorum)
		}
	} else {
		w.failed = append(w.failed, target.ID)
	}
	settled := w.waiting == 0
	if settled {
		delete(s.writes, w.id)
	}
	s.mu.Unlock()

	if err != nil {
		s.core.sink.Emit(metrics.ReplicationAbandoned, 1, map[string]string{"replica": target.ID})
		logger.Warnw("Replication to replica abandoned",
			"write_id", w.id, "key", w.key, "version", w.version, "replica", target.ID, "error", err.Error())
	}
	if !settled {
		return
	}
	s.core.store.MarkResolved(w.key, w.version)
	if len(w.failed) == 0 {
		logger.Debugw("Write committed", "write_id", w.id, "key", w.key, "version", w.version)
	}
	close(w.settled)
}

// pending returns the number of writes still replicating.
func (s *replicationService) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}
