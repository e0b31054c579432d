package service

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/pkg/hashring"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

// loadTimeout bounds one backing-source read. The read outlives the caller
// that started it so that callers waiting on the same key still get it.
const loadTimeout = 5 * time.Second

// keyOpsService serves client reads and writes for keys this node owns.
type keyOpsService struct {
	core  *CacheServiceImpl
	fills singleflight.Group
}

// newKeyOpsService creates key operations use-case service.
func newKeyOpsService(core *CacheServiceImpl) *keyOpsService {
	return &keyOpsService{core: core}
}

// route returns the owners of key and this node's position among them, or
// a NotOwnerError when this node is not one of them.
func (s *keyOpsService) route(key string) ([]hashring.Node, int, error) {
	if key == "" {
		return nil, -1, domain.ErrInvalidKey
	}
	owners := s.core.ring.Owners(key, s.core.cfg.ReplicationFactor)
	for i, n := range owners {
		if n.ID == s.core.self.ID {
			return owners, i, nil
		}
	}
	err := &domain.NotOwnerError{Key: key, NodeID: s.core.self.ID, Epoch: s.core.coordinator.epoch()}
	if len(owners) > 0 {
		err.Owner = owners[0].ID
	}
	return owners, -1, err
}

// get serves reads on any owner. Primaries fall back to previous owners
// during a migration window and then to the backing source.
func (s *keyOpsService) get(ctx context.Context, key string) (domain.Entry, bool, error) {
	owners, idx, err := s.route(key)
	if err != nil {
		return domain.Entry{}, false, err
	}

	if entry, ok := s.core.store.Get(key); ok {
		return entry, true, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Entry{}, false, err
	}

	if entry, ok := s.core.migration.readThrough(ctx, key); ok {
		return entry, true, nil
	}

	if idx == 0 && s.core.loader != nil {
		return s.fill(ctx, key, owners)
	}
	return domain.Entry{}, false, nil
}

type fillResult struct {
	entry domain.Entry
	found bool
}

// fill loads a missing key once no matter how many readers ask for it and
// caches it like a regular write.
func (s *keyOpsService) fill(ctx context.Context, key string, owners []hashring.Node) (domain.Entry, bool, error) {
	ch := s.fills.DoChan(key, func() (any, error) {
		if entry, ok := s.core.store.Get(key); ok {
			return fillResult{entry: entry, found: true}, nil
		}

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		value, ttl, found, err := s.core.loader.Load(loadCtx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return fillResult{}, nil
		}

		version, err := s.core.replication.write(loadCtx, key, value, ttl, owners, false)
		if err != nil {
			return nil, err
		}
		s.core.sink.Emit(metrics.LoaderFills, 1, nil)

		entry := domain.Entry{Key: key, Value: value, Version: version}
		if ttl > 0 {
			entry.ExpiresAt = s.core.now().Add(ttl)
		}
		return fillResult{entry: entry, found: true}, nil
	})

	select {
	case <-ctx.Done():
		return domain.Entry{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			logger.Warnw("Read-through load failed", "key", key, "error", res.Err.Error())
			return domain.Entry{}, false, res.Err
		}
		r := res.Val.(fillResult)
		return r.entry, r.found, nil
	}
}

// set writes on the primary and replicates per the configured mode.
func (s *keyOpsService) set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	owners, idx, err := s.route(key)
	if err != nil {
		return 0, err
	}
	if idx != 0 {
		return 0, &domain.NotOwnerError{Key: key, NodeID: s.core.self.ID, Owner: owners[0].ID, Epoch: s.core.coordinator.epoch()}
	}
	return s.core.replication.write(ctx, key, value, ttl, owners, s.core.cfg.Mode == ReplicationSync)
}

// delete tombstones the key on the primary and replicates the tombstone.
func (s *keyOpsService) delete(ctx context.Context, key string) (bool, error) {
	owners, idx, err := s.route(key)
	if err != nil {
		return false, err
	}
	if idx != 0 {
		return false, &domain.NotOwnerError{Key: key, NodeID: s.core.self.ID, Owner: owners[0].ID, Epoch: s.core.coordinator.epoch()}
	}
	return s.core.replication.remove(ctx, key, owners, s.core.cfg.Mode == ReplicationSync)
}

// applyReplicated applies a pushed version. Ownership is not checked: the
// sender may be migrating ranges under a ring this node has not seen yet.
func (s *keyOpsService) applyReplicated(_ context.Context, msg domain.ReplicationMessage) (domain.ApplyResult, error) {
	if msg.Key == "" {
		return 0, domain.ErrInvalidKey
	}
	res, err := s.core.store.ApplyReplicated(msg)
	if err != nil {
		return 0, err
	}
	if res == domain.Stale {
		s.core.sink.Emit(metrics.ReplicationStale, 1, nil)
	}
	return res, nil
}
