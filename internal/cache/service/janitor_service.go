package service

import (
	"context"
	"time"

	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
	"github.com/anthanhphan/gosdk/logger"
)

// janitorService purges expired entries and old tombstones and reports
// store gauges.
type janitorService struct {
	core *CacheServiceImpl
}

// newJanitorService creates janitor use-case service.
func newJanitorService(core *CacheServiceImpl) *janitorService {
	return &janitorService{core: core}
}

func (j *janitorService) run(ctx context.Context) {
	ticker := time.NewTicker(j.core.cfg.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *janitorService) sweep() {
	now := j.core.now()
	expired := j.core.store.PurgeExpired(now)
	tombstones := j.core.store.PurgeTombstones(now.Add(-j.core.cfg.TombstoneGrace))

	stats := j.core.store.Stats()
	j.core.sink.Emit(metrics.StoreBytes, float64(stats.Bytes), nil)
	j.core.sink.Emit(metrics.StoreEntries, float64(stats.Entries), nil)

	if expired > 0 || tombstones > 0 {
		logger.Debugw("Janitor sweep", "expired", expired, "tombstones", tombstones, "entries", stats.Entries)
	}
}
