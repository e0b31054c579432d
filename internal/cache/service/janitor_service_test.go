package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/adapter/outbound/memstore"
	"github.com/anthanhphan/go-distributed-cache/internal/cache/service/mocks"
	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
)

func TestJanitorService_Sweep(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	clock := newFakeClock()
	store, err := memstore.New(memstore.Config{Capacity: 1 << 20}, memstore.WithClock(clock.Now))
	require.NoError(t, err)
	rec := &metrics.Recorder{}
	cfg := testConfig("A")
	cfg.ReplicationFactor = 1
	svc := newTestService(t, cfg, store, mocks.NewMockPeerClient(ctrl), mocks.NewMockMembershipGate(ctrl),
		activeTopology(1, "A"), WithClock(clock.Now), WithMetrics(rec))

	ctx := context.Background()
	_, err = svc.Set(ctx, "short", []byte("v"), time.Second)
	require.NoError(t, err)
	_, err = svc.Set(ctx, "long", []byte("v"), 0)
	require.NoError(t, err)
	_, err = svc.Set(ctx, "removed", []byte("v"), 0)
	require.NoError(t, err)
	_, err = svc.Delete(ctx, "removed")
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	svc.janitor.sweep()
	stats := store.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, 1, stats.Tombstones, "tombstone kept within grace")

	clock.Advance(cfg.TombstoneGrace)
	svc.janitor.sweep()
	assert.Equal(t, 0, store.Stats().Tombstones)

	entries, ok := rec.Last(metrics.StoreEntries)
	require.True(t, ok)
	assert.Equal(t, float64(1), entries)
	bytes, ok := rec.Last(metrics.StoreBytes)
	require.True(t, ok)
	assert.Positive(t, bytes)
}
