package port

import (
	"context"
	"time"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
)

// KeyService is what the HTTP surface needs from the cache client.
type KeyService interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error)
	Delete(ctx context.Context, key string) (bool, error)
	Topology() domain.Topology
}
