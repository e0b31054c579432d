package port

import (
	"context"
	"time"
)

//go:generate mockgen -destination=../service/mocks/loader_mock.go -package=mocks -source=loader.go

// Loader reads a missing key from the backing source.
type Loader interface {
	// Load returns the value and the TTL to cache it with. found is false
	// when the backing source has no value either.
	Load(ctx context.Context, key string) (value []byte, ttl time.Duration, found bool, err error)
}
