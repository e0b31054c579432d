// Package redisloader reads cache misses from a Redis backing store.
package redisloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/port"
)

type Config struct {
	Addr         string `json:"addr" yaml:"addr"`
	Password     string `json:"password" yaml:"password"`
	DB           int    `json:"db" yaml:"db"`
	KeyPrefix    string `json:"key_prefix" yaml:"key_prefix"`
	DefaultTTLMS int    `json:"default_ttl_ms" yaml:"default_ttl_ms"`
}

// reader is the subset of redis.Cmdable the loader uses.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// Loader implements port.Loader. A value keeps its remaining Redis TTL in
// the cache; keys without one use the configured default.
type Loader struct {
	client     reader
	prefix     string
	defaultTTL time.Duration
}

func New(client reader, cfg Config) *Loader {
	return &Loader{
		client:     client,
		prefix:     cfg.KeyPrefix,
		defaultTTL: time.Duration(cfg.DefaultTTLMS) * time.Millisecond,
	}
}

var _ port.Loader = (*Loader)(nil)

func (l *Loader) Load(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	redisKey := l.prefix + key

	value, err := l.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("load %q: %w", key, err)
	}

	ttl := l.defaultTTL
	// PTTL is -1 without expiry and -2 if the key vanished since GET
	if remaining, err := l.client.PTTL(ctx, redisKey).Result(); err == nil && remaining > 0 {
		ttl = remaining
	}
	return value, ttl, true, nil
}
