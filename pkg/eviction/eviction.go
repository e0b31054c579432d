package eviction

import (
	"fmt"
	"strings"
	"time"
)

// Policy decides which key a store drops under memory pressure.
//
// Implementations are not safe for concurrent use; the owning store segment
// serializes calls under its own lock. EvictionCandidate only peeks, the store
// calls Remove once the entry is actually dropped.
type Policy interface {
	// Add starts tracking key, or refreshes it when already tracked.
	Add(key string, size int64, expiresAt time.Time)
	// Touch records a read of key.
	Touch(key string)
	// Remove stops tracking key.
	Remove(key string)
	// EvictionCandidate returns the key to drop next, if any.
	EvictionCandidate() (string, bool)
	// Len returns the number of tracked keys.
	Len() int
	// Size returns the summed size of tracked keys.
	Size() int64
	// Reclaimable returns the bytes that repeated EvictionCandidate/Remove
	// calls could free right now, leaving out exclude.
	Reclaimable(exclude string) int64
}

// PolicyType identifies an eviction strategy in configuration.
type PolicyType string

const (
	LRU    PolicyType = "lru"
	TTL    PolicyType = "ttl"
	Random PolicyType = "random"
)

// ParsePolicyType accepts the configured name case-insensitively.
func ParsePolicyType(s string) (PolicyType, error) {
	switch t := PolicyType(strings.ToLower(strings.TrimSpace(s))); t {
	case LRU, TTL, Random:
		return t, nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

type options struct {
	now         func() time.Time
	sampleSize  int
	randomIndex func(n int) int
}

// Option tunes a policy built by New.
type Option func(*options)

// WithClock overrides the time source used by the TTL policy.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithSampleSize sets how many keys the random policy samples per candidate.
func WithSampleSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sampleSize = n
		}
	}
}

// WithRandomIndex overrides the random policy's index source. fn must return a
// value in [0, n).
func WithRandomIndex(fn func(n int) int) Option {
	return func(o *options) {
		o.randomIndex = fn
	}
}

// New builds a fresh policy instance of type t.
func New(t PolicyType, opts ...Option) (Policy, error) {
	o := &options{
		now:        time.Now,
		sampleSize: defaultSampleSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	switch t {
	case LRU:
		return newLRU(), nil
	case TTL:
		return newTTL(o.now), nil
	case Random:
		return newRandom(o.sampleSize, o.randomIndex), nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q", t)
	}
}

// Factory builds one policy per store segment.
type Factory func() Policy

// NewFactory validates t once and returns a constructor for per-segment instances.
func NewFactory(t PolicyType, opts ...Option) (Factory, error) {
	if _, err := New(t, opts...); err != nil {
		return nil, err
	}
	return func() Policy {
		p, _ := New(t, opts...)
		return p
	}, nil
}
