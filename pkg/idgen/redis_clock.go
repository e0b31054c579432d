package idgen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anthanhphan/go-distributed-cache/pkg/metrics"
)

// Clock abstracts the time source for the ID generator.
type Clock interface {
	// Now returns the current timestamp in milliseconds.
	Now() int64
}

// SystemClock uses the local system time.
type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().UnixMilli()
}

// RedisClock reads Redis TIME so that every node shares one time source.
// A failed call falls back to the local clock and emits IDClockFallbacks.
type RedisClock struct {
	client  redis.Cmdable
	timeout time.Duration
	sink    metrics.Sink
}

func NewRedisClock(client redis.Cmdable, timeout time.Duration, sink metrics.Sink) *RedisClock {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &RedisClock{client: client, timeout: timeout, sink: sink}
}

func (r *RedisClock) Now() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	res, err := r.client.Time(ctx).Result()
	if err != nil {
		r.sink.Emit(metrics.IDClockFallbacks, 1, nil)
		return time.Now().UnixMilli()
	}
	return res.UnixMilli()
}
