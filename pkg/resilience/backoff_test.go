package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 10 * time.Millisecond},
		{attempt: 1, want: 20 * time.Millisecond},
		{attempt: 2, want: 40 * time.Millisecond},
		{attempt: 3, want: 50 * time.Millisecond},
		{attempt: 10, want: 50 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Equal(t, DefaultBackoff.Initial, Backoff{}.Delay(0))
}

func TestRetry(t *testing.T) {
	fast := Backoff{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 2}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 3, fast, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("bounded attempts", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), 4, fast, func(context.Context) error {
			calls++
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 4, calls)
	})

	t.Run("permanent stops immediately", func(t *testing.T) {
		calls := 0
		errStale := errors.New("stale")
		err := Retry(context.Background(), 5, fast, func(context.Context) error {
			calls++
			return Permanent(errStale)
		})
		assert.Equal(t, errStale, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("canceled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Retry(ctx, 5, Backoff{Initial: time.Hour}, func(context.Context) error {
			calls++
			cancel()
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, calls)
	})
}

func TestSleepContext(t *testing.T) {
	assert.True(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, SleepContext(ctx, time.Hour))
	assert.False(t, SleepContext(ctx, 0))
}
