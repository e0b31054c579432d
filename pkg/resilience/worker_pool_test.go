package resilience

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolExecutesJobs(t *testing.T) {
	pool := NewWorkerPool(3, 6)

	var count int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() {
			atomic.AddInt32(&count, 1)
		}))
	}

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Close()

	assert.ErrorIs(t, pool.Submit(context.Background(), func() {}), ErrWorkerPoolClosed)
	assert.ErrorIs(t, pool.TrySubmit(func() {}), ErrWorkerPoolClosed)
}

func TestWorkerPoolTrySubmitFull(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, pool.Submit(context.Background(), func() {
		close(started)
		<-release
	}))
	<-started
	assert.Equal(t, 1, pool.InFlight())

	require.NoError(t, pool.TrySubmit(func() {}))
	assert.Equal(t, 1, pool.Queued())
	assert.ErrorIs(t, pool.TrySubmit(func() {}), ErrWorkerPoolFull)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func() {}), context.DeadlineExceeded)

	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, 0, pool.InFlight())
}
