package membership

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGate_Serializes(t *testing.T) {
	gate := NewLocalGate()
	ctx := context.Background()

	first, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Epoch())

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = gate.Acquire(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx), "release is idempotent")

	second, err := gate.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Epoch())
	require.NoError(t, second.Release(ctx))
}

// fakeRedis keeps the lock and the counter in memory.
type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	counter int64
	incrErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Incr(context.Context, string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return redis.NewIntResult(0, f.incrErr)
	}
	f.counter++
	return redis.NewIntResult(f.counter, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisGate_LockAndEpoch(t *testing.T) {
	fake := newFakeRedis()
	a := NewRedisGate(fake, "A", RedisConfig{PollMS: 5})
	b := NewRedisGate(fake, "B", RedisConfig{PollMS: 5})
	ctx := context.Background()

	lease, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lease.Epoch())

	acquired := make(chan uint64, 1)
	go func() {
		l, err := b.Acquire(ctx)
		if err == nil {
			acquired <- l.Epoch()
			_ = l.Release(ctx)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second gate acquired a held lock")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, lease.Release(ctx))
	select {
	case epoch := <-acquired:
		assert.Equal(t, uint64(2), epoch)
	case <-time.After(time.Second):
		t.Fatal("second gate never acquired the lock")
	}
}

func TestRedisGate_ReleaseAfterExpiry(t *testing.T) {
	fake := newFakeRedis()
	gate := NewRedisGate(fake, "A", RedisConfig{})

	lease, err := gate.Acquire(context.Background())
	require.NoError(t, err)

	// the lock expired and another node took it
	fake.values["cache:membership:lock"] = "B/1"
	assert.ErrorIs(t, lease.Release(context.Background()), ErrLeaseLost)
}

func TestRedisGate_EpochFailureReleasesLock(t *testing.T) {
	fake := newFakeRedis()
	fake.incrErr = errors.New("READONLY")
	gate := NewRedisGate(fake, "A", RedisConfig{})

	_, err := gate.Acquire(context.Background())
	require.Error(t, err)
	assert.Empty(t, fake.values)
}

func TestEtcdGate_UnreachableRespectsDeadline(t *testing.T) {
	client, err := NewEtcdClient(EtcdConfig{Endpoints: []string{"127.0.0.1:1"}, DialTimeoutMS: 50})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	gate := NewEtcdGate(client, EtcdConfig{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = gate.Acquire(ctx)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NoError(t, gate.Close())
}
