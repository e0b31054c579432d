package redisloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func (f *fakeReader) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeReader) PTTL(_ context.Context, key string) *redis.DurationCmd {
	ttl, ok := f.ttls[key]
	if !ok {
		ttl = -1
	}
	return redis.NewDurationResult(ttl, nil)
}

func TestLoader(t *testing.T) {
	fake := &fakeReader{
		values: map[string]string{"src:a": "1", "src:b": "2"},
		ttls:   map[string]time.Duration{"src:a": 5 * time.Second},
	}
	loader := New(fake, Config{KeyPrefix: "src:", DefaultTTLMS: 60000})
	ctx := context.Background()

	value, ttl, found, err := loader.Load(ctx, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("1"), value)
	assert.Equal(t, 5*time.Second, ttl)

	_, ttl, found, err = loader.Load(ctx, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.Minute, ttl)

	_, _, found, err = loader.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoader_Error(t *testing.T) {
	loader := New(&fakeReader{err: errors.New("connection refused")}, Config{})
	_, _, found, err := loader.Load(context.Background(), "a")
	assert.Error(t, err)
	assert.False(t, found)
}
