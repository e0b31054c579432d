package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		OpenTimeout:      200 * time.Millisecond,
	})

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), errBoom)
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenTransitions(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []CircuitBreakerState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "peer",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
		Now:              clock.Now,
		OnStateChange: func(_ string, _, to CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})

	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitOpen, cb.State())

	clock.Advance(time.Second)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, CircuitClosed, cb.State())

	// a failure in half-open reopens immediately
	_ = cb.Execute(context.Background(), fail)
	clock.Advance(time.Second)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, CircuitOpen, cb.State())

	assert.Equal(t, []CircuitBreakerState{
		CircuitOpen, CircuitHalfOpen, CircuitClosed, CircuitOpen, CircuitHalfOpen, CircuitOpen,
	}, transitions)
}

func TestCircuitBreakerOpenErrorCarriesRetryAfter(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "node-a:8081",
		FailureThreshold: 1,
		OpenTimeout:      200 * time.Millisecond,
		Now:              clock.Now,
	})

	_ = cb.Execute(context.Background(), fail)
	clock.Advance(50 * time.Millisecond)

	err := cb.Execute(context.Background(), ok)
	require.ErrorIs(t, err, ErrCircuitOpen)

	var openErr *CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 150*time.Millisecond, openErr.RetryAfter)
	assert.Equal(t, "node-a:8081", openErr.Name)

	hint, open := RetryAfterHint(err)
	assert.True(t, open)
	assert.Equal(t, 150*time.Millisecond, hint)
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	errRouting := errors.New("not owner")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, errRouting)
		},
	})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return errRouting }), errRouting)
	}
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakerSet(t *testing.T) {
	set := NewBreakerSet(CircuitBreakerConfig{FailureThreshold: 1})

	a := set.Get("a:1")
	assert.Same(t, a, set.Get("a:1"))
	assert.Equal(t, "a:1", a.Name())

	_ = a.Execute(context.Background(), fail)
	assert.Equal(t, CircuitOpen, set.Get("a:1").State())
	assert.Equal(t, CircuitClosed, set.Get("b:1").State())

	set.Forget("a:1")
	assert.Equal(t, CircuitClosed, set.Get("a:1").State())
}
