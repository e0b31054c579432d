package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError reports circuit-open status with a concrete retry delay.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	retryAfter := max(e.RetryAfter, 0)
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, retryAfter)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, retryAfter)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RetryAfterHint extracts the wait suggested by an open breaker.
func RetryAfterHint(err error) (time.Duration, bool) {
	var openErr *CircuitOpenError
	if errors.As(err, &openErr) {
		return openErr.RetryAfter, true
	}
	if errors.Is(err, ErrCircuitOpen) {
		return 0, true
	}
	return 0, false
}

type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

type CircuitBreakerConfig struct {
	Name              string
	FailureThreshold  int
	SuccessThreshold  int
	OpenTimeout       time.Duration
	HalfOpenMaxFlight int

	// IsFailure decides whether an error counts against the peer. Errors
	// that prove the peer answered (e.g. a routing rejection) should not.
	// Defaults to every non-nil error. Context cancellation never counts.
	IsFailure func(error) bool

	// OnStateChange is called outside the breaker lock.
	OnStateChange func(name string, from, to CircuitBreakerState)

	Now func() time.Time
}

type CircuitBreaker struct {
	mu sync.Mutex

	cfg CircuitBreakerConfig

	state        CircuitBreakerState
	failureCount int
	successCount int
	openUntil    time.Time
	halfInFlight int
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.HalfOpenMaxFlight <= 0 {
		cfg.HalfOpenMaxFlight = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CircuitBreaker{
		cfg:   cfg,
		state: CircuitClosed,
	}
}

func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	from := cb.state
	cb.refreshLocked(cb.cfg.Now())
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return to
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	from := cb.state
	now := cb.cfg.Now()
	cb.refreshLocked(now)
	to := cb.state

	var err error
	switch cb.state {
	case CircuitOpen:
		err = cb.openErrLocked(now)
	case CircuitHalfOpen:
		if cb.halfInFlight >= cb.cfg.HalfOpenMaxFlight {
			err = cb.openErrLocked(now)
		} else {
			cb.halfInFlight++
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	from := cb.state

	if cb.state == CircuitHalfOpen && cb.halfInFlight > 0 {
		cb.halfInFlight--
	}

	switch {
	case errors.Is(err, context.Canceled):
		// caller gave up; no signal about the peer
	case err == nil || !cb.cfg.IsFailure(err):
		if cb.state == CircuitHalfOpen {
			cb.successCount++
			if cb.successCount >= cb.cfg.SuccessThreshold {
				cb.resetLocked(CircuitClosed)
			}
		} else {
			cb.failureCount = 0
		}
	case cb.state == CircuitHalfOpen:
		cb.tripLocked()
	default:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.tripLocked()
		}
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) refreshLocked(now time.Time) {
	if cb.state == CircuitOpen && !now.Before(cb.openUntil) {
		cb.resetLocked(CircuitHalfOpen)
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.resetLocked(CircuitOpen)
	cb.openUntil = cb.cfg.Now().Add(cb.cfg.OpenTimeout)
}

func (cb *CircuitBreaker) resetLocked(state CircuitBreakerState) {
	cb.state = state
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfInFlight = 0
}

func (cb *CircuitBreaker) openErrLocked(now time.Time) error {
	return &CircuitOpenError{
		Name:       cb.cfg.Name,
		RetryAfter: max(cb.openUntil.Sub(now), 0),
	}
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, from, to)
	}
}

// BreakerSet lazily keeps one breaker per peer.
type BreakerSet struct {
	mu       sync.Mutex
	template CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewBreakerSet creates breakers from template, overriding Name per peer.
func NewBreakerSet(template CircuitBreakerConfig) *BreakerSet {
	return &BreakerSet{
		template: template,
		breakers: make(map[string]*CircuitBreaker),
	}
}

func (s *BreakerSet) Get(name string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[name]; ok {
		return cb
	}
	cfg := s.template
	cfg.Name = name
	cb := NewCircuitBreaker(cfg)
	s.breakers[name] = cb
	return cb
}

// Forget drops the breaker of a peer that left the cluster.
func (s *BreakerSet) Forget(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.breakers, name)
}
