package resilience

import (
	"context"
	"errors"
	"time"
)

// Backoff computes exponential retry delays.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at 50ms and doubles up to 2s.
var DefaultBackoff = Backoff{
	Initial:    50 * time.Millisecond,
	Max:        2 * time.Second,
	Multiplier: 2,
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = DefaultBackoff.Initial
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = DefaultBackoff.Multiplier
	}

	d := float64(initial)
	for i := 0; i < attempt; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	return time.Duration(d)
}

// ErrPermanent marks an error that retrying cannot fix.
var ErrPermanent = errors.New("permanent error")

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
func (e *permanentError) Is(target error) bool {
	return target == ErrPermanent
}

// Permanent wraps err so Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to attempts times, sleeping between failures. An open
// circuit's retry hint replaces the computed delay when it is longer.
func Retry(ctx context.Context, attempts int, b Backoff, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			var pe *permanentError
			if errors.As(lastErr, &pe) {
				return pe.err
			}
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}

		wait := b.Delay(attempt)
		if hint, open := RetryAfterHint(lastErr); open && hint > wait {
			wait = hint
		}
		if !SleepContext(ctx, wait) {
			return lastErr
		}
	}
	return lastErr
}

// SleepContext waits for delay or exits early if ctx is canceled.
func SleepContext(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
