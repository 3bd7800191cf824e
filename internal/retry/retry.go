// Package retry runs an operation under an exponential backoff policy that
// only retries errors a predicate classifies as transient.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/54b3r/coderag-go/internal/logging"
)

const (
	// DefaultMaxAttempts is the total number of calls, including the first.
	DefaultMaxAttempts = 5
	// DefaultBaseDelay is the wait before the first retry. It doubles on
	// every subsequent retry.
	DefaultBaseDelay = 2 * time.Second
	// DefaultMaxJitter bounds the uniform random delay added to each wait.
	DefaultMaxJitter = time.Second
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait before retry n (0-based) is BaseDelay * 2^n.
	BaseDelay time.Duration
	// MaxJitter bounds the random [0, MaxJitter) delay added to each wait.
	MaxJitter time.Duration
	// Retryable reports whether err is worth another attempt. A nil
	// Retryable never retries.
	Retryable func(error) bool

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a value in [0, max). Tests replace it.
	jitter func(max time.Duration) time.Duration
}

// NewPolicy returns a Policy with the given retryable predicate and defaults
// for every zero field.
func NewPolicy(maxAttempts int, baseDelay, maxJitter time.Duration, retryable func(error) bool) Policy {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxJitter < 0 {
		maxJitter = 0
	}
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxJitter:   maxJitter,
		Retryable:   retryable,
	}
}

// WithSleep returns a copy of p that waits using sleep instead of a timer.
func (p Policy) WithSleep(sleep func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = sleep
	return p
}

// WithJitter returns a copy of p that draws jitter from jitter.
func (p Policy) WithJitter(jitter func(max time.Duration) time.Duration) Policy {
	p.jitter = jitter
	return p
}

// ExhaustedError is returned when every attempt failed with a retryable
// error.
type ExhaustedError struct {
	// Attempts is the number of calls made.
	Attempts int
	// Err is the error from the final attempt.
	Err error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Backoff returns the wait before retry n (0-based), excluding jitter.
func (p Policy) Backoff(n int) time.Duration {
	return p.BaseDelay << n
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// policy's attempts are used up. A non-retryable error is returned as is;
// exhaustion returns an *ExhaustedError. Cancellation during a wait returns
// ctx.Err().
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = uniformJitter
	}
	log := logging.FromContext(ctx)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.Backoff(attempt) + jitter(p.MaxJitter)
		log.Warn("retry: transient failure, backing off",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", err),
		)
		if err := sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// sleepContext waits for d, returning early with ctx.Err() if ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// uniformJitter returns a random duration in [0, max).
func uniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
