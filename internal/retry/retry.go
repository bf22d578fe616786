// Package retry implements bounded retry policies for calls to remote services.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Op is a single attempt of a retried operation. Attempts are numbered from 1.
type Op func(ctx context.Context, attempt int) error

// FailureHook runs after a failed attempt, once the backoff delay has elapsed
// and before the next attempt starts. Returning an error aborts the loop.
type FailureHook func(ctx context.Context, attempt int, err error) error

// Policy configures how many attempts are made and how long to wait between them.
type Policy struct {
	MaxAttempts int           // Total attempts including the first one (minimum 1)
	Delay       time.Duration // Delay before the second attempt
	MaxDelay    time.Duration // Cap for growing delays (0 = no cap)
	Multiplier  float64       // Growth factor per attempt (<= 1 keeps the delay fixed)

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 5 attempts with a fixed 2 second delay.
func DefaultPolicy() Policy {
	return Fixed(5, 2*time.Second)
}

// Fixed returns a policy with a constant delay between attempts.
func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       delay,
		Multiplier:  1,
	}
}

// Exponential returns a policy whose delay doubles after every attempt up to maxDelay.
func Exponential(attempts int, delay, maxDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Delay:       delay,
		MaxDelay:    maxDelay,
		Multiplier:  2,
	}
}

// IsZero reports whether p is the unset Policy{}.
func (p Policy) IsZero() bool {
	return p.MaxAttempts == 0 && p.Delay == 0 && p.MaxDelay == 0 && p.Multiplier == 0 && p.Sleep == nil
}

// Attempts returns the effective number of attempts.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay to wait after the given failed attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := p.Delay
	if p.Multiplier <= 1 {
		return delay
	}
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// Do runs op until it succeeds, returns a permanent error, or the attempts are
// used up. The last error is wrapped in an *ExhaustedError.
func (p Policy) Do(ctx context.Context, op Op, hooks ...FailureHook) error {
	attempts := p.Attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		if err := p.sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}

		for _, hook := range hooks {
			if err := hook(ctx, attempt, lastErr); err != nil {
				return err
			}
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max attempts (%d) exceeded: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
