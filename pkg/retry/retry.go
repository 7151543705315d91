package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MimeLyc/slidesage/pkg/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMultiplier  = 2.0
)

// Policy bounds a retried operation.
//
// The wait before attempt i+1 is BaseDelay * Multiplier^(i-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Name labels log lines.
	Name string

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns the 3 attempts / 2s / x2 policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Multiplier:  DefaultMultiplier,
	}
}

// WithName returns a copy of p labelled name.
func (p Policy) WithName(name string) Policy {
	p.Name = name
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	d := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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

// Do runs op until it succeeds, returns a permanent error, or the attempts are exhausted.
// The last error is returned after the final failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := p.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		ret, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("%s succeeded on attempt %d/%d", p.label(), attempt, maxAttempts)
			}
			return ret, nil
		}
		lastErr = err

		if IsPermanent(err) {
			log.Warn("%s failed permanently on attempt %d/%d: %v", p.label(), attempt, maxAttempts, err)
			return zero, err
		}
		if attempt == maxAttempts {
			log.Error("All %d attempts failed for %s: %v", maxAttempts, p.label(), err)
			break
		}

		wait := p.Delay(attempt)
		log.Warn("Attempt %d/%d failed for %s: %v. Retrying in %s", attempt, maxAttempts, p.label(), err, wait)
		if err := p.sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return zero, lastErr
}

func (p Policy) label() string {
	if p.Name == "" {
		return "operation"
	}
	return p.Name
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked permanent, or declares itself non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return !r.Retryable()
	}
	return false
}
