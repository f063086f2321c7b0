// Package backoff retries operations with exponential delays and jitter.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExhausted wraps the last error once every attempt failed.
var ErrMaxAttemptsExhausted = errors.New("max retry attempts exhausted")

// Policy shapes the delay between attempts.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// Jitter adds up to this fraction of the delay at random.
	Jitter float64
}

// DefaultPolicy is 200ms doubling to at most 10s with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 200 * time.Millisecond,
		Max:     10 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// Delay returns the wait after the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delay(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

func (p Policy) delay(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	if p.Max > 0 {
		total = math.Min(total, float64(p.Max))
	}
	return time.Duration(total)
}

// Retry calls fn until it succeeds, ctx ends or maxAttempts calls have
// failed. onRetry, if set, sees every failure that will be retried.
func Retry(ctx context.Context, p Policy, maxAttempts int, fn func(attempt int) error, onRetry func(attempt int, err error, wait time.Duration)) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}
		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		wait := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, lastErr, wait)
		}
		if err := Sleep(ctx, wait); err != nil {
			return errors.Join(err, lastErr)
		}
	}
	return errors.Join(ErrMaxAttemptsExhausted, lastErr)
}

// Sleep waits for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
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
