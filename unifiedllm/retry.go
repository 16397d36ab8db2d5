package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy is an exponential backoff schedule. The model client uses
// it through Retry; tool dispatch uses Sleep directly between attempts.
type RetryPolicy struct {
	MaxRetries int // attempts after the first
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the backoff used for model calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay returns the wait before retry n, counted from 0.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 0; i < n; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			break
		}
	}
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Sleep waits Delay(n) or until ctx is done, returning ctx.Err() in the
// latter case.
func (p RetryPolicy) Sleep(ctx context.Context, n int) error {
	return wait(ctx, p.Delay(n))
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy runs out of retries. A provider's RetryAfter replaces the
// computed delay; one longer than MaxDelay ends the retries.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := fn(ctx)
	for n := 0; err != nil && n < p.MaxRetries && IsRetryable(err); n++ {
		delay := p.Delay(n)
		var e *Error
		if errors.As(err, &e) && e.RetryAfter > 0 {
			if p.MaxDelay > 0 && e.RetryAfter > p.MaxDelay {
				break
			}
			delay = e.RetryAfter
		}
		if p.OnRetry != nil {
			p.OnRetry(err, n+1, delay)
		}
		if werr := wait(ctx, delay); werr != nil {
			var zero T
			return zero, fmt.Errorf("cancelled while waiting to retry: %w", werr)
		}
		result, err = fn(ctx)
	}
	return result, err
}
