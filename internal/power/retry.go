package power

import (
	"context"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 250 * time.Millisecond
)

// RetryPolicy controls Retry.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed wait between a failed attempt and the next.
	Delay time.Duration

	// AttemptTimeout, when positive, bounds each attempt's context.
	AttemptTimeout time.Duration

	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool

	// OnRetry, when set, is called before each wait with the 1-based number
	// of the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns 3 attempts 250ms apart, retrying everything.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultRetryDelay,
	}
}

// Retry runs action until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. The final error is returned unchanged so callers
// can still match its kind with errors.Is.
//
// The wait between attempts selects on ctx; if ctx ends while waiting, its
// error is returned instead.
//
// Example:
//
//	result, err := power.Retry(ctx, power.DefaultRetryPolicy(),
//	    func(ctx context.Context) (int, error) { return ping(ctx) })
func Retry[T any](ctx context.Context, policy RetryPolicy, action func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(policy.MaxAttempts, 1)

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := runAttempt(ctx, policy.AttemptTimeout, action)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			break
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err)
		}

		timer := time.NewTimer(policy.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, action func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return action(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return action(attemptCtx)
}
