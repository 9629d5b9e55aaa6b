package sandbox

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig tunes the retry loop around sandbox calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool
}

// DefaultRetryConfig matches the sandbox deployment defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		ExponentialBase: 2,
		Jitter:          true,
	}
}

// delayFor computes the backoff before the n-th retry (0-based). Jitter
// keeps the lower half of the window so delays never collapse to zero.
func (c RetryConfig) delayFor(retry int) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.ExponentialBase, float64(retry))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d = d/2 + rand.Float64()*d/2
	}
	return time.Duration(d)
}

// isRetryable reports whether a failed sandbox call is worth retrying.
// Transport errors and timeouts are; a parsed upstream response is only
// when it signals 5xx.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SandboxError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// retryWithBackoff runs fn until success, a non-retryable error, retries
// are exhausted, or the parent context is done.
func retryWithBackoff[T any](ctx context.Context, cfg RetryConfig, log zerolog.Logger, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.delayFor(attempt - 1)
			log.Debug().
				Str("operation", operation).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying sandbox call")
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !isRetryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
