package sandbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(failures, successes int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		FailureThreshold: failures,
		SuccessThreshold: successes,
		Timeout:          timeout,
	})
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	b := newTestBreaker(2, 2, 50*time.Millisecond)

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	var openErr *CircuitBreakerOpenError
	require.True(t, errors.As(err, &openErr))
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, openErr.RetryAfter, 50*time.Millisecond)
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(2, 2, 50*time.Millisecond)

	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State(), "non-consecutive failures must not open the breaker")
}

func TestBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	b := newTestBreaker(1, 2, 50*time.Millisecond)

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "one success below the threshold keeps it half-open")

	require.NoError(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(1, 2, 50*time.Millisecond)

	b.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Allow())
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	err := b.Allow()
	var openErr *CircuitBreakerOpenError
	require.True(t, errors.As(err, &openErr), "fresh open window starts from the half-open failure")
}

func TestBreaker_FailureWhileOpenKeepsOriginalStamp(t *testing.T) {
	b := newTestBreaker(1, 2, 50*time.Millisecond)

	base := time.Now()
	b.now = func() time.Time { return base }
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	// An in-flight call fails 40ms into the open window. If it refreshed
	// last_failure_time the breaker would still be open at +60ms.
	b.now = func() time.Time { return base.Add(40 * time.Millisecond) }
	b.RecordFailure()

	b.now = func() time.Time { return base.Add(60 * time.Millisecond) }
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
}
