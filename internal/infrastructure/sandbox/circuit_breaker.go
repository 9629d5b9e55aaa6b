package sandbox

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mcpbox/internal/infrastructure/logger"
	"mcpbox/internal/infrastructure/metrics"
)

// BreakerState is the circuit breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures while closed open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive successes while half-open close it.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before allowing a probe.
	Timeout time.Duration
}

// DefaultBreakerConfig matches the sandbox deployment defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards the sandbox connection. While open, calls fail
// fast with *CircuitBreakerOpenError instead of piling onto a dead
// upstream.
type CircuitBreaker struct {
	mu              sync.Mutex
	cfg             BreakerConfig
	state           BreakerState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	logger zerolog.Logger
	now    func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBreakerConfig().Timeout
	}
	return &CircuitBreaker{
		cfg:    cfg,
		state:  StateClosed,
		logger: logger.Component("circuit-breaker"),
		now:    time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker past its
// timeout transitions to half-open and lets one probe through.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.now().Sub(b.lastFailureTime)
		if elapsed < b.cfg.Timeout {
			return &CircuitBreakerOpenError{RetryAfter: b.cfg.Timeout - elapsed}
		}
		b.transition(StateHalfOpen)
		b.successCount = 0
		return nil
	default:
		return nil
	}
}

// RecordSuccess registers one successful call.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

// RecordFailure registers one failed call. A failure recorded while the
// breaker is already open must not refresh last_failure_time, or a stream
// of in-flight failures would keep the breaker open forever.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
			b.lastFailureTime = b.now()
		}
	case StateHalfOpen:
		b.transition(StateOpen)
		b.lastFailureTime = b.now()
	case StateOpen:
		// keep the original stamp
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.logger.Warn().
		Str("from", string(b.state)).
		Str("to", string(to)).
		Int("failure_count", b.failureCount).
		Msg("circuit breaker state change")
	b.state = to
	metrics.SetCircuitBreakerState(string(to))
}
