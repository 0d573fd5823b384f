package graphql

import (
	"context"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	sferrors "github.com/R3E-Network/miniapp_storefront/internal/errors"
)

// =============================================================================
// Retry
// =============================================================================

// RetryConfig controls how idempotent queries are retried. Mutations are never
// retried: replaying a draft creation could duplicate the order.
type RetryConfig struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// Jitter is the fraction of the backoff randomized either way (0.0 to 1.0).
	Jitter               float64
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (rc RetryConfig) backoff(attempt int) time.Duration {
	mult := rc.BackoffMultiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(rc.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if rc.MaxBackoff > 0 && d > float64(rc.MaxBackoff) {
		d = float64(rc.MaxBackoff)
	}
	if rc.Jitter > 0 {
		d += d * rc.Jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (rc RetryConfig) retryableStatus(code int) bool {
	for _, c := range rc.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// retryable reports whether a failed attempt may be repeated.
func (rc RetryConfig) retryable(err error) bool {
	var te *sferrors.TransportError
	if !sferrors.As(err, &te) {
		return false
	}
	if sferrors.Is(te.Err, context.Canceled) || sferrors.Is(te.Err, context.DeadlineExceeded) {
		return false
	}
	if te.StatusCode != 0 {
		return rc.retryableStatus(te.StatusCode)
	}
	var netErr net.Error
	if sferrors.As(te.Err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker. A zero FailureThreshold
// disables the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	// OpenTimeout is how long the circuit stays open before a trial request is let through.
	OpenTimeout   time.Duration
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns the breaker settings used when none are configured.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenTimeout:      15 * time.Second,
	}
}

// CircuitBreaker stops calling a backend that keeps failing at the transport level.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg       CircuitBreakerConfig
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
	// trial is set while the single half-open request is in flight.
	trial bool
	now   func() time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, state: CircuitClosed, now: time.Now}
}

// Allow returns ErrCircuitOpen while the circuit is open. Once the open
// timeout passes it admits one trial request at a time until that request
// records its outcome or is released.
func (cb *CircuitBreaker) Allow() error {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return nil
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.openedAt) < cb.cfg.OpenTimeout {
			return sferrors.ErrCircuitOpen
		}
		cb.transitionTo(CircuitHalfOpen)
	}
	if cb.state == CircuitHalfOpen {
		if cb.trial {
			return sferrors.ErrCircuitOpen
		}
		cb.trial = true
	}
	return nil
}

// Release ends an admitted request without recording an outcome, so the
// next half-open trial can start.
func (cb *CircuitBreaker) Release() {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trial = false
}

// RecordSuccess records a request that reached the backend.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.trial = false
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

// RecordFailure records a transport failure.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) transitionTo(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.trial = false
	if next == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.cfg.OnStateChange != nil && prev != next {
		go cb.cfg.OnStateChange(prev, next)
	}
}
