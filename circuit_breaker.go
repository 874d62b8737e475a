package go_nrepl

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState string

const (
	// CircuitClosed means dial attempts go through normally.
	CircuitClosed CircuitState = "closed"

	// CircuitOpen means dial attempts fail fast without touching the network.
	CircuitOpen CircuitState = "open"

	// CircuitHalfOpen means one attempt is allowed through to probe the server.
	CircuitHalfOpen CircuitState = "half-open"
)

// CircuitBreaker guards dialing the nREPL server. After maxFailures
// consecutive connection failures it opens and rejects attempts with
// ErrCircuitOpen until resetTimeout has passed, then lets a single probe
// through in the half-open state.
//
// Only failures that say something about the server count: argument errors
// and "already connected" refusals pass through without tripping it.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        CircuitState
	mu           sync.Mutex
}

// NewCircuitBreaker creates a circuit breaker. maxFailures <= 0 disables tripping.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        CircuitClosed,
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()

	cb.afterRequest(err)

	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = CircuitHalfOpen
			Debug("Circuit breaker transitioning to half-open state")
			return nil
		}
		return fmt.Errorf("%w (last failure %v ago)", ErrCircuitOpen,
			time.Since(cb.lastFailure).Round(time.Millisecond))
	case CircuitHalfOpen, CircuitClosed:
		return nil
	default:
		return fmt.Errorf("circuit breaker in unknown state: %s", cb.state)
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil:
		cb.recordSuccess()
	case countsAsFailure(err):
		cb.recordFailure()
	}
}

// countsAsFailure reports whether err reflects the server's health.
func countsAsFailure(err error) bool {
	return IsTemporary(err) || IsFatal(err)
}

func (cb *CircuitBreaker) recordFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case CircuitClosed:
		if cb.maxFailures > 0 && cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			log.WithFields(logger.Fields{
				"at":       "nrepl.CircuitBreaker.recordFailure",
				"failures": cb.failures,
			}).Warn("circuit_breaker_opened")
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		Debug("Circuit breaker re-opened after half-open failure")
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	if cb.state == CircuitHalfOpen {
		Debug("Circuit breaker closed after successful half-open probe")
	}
	cb.state = CircuitClosed
	cb.failures = 0
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) IsOpen() bool { return cb.State() == CircuitOpen }

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	Debug("Circuit breaker manually reset")
}

func (cb *CircuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return fmt.Sprintf("CircuitBreaker{state=%s, failures=%d/%d}", cb.state, cb.failures, cb.maxFailures)
}
