package loop

import (
	"sync"
	"time"
)

// DefaultCircuitBreakerThreshold is the number of consecutive agent-exit
// failures before the breaker opens and the loop refuses to dispatch
// further tasks.
const DefaultCircuitBreakerThreshold = 2

// CircuitBreaker tracks consecutive agent-dispatch failures across a loop
// run and opens once threshold is reached, per spec.md 4.H's "a non-zero
// exit from the agent terminates the loop" rule generalized across a run
// of several tasks. There is no half-open state: once open, the breaker
// stays open until the loop ends.
type CircuitBreaker struct {
	mu                  sync.Mutex
	threshold           int
	consecutiveFailures int
	open                bool
	lastFailureAt       time.Time
}

// NewCircuitBreaker creates a circuit breaker with the given threshold.
// threshold <= 0 uses DefaultCircuitBreakerThreshold.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordSuccess resets the consecutive-failure count. It does not close
// an already-open breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
}

// RecordFailure records a dispatch failure, returning true if this
// failure just tripped the breaker open.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures++
	cb.lastFailureAt = time.Now()
	if cb.consecutiveFailures >= cb.threshold && !cb.open {
		cb.open = true
		return true
	}
	return false
}

// IsOpen reports whether the breaker has tripped.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}

// ConsecutiveFailures returns the current failure streak.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.consecutiveFailures
}
