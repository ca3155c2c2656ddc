// Package breaker implements a circuit breaker to prevent cascading failures
// when components become unhealthy. The breaker gates whether a caller may
// attempt an action; it never retries anything itself.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

const (
	// StateClosed means the circuit is closed (normal operation, executions allowed)
	StateClosed State = iota

	// StateOpen means the circuit is open (too many failures, executions blocked)
	StateOpen

	// StateHalfOpen means the circuit is testing if the component has recovered
	StateHalfOpen
)

// String returns a human-readable representation of the circuit state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for circuit breaker behavior.
type Config struct {
	// FailureThreshold is the number of recorded failures before opening
	// the circuit. Default: 5
	FailureThreshold int

	// Cooldown is the duration to wait after the last failure before
	// transitioning from Open to Half-Open. Default: 60 seconds
	Cooldown time.Duration
}

// DefaultConfig returns a configuration with the default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

// TransitionCallback is invoked after the breaker changes state. It is called
// while the breaker lock is held, so implementations must not call back into
// the breaker.
type TransitionCallback func(componentID string, from, to State)

// CircuitBreaker is a per-component failure gate with three states:
//
//   - Closed: normal operation, executions allowed, failures counted
//   - Open: too many failures, executions blocked until cooldown expires
//   - Half-Open: testing recovery, executions allowed
//
// State transitions:
//   - Closed -> Open: failure count reaches FailureThreshold
//   - Open -> Half-Open: Allow() called after Cooldown since the last failure
//   - Half-Open -> Closed: RecordSuccess()
//   - Half-Open -> Open: RecordFailure()
//
// Allow is the single authority on whether an execution may proceed.
// Thread-safe: all methods can be called concurrently.
type CircuitBreaker struct {
	componentID string
	config      Config
	onChange    TransitionCallback

	mu          sync.Mutex
	state       State
	failures    int
	executions  int64
	lastFailure time.Time
}

// New creates a circuit breaker for the given component.
func New(componentID string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultConfig().Cooldown
	}
	return &CircuitBreaker{
		componentID: componentID,
		config:      config,
		state:       StateClosed,
	}
}

// OnTransition registers a callback fired on every state change.
func (cb *CircuitBreaker) OnTransition(fn TransitionCallback) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// Allow reports whether an execution may proceed. Every call increments the
// execution counter, including denied calls.
//
// In the Open state, Allow compares the elapsed time since the last failure
// against the cooldown; once the cooldown has passed, the breaker moves to
// Half-Open and the call is allowed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.executions++

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) >= cb.config.Cooldown {
			cb.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		// Closed and Half-Open both allow executions.
		return true
	}
}

// RecordSuccess records a successful execution. The failure counter resets,
// and a Half-Open breaker closes.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// RecordFailure records a failed execution. Once the failure count reaches
// the threshold the breaker opens. A failure while Half-Open re-opens the
// breaker immediately because the counter is still at the threshold.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	if cb.failures >= cb.config.FailureThreshold && cb.state != StateOpen {
		cb.transition(StateOpen)
	}
}

// Reset forces the breaker back to Closed and zeroes the failure counter.
// Useful for manual recovery after a component has been confirmed healthy.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != StateClosed {
		cb.transition(StateClosed)
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a point-in-time snapshot of the breaker's counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		ComponentID: cb.componentID,
		State:       cb.state,
		Failures:    cb.failures,
		Executions:  cb.executions,
		LastFailure: cb.lastFailure,
	}
}

// transition changes state and fires the callback. Caller must hold cb.mu.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(cb.componentID, from, to)
	}
}

// Stats provides statistics about a single breaker.
type Stats struct {
	// ComponentID is the component this breaker protects
	ComponentID string

	// State is the current circuit state
	State State

	// Failures is the current failure count
	Failures int

	// Executions counts every Allow() call, including denied ones
	Executions int64

	// LastFailure is when the most recent failure occurred (zero if never)
	LastFailure time.Time
}

// OpenError is returned by callers that want an error value when a circuit
// is open and executions are blocked.
type OpenError struct {
	ComponentID string
	LastFailure time.Time
	RetryAfter  time.Time
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for component %s (last failure %s, retry after %s)",
		e.ComponentID, e.LastFailure.Format(time.RFC3339), e.RetryAfter.Format(time.RFC3339))
}
