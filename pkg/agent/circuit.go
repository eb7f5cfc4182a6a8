package agent

import (
	"sync"
	"time"
)

// CircuitState is where the driver circuit currently sits.
type CircuitState int

const (
	// CircuitClosed means driver runs proceed normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means runs are blocked until the recovery timeout.
	CircuitOpen
	// CircuitHalfOpen means one probe run is allowed through.
	CircuitHalfOpen
)

// String returns the state name.
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

// CircuitBreakerConfig configures the circuit breaker a
// SessionOrchestrator places in front of its Agent Driver.
type CircuitBreakerConfig struct {
	// NoProgressThreshold is driver runs in a row with zero file changes
	// before tripping.
	NoProgressThreshold int

	// SameErrorThreshold is driver runs in a row failing with the same
	// error string before tripping.
	SameErrorThreshold int

	// RecoveryTimeout is how long the circuit stays open before one
	// half-open probe run is allowed.
	RecoveryTimeout time.Duration
}

// CircuitBreaker guards SessionOrchestrator's Agent Driver calls: it
// trips open when the driver stops making headway on the WorkItems it's
// handed, ending the coding loop with StopCircuitOpen instead of
// spinning forever against an item it can't finish.
type CircuitBreaker struct {
	mu     sync.Mutex
	config CircuitBreakerConfig

	state      CircuitState
	openedAt   time.Time
	openReason string

	sameError  string
	errorRuns  int
	noProgress int

	successes int
	failures  int
}

// NewCircuitBreaker creates a closed circuit with defaults filled in for
// zero config fields (3 no-progress runs, 5 same-error runs, 5 minute
// recovery).
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.NoProgressThreshold == 0 {
		config.NoProgressThreshold = 3
	}
	if config.SameErrorThreshold == 0 {
		config.SameErrorThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 5 * time.Minute
	}
	return &CircuitBreaker{config: config, state: CircuitClosed}
}

// IsOpen reports whether the next driver run is blocked. An open circuit
// past its recovery timeout moves to half-open and lets one probe run
// through.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return false
	default:
		if time.Since(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.state = CircuitHalfOpen
			return false
		}
		return true
	}
}

// RecordSuccess records a driver run that completed without error.
// changeCount is how many file changes the run produced; zero means the
// driver touched nothing, which counts toward the no-progress trip.
func (cb *CircuitBreaker) RecordSuccess(changeCount int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	if cb.state == CircuitHalfOpen {
		// Probe run made it through; close and start fresh.
		cb.state = CircuitClosed
		cb.sameError = ""
		cb.errorRuns = 0
		cb.noProgress = 0
	}

	if changeCount == 0 {
		cb.noProgress++
		if cb.noProgress >= cb.config.NoProgressThreshold {
			cb.trip("no file changes across consecutive runs")
		}
		return
	}
	cb.noProgress = 0
}

// RecordError records a driver run that failed with err.
func (cb *CircuitBreaker) RecordError(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == CircuitHalfOpen {
		cb.trip("probe run failed")
		return
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg != "" && msg == cb.sameError {
		cb.errorRuns++
		if cb.errorRuns >= cb.config.SameErrorThreshold {
			cb.trip("same error across consecutive runs")
		}
	} else {
		cb.errorRuns = 1
	}
	cb.sameError = msg
}

// Reset manually closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.sameError = ""
	cb.errorRuns = 0
	cb.noProgress = 0
}

// State returns the current state without the half-open promotion check.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OpenReason returns why the circuit last tripped, or "".
func (cb *CircuitBreaker) OpenReason() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.openReason
}

// Stats reports run counters for status output.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:      cb.state,
		Successes:  cb.successes,
		Failures:   cb.failures,
		NoProgress: cb.noProgress,
	}
}

// CircuitBreakerStats is a point-in-time view of the breaker's counters.
type CircuitBreakerStats struct {
	State      CircuitState
	Successes  int
	Failures   int
	NoProgress int
}

func (cb *CircuitBreaker) trip(reason string) {
	cb.state = CircuitOpen
	cb.openedAt = time.Now()
	cb.openReason = reason
}
