package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	assert.Equal(t, CircuitClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_TripsOnNoProgress(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{NoProgressThreshold: 3})

	cb.RecordSuccess(0)
	cb.RecordSuccess(0)
	assert.False(t, cb.IsOpen(), "two empty runs should not trip")

	cb.RecordSuccess(0)
	assert.True(t, cb.IsOpen(), "third empty run should trip")
	assert.Equal(t, "no file changes across consecutive runs", cb.OpenReason())
}

func TestCircuitBreaker_ProgressResetsNoProgressCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{NoProgressThreshold: 3})

	cb.RecordSuccess(0)
	cb.RecordSuccess(0)
	cb.RecordSuccess(4) // driver touched files again
	cb.RecordSuccess(0)
	cb.RecordSuccess(0)

	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_TripsOnRepeatedError(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{SameErrorThreshold: 3})
	stuck := errors.New("tracker unreachable")

	cb.RecordError(stuck)
	cb.RecordError(stuck)
	assert.False(t, cb.IsOpen())

	cb.RecordError(stuck)
	assert.True(t, cb.IsOpen())
	assert.Equal(t, "same error across consecutive runs", cb.OpenReason())
}

func TestCircuitBreaker_DifferentErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{SameErrorThreshold: 2})

	cb.RecordError(errors.New("first failure"))
	cb.RecordError(errors.New("second failure"))
	cb.RecordError(errors.New("third failure"))

	assert.False(t, cb.IsOpen(), "distinct errors must not count as the same one")
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		NoProgressThreshold: 1,
		RecoveryTimeout:     10 * time.Millisecond,
	})

	cb.RecordSuccess(0)
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen(), "recovery timeout should allow a probe run")
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// A successful probe with real changes closes the circuit for good.
	cb.RecordSuccess(2)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		NoProgressThreshold: 1,
		RecoveryTimeout:     10 * time.Millisecond,
	})

	cb.RecordSuccess(0)
	time.Sleep(20 * time.Millisecond)
	require.False(t, cb.IsOpen())

	cb.RecordError(errors.New("probe failed"))
	assert.True(t, cb.IsOpen())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{NoProgressThreshold: 1})
	cb.RecordSuccess(0)
	require.True(t, cb.IsOpen())

	cb.Reset()

	assert.Equal(t, CircuitClosed, cb.State())
	assert.False(t, cb.IsOpen())
}

func TestCircuitBreaker_Stats(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	cb.RecordSuccess(1)
	cb.RecordSuccess(2)
	cb.RecordError(errors.New("boom"))

	stats := cb.Stats()
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
}

func TestDriverCircuitConfig_Defaults(t *testing.T) {
	cfg := DriverCircuitConfig()

	assert.Equal(t, 3, cfg.NoProgressThreshold)
	assert.Equal(t, 5, cfg.SameErrorThreshold)
	assert.Equal(t, 5*time.Minute, cfg.RecoveryTimeout)
}
