package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopState_StartsFresh(t *testing.T) {
	s := NewLoopState()

	assert.Equal(t, LoopPhaseFresh, s.Phase)
	assert.False(t, s.IsTerminal())
	assert.Empty(t, s.PhaseHistory)
}

func TestLoopState_TransitionRecordsHistory(t *testing.T) {
	s := NewLoopState()

	s.TransitionWithReason(LoopPhaseInitializing, "no project marker found")
	s.Transition(LoopPhaseCoding)

	require.Len(t, s.PhaseHistory, 2)
	assert.Equal(t, LoopPhaseFresh, s.PhaseHistory[0].From)
	assert.Equal(t, LoopPhaseInitializing, s.PhaseHistory[0].To)
	assert.Equal(t, "no project marker found", s.PhaseHistory[0].Reason)
	assert.Equal(t, LoopPhaseCoding, s.Phase)
}

func TestLoopState_SelfTransitionIsNoOp(t *testing.T) {
	s := NewLoopState()
	s.Transition(LoopPhaseCoding)
	s.Transition(LoopPhaseCoding)

	assert.Len(t, s.PhaseHistory, 1)
}

func TestLoopState_ErrorTracking(t *testing.T) {
	s := NewLoopState()

	s.RecordError(errors.New("driver failed"))
	s.RecordError(errors.New("driver failed again"))
	assert.Equal(t, 2, s.ConsecutiveErrors)
	assert.EqualError(t, s.LastError, "driver failed again")

	s.ClearError()
	assert.Zero(t, s.ConsecutiveErrors)
	assert.NoError(t, s.LastError)
}

func TestLoopState_IsTerminal(t *testing.T) {
	s := NewLoopState()
	s.Transition(LoopPhaseTerminated)

	assert.True(t, s.IsTerminal())
}

func TestLoopState_Snapshot(t *testing.T) {
	s := NewLoopState()
	s.Transition(LoopPhaseCoding)
	s.IncrementIteration()
	s.IncrementIteration()

	snap := s.Snapshot()

	assert.Equal(t, LoopPhaseCoding, snap.Phase)
	assert.Equal(t, 2, snap.Iteration)
	require.Len(t, snap.PhaseHistory, 1)

	// The snapshot's history is a copy, not a view.
	s.Transition(LoopPhaseTerminated)
	assert.Len(t, snap.PhaseHistory, 1)
}

func TestLoopPhase_String(t *testing.T) {
	phases := map[LoopPhase]string{
		LoopPhaseFresh:        "fresh",
		LoopPhaseInitializing: "initializing",
		LoopPhaseExtending:    "extending",
		LoopPhaseCoding:       "coding",
		LoopPhaseSleeping:     "sleeping",
		LoopPhaseTerminated:   "terminated",
		LoopPhase(99):         "unknown",
	}
	for phase, want := range phases {
		assert.Equal(t, want, phase.String())
	}
}
