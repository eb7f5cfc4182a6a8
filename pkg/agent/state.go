package agent

import (
	"sync"
	"time"
)

// LoopPhase represents the current phase of the autonomous coding loop.
type LoopPhase int

const (
	// LoopPhaseFresh means the project directory carries no marker yet;
	// the loop has not decided whether to initialize or extend.
	LoopPhaseFresh LoopPhase = iota
	// LoopPhaseInitializing means the project specification is being
	// parsed and the initial WorkItem set and marker are being written.
	LoopPhaseInitializing
	// LoopPhaseExtending means a marker was found and additional
	// WorkItems from a new spec are being created (init-bis).
	LoopPhaseExtending
	// LoopPhaseCoding means the agent driver is actively working a
	// WorkItem (plan, tool-use loop, and validation all happen here).
	LoopPhaseCoding
	// LoopPhaseSleeping means the loop is in its cooldown between
	// iterations (auto_continue_delay_seconds).
	LoopPhaseSleeping
	// LoopPhaseTerminated is the terminal state, reached on a stop
	// sentinel, a fatal error, or cancellation. See StopReason for why.
	LoopPhaseTerminated
)

// String returns the string representation of a loop phase.
func (p LoopPhase) String() string {
	switch p {
	case LoopPhaseFresh:
		return "fresh"
	case LoopPhaseInitializing:
		return "initializing"
	case LoopPhaseExtending:
		return "extending"
	case LoopPhaseCoding:
		return "coding"
	case LoopPhaseSleeping:
		return "sleeping"
	case LoopPhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// PhaseTransition records one state change for the session record.
type PhaseTransition struct {
	From      LoopPhase
	To        LoopPhase
	Timestamp time.Time
	Reason    string
}

// LoopState tracks the outer loop across iterations. SessionOrchestrator
// mutates it; status endpoints read a Snapshot.
type LoopState struct {
	mu sync.RWMutex

	Phase     LoopPhase
	Iteration int

	PhaseStartTime time.Time
	IterationStart time.Time
	LastTransition time.Time

	LastError         error
	ConsecutiveErrors int

	PhaseHistory []PhaseTransition
}

// NewLoopState creates a loop state in the fresh phase.
func NewLoopState() *LoopState {
	return &LoopState{
		Phase:          LoopPhaseFresh,
		LastTransition: time.Now(),
	}
}

// Transition changes the loop phase. A transition to the current phase
// is a no-op so repeated sentinel checks don't pollute the history.
func (s *LoopState) Transition(phase LoopPhase) {
	s.TransitionWithReason(phase, "")
}

// TransitionWithReason changes the loop phase, recording why.
func (s *LoopState) TransitionWithReason(phase LoopPhase, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase == phase {
		return
	}

	now := time.Now()
	s.PhaseHistory = append(s.PhaseHistory, PhaseTransition{
		From:      s.Phase,
		To:        phase,
		Timestamp: now,
		Reason:    reason,
	})
	s.Phase = phase
	s.PhaseStartTime = now
	s.LastTransition = now
}

// IncrementIteration moves to the next iteration.
func (s *LoopState) IncrementIteration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Iteration++
	s.IterationStart = time.Now()
}

// RecordError records a driver failure.
func (s *LoopState) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = err
	s.ConsecutiveErrors++
}

// ClearError resets error tracking after a successful iteration.
func (s *LoopState) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastError = nil
	s.ConsecutiveErrors = 0
}

// IsTerminal reports whether the loop has ended.
func (s *LoopState) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase == LoopPhaseTerminated
}

// PhaseDuration returns how long the current phase has been running.
func (s *LoopState) PhaseDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.PhaseStartTime)
}

// LoopSnapshot is a point-in-time copy of LoopState for callers outside
// the loop (status endpoints, tests).
type LoopSnapshot struct {
	Phase             LoopPhase
	Iteration         int
	PhaseStartTime    time.Time
	IterationStart    time.Time
	LastTransition    time.Time
	LastError         error
	ConsecutiveErrors int
	PhaseHistory      []PhaseTransition
}

// Snapshot returns a copy of the state for callers outside the loop.
func (s *LoopState) Snapshot() LoopSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := LoopSnapshot{
		Phase:             s.Phase,
		Iteration:         s.Iteration,
		PhaseStartTime:    s.PhaseStartTime,
		IterationStart:    s.IterationStart,
		LastTransition:    s.LastTransition,
		LastError:         s.LastError,
		ConsecutiveErrors: s.ConsecutiveErrors,
	}
	snap.PhaseHistory = make([]PhaseTransition, len(s.PhaseHistory))
	copy(snap.PhaseHistory, s.PhaseHistory)
	return snap
}
