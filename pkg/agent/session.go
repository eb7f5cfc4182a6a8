package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loomwork/loom/pkg/orchestra"
	"github.com/loomwork/loom/pkg/sandbox"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/specparse"
	"github.com/loomwork/loom/pkg/tracker"
)

// SessionKind distinguishes the library-coding prompt from the web-coding
// prompt (spec §4.4 "Session kind selection").
type SessionKind string

const (
	SessionKindLibrary SessionKind = "library"
	SessionKindWeb     SessionKind = "web"
)

// defaultLibraryKeywords trigger the library coding prompt when found
// (case insensitive) anywhere in the project spec's overview or
// technology stack. Spec §4.4 names these as "library-style keywords";
// the selection heuristic itself is left to implementers (spec §9 Open
// Question), so DetectSessionKind takes the keyword list as an argument
// and falls back to this list only when none is given.
var defaultLibraryKeywords = []string{"type safety", "docstrings", "library rag", "type-checker", "type checker"}

// StopReason names why the outer loop in Run terminated.
type StopReason string

const (
	StopMaxIterations StopReason = "max_iterations"
	StopPhrase        StopReason = "stop_phrase"
	StopFatalError    StopReason = "fatal_error"
	StopNoTodoItems   StopReason = "no_todo_items"
	StopCancelled     StopReason = "cancelled"
	StopCircuitOpen   StopReason = "circuit_open"
)

// DriverCircuitConfig returns the CircuitBreakerConfig a SessionOrchestrator
// should use to guard repeated calls into the Agent Driver: three
// driver runs in a row that touch no files, or five runs in a row that
// fail with the same error, trip the circuit. codingLoop ends a Run with
// StopCircuitOpen once the circuit is open, rather than burning further
// iterations against a WorkItem the driver can't make headway on; a
// driver error already ends the Run with StopFatalError, so within one
// Run only the no-progress trip leads to StopCircuitOpen.
func DriverCircuitConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		NoProgressThreshold: 3,
		SameErrorThreshold:  5,
		RecoveryTimeout:     5 * time.Minute,
	}
}

// itemDriver drives a single WorkItem through a full coding session.
// orchestra.Driver implements this; tests substitute a fake so the state
// machine can be exercised without a real LLM-backed orchestrator.
type itemDriver interface {
	RunItem(ctx context.Context, item *sdk.WorkItem) (*orchestra.DriveResult, error)
}

// SessionOrchestrator runs the fresh/initializing/extending/coding/
// sleeping/terminated state machine (spec §4.4): it materializes a parsed
// project specification into tracker WorkItems exactly once, then drives
// one WorkItem per iteration through the Agent Driver until a stop
// sentinel fires, handing off between iterations through tracker state
// alone (spec §5 "Tracker as source of truth").
type SessionOrchestrator struct {
	ProjectDir string
	Tracker    tracker.Tracker
	Driver     itemDriver
	Policy     *sandbox.Policy

	// MaxIterations is the spec's max_iterations configuration option; 0
	// means unbounded (the CLI's --max-iterations flag sets this).
	MaxIterations int

	// AutoContinueDelay is the spec's auto_continue_delay_seconds (default 3s).
	AutoContinueDelay time.Duration

	// StopPhrases overrides the default stop sentinels when non-empty;
	// see StopSentinel.
	StopPhrases []string

	// LibraryKeywords is a keyword list for DetectSessionKind in place of
	// defaultLibraryKeywords. Run does not read it: the session kind it
	// records comes from Kind, which the caller sets.
	LibraryKeywords []string

	// SleepFunc is injectable for tests; defaults to time.Sleep.
	SleepFunc func(time.Duration)

	// Circuit trips the coding loop when the driver stops making progress
	// on successive WorkItems (runs that change no files). A driver error
	// is recorded on it too, but that error already ends the loop with
	// StopFatalError. Nil disables the check. See DriverCircuitConfig for
	// the spec-facing defaults.
	Circuit *CircuitBreaker

	// Limiter throttles how often the driver may be invoked, so a runaway
	// coding loop can't exhaust the configured provider's request budget.
	// Nil disables throttling.
	Limiter *RateLimiter

	// Kind selects the coding prompt family (web vs library); cmd wiring
	// sets it from DetectSessionKind. Informational on SessionRecords.
	Kind SessionKind

	// State, exported for inspection by callers (e.g. a status endpoint).
	State *LoopState

	// Sessions records one entry per completed driver iteration, newest
	// last. Ephemeral: it lives for this process only, per the data
	// model's Session entity.
	Sessions []SessionRecord
}

// SessionRecord is the ephemeral per-iteration session entity: which
// iteration ran, when, what it cost, and why the loop stopped (empty
// until a sentinel fires).
type SessionRecord struct {
	Index      int
	Kind       SessionKind
	StartedAt  time.Time
	EndedAt    time.Time
	TokensIn   int
	TokensOut  int
	StopReason StopReason
}

// NewSessionOrchestrator builds an orchestrator with spec defaults.
func NewSessionOrchestrator(projectDir string, trk tracker.Tracker, driver *orchestra.Driver, policy *sandbox.Policy) *SessionOrchestrator {
	return newSessionOrchestrator(projectDir, trk, driver, policy)
}

func newSessionOrchestrator(projectDir string, trk tracker.Tracker, driver itemDriver, policy *sandbox.Policy) *SessionOrchestrator {
	return &SessionOrchestrator{
		ProjectDir:        projectDir,
		Tracker:           trk,
		Driver:            driver,
		Policy:            policy,
		AutoContinueDelay: 3 * time.Second,
		SleepFunc:         time.Sleep,
		State:             NewLoopState(),
	}
}

// RunOptions configures one invocation of Run (spec §6 CLI surface).
type RunOptions struct {
	// SpecPath points at the Project Specification document (spec §6). It
	// is read for fresh/initializing and for extending (--new-spec); it is
	// ignored once the loop reaches LoopPhaseCoding.
	SpecPath string

	// ExtendMode corresponds to the --new-spec flag being set: when a
	// marker already exists, parse SpecPath as additional features rather
	// than refusing to run.
	ExtendMode bool
}

// Run executes the full outer loop described in spec §2 "Control flow,
// Core A": parse spec -> create tracker project and items -> write
// project-marker file -> loop { pick item -> run driver -> record outcome
// -> maybe sleep -> check stop }.
func (o *SessionOrchestrator) Run(ctx context.Context, opts RunOptions) (StopReason, error) {
	if marker, ok := o.Tracker.Marker(); ok {
		if opts.ExtendMode {
			o.State.TransitionWithReason(LoopPhaseExtending, "marker present, --new-spec given")
			if err := o.extend(opts.SpecPath, marker); err != nil {
				o.State.Transition(LoopPhaseTerminated)
				return StopFatalError, err
			}
		}
	} else {
		o.State.TransitionWithReason(LoopPhaseInitializing, "no project marker found")
		if err := o.initialize(opts.SpecPath); err != nil {
			o.State.Transition(LoopPhaseTerminated)
			return StopFatalError, err
		}
	}

	return o.codingLoop(ctx)
}

// initialize runs the init session: parse spec, create the tracker
// project's WorkItems (one per feature plus the meta item), write the
// marker, and run the project-local init script if the sandbox policy
// names one. Re-running init after a marker exists is rejected by the
// caller via Run's marker check, matching spec §8's idempotence property.
func (o *SessionOrchestrator) initialize(specPath string) error {
	spec, err := o.parseSpecFile(specPath)
	if err != nil {
		return err
	}

	projectID := sdk.GenerateID()
	items := specparse.BuildWorkItems(spec, projectID, sdk.GenerateID)
	for _, item := range items {
		if err := o.Tracker.Create(item); err != nil {
			return fmt.Errorf("create work item %q: %w", item.Title, err)
		}
	}

	meta := specparse.MetaItem(items)
	marker := &sdk.ProjectMarker{
		ProjectID:  projectID,
		TotalItems: len(items) - 1, // excludes the meta item
		MetaItemID: meta.ID,
		CreatedAt:  time.Now(),
	}
	if err := o.Tracker.WriteMarker(marker); err != nil {
		return fmt.Errorf("write project marker: %w", err)
	}

	if o.Policy != nil && o.Policy.InitScriptPath != "" {
		if o.Policy.CanExecuteInitScript(o.Policy.InitScriptPath) {
			if _, err := o.Policy.Run(context.Background(), o.Policy.InitScriptPath); err != nil {
				_ = o.Tracker.AddComment(meta.ID, "project-init script failed: "+err.Error(), "system")
			}
		}
	}

	return nil
}

// extend runs init-bis: parse an additional spec and create only the new
// WorkItems it describes; the marker and any existing items are untouched
// (spec §4.4 "extending").
func (o *SessionOrchestrator) extend(specPath string, marker *sdk.ProjectMarker) error {
	spec, err := o.parseSpecFile(specPath)
	if err != nil {
		return err
	}

	for _, f := range spec.Features {
		item := &sdk.WorkItem{
			ID:          sdk.GenerateID(),
			ProjectID:   marker.ProjectID,
			Title:       f.Title,
			Description: f.Description,
			Priority:    f.Priority,
			Category:    f.Category,
			TestSteps:   f.TestSteps,
			Status:      sdk.ItemStatusTodo,
		}
		if err := o.Tracker.Create(item); err != nil {
			return fmt.Errorf("create work item %q: %w", item.Title, err)
		}
	}
	if marker.MetaItemID != "" {
		_ = o.Tracker.AddComment(marker.MetaItemID, fmt.Sprintf("extended project with %d new feature(s) from %s", len(spec.Features), specPath), "system")
	}
	return nil
}

func (o *SessionOrchestrator) parseSpecFile(path string) (*sdk.ProjectSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sdk.NewError(sdk.ErrConfig, "session.parseSpecFile", "read project specification", err)
	}
	return specparse.Parse(data)
}

// codingLoop implements coding -> sleeping -> coding until a stop
// sentinel fires (spec §4.4 transitions).
func (o *SessionOrchestrator) codingLoop(ctx context.Context) (StopReason, error) {
	for {
		if ctx.Err() != nil {
			o.State.Transition(LoopPhaseTerminated)
			return StopCancelled, ctx.Err()
		}

		if o.MaxIterations > 0 && o.State.Iteration >= o.MaxIterations {
			o.State.TransitionWithReason(LoopPhaseTerminated, "max_iterations reached")
			return StopMaxIterations, nil
		}

		if o.Circuit != nil && o.Circuit.IsOpen() {
			o.State.TransitionWithReason(LoopPhaseTerminated, "driver circuit open")
			return StopCircuitOpen, nil
		}

		items := o.Tracker.List()
		item := specparse.PickNext(items)
		if item == nil {
			o.State.TransitionWithReason(LoopPhaseTerminated, "no todo item remains")
			return StopNoTodoItems, nil
		}

		if o.Limiter != nil {
			if err := o.Limiter.Wait(ctx); err != nil {
				o.State.Transition(LoopPhaseTerminated)
				return StopCancelled, err
			}
		}

		o.State.TransitionWithReason(LoopPhaseCoding, "driving "+item.ID)
		o.State.IncrementIteration()
		record := SessionRecord{
			Index:     o.State.Iteration,
			Kind:      o.Kind,
			StartedAt: time.Now(),
		}

		res, err := o.Driver.RunItem(ctx, item)
		record.EndedAt = time.Now()
		if err != nil {
			record.StopReason = StopFatalError
			o.Sessions = append(o.Sessions, record)
			o.State.RecordError(err)
			if o.Circuit != nil {
				o.Circuit.RecordError(err)
			}
			o.State.Transition(LoopPhaseTerminated)
			return StopFatalError, err
		}
		record.TokensIn, record.TokensOut = res.TokensIn, res.TokensOut
		o.State.ClearError()
		if o.Circuit != nil {
			o.Circuit.RecordSuccess(driveChangeCount(res))
		}

		sentinel := &StopSentinel{Phrases: o.StopPhrases}
		if sentinel.Observe(res) {
			record.StopReason = StopPhrase
			o.Sessions = append(o.Sessions, record)
			o.State.TransitionWithReason(LoopPhaseTerminated, "stop phrase observed in driver output")
			return StopPhrase, nil
		}

		if o.MaxIterations > 0 && o.State.Iteration >= o.MaxIterations {
			record.StopReason = StopMaxIterations
			o.Sessions = append(o.Sessions, record)
			o.State.TransitionWithReason(LoopPhaseTerminated, "max_iterations reached")
			return StopMaxIterations, nil
		}
		o.Sessions = append(o.Sessions, record)

		remaining := specparse.PickNext(o.Tracker.List())
		if remaining == nil {
			o.State.TransitionWithReason(LoopPhaseTerminated, "no todo item remains")
			return StopNoTodoItems, nil
		}

		o.State.TransitionWithReason(LoopPhaseSleeping, "auto_continue_delay")
		o.sleep(o.AutoContinueDelay)
	}
}

func (o *SessionOrchestrator) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	sleepFn := o.SleepFunc
	if sleepFn == nil {
		sleepFn = time.Sleep
	}
	sleepFn(d)
}

// DetectSessionKind implements spec §4.4's "Session kind selection":
// library-style keywords anywhere in the spec's overview or technology
// stack route to the library coding prompt (type-checker and unit-test
// runner only, no browser automation); anything else routes to the web
// coding prompt (browser automation available).
func DetectSessionKind(spec *sdk.ProjectSpec, keywords []string) SessionKind {
	if len(keywords) == 0 {
		keywords = defaultLibraryKeywords
	}
	haystack := strings.ToLower(spec.Overview + " " + strings.Join(spec.TechnologyStack, " "))
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return SessionKindLibrary
		}
	}
	return SessionKindWeb
}

// MarkerPath returns the on-disk location of dir's ProjectMarker, mirroring
// tracker.HasMarker's naming so callers building status output don't need
// to depend on the tracker package's unexported filename constant.
func MarkerPath(dir string) string {
	return filepath.Join(dir, "project.marker.json")
}
