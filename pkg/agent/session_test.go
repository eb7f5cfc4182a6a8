package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/orchestra"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/tracker"
)

const twoFeatureSpec = `{
  "project_name": "widgets",
  "overview": "a widget service",
  "technology_stack": ["go"],
  "features": [
    {"title": "A", "description": "feature a", "priority": 1, "category": "api", "test_steps": []},
    {"title": "B", "description": "feature b", "priority": 2, "category": "api", "test_steps": []}
  ]
}`

// fakeDriver drives items by immediately marking them done (or by
// returning a canned error/output), so the session orchestrator's state
// machine can be exercised without a real LLM-backed driver.
type fakeDriver struct {
	trk       tracker.Tracker
	document  string // session output text scanned for a stop phrase
	failErr   error  // if set, RunItem returns this error instead of succeeding
	callCount int
}

func (f *fakeDriver) RunItem(_ context.Context, item *sdk.WorkItem) (*orchestra.DriveResult, error) {
	f.callCount++
	if f.failErr != nil {
		return nil, f.failErr
	}
	item.Transition(sdk.ItemStatusDone)
	_ = f.trk.Update(item)
	return &orchestra.DriveResult{
		Item:     item,
		Outcome:  orchestra.OutcomeCompleted,
		Summary:  "done",
		Output:   f.document,
		Changes:  []orchestra.Change{{Type: orchestra.ChangeModify, Path: "main.go"}},
		Accepted: true,
	}, nil
}

func newTestOrchestrator(t *testing.T, driver *fakeDriver) (*SessionOrchestrator, *tracker.MemoryTracker) {
	t.Helper()
	trk := tracker.NewMemoryTracker()
	driver.trk = trk
	o := newSessionOrchestrator(t.TempDir(), trk, driver, nil)
	o.SleepFunc = func(time.Duration) {}
	o.AutoContinueDelay = 0
	return o, trk
}

// onTracker rebuilds an orchestrator that resumes an existing tracker, as
// a second CLI invocation against the same project directory would.
func onTracker(t *testing.T, trk tracker.Tracker, driver *fakeDriver) *SessionOrchestrator {
	t.Helper()
	driver.trk = trk
	o := newSessionOrchestrator(t.TempDir(), trk, driver, nil)
	o.SleepFunc = func(time.Duration) {}
	o.AutoContinueDelay = 0
	return o
}

func writeSpecFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSessionOrchestrator_FreshProjectInitializesThenRunsAllItemsToDone(t *testing.T) {
	driver := &fakeDriver{}
	o, trk := newTestOrchestrator(t, driver)

	specPath := writeSpecFile(t, twoFeatureSpec)
	reason, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)
	require.Equal(t, StopNoTodoItems, reason)
	require.Equal(t, 2, driver.callCount)

	marker, ok := trk.Marker()
	require.True(t, ok)
	require.Equal(t, 2, marker.TotalItems)

	for _, item := range trk.List() {
		if item.IsMeta {
			continue
		}
		require.Equal(t, sdk.ItemStatusDone, item.Status)
	}
	require.Equal(t, LoopPhaseTerminated, o.State.Phase)
}

func TestSessionOrchestrator_MaxIterationsStopsEarly(t *testing.T) {
	driver := &fakeDriver{}
	o, _ := newTestOrchestrator(t, driver)
	o.MaxIterations = 1

	specPath := writeSpecFile(t, twoFeatureSpec)
	reason, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)
	require.Equal(t, StopMaxIterations, reason)
	require.Equal(t, 1, driver.callCount)
}

func TestSessionOrchestrator_StopPhraseInSessionOutputHalts(t *testing.T) {
	driver := &fakeDriver{document: "Summary: the project is feature-complete."}
	o, _ := newTestOrchestrator(t, driver)

	specPath := writeSpecFile(t, twoFeatureSpec)
	reason, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)
	require.Equal(t, StopPhrase, reason)
	require.Equal(t, 1, driver.callCount, "loop must halt after the first session reports the stop phrase")
}

func TestSessionOrchestrator_DriverErrorIsFatal(t *testing.T) {
	driver := &fakeDriver{failErr: errors.New("boom")}
	o, _ := newTestOrchestrator(t, driver)

	specPath := writeSpecFile(t, twoFeatureSpec)
	reason, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.Error(t, err)
	require.Equal(t, StopFatalError, reason)
	require.Equal(t, LoopPhaseTerminated, o.State.Phase)
}

func TestSessionOrchestrator_ExtendAddsItemsWithoutRewritingMarker(t *testing.T) {
	driver := &fakeDriver{}
	o, trk := newTestOrchestrator(t, driver)
	o.MaxIterations = 1 // stop after the first item so we can inspect state mid-project

	specPath := writeSpecFile(t, twoFeatureSpec)
	_, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)

	markerBefore, _ := trk.Marker()

	extraSpec := writeSpecFile(t, `{"project_name":"widgets","features":[{"title":"C","priority":1}]}`)
	o2 := onTracker(t, trk, driver)
	o2.MaxIterations = 2
	_, err = o2.Run(context.Background(), RunOptions{SpecPath: extraSpec, ExtendMode: true})
	require.NoError(t, err)

	markerAfter, ok := trk.Marker()
	require.True(t, ok)
	require.Equal(t, markerBefore.ProjectID, markerAfter.ProjectID)

	var titles []string
	for _, item := range trk.List() {
		if !item.IsMeta {
			titles = append(titles, item.Title)
		}
	}
	require.Contains(t, titles, "C")
}

func TestSessionOrchestrator_ReInitializingAnInitializedProjectIsRejected(t *testing.T) {
	driver := &fakeDriver{}
	o, trk := newTestOrchestrator(t, driver)
	o.MaxIterations = 1

	specPath := writeSpecFile(t, twoFeatureSpec)
	_, err := o.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)

	before := len(trk.List())
	// Running again without ExtendMode must not re-parse the spec or add items.
	o2 := onTracker(t, trk, driver)
	o2.MaxIterations = 1
	_, err = o2.Run(context.Background(), RunOptions{SpecPath: specPath})
	require.NoError(t, err)
	require.Equal(t, before, len(trk.List()))
}

func TestDetectSessionKind_LibraryKeywordRoutesToLibrary(t *testing.T) {
	spec := &sdk.ProjectSpec{Overview: "Emphasizes type safety and docstrings throughout."}
	require.Equal(t, SessionKindLibrary, DetectSessionKind(spec, nil))
}

func TestDetectSessionKind_DefaultsToWeb(t *testing.T) {
	spec := &sdk.ProjectSpec{Overview: "A dashboard for tracking shipments."}
	require.Equal(t, SessionKindWeb, DetectSessionKind(spec, nil))
}

func TestMarkerPath(t *testing.T) {
	require.Equal(t, "/tmp/proj/project.marker.json", MarkerPath("/tmp/proj"))
}
