package orchestra

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/sandbox"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/tracker"
)

func newDriverFixture(t *testing.T, provider llm.Provider) (*Driver, *tracker.MemoryTracker, *sdk.WorkItem, string) {
	t.Helper()
	dir := t.TempDir()
	trk := tracker.NewMemoryTracker()

	item := &sdk.WorkItem{ID: "item-1", Title: "Add greeting endpoint", Description: "GET /hello returns a greeting.",
		Priority: 1, Category: "api", TestSteps: []string{"curl /hello returns 200"}, Status: sdk.ItemStatusTodo}
	require.NoError(t, trk.Create(item))
	require.NoError(t, trk.Create(&sdk.WorkItem{ID: "meta-1", Title: "Session log", IsMeta: true, Status: sdk.ItemStatusTodo}))

	driver, err := NewDriver(llm.NewRouter(provider), trk, sandbox.New(dir, ""), DriverConfig{WorkDir: dir})
	require.NoError(t, err)
	return driver, trk, item, dir
}

func TestRunItem_AppliesFileChangesAndCompletes(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		turnWithTools("adding the handler",
			call("file_write", `{"path":"handlers/hello.go","content":"package handlers\n"}`),
			call("shell", `{"command":"echo tests pass"}`),
		),
		finalTurn("RESULT: completed — added /hello handler, echo verification passed"),
	}}
	driver, trk, item, dir := newDriverFixture(t, provider)

	res, err := driver.RunItem(context.Background(), item)
	require.NoError(t, err)

	// The session's file edit landed on disk.
	data, readErr := os.ReadFile(filepath.Join(dir, "handlers", "hello.go"))
	require.NoError(t, readErr)
	assert.Equal(t, "package handlers\n", string(data))

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, res.Accepted)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "handlers/hello.go", res.Changes[0].Path)
	assert.Equal(t, []string{"echo tests pass"}, res.Commands)
	assert.Greater(t, res.TokensIn, 0)

	// Tracker state: done, with the structured completion comment.
	got, _ := trk.Get("item-1")
	assert.Equal(t, sdk.ItemStatusDone, got.Status)
	require.NotEmpty(t, got.Comments)
	assert.Contains(t, got.Comments[0].Body, "added /hello handler")
	assert.Contains(t, got.Comments[0].Body, "handlers/hello.go")
	assert.Contains(t, got.Comments[0].Body, "echo tests pass")

	// Meta item got the handoff note.
	meta, _ := trk.Get("meta-1")
	require.NotEmpty(t, meta.Comments)
	assert.Contains(t, meta.Comments[0].Body, "Add greeting endpoint")
	assert.Contains(t, meta.Comments[0].Body, "completed")

	// Session transcript persisted under .loom/sessions.
	entries, err := os.ReadDir(filepath.Join(dir, ".loom", "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunItem_SensitiveWriteDeniedSessionContinues(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		turnWithTools("trying to store the key", call("file_write", `{"path":".env","content":"KEY=1"}`)),
		finalTurn("RESULT: blocked — cannot write credentials"),
	}}
	driver, trk, item, dir := newDriverFixture(t, provider)

	res, err := driver.RunItem(context.Background(), item)
	require.NoError(t, err)

	// No filesystem change, and the deny reason was fed back to the model.
	_, statErr := os.Stat(filepath.Join(dir, ".env"))
	assert.True(t, os.IsNotExist(statErr))
	require.Len(t, provider.reqs, 2)
	last := provider.reqs[1].Messages
	assert.True(t, last[len(last)-1].IsError)
	assert.Contains(t, last[len(last)-1].Content, "sensitive")

	assert.Equal(t, OutcomeBlocked, res.Outcome)
	got, _ := trk.Get("item-1")
	assert.Equal(t, sdk.ItemStatusBlocked, got.Status)
	require.NotEmpty(t, got.Comments)
	assert.Contains(t, got.Comments[0].Body, "blocked:")
}

func TestRunItem_InconclusiveLeavesInProgress(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		finalTurn("I made some progress but ran into questions."),
	}}
	driver, trk, item, _ := newDriverFixture(t, provider)

	res, err := driver.RunItem(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, OutcomeInconclusive, res.Outcome)
	assert.False(t, res.Accepted)
	got, _ := trk.Get("item-1")
	assert.Equal(t, sdk.ItemStatusInProgress, got.Status, "inconclusive sessions leave the item for the operator")
	require.NotEmpty(t, got.Comments)
}

func TestRunItem_ResetOnFailureReturnsItemToTodo(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		finalTurn("no conclusion here"),
	}}
	driver, trk, item, _ := newDriverFixture(t, provider)
	driver.ResetOnFailure = true

	_, err := driver.RunItem(context.Background(), item)
	require.NoError(t, err)

	got, _ := trk.Get("item-1")
	assert.Equal(t, sdk.ItemStatusTodo, got.Status)
}

func TestRunItem_ProviderErrorAppliesFailurePolicy(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("backend down")}
	driver, trk, item, _ := newDriverFixture(t, provider)

	_, err := driver.RunItem(context.Background(), item)
	require.Error(t, err)

	got, _ := trk.Get("item-1")
	assert.Equal(t, sdk.ItemStatusInProgress, got.Status)
	require.NotEmpty(t, got.Comments)
	assert.Contains(t, got.Comments[0].Body, "driver session failed")
}

func TestParseConclusion(t *testing.T) {
	tests := []struct {
		text    string
		outcome Outcome
		summary string
	}{
		{"RESULT: completed — wired the handler", OutcomeCompleted, "wired the handler"},
		{"notes first\nRESULT: blocked - upstream API undocumented", OutcomeBlocked, "upstream API undocumented"},
		{"RESULT: Completed", OutcomeCompleted, "completed"},
		{"all finished, nothing else", OutcomeInconclusive, "all finished, nothing else"},
		{"", OutcomeInconclusive, ""},
	}
	for _, tt := range tests {
		outcome, summary := parseConclusion(tt.text)
		assert.Equal(t, tt.outcome, outcome, "text: %q", tt.text)
		assert.Equal(t, tt.summary, summary, "text: %q", tt.text)
	}
}

func TestNewDriver_RequiresWorkDir(t *testing.T) {
	_, err := NewDriver(llm.NewRouter(&scriptedProvider{}), tracker.NewMemoryTracker(), sandbox.New(".", ""), DriverConfig{})
	require.Error(t, err)
}
