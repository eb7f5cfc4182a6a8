package tracker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/sdk"
)

func TestFileTracker_InitFromScratch(t *testing.T) {
	dir := t.TempDir()
	require.False(t, HasMarker(dir))

	tr, err := NewFileTracker(dir)
	require.NoError(t, err)

	_, ok := tr.Marker()
	require.False(t, ok)

	require.NoError(t, tr.Create(&sdk.WorkItem{ID: "1", Title: "A", Status: sdk.ItemStatusTodo}))
	require.NoError(t, tr.WriteMarker(&sdk.ProjectMarker{ProjectID: "proj-1", TotalItems: 1, MetaItemID: "meta"}))

	require.True(t, HasMarker(dir))
}

func TestFileTracker_SessionCompletionTransitions(t *testing.T) {
	dir := t.TempDir()
	tr, err := NewFileTracker(dir)
	require.NoError(t, err)

	item := &sdk.WorkItem{ID: "1", Title: "A", Status: sdk.ItemStatusTodo}
	require.NoError(t, tr.Create(item))

	item.Transition(sdk.ItemStatusInProgress)
	require.NoError(t, tr.Update(item))

	fetched, ok := tr.Get("1")
	require.True(t, ok)
	require.Equal(t, sdk.ItemStatusInProgress, fetched.Status)

	require.NoError(t, tr.AddComment("1", "implemented the handler", "driver"))
	fetched, _ = tr.Get("1")
	require.Len(t, fetched.Comments, 1)

	fetched.Transition(sdk.ItemStatusDone)
	require.NoError(t, tr.Update(fetched))

	done, _ := tr.Get("1")
	require.Equal(t, sdk.ItemStatusDone, done.Status)
}

func TestFileTracker_ExtensionModePreservesMarker(t *testing.T) {
	dir := t.TempDir()

	tr1, err := NewFileTracker(dir)
	require.NoError(t, err)
	require.NoError(t, tr1.Create(&sdk.WorkItem{ID: "1", Title: "A", Status: sdk.ItemStatusDone}))
	require.NoError(t, tr1.WriteMarker(&sdk.ProjectMarker{ProjectID: "proj-1", TotalItems: 1, MetaItemID: "meta"}))

	require.True(t, HasMarker(dir))

	// Re-opening the tracker on the same directory (an "extend" session)
	// must see the prior marker and item set rather than starting fresh.
	tr2, err := NewFileTracker(dir)
	require.NoError(t, err)

	marker, ok := tr2.Marker()
	require.True(t, ok)
	require.Equal(t, "proj-1", marker.ProjectID)

	item, ok := tr2.Get("1")
	require.True(t, ok)
	require.Equal(t, sdk.ItemStatusDone, item.Status)
}

func TestMemoryTracker_DuplicateCreateRejected(t *testing.T) {
	tr := NewMemoryTracker()
	require.NoError(t, tr.Create(&sdk.WorkItem{ID: "1"}))
	require.Error(t, tr.Create(&sdk.WorkItem{ID: "1"}))
}

func TestMemoryTracker_UpdateUnknownItemFails(t *testing.T) {
	tr := NewMemoryTracker()
	require.Error(t, tr.Update(&sdk.WorkItem{ID: "missing"}))
}
