// Package tracker implements the Tracker Adapter: CRUD over WorkItems and
// their comments, plus the ProjectMarker that records whether a project
// directory has already been initialized. Persistence follows the
// MemorySession/FileSession/Store split of the session store it was
// adapted from (that package is not part of this module):
// an in-memory map guarded by a mutex, optionally mirrored to JSON files
// under the project's data directory.
package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loomwork/loom/pkg/sdk"
)

const markerFileName = "project.marker.json"

// Tracker is the storage-agnostic interface the Agent Driver depends on.
type Tracker interface {
	Create(item *sdk.WorkItem) error
	Get(id string) (*sdk.WorkItem, bool)
	List() []*sdk.WorkItem
	Update(item *sdk.WorkItem) error
	AddComment(id, body, author string) error

	Marker() (*sdk.ProjectMarker, bool)
	WriteMarker(m *sdk.ProjectMarker) error
}

// MemoryTracker implements Tracker purely in memory.
type MemoryTracker struct {
	mu     sync.RWMutex
	items  map[string]*sdk.WorkItem
	marker *sdk.ProjectMarker
}

// NewMemoryTracker creates an empty in-memory tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{items: make(map[string]*sdk.WorkItem)}
}

func (t *MemoryTracker) Create(item *sdk.WorkItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[item.ID]; exists {
		return sdk.NewError(sdk.ErrValidation, "tracker.Create", "work item already exists: "+item.ID, nil)
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	t.items[item.ID] = item
	return nil
}

func (t *MemoryTracker) Get(id string) (*sdk.WorkItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	item, ok := t.items[id]
	return item, ok
}

func (t *MemoryTracker) List() []*sdk.WorkItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*sdk.WorkItem, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	return out
}

func (t *MemoryTracker) Update(item *sdk.WorkItem) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[item.ID]; !exists {
		return sdk.NewError(sdk.ErrNotFound, "tracker.Update", "work item not found: "+item.ID, nil)
	}
	item.UpdatedAt = time.Now()
	t.items[item.ID] = item
	return nil
}

func (t *MemoryTracker) AddComment(id, body, author string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.items[id]
	if !ok {
		return sdk.NewError(sdk.ErrNotFound, "tracker.AddComment", "work item not found: "+id, nil)
	}
	item.AddComment(body, author)
	return nil
}

func (t *MemoryTracker) Marker() (*sdk.ProjectMarker, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.marker, t.marker != nil
}

func (t *MemoryTracker) WriteMarker(m *sdk.ProjectMarker) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.marker = m
	return nil
}

// FileTracker embeds MemoryTracker and mirrors every mutation to a JSON
// file under dir, the same pattern pkg/session's FileSession uses for
// conversation state.
type FileTracker struct {
	MemoryTracker
	dir string
}

// NewFileTracker creates a file-backed tracker rooted at dir, loading any
// existing state (including a prior ProjectMarker) found there.
func NewFileTracker(dir string) (*FileTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, sdk.NewError(sdk.ErrConfig, "tracker.NewFileTracker", "create tracker directory", err)
	}
	t := &FileTracker{dir: dir}
	t.items = make(map[string]*sdk.WorkItem)
	_ = t.load()
	return t, nil
}

type trackerData struct {
	Items  map[string]*sdk.WorkItem `json:"items"`
	Marker *sdk.ProjectMarker       `json:"marker,omitempty"`
}

func (t *FileTracker) itemsPath() string { return filepath.Join(t.dir, "items.json") }
func (t *FileTracker) markerPath() string { return filepath.Join(t.dir, markerFileName) }

func (t *FileTracker) load() error {
	if data, err := os.ReadFile(t.itemsPath()); err == nil {
		var td trackerData
		if err := json.Unmarshal(data, &td); err == nil {
			t.mu.Lock()
			if td.Items != nil {
				t.items = td.Items
			}
			t.mu.Unlock()
		}
	}
	if data, err := os.ReadFile(t.markerPath()); err == nil {
		var m sdk.ProjectMarker
		if err := json.Unmarshal(data, &m); err == nil {
			t.mu.Lock()
			t.marker = &m
			t.mu.Unlock()
		}
	}
	return nil
}

func (t *FileTracker) persist() error {
	t.mu.RLock()
	td := trackerData{Items: t.items, Marker: t.marker}
	t.mu.RUnlock()

	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return sdk.NewError(sdk.ErrSchema, "tracker.persist", "marshal tracker state", err)
	}
	if err := os.WriteFile(t.itemsPath(), data, 0o644); err != nil {
		return sdk.NewError(sdk.ErrConfig, "tracker.persist", "write tracker state", err)
	}
	return nil
}

func (t *FileTracker) Create(item *sdk.WorkItem) error {
	if err := t.MemoryTracker.Create(item); err != nil {
		return err
	}
	return t.persist()
}

func (t *FileTracker) Update(item *sdk.WorkItem) error {
	if err := t.MemoryTracker.Update(item); err != nil {
		return err
	}
	return t.persist()
}

func (t *FileTracker) AddComment(id, body, author string) error {
	if err := t.MemoryTracker.AddComment(id, body, author); err != nil {
		return err
	}
	return t.persist()
}

// WriteMarker persists the ProjectMarker to its own file; its presence on
// disk is the sole signal that a project directory has already been
// initialized, so that file is never rewritten implicitly by other
// mutations. items.json also carries a copy of the marker, which load
// ignores.
func (t *FileTracker) WriteMarker(m *sdk.ProjectMarker) error {
	if err := t.MemoryTracker.WriteMarker(m); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return sdk.NewError(sdk.ErrSchema, "tracker.WriteMarker", "marshal project marker", err)
	}
	return os.WriteFile(t.markerPath(), data, 0o644)
}

// HasMarker reports whether dir already contains a ProjectMarker, without
// constructing a full tracker. Used by the loop driver's init-vs-extend
// decision before a Tracker is even opened.
func HasMarker(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, markerFileName))
	return err == nil
}
