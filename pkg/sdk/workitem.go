package sdk

import "time"

// ItemStatus is the lifecycle state of a WorkItem.
type ItemStatus string

const (
	ItemStatusTodo       ItemStatus = "todo"
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusDone       ItemStatus = "done"
	ItemStatusBlocked    ItemStatus = "blocked"
)

// ProjectSpec is the parsed form of the external Project Specification
// document: a project name, overview, technology stack, and a flat list
// of features (feature_N nodes in the source document).
type ProjectSpec struct {
	ProjectName      string    `json:"project_name"`
	Overview         string    `json:"overview"`
	TechnologyStack  []string  `json:"technology_stack"`
	Features         []Feature `json:"features"`
}

// Feature is one feature_N node from a Project Specification.
type Feature struct {
	// Index is the feature's position in the source document (feature_N's N).
	Index       int      `json:"index"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    int      `json:"priority"` // 1 (highest) .. 4 (lowest)
	Category    string   `json:"category"`
	TestSteps   []string `json:"test_steps"`
}

// Comment is a structured note appended to a WorkItem or the meta item.
type Comment struct {
	Body      string    `json:"body"`
	Author    string    `json:"author"` // e.g. "driver", "system" or "agent"
	CreatedAt time.Time `json:"created_at"`
}

// WorkItem is a single unit of tracked work derived from a Feature, or the
// synthetic meta item created once per project for handoff notes.
type WorkItem struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Category    string     `json:"category"`
	TestSteps   []string   `json:"test_steps,omitempty"`
	IsMeta      bool       `json:"is_meta"`
	Status      ItemStatus `json:"status"`
	Comments    []Comment  `json:"comments,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AddComment appends a structured comment and bumps UpdatedAt.
func (w *WorkItem) AddComment(body, author string) {
	w.Comments = append(w.Comments, Comment{Body: body, Author: author, CreatedAt: time.Now()})
	w.UpdatedAt = time.Now()
}

// Transition moves the item to a new status, bumping UpdatedAt. Callers
// are responsible for enforcing the single-in-progress-item-per-session
// invariant (see pkg/tracker).
func (w *WorkItem) Transition(status ItemStatus) {
	w.Status = status
	w.UpdatedAt = time.Now()
}

// ProjectMarker is the on-disk record proving a project directory has been
// initialized. Its presence disables re-initialization; exactly one exists
// per project directory.
type ProjectMarker struct {
	ProjectID  string    `json:"project_id"`
	TotalItems int       `json:"total_items"`
	MetaItemID string    `json:"meta_item_id"`
	CreatedAt  time.Time `json:"created_at"`
}
