// Package specparse parses the external Project Specification document
// format into sdk.ProjectSpec / sdk.WorkItem values and builds the
// initial WorkItem set for a new project (plus the single meta item used
// for cross-session handoff notes).
//
// The source format is a JSON document with a flat project_name/overview/
// technology_stack envelope and a feature_N-numbered list of features:
//
//	{
//	  "project_name": "...",
//	  "overview": "...",
//	  "technology_stack": ["go", "postgres"],
//	  "features": [
//	    {"title": "...", "description": "...", "priority": 2, "category": "api",
//	     "test_steps": ["..."]}
//	  ]
//	}
//
// Parsing is pure and deterministic: parsing the same bytes twice yields
// structurally equal ProjectSpec values (spec §8 round-trip property).
package specparse

import (
	"encoding/json"
	"fmt"

	"github.com/loomwork/loom/pkg/sdk"
)

// Parse decodes a Project Specification document.
func Parse(data []byte) (*sdk.ProjectSpec, error) {
	var doc struct {
		ProjectName     string   `json:"project_name"`
		Overview        string   `json:"overview"`
		TechnologyStack []string `json:"technology_stack"`
		Features        []struct {
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Priority    int      `json:"priority"`
			Category    string   `json:"category"`
			TestSteps   []string `json:"test_steps"`
		} `json:"features"`
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, sdk.NewError(sdk.ErrValidation, "specparse.Parse", "malformed project specification", err)
	}
	if doc.ProjectName == "" {
		return nil, sdk.NewError(sdk.ErrValidation, "specparse.Parse", "project_name is required", nil)
	}

	spec := &sdk.ProjectSpec{
		ProjectName:     doc.ProjectName,
		Overview:        doc.Overview,
		TechnologyStack: doc.TechnologyStack,
	}

	seenTitles := make(map[string]int, len(doc.Features))
	for i, f := range doc.Features {
		priority := f.Priority
		if priority < 1 || priority > 4 {
			return nil, sdk.NewError(sdk.ErrValidation, "specparse.Parse",
				fmt.Sprintf("feature_%d: priority must be 1-4, got %d", i, priority), nil)
		}
		if prior, dup := seenTitles[f.Title]; dup {
			return nil, sdk.NewError(sdk.ErrValidation, "specparse.Parse",
				fmt.Sprintf("feature_%d and feature_%d share the title %q", prior, i, f.Title), nil)
		}
		seenTitles[f.Title] = i
		spec.Features = append(spec.Features, sdk.Feature{
			Index:       i,
			Title:       f.Title,
			Description: f.Description,
			Priority:    priority,
			Category:    f.Category,
			TestSteps:   f.TestSteps,
		})
	}

	return spec, nil
}

// BuildWorkItems converts a parsed ProjectSpec into the initial WorkItem
// set for a project: one item per feature plus exactly one meta item used
// to carry cross-session handoff notes. idGen generates unique IDs (the
// caller supplies it so tests can use a deterministic sequence).
func BuildWorkItems(spec *sdk.ProjectSpec, projectID string, idGen func() string) []*sdk.WorkItem {
	items := make([]*sdk.WorkItem, 0, len(spec.Features)+1)

	for _, f := range spec.Features {
		items = append(items, &sdk.WorkItem{
			ID:          idGen(),
			ProjectID:   projectID,
			Title:       f.Title,
			Description: f.Description,
			Priority:    f.Priority,
			Category:    f.Category,
			TestSteps:   f.TestSteps,
			Status:      sdk.ItemStatusTodo,
		})
	}

	meta := &sdk.WorkItem{
		ID:          idGen(),
		ProjectID:   projectID,
		Title:       "project handoff notes",
		Description: "Accumulates cross-session summary comments; never picked as work.",
		Priority:    4,
		IsMeta:      true,
		Status:      sdk.ItemStatusInProgress,
	}
	items = append(items, meta)

	return items
}

// MetaItem returns the meta item from a WorkItem slice, or nil if absent.
func MetaItem(items []*sdk.WorkItem) *sdk.WorkItem {
	for _, it := range items {
		if it.IsMeta {
			return it
		}
	}
	return nil
}

// PickNext selects the highest-priority todo item (lowest Priority value),
// breaking ties by creation order. Returns nil if none remain, matching
// the spec's "no todo items" stop sentinel.
func PickNext(items []*sdk.WorkItem) *sdk.WorkItem {
	var best *sdk.WorkItem
	for _, it := range items {
		if it.Status != sdk.ItemStatusTodo || it.IsMeta {
			continue
		}
		if best == nil {
			best = it
			continue
		}
		if it.Priority < best.Priority {
			best = it
			continue
		}
		if it.Priority == best.Priority && it.CreatedAt.Before(best.CreatedAt) {
			best = it
		}
	}
	return best
}
