// Package vectorstore implements the Vector Store Adapter: four linked
// collections (Work, Document, Chunk, Summary) backed by chromem-go, with
// nested-object denormalisation, adaptive batch-size ingestion, and
// source_id-scoped deletion.
//
// Nested objects (work, document) are stored inline on Chunk and Summary
// rather than via cross-reference, accepting duplication for single-query
// reads (spec §4.9, §9 "Nested-object filtering in the vector store").
package vectorstore

import (
	"strings"
	"time"

	"github.com/loomwork/loom/pkg/sdk"
)

// UnitType is the argumentative role of a Chunk. Unknown values are
// rejected, never coerced (spec §3 invariants).
type UnitType string

const (
	UnitMainContent UnitType = "main_content"
	UnitArgument    UnitType = "argument"
	UnitDefinition  UnitType = "definition"
	UnitExample     UnitType = "example"
	UnitCitation    UnitType = "citation"
	UnitQuestion    UnitType = "question"
	UnitObjection   UnitType = "objection"
	UnitResponse    UnitType = "response"
	UnitAnalysis    UnitType = "analysis"
	UnitSynthesis   UnitType = "synthesis"
	UnitTransition  UnitType = "transition"
)

// ValidUnitType reports whether u is one of the enumerated unit types.
func ValidUnitType(u UnitType) bool {
	switch u {
	case UnitMainContent, UnitArgument, UnitDefinition, UnitExample, UnitCitation,
		UnitQuestion, UnitObjection, UnitResponse, UnitAnalysis, UnitSynthesis, UnitTransition:
		return true
	}
	return false
}

// Work is a canonical opus: one Work may back many Documents (editions).
// Title and Author are semantically indexed; Work carries no other vector
// fields (spec §3, §4.9).
type Work struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	OriginalTitle string `json:"original_title,omitempty"`
	Year          int    `json:"year"` // negative = BCE
	Language      string `json:"language"`
	Genre         string `json:"genre,omitempty"`
}

// WorkSnapshot is the denormalised work fields carried inline on every
// Document, Chunk, and Summary at insertion time (spec §3 invariants).
type WorkSnapshot struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Document is one edition of a Work: metadata only, never semantically
// indexed (spec §3, §4.9).
type Document struct {
	ID          string         `json:"id"`
	SourceID    string         `json:"source_id"` // unique key, filename stem
	Edition     string         `json:"edition,omitempty"`
	Language    string         `json:"language"`
	Pages       int            `json:"pages"`
	ChunksCount int            `json:"chunks_count"`
	TOC         any            `json:"toc"`
	Hierarchy   any            `json:"hierarchy"`
	CreatedAt   time.Time      `json:"created_at"`
	Work        WorkSnapshot   `json:"work"`
}

// DocumentSnapshot is the denormalised document fields carried inline on
// every Chunk and Summary.
type DocumentSnapshot struct {
	SourceID string `json:"source_id"`
	Edition  string `json:"edition,omitempty"`
	Language string `json:"language"`
}

// Chunk is a 200-8000 character argumentative unit (spec §3).
type Chunk struct {
	ID                 string           `json:"id"`
	Text               string           `json:"text"` // indexed
	Keywords           []string         `json:"keywords,omitempty"`
	SectionPath        string           `json:"section_path"`
	SectionLevel       int              `json:"section_level"`
	ChapterTitle       string           `json:"chapter_title,omitempty"`
	CanonicalReference string           `json:"canonical_reference,omitempty"`
	UnitType           UnitType         `json:"unit_type"`
	OrderIndex         int              `json:"order_index"` // 0-based, dense, unique within Document
	Language           string           `json:"language"`
	Work               WorkSnapshot     `json:"work"`
	Document           DocumentSnapshot `json:"document"`
}

// Summary is a section-scoped LLM summary, linked to Chunks by string
// prefix on SectionPath (no cross-reference IDs; spec §9).
type Summary struct {
	ID          string           `json:"id"`
	Text        string           `json:"text"` // indexed
	Concepts    []string         `json:"concepts,omitempty"`
	SectionPath string           `json:"section_path"`
	Title       string           `json:"title"`
	Level       int              `json:"level"` // 1=chapter, 2=section, 3=subsection
	ChunksCount int              `json:"chunks_count"`
	Fallback    bool             `json:"fallback"` // true when no chunk matched the section path
	Document    DocumentSnapshot `json:"document"`
}

// NormalizeSectionPath collapses whitespace and stabilises separators so
// that prefix matching between Chunk.SectionPath and Summary.SectionPath is
// total and deterministic (spec §9).
func NormalizeSectionPath(path string) string {
	fields := strings.Fields(path)
	return strings.Join(fields, " ")
}

// IngestMetadata is the document-level metadata passed to IngestDocument.
type IngestMetadata struct {
	DocName       string
	Title         string
	Author        string
	OriginalTitle string
	Year          int
	Language      string
	Genre         string
	Edition       string
}

// validateField returns a *sdk.Error naming op and field when value is
// empty or all-whitespace.
func validateField(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return sdk.NewError(sdk.ErrValidation, op, "field \""+field+"\" must be non-empty", nil)
	}
	return nil
}
