// Package ingest implements Core B's ten-stage document pipeline: OCR,
// markdown building, metadata extraction, TOC extraction, section
// classification, semantic chunking, cleaning, validation+keywording,
// summarisation, and vector-store ingestion (spec §4.6-§4.11).
package ingest

import (
	"time"

	"github.com/loomwork/loom/pkg/vectorstore"
)

// OCRBlock is one text or table block on an OCR page.
type OCRBlock struct {
	Kind string `json:"kind"` // "text" | "table"
	Text string `json:"text"`
}

// OCRImage is a reference to an image embedded on a page.
type OCRImage struct {
	Page  int    `json:"page"`
	Index int    `json:"index"`
	Ext   string `json:"ext"`
	Path  string `json:"path"` // file under output/<doc>/images, once extracted
}

// OCRPage is one page of the OCR response.
type OCRPage struct {
	Number int        `json:"number"`
	Blocks []OCRBlock `json:"blocks"`
	Images []OCRImage `json:"images"`
}

// OCRResponse is the structured OCR output, persisted in the cost
// ledger's OCR cache under the document name (spec §4.6, §6); no
// <doc>_ocr.json file is written.
type OCRResponse struct {
	DocName      string    `json:"doc_name"`
	Pages        []OCRPage `json:"pages"`
	Annotated    bool      `json:"annotated"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// PageCount returns len(Pages). When skip_ocr loads a cached response,
// RunOCR returns the whole response, not only its page count, and the
// pipeline rebuilds the markdown from the cached pages.
func (r OCRResponse) PageCount() int { return len(r.Pages) }

// Metadata is the §4.7 Metadata Extraction stage's output.
type Metadata struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	OriginalTitle string `json:"original_title,omitempty"`
	Year          int    `json:"year,omitempty"`
	Language      string `json:"language"`
	Genre         string `json:"genre,omitempty"`
}

// TOCEntry is one node of the hierarchical table of contents (spec §4.7,
// §6). Level is 1-based; Page is optional (LLM-based extraction may omit
// it for sources without explicit page numbers).
type TOCEntry struct {
	Title    string     `json:"title"`
	Level    int        `json:"level"`
	Page     int        `json:"page,omitempty"`
	Children []TOCEntry `json:"children,omitempty"`
}

// SectionKind is the §4.7 Section Classification stage's label for one
// top-level TOC entry.
type SectionKind string

const (
	SectionMainContent      SectionKind = "main_content"
	SectionPreface          SectionKind = "preface"
	SectionIntroduction     SectionKind = "introduction"
	SectionConclusion       SectionKind = "conclusion"
	SectionBibliography     SectionKind = "bibliography"
	SectionAppendix         SectionKind = "appendix"
	SectionNotes            SectionKind = "notes"
	SectionTableOfContents  SectionKind = "table_of_contents"
	SectionIndex            SectionKind = "index"
	SectionAcknowledgments  SectionKind = "acknowledgments"
	SectionAbstract         SectionKind = "abstract"
	SectionIgnore           SectionKind = "ignore"
)

// ClassifiedSection names a TOC entry's classification.
type ClassifiedSection struct {
	Title string      `json:"title"`
	Type  SectionKind `json:"type"`
}

// Dropped reports whether this section is excluded from chunking.
func (c ClassifiedSection) Dropped() bool { return c.Type == SectionIgnore }

// ChunksJSON is the authoritative <doc>_chunks.json schema (spec §6).
type ChunksJSON struct {
	Metadata          Metadata                    `json:"metadata"`
	TOC               []TOCEntry                  `json:"toc"`
	Hierarchy         map[string]any               `json:"hierarchy"`
	ClassifiedSections []ClassifiedSection         `json:"classified_sections"`
	Chunks            []vectorstore.Chunk          `json:"chunks"`
	Summaries         []vectorstore.Summary        `json:"summaries"`
	CostOCR           float64                      `json:"cost_ocr"`
	CostLLM           float64                      `json:"cost_llm"`
	CostTotal         float64                      `json:"cost_total"`
	Pages             int                          `json:"pages"`
	ChunksCount       int                          `json:"chunks_count"`
}

// LLMProvider selects between the two §6 structure_llm_provider backends.
type LLMProvider string

const (
	ProviderLocal  LLMProvider = "local"
	ProviderRemote LLMProvider = "remote"
)

// TOCStrategy selects between the two §4.7 TOC extraction strategies
// (spec §9 Open Question OQ-1, resolved in DESIGN.md).
type TOCStrategy string

const (
	TOCStrategyIndentation TOCStrategy = "indentation"
	TOCStrategyLLM         TOCStrategy = "llm"
	TOCStrategyAuto        TOCStrategy = "auto"
)

// Config is the Pipeline Orchestrator's run configuration (spec §4.11,
// §6).
type Config struct {
	SkipOCR               bool
	UseLLM                bool
	LLMProvider           LLMProvider
	LLMModel              string
	LLMTemperature        float64 // default 0.2
	UseOCRAnnotations     bool
	UseSemanticChunking   bool
	IngestToVectorStore   bool
	GenerateSummaries     bool
	TOCStrategy           TOCStrategy
	SummaryMaxChunks      int // K, default 10-20
	SummaryTokenBudget    int // ~3000 tokens
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		UseLLM:              true,
		LLMProvider:         ProviderRemote,
		LLMTemperature:      0.2,
		UseSemanticChunking: true,
		IngestToVectorStore: true,
		GenerateSummaries:   true,
		TOCStrategy:         TOCStrategyAuto,
		SummaryMaxChunks:    15,
		SummaryTokenBudget:  3000,
	}
}
