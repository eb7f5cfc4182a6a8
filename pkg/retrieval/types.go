// Package retrieval implements the multi-mode Retrieval Engine over
// pkg/vectorstore's Chunk and Summary collections (spec §4.10): simple,
// summary, hierarchical, and auto-routed query modes, sharing one filter
// composition and error envelope.
package retrieval

// Filters narrows a query. Author, Work, and MinSimilarity are applied in
// application code after the store query returns (chromem-go's where
// clause is exact-match metadata only, and neither nested-object fields
// nor similarity thresholds fit that shape). Language and UnitType are
// applied at the store query via its where clause. SectionPathPrefix is
// also applied in application code: it is a prefix match, not the
// equality chromem-go's where supports (spec §4.9 "Nested-object
// filtering in the vector store", §4.10).
type Filters struct {
	Author            string
	Work              string
	Language          string
	UnitType          string
	SectionPathPrefix string
	MinSimilarity     float64
}

// Result is one retrieved chunk or summary, normalised to a single shape
// regardless of which collection or mode produced it.
type Result struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Score              float32  `json:"score"`
	SectionPath        string   `json:"section_path"`
	ChapterTitle       string   `json:"chapter_title,omitempty"`
	UnitType           string   `json:"unit_type,omitempty"`
	CanonicalReference string   `json:"canonical_reference,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	WorkTitle          string   `json:"work_title"`
	WorkAuthor         string   `json:"work_author"`
	SourceID           string   `json:"source_id"`
	IsSummary          bool     `json:"is_summary"`
	SummaryConcepts    []string `json:"concepts,omitempty"`
}

// ErrorKind discriminates the Retrieval Engine's {ok:false} envelope
// (spec §7).
type ErrorKind string

const (
	ErrKindValidation ErrorKind = "validation"
	ErrKindStore      ErrorKind = "store"
)

// Mode names one of the four query strategies the Retrieval Engine
// supports (spec §4.10, §6).
type Mode string

const (
	ModeAuto         Mode = "auto"
	ModeSimple       Mode = "simple"
	ModeSummary      Mode = "summary"
	ModeHierarchical Mode = "hierarchical"
)

// Request is the §6 "Retrieval query envelope" input, decoded verbatim by
// both the CLI and internal/api's JSON surface and passed straight to
// Query.
type Request struct {
	Mode             Mode    `json:"mode"`
	Query            string  `json:"query"`
	Limit            int     `json:"limit"`
	MinSimilarity    float64 `json:"min_similarity,omitempty"`
	Filters          Filters `json:"filters"`
	SectionsLimit    int     `json:"sections_limit,omitempty"`
	ChunksPerSection int     `json:"chunks_per_section,omitempty"`
}

// Response is the Retrieval Engine's response envelope: either Results is
// populated and OK is true, or Kind/Message explain the failure (spec §7,
// §6). Mode records which strategy actually answered the query — for auto
// mode this is the route picked, not the literal request mode (spec
// §4.10: "always include the selected mode in the result envelope").
type Response struct {
	OK      bool      `json:"ok"`
	Mode    Mode      `json:"mode,omitempty"`
	Total   int       `json:"total"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
	Results []Result  `json:"results,omitempty"`
}

func errResponse(kind ErrorKind, message string) Response {
	return Response{OK: false, Kind: kind, Message: message}
}

func okResponse(mode Mode, results []Result) Response {
	if results == nil {
		results = []Result{}
	}
	return Response{OK: true, Mode: mode, Total: len(results), Results: results}
}

// AutoRouterConfig tunes the auto mode's hierarchical-vs-simple routing
// heuristic (spec §4.10, §9 Open Question: "what counts as 'looks like a
// research question'").
type AutoRouterConfig struct {
	MinTokens int // default 4
}

// DefaultAutoRouterConfig returns the spec's documented default.
func DefaultAutoRouterConfig() AutoRouterConfig {
	return AutoRouterConfig{MinTokens: 4}
}
