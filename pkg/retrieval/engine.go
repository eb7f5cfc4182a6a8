package retrieval

import (
	"context"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/loomwork/loom/pkg/vectorstore"
)

// Engine is the Retrieval Engine: simple/summary/hierarchical/auto modes
// over one Store (spec §4.10).
type Engine struct {
	store  *vectorstore.Store
	router AutoRouterConfig
}

// New builds an Engine over store, using cfg for the auto mode's routing
// heuristic (pass DefaultAutoRouterConfig() for the documented default).
func New(store *vectorstore.Store, cfg AutoRouterConfig) *Engine {
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = 4
	}
	return &Engine{store: store, router: cfg}
}

// Simple runs a plain near-text query over the Chunk collection (spec
// §4.10 "simple mode"). limit == 0 short-circuits without querying the
// store, per the spec's explicit zero-limit contract.
func (e *Engine) Simple(ctx context.Context, query string, limit int, f Filters) Response {
	if limit == 0 {
		return okResponse(ModeSimple, nil)
	}
	if strings.TrimSpace(query) == "" {
		return errResponse(ErrKindValidation, "query must be non-empty")
	}

	docs, err := e.queryChunks(ctx, query, limit, f)
	if err != nil {
		return errResponse(ErrKindStore, err.Error())
	}
	return okResponse(ModeSimple, applyAppFilters(docs, f, limit))
}

// Summary runs a plain near-text query over the Summary collection (spec
// §4.10 "summary mode").
func (e *Engine) Summary(ctx context.Context, query string, limit int, f Filters) Response {
	if limit == 0 {
		return okResponse(ModeSummary, nil)
	}
	if strings.TrimSpace(query) == "" {
		return errResponse(ErrKindValidation, "query must be non-empty")
	}

	docs, err := e.querySummaries(ctx, query, limit, f)
	if err != nil {
		return errResponse(ErrKindStore, err.Error())
	}
	return okResponse(ModeSummary, applyAppFilters(docs, f, limit))
}

// Hierarchical runs the two-stage §4.10 strategy: find the top
// sectionsLimit matching Summaries, then the top chunksPerSection Chunks
// within each matched section's path, combining scores as
// 0.7*chunk_similarity + 0.3*section_similarity so a chunk's own relevance
// dominates but its section's relevance still breaks ties. The merged,
// re-sorted set is truncated to limit (a negative limit means unbounded;
// limit == 0 returns an empty result without querying the store), per
// the spec's "merge all chunks, sort descending, truncate to limit".
func (e *Engine) Hierarchical(ctx context.Context, query string, limit, sectionsLimit, chunksPerSection int, f Filters) Response {
	if sectionsLimit <= 0 {
		sectionsLimit = 3
	}
	if chunksPerSection <= 0 {
		chunksPerSection = 5
	}
	if limit == 0 {
		return okResponse(ModeHierarchical, nil)
	}
	if strings.TrimSpace(query) == "" {
		return errResponse(ErrKindValidation, "query must be non-empty")
	}

	sections, err := e.querySummaries(ctx, query, sectionsLimit, f)
	if err != nil {
		return errResponse(ErrKindStore, err.Error())
	}

	var combined []Result
	for _, sec := range sections {
		sectionFilters := f
		sectionFilters.SectionPathPrefix = sec.SectionPath
		chunks, err := e.queryChunks(ctx, query, chunksPerSection, sectionFilters)
		if err != nil {
			return errResponse(ErrKindStore, err.Error())
		}
		for _, c := range chunks {
			c.Score = 0.7*c.Score + 0.3*sec.Score
			combined = append(combined, c)
		}
	}

	combined = applyAppFilters(combined, f, 0)
	sortByScoreDesc(combined)
	if limit > 0 && len(combined) > limit {
		combined = combined[:limit]
	}
	return okResponse(ModeHierarchical, combined)
}

// Auto routes to Hierarchical when the query looks like a research
// question (interrogative phrasing and at least router.MinTokens tokens),
// else Simple (spec §4.10 "auto mode"). The returned envelope's Mode field
// names whichever mode actually answered the query, not ModeAuto.
func (e *Engine) Auto(ctx context.Context, query string, limit int, f Filters) Response {
	if looksInterrogative(query, e.router.MinTokens) {
		return e.Hierarchical(ctx, query, limit, 3, 5, f)
	}
	return e.Simple(ctx, query, limit, f)
}

// Query dispatches a full Request envelope (spec §6) to the matching mode
// method, applying the request's MinSimilarity into its Filters and
// defaulting SectionsLimit/ChunksPerSection for hierarchical mode. This is
// the single entry point CLI and HTTP callers use so every caller shares
// one piece of routing logic.
func (e *Engine) Query(ctx context.Context, req Request) Response {
	f := req.Filters
	if req.MinSimilarity > 0 {
		f.MinSimilarity = req.MinSimilarity
	}

	switch req.Mode {
	case ModeSimple:
		return e.Simple(ctx, req.Query, req.Limit, f)
	case ModeSummary:
		return e.Summary(ctx, req.Query, req.Limit, f)
	case ModeHierarchical:
		return e.Hierarchical(ctx, req.Query, req.Limit, req.SectionsLimit, req.ChunksPerSection, f)
	case ModeAuto, "":
		return e.Auto(ctx, req.Query, req.Limit, f)
	default:
		return errResponse(ErrKindValidation, "unknown mode: "+string(req.Mode))
	}
}

var interrogativeStarts = []string{"what", "why", "how", "when", "where", "who", "which", "is", "does", "do", "can", "could", "should"}

func looksInterrogative(query string, minTokens int) bool {
	tokens := strings.Fields(query)
	if len(tokens) < minTokens {
		return false
	}
	if strings.HasSuffix(strings.TrimSpace(query), "?") {
		return true
	}
	first := strings.ToLower(strings.TrimRight(tokens[0], "?,."))
	for _, w := range interrogativeStarts {
		if first == w {
			return true
		}
	}
	return false
}

func (e *Engine) queryChunks(ctx context.Context, query string, limit int, f Filters) ([]Result, error) {
	where := map[string]string{}
	if f.Language != "" {
		where["language"] = f.Language
	}
	if f.UnitType != "" {
		where["unit_type"] = f.UnitType
	}
	if len(where) == 0 {
		where = nil
	}

	n := queryBudget(limit, e.store.CountChunks())
	if n == 0 {
		return nil, nil
	}

	docs, err := e.store.Chunks().Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, chunkResultFromMetadata(d))
	}
	return results, nil
}

func (e *Engine) querySummaries(ctx context.Context, query string, limit int, f Filters) ([]Result, error) {
	n := queryBudget(limit, e.store.CountSummaries())
	if n == 0 {
		return nil, nil
	}

	docs, err := e.store.Summaries().Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		results = append(results, summaryResultFromMetadata(d))
	}
	return results, nil
}

// queryBudget caps a requested limit to chromem-go's collection size (it
// errors if asked for more results than documents exist) and applies the
// same 3x-oversample-then-post-filter idiom as index/search.go's
// semanticSearch, since post-filtering below can drop candidates.
func queryBudget(limit, count int) int {
	if count == 0 || limit <= 0 {
		return 0
	}
	n := limit * 3
	if n > count {
		n = count
	}
	return n
}

func chunkResultFromMetadata(d chromem.Result) Result {
	var keywords []string
	if kw := d.Metadata["keywords"]; kw != "" {
		keywords = strings.Split(kw, ",")
	}
	return Result{
		ID:                 d.ID,
		Text:               d.Content,
		Score:              d.Similarity,
		SectionPath:        d.Metadata["section_path"],
		ChapterTitle:       d.Metadata["chapter_title"],
		UnitType:           d.Metadata["unit_type"],
		CanonicalReference: d.Metadata["canonical_reference"],
		Keywords:           keywords,
		WorkTitle:          d.Metadata["work_title"],
		WorkAuthor:         d.Metadata["work_author"],
		SourceID:           d.Metadata["source_id"],
	}
}

func summaryResultFromMetadata(d chromem.Result) Result {
	var concepts []string
	if c := d.Metadata["concepts"]; c != "" {
		concepts = strings.Split(c, ",")
	}
	return Result{
		ID:              d.ID,
		Text:            d.Content,
		Score:           d.Similarity,
		SectionPath:     d.Metadata["section_path"],
		ChapterTitle:    d.Metadata["title"],
		SourceID:        d.Metadata["source_id"],
		IsSummary:       true,
		SummaryConcepts: concepts,
	}
}

// applyAppFilters applies the filters chromem-go's where clause can't
// express (author/work substring match, section_path prefix, minimum
// similarity), then truncates to limit if limit > 0.
func applyAppFilters(results []Result, f Filters, limit int) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if f.Author != "" && !strings.EqualFold(r.WorkAuthor, f.Author) {
			continue
		}
		if f.Work != "" && !strings.EqualFold(r.WorkTitle, f.Work) {
			continue
		}
		if f.SectionPathPrefix != "" && !strings.HasPrefix(r.SectionPath, f.SectionPathPrefix) {
			continue
		}
		if f.MinSimilarity > 0 && float64(r.Score) < f.MinSimilarity {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func sortByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
