package retrieval

import (
	"context"
	"hash/fnv"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/vectorstore"
)

// fakeEmbed is a deterministic, dependency-free stand-in for a real
// embedding call, mirroring pkg/vectorstore's test helper so these tests
// never reach the network.
func fakeEmbed() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum32()
		vec := make([]float32, 8)
		for i := range vec {
			vec[i] = float32((seed>>(uint(i)%32))&0xff) / 255.0
		}
		return vec, nil
	}
}

func seededStore(t *testing.T) *vectorstore.Store {
	t.Helper()
	s, err := vectorstore.Open("", fakeEmbed())
	require.NoError(t, err)

	meta := vectorstore.IngestMetadata{DocName: "doc1", Title: "Republic", Author: "Plato", Language: "en"}
	snapshot := vectorstore.WorkSnapshot{Title: "Republic", Author: "Plato"}
	docSnapshot := vectorstore.DocumentSnapshot{SourceID: "doc1", Language: "en"}

	chunks := []vectorstore.Chunk{
		{ID: "c1", Text: "On justice and the ideal city.", SectionPath: "Book I", UnitType: vectorstore.UnitMainContent, Language: "en", Work: snapshot, Document: docSnapshot, OrderIndex: 0},
		{ID: "c2", Text: "The allegory of the cave illustrates ignorance.", SectionPath: "Book VII", UnitType: vectorstore.UnitArgument, Language: "en", Work: snapshot, Document: docSnapshot, OrderIndex: 1},
	}
	summaries := []vectorstore.Summary{
		{ID: "s1", Text: "Book VII discusses education and the cave.", SectionPath: "Book VII", Title: "Book VII", Document: docSnapshot},
	}

	_, _, err = s.IngestDocument(context.Background(), vectorstore.Work{Title: "Republic", Author: "Plato"}, meta, chunks, summaries, 1)
	require.NoError(t, err)
	return s
}

func TestSimple_ZeroLimitShortCircuits(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Simple(context.Background(), "justice", 0, Filters{})
	require.True(t, resp.OK)
	require.Empty(t, resp.Results)
}

func TestSimple_RejectsEmptyQuery(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Simple(context.Background(), "   ", 5, Filters{})
	require.False(t, resp.OK)
	require.Equal(t, ErrKindValidation, resp.Kind)
}

func TestSimple_ReturnsChunkResults(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Simple(context.Background(), "justice and the city", 5, Filters{})
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.Results)
	require.False(t, resp.Results[0].IsSummary)
}

func TestSummary_ReturnsSummaryResults(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Summary(context.Background(), "the cave and education", 5, Filters{})
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.Results)
	require.True(t, resp.Results[0].IsSummary)
}

func TestSimple_AppliesAuthorFilter(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Simple(context.Background(), "justice and the city", 5, Filters{Author: "Aristotle"})
	require.True(t, resp.OK)
	require.Empty(t, resp.Results, "filtering to a non-matching author must drop every chunk")
}

func TestSimple_AppliesMinSimilarity(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Simple(context.Background(), "justice and the city", 5, Filters{MinSimilarity: 2})
	require.True(t, resp.OK)
	require.Empty(t, resp.Results, "an unreachable similarity floor must drop every result")
}

func TestHierarchical_CombinesChunkAndSectionScores(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Hierarchical(context.Background(), "the cave and ignorance", 10, 3, 5, Filters{})
	require.True(t, resp.OK)
	for _, r := range resp.Results {
		require.GreaterOrEqual(t, r.Score, float32(0))
	}
}

func TestHierarchical_TruncatesToLimit(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Hierarchical(context.Background(), "the cave and ignorance", 2, 3, 5, Filters{})
	require.True(t, resp.OK)
	require.LessOrEqual(t, len(resp.Results), 2)
}

func TestAuto_RoutesInterrogativeQueriesToHierarchical(t *testing.T) {
	require.True(t, looksInterrogative("What does the allegory of the cave mean?", 4))
	require.True(t, looksInterrogative("why do we value justice in the city", 4))
}

func TestAuto_RoutesShortKeywordQueriesToSimple(t *testing.T) {
	require.False(t, looksInterrogative("justice", 4))
	require.False(t, looksInterrogative("cave", 4))
}

func TestQueryBudget(t *testing.T) {
	require.Equal(t, 0, queryBudget(5, 0))
	require.Equal(t, 0, queryBudget(0, 10))
	require.Equal(t, 9, queryBudget(3, 100))
	require.Equal(t, 10, queryBudget(5, 10))
}

func TestApplyAppFilters_SectionPathPrefix(t *testing.T) {
	results := []Result{
		{SectionPath: "Book I", Score: 0.9},
		{SectionPath: "Book I > Chapter 1", Score: 0.5},
		{SectionPath: "Book II", Score: 0.8},
	}
	filtered := applyAppFilters(results, Filters{SectionPathPrefix: "Book I"}, 0)
	// A plain string prefix: "Book II" also starts with "Book I".
	require.Len(t, filtered, 3)
}

func TestApplyAppFilters_LimitTruncates(t *testing.T) {
	results := []Result{{Score: 0.9}, {Score: 0.8}, {Score: 0.7}}
	filtered := applyAppFilters(results, Filters{}, 2)
	require.Len(t, filtered, 2)
}

func TestQuery_LimitZeroReturnsEmptyEnvelopeWithoutQueryingStore(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Query(context.Background(), Request{Mode: ModeSimple, Query: "justice", Limit: 0})
	require.True(t, resp.OK)
	require.Equal(t, ModeSimple, resp.Mode)
	require.Equal(t, 0, resp.Total)
	require.Empty(t, resp.Results)
}

func TestQuery_AutoReportsTheRoutedMode(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Query(context.Background(), Request{Mode: ModeAuto, Query: "What is the allegory of the cave?", Limit: 5})
	require.True(t, resp.OK)
	require.Equal(t, ModeHierarchical, resp.Mode)

	resp = e.Query(context.Background(), Request{Mode: ModeAuto, Query: "justice", Limit: 5})
	require.True(t, resp.OK)
	require.Equal(t, ModeSimple, resp.Mode)
}

func TestQuery_TotalMatchesResultCount(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Query(context.Background(), Request{Mode: ModeSimple, Query: "justice and the city", Limit: 5})
	require.True(t, resp.OK)
	require.Equal(t, len(resp.Results), resp.Total)
}

func TestQuery_UnknownModeIsValidationError(t *testing.T) {
	e := New(seededStore(t), DefaultAutoRouterConfig())
	resp := e.Query(context.Background(), Request{Mode: "bogus", Query: "justice", Limit: 5})
	require.False(t, resp.OK)
	require.Equal(t, ErrKindValidation, resp.Kind)
}

func TestSortByScoreDesc(t *testing.T) {
	results := []Result{{Score: 0.2}, {Score: 0.9}, {Score: 0.5}}
	sortByScoreDesc(results)
	require.Equal(t, float32(0.9), results[0].Score)
	require.Equal(t, float32(0.5), results[1].Score)
	require.Equal(t, float32(0.2), results[2].Score)
}
