package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/vectorstore"
)

func TestSummarizeSection_FallbackWhenNoChunksMatch(t *testing.T) {
	s, err := SummarizeSection(context.Background(), &fakeCaller{}, "Appendix", "Appendix", 1, nil, DefaultConfig())
	require.NoError(t, err)
	require.True(t, s.Fallback)
	require.Equal(t, 0, s.ChunksCount)
}

func TestSummarizeSection_SummarizesMatchingChunks(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"summary":"A summary of book one.","concepts":["justice","virtue"]}`}}
	chunks := []vectorstore.Chunk{
		{SectionPath: "Book I", Text: "On justice."},
		{SectionPath: "Book I > Chapter 1", Text: "On the cave."},
		{SectionPath: "Book II", Text: "Unrelated."},
	}

	s, err := SummarizeSection(context.Background(), caller, "Book I", "Book I", 1, chunks, DefaultConfig())
	require.NoError(t, err)
	require.False(t, s.Fallback)
	require.Equal(t, 2, s.ChunksCount, "descendant section paths must be included via prefix match")
	require.Equal(t, "A summary of book one.", s.Text)
	require.Equal(t, []string{"justice", "virtue"}, s.Concepts)
}

func TestSummarizeSection_NilCallerUsesTruncatedRawText(t *testing.T) {
	chunks := []vectorstore.Chunk{{SectionPath: "Book I", Text: "On justice and the city and much more besides."}}
	s, err := SummarizeSection(context.Background(), nil, "Book I", "Book I", 1, chunks, DefaultConfig())
	require.NoError(t, err)
	require.False(t, s.Fallback)
	require.Contains(t, s.Text, "On justice")
}

func TestSummarizeSections_CheckspointsAndResumes(t *testing.T) {
	flat := []struct {
		Path  string
		Entry TOCEntry
	}{
		{Path: "Book I", Entry: TOCEntry{Title: "Book I", Level: 1}},
		{Path: "Book II", Entry: TOCEntry{Title: "Book II", Level: 1}},
	}
	chunks := []vectorstore.Chunk{
		{SectionPath: "Book I", Text: "Justice text."},
		{SectionPath: "Book II", Text: "More text."},
	}
	caller := &fakeCaller{responses: []string{
		`{"summary":"Summary one.","concepts":["a"]}`,
		`{"summary":"Summary two.","concepts":["b"]}`,
	}}

	dir := t.TempDir()
	checkpointPath := filepath.Join(dir, "checkpoint.json")

	summaries, err := SummarizeSections(context.Background(), caller, "doc1", flat, chunks, DefaultConfig(), checkpointPath)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	resumed := loadSummaryCheckpoint(checkpointPath, "doc1")
	require.Len(t, resumed, 2)
}

func TestTruncateWords_CapsAtMaxWords(t *testing.T) {
	text := ""
	for i := 0; i < 500; i++ {
		text += "word "
	}
	out := truncateWords(text, 400)
	require.LessOrEqual(t, len(splitFields(out)), 401) // +1 for the trailing "..."
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}
