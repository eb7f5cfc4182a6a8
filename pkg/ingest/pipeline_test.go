package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/costledger"
)

func TestSectionBody_ExtractsBetweenHeadingsOfSameLevel(t *testing.T) {
	md := "# Book I\n\nIntro text.\n\n## Chapter 1\n\nChapter one text.\n\n## Chapter 2\n\nChapter two text.\n\n# Book II\n\nOther book.\n"

	require.Equal(t, "Chapter one text.", sectionBody(md, "Chapter 1", 0))
	require.Equal(t, "Chapter two text.", sectionBody(md, "Chapter 2", 0))
	require.Contains(t, sectionBody(md, "Book I", 0), "Intro text.")
	require.NotContains(t, sectionBody(md, "Book I", 0), "Other book.")
}

func TestSectionBody_DisambiguatesRepeatedTitlesByOccurrence(t *testing.T) {
	md := "# Book I\n\n## Notes\n\nNotes for book one.\n\n# Book II\n\n## Notes\n\nNotes for book two.\n"

	require.Equal(t, "Notes for book one.", sectionBody(md, "Notes", 0))
	require.Equal(t, "Notes for book two.", sectionBody(md, "Notes", 1))
}

func TestSectionBody_MissingTitleReturnsEmpty(t *testing.T) {
	require.Equal(t, "", sectionBody("# Book I\n\ntext\n", "Nonexistent", 0))
}

// fakeOCRClient returns a fixed three-page response (a TOC page plus two
// section pages), exercising the pipeline without a real external OCR
// service.
type fakeOCRClient struct{}

func (fakeOCRClient) Fetch(_ context.Context, _ string, _ bool) (OCRResponse, float64, error) {
	return OCRResponse{
		Pages: []OCRPage{
			{Number: 1, Blocks: []OCRBlock{
				{Kind: "text", Text: "## Table of Contents"},
				{Kind: "text", Text: "On Justice....................1\nThe Cave.......................2"},
			}},
			{Number: 2, Blocks: []OCRBlock{
				{Kind: "text", Text: "# On Justice"},
				{Kind: "text", Text: "Justice is doing one's own work and not meddling with what isn't one's own, a substantial claim worth many words of careful unpacking here."},
			}},
			{Number: 3, Blocks: []OCRBlock{
				{Kind: "text", Text: "## The Cave"},
				{Kind: "text", Text: "The allegory of the cave describes prisoners who mistake shadows for reality until one is freed and ascends toward the light of the sun."},
			}},
		},
	}, 0.04, nil
}

func TestPipeline_Run_NoLLMDeterministicPath(t *testing.T) {
	ledger, err := costledger.Open("")
	require.NoError(t, err)
	defer ledger.Close()

	p := &Pipeline{
		Config: Config{
			UseLLM:              false,
			UseSemanticChunking: false,
			GenerateSummaries:   false,
			IngestToVectorStore: false,
			TOCStrategy:         TOCStrategyIndentation,
		},
		OCR:    fakeOCRClient{},
		Ledger: ledger,
		OutDir: t.TempDir(),
	}

	result, err := p.Run(context.Background(), "republic", "/nonexistent.pdf", nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.OutputPath)
	require.Equal(t, 3, result.ChunksJSON.Pages)
	require.NotEmpty(t, result.ChunksJSON.Chunks)

	for _, c := range result.ChunksJSON.Chunks {
		require.GreaterOrEqual(t, len(c.Text), minChunkChars)
	}
}
