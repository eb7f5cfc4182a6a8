package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/vectorstore"
)

func TestCleanChunkText_RepairsLigaturesAndHyphenation(t *testing.T) {
	in := "The ﬁrst argu-\nment concerns  justice."
	out := CleanChunkText(in)
	require.Equal(t, "The first argument concerns justice.", out)
}

func TestStripRunningHeaders_RemovesRepeatedLines(t *testing.T) {
	pages := []OCRPage{
		{Number: 1, Blocks: []OCRBlock{{Kind: "text", Text: "THE REPUBLIC\nBook I begins here.\n14"}}},
		{Number: 2, Blocks: []OCRBlock{{Kind: "text", Text: "THE REPUBLIC\nBook I continues.\n15"}}},
		{Number: 3, Blocks: []OCRBlock{{Kind: "text", Text: "THE REPUBLIC\nBook I concludes.\n16"}}},
	}
	StripRunningHeaders(pages)

	for _, p := range pages {
		for _, b := range p.Blocks {
			require.NotContains(t, b.Text, "THE REPUBLIC")
		}
	}
	require.Contains(t, pages[0].Blocks[0].Text, "Book I begins here.")
}

func TestStripRunningHeaders_TooFewPagesIsNoOp(t *testing.T) {
	pages := []OCRPage{
		{Number: 1, Blocks: []OCRBlock{{Kind: "text", Text: "HEADER\nbody one"}}},
		{Number: 2, Blocks: []OCRBlock{{Kind: "text", Text: "HEADER\nbody two"}}},
	}
	StripRunningHeaders(pages)
	require.Contains(t, pages[0].Blocks[0].Text, "HEADER", "fewer than 3 pages must not attempt header detection")
}

func TestCleanChunks_DropsShortChunksWithoutRenumbering(t *testing.T) {
	chunks := []vectorstore.Chunk{
		{OrderIndex: 0, Text: "This is a long enough passage of real argumentative prose that should survive cleaning easily, since it states a claim about justice, gives a reason for it, and then answers the most obvious objection at some length."},
		{OrderIndex: 1, Text: "x"},
		{OrderIndex: 2, Text: "Another substantial passage of philosophical prose discussing virtue and the good life at length, weighing the claim that the just person is happier than the unjust one against the story of the ring of Gyges."},
	}
	kept := CleanChunks(chunks)

	require.Len(t, kept, 2)
	require.Equal(t, 0, kept[0].OrderIndex)
	require.Equal(t, 2, kept[1].OrderIndex, "order_index of surviving chunks must be preserved, not renumbered")
}
