package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOCMarkdown = `# The Republic

## Table of Contents

Book I........................1
    Justice defined..............3
    Thrasymachus' challenge......8
Book II.......................15
    The ring of Gyges............17

# Book I

Text of book one.
`

func TestExtractTOCIndentation_ParsesNestedEntries(t *testing.T) {
	entries := ExtractTOCIndentation(sampleTOCMarkdown)
	require.Len(t, entries, 2)

	require.Equal(t, "Book I", entries[0].Title)
	require.Equal(t, 1, entries[0].Page)
	require.Len(t, entries[0].Children, 2)
	require.Equal(t, "Justice defined", entries[0].Children[0].Title)
	require.Equal(t, 3, entries[0].Children[0].Page)

	require.Equal(t, "Book II", entries[1].Title)
	require.Len(t, entries[1].Children, 1)
}

func TestExtractTOCIndentation_NoHeadingReturnsNil(t *testing.T) {
	entries := ExtractTOCIndentation("# Just a title\n\nSome prose with no TOC at all.\n")
	require.Nil(t, entries)
}

func TestLooksLikeIndentationTOC(t *testing.T) {
	require.True(t, LooksLikeIndentationTOC(sampleTOCMarkdown))
	require.False(t, LooksLikeIndentationTOC("# No TOC here\n\nJust prose.\n"))
}

func TestIndentToLevel(t *testing.T) {
	require.Equal(t, 1, indentToLevel(0))
	require.Equal(t, 1, indentToLevel(2))
	require.Equal(t, 2, indentToLevel(3))
	require.Equal(t, 2, indentToLevel(6))
	require.Equal(t, 3, indentToLevel(7))
}

func TestFlattenTOC_BuildsChevronSeparatedPaths(t *testing.T) {
	entries := ExtractTOCIndentation(sampleTOCMarkdown)
	flat := FlattenTOC(entries, "")

	require.Equal(t, "Book I", flat[0].Path)
	require.Equal(t, "Book I > Justice defined", flat[1].Path)
	require.Equal(t, "Book I > Thrasymachus' challenge", flat[2].Path)
	require.Equal(t, "Book II", flat[3].Path)
	require.Equal(t, "Book II > The ring of Gyges", flat[4].Path)
}
