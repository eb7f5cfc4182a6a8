package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySections_ReturnsClassificationsInInputOrder(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`{"sections":[{"title":"Bibliography","type":"bibliography"},{"title":"Book I","type":"main_content"}]}`,
	}}
	toc := []TOCEntry{{Title: "Book I", Level: 1}, {Title: "Bibliography", Level: 1}}

	classified, err := ClassifySections(context.Background(), caller, toc)
	require.NoError(t, err)
	require.Len(t, classified, 2)
	require.Equal(t, "Book I", classified[0].Title)
	require.Equal(t, SectionMainContent, classified[0].Type)
	require.Equal(t, "Bibliography", classified[1].Title)
	require.Equal(t, SectionBibliography, classified[1].Type)
}

func TestClassifySections_FallsBackToMainContentForMissedTitle(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"sections":[{"title":"Book I","type":"main_content"}]}`}}
	toc := []TOCEntry{{Title: "Book I"}, {Title: "Appendix"}}

	classified, err := ClassifySections(context.Background(), caller, toc)
	require.NoError(t, err)
	require.Len(t, classified, 2)
	require.Equal(t, SectionMainContent, classified[1].Type, "a title the model skipped must fall back to main_content")
}

func TestClassifySections_EmptyTOCReturnsNil(t *testing.T) {
	classified, err := ClassifySections(context.Background(), &fakeCaller{}, nil)
	require.NoError(t, err)
	require.Nil(t, classified)
}

func TestClassifiedSection_Dropped(t *testing.T) {
	require.True(t, ClassifiedSection{Type: SectionIgnore}.Dropped())
	require.False(t, ClassifiedSection{Type: SectionMainContent}.Dropped())
}
