package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/vectorstore"
)

func TestValidateChunk_KeepsCoherentChunkWithKeywords(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"keywords":["justice","city","virtue"],"coherent":true}`}}
	c := vectorstore.Chunk{Text: "On justice and the ideal city."}

	validated, ok, err := ValidateChunk(context.Background(), caller, c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"justice", "city", "virtue"}, validated.Keywords)
}

func TestValidateChunk_RejectsIncoherentChunk(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"keywords":[],"coherent":false,"reason":"garbled OCR fragment"}`}}
	c := vectorstore.Chunk{Text: "asdkj 123 ;;; garble"}

	_, ok, err := ValidateChunk(context.Background(), caller, c)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestValidateChunk_CapsKeywordsAtMax(t *testing.T) {
	kws := `["a","b","c","d","e","f","g","h","i","j","k","l","m","n","o","p"]`
	caller := &fakeCaller{responses: []string{`{"keywords":` + kws + `,"coherent":true}`}}
	c := vectorstore.Chunk{Text: "Some coherent text."}

	validated, ok, err := ValidateChunk(context.Background(), caller, c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, validated.Keywords, maxKeywords)
}

func TestValidateChunks_NilCallerSkipsValidation(t *testing.T) {
	chunks := []vectorstore.Chunk{{Text: "a"}, {Text: "b"}}
	kept, err := ValidateChunks(context.Background(), nil, chunks)
	require.NoError(t, err)
	require.Equal(t, chunks, kept)
}

func TestValidateChunks_DropsIncoherentOnes(t *testing.T) {
	caller := &fakeCaller{responses: []string{
		`{"keywords":["a","b","c"],"coherent":true}`,
		`{"keywords":[],"coherent":false}`,
	}}
	chunks := []vectorstore.Chunk{{Text: "good text"}, {Text: "garbled"}}

	kept, err := ValidateChunks(context.Background(), caller, chunks)
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Equal(t, "good text", kept[0].Text)
}
