package costledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddOCRAndLLM_Accumulate(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.AddOCR("doc1", 0.5))
	require.NoError(t, l.AddOCR("doc1", 0.25))
	require.NoError(t, l.AddLLM("doc1", 1.0))

	costs, err := l.Get("doc1")
	require.NoError(t, err)
	require.InDelta(t, 0.75, costs.OCR, 1e-9)
	require.InDelta(t, 1.0, costs.LLM, 1e-9)
	require.InDelta(t, 1.75, costs.Total(), 1e-9)
}

func TestGet_UnknownDocumentReturnsZero(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	costs, err := l.Get("never-seen")
	require.NoError(t, err)
	require.Equal(t, Costs{}, costs)
}

func TestCacheOCRAndLoadOCR(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	_, found, err := l.LoadOCR("doc1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, l.CacheOCR("doc1", []byte(`{"doc_name":"doc1","pages":[{}]}`)))

	data, found, err := l.LoadOCR("doc1")
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, string(data), "doc1")
}

func TestInvalidateOCR(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.CacheOCR("doc1", []byte(`{"doc_name":"doc1"}`)))
	_, found, err := l.LoadOCR("doc1")
	require.NoError(t, err)
	require.True(t, found)

	require.NoError(t, l.InvalidateOCR("doc1"))

	_, found, err = l.LoadOCR("doc1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestInvalidateOCR_UnknownDocumentIsNoOp(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.InvalidateOCR("never-seen"))
}

func TestCostsIsolatedPerDocument(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.AddOCR("doc1", 1.0))
	require.NoError(t, l.AddOCR("doc2", 2.0))

	c1, err := l.Get("doc1")
	require.NoError(t, err)
	c2, err := l.Get("doc2")
	require.NoError(t, err)

	require.InDelta(t, 1.0, c1.OCR, 1e-9)
	require.InDelta(t, 2.0, c2.OCR, 1e-9)
}
