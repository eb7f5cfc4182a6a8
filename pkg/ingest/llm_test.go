package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/llm"
)

// fakeCaller returns responses in order, one per Complete call, so tests
// can script the retry-once-then-fail contract CallStructured implements.
type fakeCaller struct {
	responses []string
	calls     int
}

func (f *fakeCaller) Complete(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.calls >= len(f.responses) {
		return nil, assert.AnError
	}
	resp := f.responses[f.calls]
	f.calls++
	return &llm.CompletionResponse{Content: resp}, nil
}

func TestCallStructured_SucceedsFirstTry(t *testing.T) {
	caller := &fakeCaller{responses: []string{`{"keywords":["a","b"]}`}}
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := CallStructured(context.Background(), caller, "test.op", "prompt", "{}", &out)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, out.Keywords)
	require.Equal(t, 1, caller.calls)
}

func TestCallStructured_RetriesOnceThenSucceeds(t *testing.T) {
	caller := &fakeCaller{responses: []string{"not json at all", `{"keywords":["a"]}`}}
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := CallStructured(context.Background(), caller, "test.op", "prompt", "{}", &out)
	require.NoError(t, err)
	require.Equal(t, 2, caller.calls)
}

func TestCallStructured_FatalAfterSecondFailure(t *testing.T) {
	caller := &fakeCaller{responses: []string{"still not json", "still not json either"}}
	var out struct {
		Keywords []string `json:"keywords"`
	}
	err := CallStructured(context.Background(), caller, "test.op", "prompt", "{}", &out)
	require.Error(t, err)
}
