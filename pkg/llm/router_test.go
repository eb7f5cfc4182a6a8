package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider records the requests it serves and can be scripted to
// fail, so Router and MultiProvider behavior is testable without a
// backend.
type fakeProvider struct {
	name    string
	models  []string
	err     error
	lastReq *CompletionRequest
	calls   int
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Models() []string { return f.models }

func (f *fakeProvider) Complete(_ context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &CompletionResponse{Model: req.Model, Content: "ok from " + f.name}, nil
}

func (f *fakeProvider) Stream(_ context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) CountTokens(content string) (int, error) {
	return EstimateTokens(content), nil
}

func TestRouter_DefaultsToProviderPreferredModel(t *testing.T) {
	p := &fakeProvider{name: "fake", models: []string{"large", "small"}}
	r := NewRouter(p)

	assert.Equal(t, "large", r.Model(RolePlanning))
	assert.Equal(t, "large", r.Model(RoleValidation))
}

func TestRouter_RoleBindings(t *testing.T) {
	p := &fakeProvider{name: "fake", models: []string{"large"}}
	r := NewRouter(p).
		SetModel(RolePlanning, "large").
		SetModel(RoleValidation, "small")

	_, err := r.ForValidation().Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "small", p.lastReq.Model)

	_, err = r.ForPlanning().Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "large", p.lastReq.Model)
}

func TestRouter_SetModelAfterHandingOutProvider(t *testing.T) {
	p := &fakeProvider{name: "fake", models: []string{"large"}}
	r := NewRouter(p)
	exec := r.ForExecution()

	r.SetModel(RoleExecution, "medium")

	_, err := exec.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "medium", p.lastReq.Model, "role bindings are read per call")
}

func TestRouter_EmptyModelResetsRole(t *testing.T) {
	p := &fakeProvider{name: "fake", models: []string{"large"}}
	r := NewRouter(p).SetModel(RolePlanning, "custom").SetModel(RolePlanning, "")

	assert.Equal(t, "large", r.Model(RolePlanning))
}

func TestRouter_CompleteFillsDefaultModel(t *testing.T) {
	p := &fakeProvider{name: "fake", models: []string{"large"}}
	r := NewRouter(p)

	_, err := r.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "large", p.lastReq.Model)

	_, err = r.Complete(context.Background(), &CompletionRequest{Model: "explicit"})
	require.NoError(t, err)
	assert.Equal(t, "explicit", p.lastReq.Model)
}

func TestMultiProvider_FallsBackOnError(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("503")}
	healthy := &fakeProvider{name: "healthy"}
	mp := NewMultiProvider(broken, healthy)

	resp, err := mp.Complete(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok from healthy", resp.Content)
	assert.Equal(t, 1, broken.calls)
}

func TestMultiProvider_AuthErrorStopsFallback(t *testing.T) {
	badKey := &fakeProvider{name: "badkey", err: &ProviderError{Provider: "badkey", Code: "invalid_api_key", Message: "nope"}}
	healthy := &fakeProvider{name: "healthy"}
	mp := NewMultiProvider(badKey, healthy)

	_, err := mp.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Zero(t, healthy.calls, "fallback must not run on an auth error")
}

func TestMultiProvider_AllFail(t *testing.T) {
	a := &fakeProvider{name: "a", err: errors.New("down")}
	b := &fakeProvider{name: "b", err: errors.New("also down")}
	mp := NewMultiProvider(a, b)

	_, err := mp.Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all providers failed")
}

func TestMultiProvider_ModelsDeduplicated(t *testing.T) {
	a := &fakeProvider{name: "a", models: []string{"m1", "m2"}}
	b := &fakeProvider{name: "b", models: []string{"m2", "m3"}}
	mp := NewMultiProvider(a, b)

	assert.Equal(t, []string{"m1", "m2", "m3"}, mp.Models())
}

func TestProviderErrorHelpers(t *testing.T) {
	rate := &ProviderError{Provider: "p", Code: "rate_limit", Message: "slow down"}
	assert.True(t, IsRateLimitError(rate))
	assert.False(t, IsAuthError(rate))

	ctxLen := &ProviderError{Provider: "p", Code: "context_length_exceeded", Message: "too long"}
	assert.True(t, IsContextLengthError(ctxLen))

	assert.False(t, IsRateLimitError(errors.New("plain")))
}
