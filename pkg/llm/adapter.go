package llm

import (
	"context"

	"github.com/loomwork/loom/pkg/sdk"
)

// SDKAdapter wraps a Router so a Skill (skills/browser, skills/retrieval)
// can make its own model calls through sdk.LLMRouter without importing
// pkg/llm directly, keeping the Skill interface's dependency graph one-way.
type SDKAdapter struct {
	router *Router
	ctx    context.Context
}

// NewSDKAdapter creates an adapter that implements sdk.LLMRouter.
func NewSDKAdapter(router *Router) *SDKAdapter {
	return &SDKAdapter{router: router, ctx: context.Background()}
}

// WithContext returns an adapter whose calls run under ctx.
func (a *SDKAdapter) WithContext(ctx context.Context) *SDKAdapter {
	return &SDKAdapter{router: a.router, ctx: ctx}
}

// Complete implements sdk.LLMRouter.
func (a *SDKAdapter) Complete(req sdk.CompletionRequest) (*sdk.CompletionResponse, error) {
	resp, err := a.router.Complete(a.ctx, fromSDKRequest(req))
	if err != nil {
		return nil, err
	}
	return toSDKResponse(resp), nil
}

// Stream implements sdk.LLMRouter.
func (a *SDKAdapter) Stream(req sdk.CompletionRequest) (<-chan sdk.StreamChunk, error) {
	ch, err := a.router.Stream(a.ctx, fromSDKRequest(req))
	if err != nil {
		return nil, err
	}
	return bridgeStream(ch), nil
}

// CountTokens implements sdk.LLMRouter.
func (a *SDKAdapter) CountTokens(content string) (int, error) {
	return a.router.CountTokens(content)
}

// ForPlanning implements sdk.LLMRouter.
func (a *SDKAdapter) ForPlanning() sdk.LLMProvider {
	return &providerAdapter{provider: a.router.ForPlanning(), ctx: a.ctx}
}

// ForExecution implements sdk.LLMRouter.
func (a *SDKAdapter) ForExecution() sdk.LLMProvider {
	return &providerAdapter{provider: a.router.ForExecution(), ctx: a.ctx}
}

// ForValidation implements sdk.LLMRouter.
func (a *SDKAdapter) ForValidation() sdk.LLMProvider {
	return &providerAdapter{provider: a.router.ForValidation(), ctx: a.ctx}
}

// providerAdapter wraps a single Provider as an sdk.LLMProvider.
type providerAdapter struct {
	provider Provider
	ctx      context.Context
}

func (p *providerAdapter) Name() string { return p.provider.Name() }

func (p *providerAdapter) Complete(req sdk.CompletionRequest) (*sdk.CompletionResponse, error) {
	resp, err := p.provider.Complete(p.ctx, fromSDKRequest(req))
	if err != nil {
		return nil, err
	}
	return toSDKResponse(resp), nil
}

func (p *providerAdapter) Stream(req sdk.CompletionRequest) (<-chan sdk.StreamChunk, error) {
	ch, err := p.provider.Stream(p.ctx, fromSDKRequest(req))
	if err != nil {
		return nil, err
	}
	return bridgeStream(ch), nil
}

func (p *providerAdapter) CountTokens(content string) (int, error) {
	return p.provider.CountTokens(content)
}

// bridgeStream forwards llm stream chunks as sdk stream chunks.
func bridgeStream(in <-chan StreamChunk) <-chan sdk.StreamChunk {
	out := make(chan sdk.StreamChunk)
	go func() {
		defer close(out)
		for chunk := range in {
			sdkChunk := sdk.StreamChunk{
				Content: chunk.Content,
				Done:    chunk.Done,
				Error:   chunk.Error,
			}
			if chunk.ToolCall != nil {
				call := toSDKToolCall(*chunk.ToolCall)
				sdkChunk.ToolCall = &call
			}
			out <- sdkChunk
		}
	}()
	return out
}

func fromSDKRequest(req sdk.CompletionRequest) *CompletionRequest {
	out := &CompletionRequest{
		Model:         req.Model,
		System:        req.System,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopWords,
		ToolChoice:    req.ToolChoice,
	}

	for _, msg := range req.Messages {
		converted := Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, ToolCall(tc))
		}
		out.Messages = append(out.Messages, converted)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return out
}

func toSDKResponse(resp *CompletionResponse) *sdk.CompletionResponse {
	out := &sdk.CompletionResponse{
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage: sdk.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, toSDKToolCall(tc))
	}
	return out
}

func toSDKToolCall(tc ToolCall) sdk.ToolCall {
	return sdk.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
}
