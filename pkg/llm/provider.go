// Package llm is the model backend the Agent Driver's session loop
// calls through: Provider abstracts one backend (Anthropic, Gemini via
// genai, Ollama), and Router (router.go) hands out role-bound providers
// for embedders that want different models per role. The same Provider
// surface backs Core B's structured extraction stages through
// pkg/ingest's StructuredCaller.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Provider defines the interface for LLM backends. The Agent Driver's
// Session (pkg/orchestra) holds one — directly, or via a Router role —
// and never depends on a concrete backend.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Models returns available model identifiers, most preferred first.
	Models() []string

	// Complete generates a completion.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream generates a streaming completion.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error)

	// CountTokens estimates token count for content.
	CountTokens(content string) (int, error)
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	System   string    `json:"system,omitempty"`

	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`

	StopSequences []string `json:"stop_sequences,omitempty"`

	// Tools declares callable functions; ToolChoice is "auto", "none",
	// or a specific tool name.
	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice string `json:"tool_choice,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// CompletionResponse is the response from a completion request.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content string `json:"content"`

	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// FinishReason is "stop", "max_tokens", or "tool_use".
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is a fragment of a streaming response. Usage arrives on
// the final chunk.
type StreamChunk struct {
	Content  string      `json:"content,omitempty"`
	ToolCall *ToolCall   `json:"tool_call,omitempty"`
	Done     bool        `json:"done"`
	Usage    *TokenUsage `json:"usage,omitempty"`
	Error    error       `json:"-"`
}

// Tool defines a function the LLM can call. Parameters is a JSON schema
// object.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall represents a function invocation. Arguments is the raw JSON
// argument payload.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ProviderError is the error every concrete backend returns, carrying
// the provider name and a stable code callers can branch on.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErrCode(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsRateLimitError reports whether err is a provider rate limit.
func IsRateLimitError(err error) bool {
	code := providerErrCode(err)
	return code == "rate_limit" || code == "rate_limit_exceeded"
}

// IsAuthError reports whether err is an authentication failure; the
// MultiProvider never falls back past one of these.
func IsAuthError(err error) bool {
	code := providerErrCode(err)
	return code == "authentication_error" || code == "invalid_api_key"
}

// IsContextLengthError reports whether err means the prompt overflowed
// the model's context window.
func IsContextLengthError(err error) bool {
	return providerErrCode(err) == "context_length_exceeded"
}
