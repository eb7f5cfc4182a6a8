package sdk

// LLMRouter hands out providers by role. The Agent Driver plans,
// executes, and validates with potentially different models; the router
// owns that mapping so callers never hold a model name themselves.
// Implemented by pkg/llm.
type LLMRouter interface {
	Complete(req CompletionRequest) (*CompletionResponse, error)
	Stream(req CompletionRequest) (<-chan StreamChunk, error)
	CountTokens(content string) (int, error)

	// ForPlanning, ForExecution, and ForValidation return the provider
	// configured for the respective Agent Driver role.
	ForPlanning() LLMProvider
	ForExecution() LLMProvider
	ForValidation() LLMProvider
}

// LLMProvider is a single model backend (Anthropic, genai, Ollama).
type LLMProvider interface {
	Name() string
	Complete(req CompletionRequest) (*CompletionResponse, error)
	Stream(req CompletionRequest) (<-chan StreamChunk, error)
	CountTokens(content string) (int, error)
}

// CompletionRequest is one turn handed to a provider.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	StopWords   []string

	// Tools declares the functions the model may call this turn; the
	// driver executes resulting ToolCalls in declaration order.
	Tools      []Tool
	ToolChoice string
}

// Message is one conversation turn. ToolCalls is set on assistant turns
// that invoke tools; ToolCallID links a tool-result turn back to the
// call it answers.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool declares a function the model may call. Parameters is a JSON
// schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a function invocation emitted by the model. Arguments is
// the raw JSON argument payload.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// CompletionResponse is a provider's answer to one CompletionRequest.
type CompletionResponse struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one fragment of a streaming completion. Done marks the
// final chunk; Error carries a mid-stream failure.
type StreamChunk struct {
	Content  string
	ToolCall *ToolCall
	Done     bool
	Error    error
}
