package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GenaiProvider implements the Provider interface against the Gemini API.
// It is the other `remote` structure_llm_provider backend (alongside
// AnthropicProvider): Core B's per-run provider selection (spec §4.7)
// picks whichever remote backend is configured, not both at once.
type GenaiProvider struct {
	client   *genai.Client
	model    string
	thinking string
	timeout  time.Duration
	models   []string
}

// GenaiConfig configures a GenaiProvider.
type GenaiConfig struct {
	APIKey   string
	Model    string
	Thinking string // NONE, LOW, NORMAL, HIGH
	Timeout  time.Duration
}

// DefaultGenaiConfig reads GOOGLE_GEMINI_API_KEY, mirroring the other
// providers' env-var-driven defaults.
func DefaultGenaiConfig() GenaiConfig {
	return GenaiConfig{
		APIKey:   os.Getenv("GOOGLE_GEMINI_API_KEY"),
		Model:    "gemini-3-flash-preview",
		Thinking: "NORMAL",
		Timeout:  30 * time.Second,
	}
}

// NewGenaiProvider creates a Gemini-backed provider. Returns nil if no
// API key is configured or the client fails to initialize, mirroring
// LLMClient's nil-safe construction so callers can treat an unconfigured
// Gemini backend the same as a configured-but-unused one.
func NewGenaiProvider(cfg GenaiConfig) *GenaiProvider {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if cfg.Thinking == "" {
		cfg.Thinking = "NORMAL"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil
	}

	return &GenaiProvider{
		client:   client,
		model:    cfg.Model,
		thinking: cfg.Thinking,
		timeout:  cfg.Timeout,
		models: []string{
			"gemini-3-flash-preview",
			"gemini-3-pro-preview",
			"gemini-2.0-flash",
		},
	}
}

// Name returns the provider name.
func (p *GenaiProvider) Name() string {
	return "genai"
}

// Models returns available model identifiers.
func (p *GenaiProvider) Models() []string {
	return p.models
}

// Complete generates a completion. Tool use is not translated to the
// genai function-calling API; callers that need tools should route
// through AnthropicProvider instead (genai is used for the structured
// single-shot extraction calls Core B's ingestion stages make, which
// never request tools).
func (p *GenaiProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingLevel: thinkingLevel(p.thinking),
		},
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	prompt := promptFromMessages(req.Messages)

	result, err := p.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, &ProviderError{Provider: "genai", Code: "request_failed", Message: err.Error(), Err: err}
	}
	if result == nil || len(result.Candidates) == 0 {
		return nil, &ProviderError{Provider: "genai", Code: "empty_response", Message: "no candidates returned"}
	}

	var text string
	if result.Candidates[0].Content != nil {
		for _, part := range result.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}
	}
	if text == "" {
		return nil, &ProviderError{Provider: "genai", Code: "empty_response", Message: "no text in response"}
	}

	usage := TokenUsage{}
	if result.UsageMetadata != nil {
		usage.PromptTokens = int(result.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(result.UsageMetadata.TotalTokenCount)
	}

	return &CompletionResponse{
		Model:        model,
		Content:      text,
		FinishReason: "stop",
		Usage:        usage,
	}, nil
}

// Stream is not supported by the genai backend in this integration;
// Core B's ingestion stages only ever call CallStructured, which uses
// Complete. Callers that need streaming should use AnthropicProvider.
func (p *GenaiProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	return nil, &ProviderError{Provider: "genai", Code: "unsupported", Message: "streaming not supported by the genai provider"}
}

// CountTokens estimates token count.
func (p *GenaiProvider) CountTokens(content string) (int, error) {
	return EstimateTokens(content), nil
}

// thinkingLevel converts a string thinking level to the SDK enum.
func thinkingLevel(level string) genai.ThinkingLevel {
	switch strings.ToUpper(level) {
	case "NONE":
		return genai.ThinkingLevelMinimal
	case "LOW":
		return genai.ThinkingLevelLow
	case "HIGH":
		return genai.ThinkingLevelHigh
	default:
		return genai.ThinkingLevelMedium
	}
}

// promptFromMessages flattens a conversation into a single prompt string,
// since CallStructured's single-system+single-user shape never needs a
// genai multi-turn Content slice.
func promptFromMessages(messages []Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", msg.Role, msg.Content)
	}
	return b.String()
}
