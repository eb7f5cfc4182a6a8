package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// AnthropicProvider implements the Provider interface for Claude.
//
// Authentication is either a bare x-api-key (apiKey) or an OAuth bearer
// token (spec's llm_oauth_token, the credential the Agent Driver uses
// for the coding agent LLM) — never both.
type AnthropicProvider struct {
	apiKey     string
	oauthToken string
	httpClient *http.Client
	models     []string
}

// NewAnthropicProvider creates an Anthropic provider authenticated with a
// static x-api-key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		models:     defaultAnthropicModels(),
	}
}

// NewAnthropicOAuthProvider creates an Anthropic provider authenticated
// with an OAuth bearer token (llm_oauth_token). The token is wrapped in
// an oauth2.StaticTokenSource so the outgoing client attaches it the same
// way a refreshable token source would, even though this token is fixed
// for the process lifetime.
func NewAnthropicOAuthProvider(token string) *AnthropicProvider {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return &AnthropicProvider{
		oauthToken: token,
		httpClient: oauth2.NewClient(context.Background(), src),
		models:     defaultAnthropicModels(),
	}
}

func defaultAnthropicModels() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Models returns available model identifiers.
func (p *AnthropicProvider) Models() []string { return p.models }

// send marshals and POSTs one messages request, translating non-200
// responses into ProviderError.
func (p *AnthropicProvider) send(ctx context.Context, req *anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	// With OAuth the bearer Authorization header is attached by the
	// oauth2-wrapped transport.
	if p.oauthToken == "" {
		httpReq.Header.Set("x-api-key", p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, parseAnthropicError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// Complete generates a completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := p.send(ctx, toAnthropicRequest(req))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var msg anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return fromAnthropicResponse(&msg), nil
}

// Stream generates a streaming completion over SSE.
func (p *AnthropicProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error) {
	anthropicReq := toAnthropicRequest(req)
	anthropicReq.Stream = true

	resp, err := p.send(ctx, anthropicReq)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go streamAnthropic(ctx, resp.Body, ch)
	return ch, nil
}

// CountTokens estimates token count at ~4 characters per token.
func (p *AnthropicProvider) CountTokens(content string) (int, error) {
	return EstimateTokens(content), nil
}

// anthropicRequest is the /v1/messages request shape.
type anthropicRequest struct {
	Model       string               `json:"model"`
	Messages    []anthropicMessage   `json:"messages"`
	System      string               `json:"system,omitempty"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature,omitempty"`
	TopP        float64              `json:"top_p,omitempty"`
	Stop        []string             `json:"stop_sequences,omitempty"`
	Tools       []anthropicTool      `json:"tools,omitempty"`
	ToolChoice  *anthropicToolChoice `json:"tool_choice,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// anthropicResponse is the /v1/messages response shape.
type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// toAnthropicRequest converts a CompletionRequest into content-block
// form: the system prompt travels separately, assistant tool calls
// become tool_use blocks, and tool turns become user tool_result blocks.
func toAnthropicRequest(req *CompletionRequest) *anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			// Carried in the request's System field.
		case "tool":
			messages = append(messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
					IsError:   msg.IsError,
				}},
			})
		default:
			converted := anthropicMessage{Role: msg.Role}
			if msg.Content != "" {
				converted.Content = append(converted.Content, anthropicContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var input any
				if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
					input = tc.Arguments
				}
				converted.Content = append(converted.Content, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			messages = append(messages, converted)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	out := &anthropicRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      req.System,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
	}

	for _, tool := range req.Tools {
		schema := tool.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}

	switch req.ToolChoice {
	case "":
	case "auto":
		out.ToolChoice = &anthropicToolChoice{Type: "auto"}
	case "none":
		out.Tools = nil
	default:
		out.ToolChoice = &anthropicToolChoice{Type: "tool", Name: req.ToolChoice}
	}

	return out
}

func fromAnthropicResponse(resp *anthropicResponse) *CompletionResponse {
	result := &CompletionResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: mapAnthropicStopReason(resp.StopReason),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}

	var text strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			argsJSON, _ := json.Marshal(block.Input)
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(argsJSON),
			})
		}
	}
	result.Content = text.String()
	return result
}

func mapAnthropicStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "max_tokens"
	case "tool_use":
		return "tool_use"
	default:
		return reason
	}
}

func parseAnthropicError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return &ProviderError{
			Provider: "anthropic",
			Code:     fmt.Sprintf("http_%d", statusCode),
			Message:  string(body),
		}
	}

	code := errResp.Error.Type
	switch statusCode {
	case http.StatusTooManyRequests:
		code = "rate_limit"
	case http.StatusUnauthorized:
		code = "authentication_error"
	}
	return &ProviderError{Provider: "anthropic", Code: code, Message: errResp.Error.Message}
}

// streamAnthropic reads the SSE stream line by line and forwards deltas
// as chunks; usage arrives on message_delta events and is attached to
// the final chunk.
func streamAnthropic(ctx context.Context, body io.ReadCloser, ch chan<- StreamChunk) {
	defer body.Close()
	defer close(ch)

	var usage *TokenUsage
	var event string

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			ch <- StreamChunk{Error: ctx.Err()}
			return
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "message_stop":
				ch <- StreamChunk{Done: true, Usage: usage}
				return
			case "content_block_delta":
				var payload struct {
					Delta struct {
						Type string `json:"type"`
						Text string `json:"text"`
					} `json:"delta"`
				}
				if err := json.Unmarshal(data, &payload); err == nil && payload.Delta.Type == "text_delta" {
					ch <- StreamChunk{Content: payload.Delta.Text}
				}
			case "message_delta":
				var payload struct {
					Usage anthropicUsage `json:"usage"`
				}
				if err := json.Unmarshal(data, &payload); err == nil {
					usage = &TokenUsage{
						PromptTokens:     payload.Usage.InputTokens,
						CompletionTokens: payload.Usage.OutputTokens,
						TotalTokens:      payload.Usage.InputTokens + payload.Usage.OutputTokens,
					}
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		ch <- StreamChunk{Error: err}
		return
	}
	ch <- StreamChunk{Done: true, Usage: usage}
}
