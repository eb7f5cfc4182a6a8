package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/sdk"
)

// StructuredCaller is the common LLM-call contract every §4.7 extraction
// stage depends on: a text context plus a strict JSON schema, retried
// once on parse failure with a repaired prompt, fatal on the second
// failure (spec §4.7). It is satisfied by an *llm.Router (or any
// llm.Provider), keeping the two structure_llm_provider backends
// (local/remote) interchangeable.
type StructuredCaller interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// CallStructured sends prompt to caller, requesting a response matching
// schema, and unmarshals the result into out. On a JSON parse failure it
// retries once with a prompt asking the model to repair its own output;
// a second failure is a SchemaError, fatal for the calling stage.
func CallStructured(ctx context.Context, caller StructuredCaller, op, prompt, schema string, out any) error {
	req := &llm.CompletionRequest{
		System:      "Respond with JSON only, matching this schema exactly:\n" + schema,
		Messages:    []llm.Message{llm.UserMessage(prompt)},
		Temperature: 0.2,
		MaxTokens:   4096,
	}

	resp, err := caller.Complete(ctx, req)
	if err != nil {
		return sdk.NewError(sdk.ErrRemoteFatal, op, "structured completion failed", err)
	}

	if err := json.Unmarshal([]byte(resp.Content), out); err == nil {
		return nil
	}

	repairPrompt := fmt.Sprintf(
		"Your previous response was not valid JSON matching the required schema. "+
			"Respond again with ONLY corrected JSON matching this schema:\n%s\n\nPrevious response:\n%s",
		schema, resp.Content)
	req.Messages = append(req.Messages, llm.AssistantMessage(resp.Content), llm.UserMessage(repairPrompt))

	resp, err = caller.Complete(ctx, req)
	if err != nil {
		return sdk.NewError(sdk.ErrRemoteFatal, op, "structured completion retry failed", err)
	}
	if err := json.Unmarshal([]byte(resp.Content), out); err != nil {
		return sdk.NewError(sdk.ErrSchema, op, "llm response failed strict JSON parsing after one repair attempt", err)
	}
	return nil
}

// NewProvider selects the structure_llm_provider backend named by spec
// §6 (local => Ollama, remote => the router's default provider, already
// Anthropic/genai-backed; see pkg/llm).
func NewProvider(provider LLMProvider, router *llm.Router, ollamaBaseURL string) StructuredCaller {
	if provider == ProviderLocal {
		return llm.NewRouter(llm.NewOllamaProvider(ollamaBaseURL))
	}
	return router
}
