package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/philippgille/chromem-go"
)

// EmbeddingConfig configures the embedding backend used by the store's
// four collections. Defaults match spec §6: bge-m3, 1024 dimensions,
// 8192-token context, served behind an Ollama-compatible HTTP API.
type EmbeddingConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultEmbeddingConfig returns the spec's default embedding
// configuration (embedding_model_name=bge-m3).
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL: "http://localhost:11434",
		Model:   "bge-m3",
		Timeout: 30 * time.Second,
	}
}

// NewEmbeddingFunc returns a chromem.EmbeddingFunc backed by an
// Ollama-compatible /api/embeddings endpoint, following the same
// raw-HTTP-JSON idiom as index/llm.go's Gemini client.
func NewEmbeddingFunc(cfg EmbeddingConfig) chromem.EmbeddingFunc {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "bge-m3"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: cfg.Timeout}

	return func(ctx context.Context, text string) ([]float32, error) {
		reqBody, err := json.Marshal(embedRequest{Model: cfg.Model, Prompt: text})
		if err != nil {
			return nil, fmt.Errorf("marshal embed request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("embed request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read embed response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("embedding API error %d: %s", resp.StatusCode, string(body))
		}

		var out embedResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("unmarshal embed response: %w", err)
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for model %s", cfg.Model)
		}
		return out.Embedding, nil
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}
