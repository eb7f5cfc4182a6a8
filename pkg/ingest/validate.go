package ingest

import (
	"context"
	"fmt"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/vectorstore"
)

const validateSchema = `{"type":"object","properties":{"keywords":{"type":"array","items":{"type":"string"}},"coherent":{"type":"boolean"},"reason":{"type":"string"}},"required":["keywords","coherent"]}`

const maxKeywords = 15

// ValidateChunk implements the §4.7 Validation + Keywording stage for one
// chunk: asks the LLM for 3-15 keywords and a coherence judgement, then
// reports whether the chunk should be kept. A chunk the model judges
// incoherent (garbled OCR, a stray fragment with no standalone meaning)
// is dropped rather than indexed with empty keywords.
func ValidateChunk(ctx context.Context, caller StructuredCaller, c vectorstore.Chunk) (vectorstore.Chunk, bool, error) {
	prompt := fmt.Sprintf(
		"Extract 3-15 keywords or key phrases from this text, and judge whether it reads as coherent prose "+
			"(not garbled OCR output or a meaningless fragment).\n\nText:\n%s", c.Text)

	var out struct {
		Keywords []string `json:"keywords"`
		Coherent bool     `json:"coherent"`
		Reason   string   `json:"reason"`
	}
	if err := CallStructured(ctx, caller, "ingest.ValidateChunk", prompt, validateSchema, &out); err != nil {
		return c, false, err
	}

	if !out.Coherent {
		logger.GetLogger().Warn().Str("section_path", c.SectionPath).Int("order_index", c.OrderIndex).
			Str("reason", out.Reason).Msg("ingest: rejecting incoherent chunk")
		return c, false, nil
	}

	kw := out.Keywords
	if len(kw) > maxKeywords {
		kw = kw[:maxKeywords]
	}
	c.Keywords = kw
	return c, len(kw) > 0, nil
}

// ValidateChunks runs ValidateChunk over every chunk, returning only the
// ones that survive (coherent, keyworded). caller == nil skips validation
// entirely (keywords stay empty, every chunk is kept) for cheap local runs.
func ValidateChunks(ctx context.Context, caller StructuredCaller, chunks []vectorstore.Chunk) ([]vectorstore.Chunk, error) {
	if caller == nil {
		return chunks, nil
	}

	kept := make([]vectorstore.Chunk, 0, len(chunks))
	for _, c := range chunks {
		validated, ok, err := ValidateChunk(ctx, caller, c)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, validated)
		}
	}
	return kept, nil
}
