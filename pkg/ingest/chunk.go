package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/loomwork/loom/pkg/vectorstore"
)

const (
	minChunkChars = 200
	maxChunkChars = 8000
)

const chunkSchema = `{"type":"object","properties":{"units":{"type":"array","items":{"type":"object","properties":{"text":{"type":"string"},"unit_type":{"type":"string","enum":["main_content","argument","definition","example","citation","question","objection","response","analysis","synthesis","transition"]},"canonical_reference":{"type":"string"}},"required":["text","unit_type"]}}},"required":["units"]}`

// sectionText is one classified, non-dropped section's text alongside its
// TOC path metadata, the unit the Semantic Chunker consumes.
type sectionText struct {
	Path         string
	Level        int
	ChapterTitle string
	Text         string
	Language     string
}

// ChunkSection splits one section's text into 200-8000 character
// argumentative units, labelling each with unit_type, section_path,
// section_level, chapter_title, an optional canonical_reference, and a
// dense order_index continuing from startIndex (spec §4.7 Semantic
// Chunker). When cfg.UseSemanticChunking is false, falls back to a
// deterministic paragraph-boundary splitter grounded on
// pkg/index/chunk.go's line-window Chunker, generalized from line windows
// to character windows and from symbol boundaries to unit_type labels.
func ChunkSection(ctx context.Context, caller StructuredCaller, sec sectionText, cfg Config, startIndex int) ([]vectorstore.Chunk, error) {
	if cfg.UseSemanticChunking && caller != nil {
		return chunkSemantic(ctx, caller, sec, startIndex)
	}
	return chunkDeterministic(sec, startIndex), nil
}

func chunkSemantic(ctx context.Context, caller StructuredCaller, sec sectionText, startIndex int) ([]vectorstore.Chunk, error) {
	prompt := fmt.Sprintf(
		"Split the following section text into argumentative units of 200-8000 characters each. "+
			"Label each unit's role and, if present, its canonical citation (e.g. Stephanus or Peirce CP numbering).\n\nSection: %s\n\n%s",
		sec.Path, sec.Text)

	var out struct {
		Units []struct {
			Text               string `json:"text"`
			UnitType           string `json:"unit_type"`
			CanonicalReference string `json:"canonical_reference"`
		} `json:"units"`
	}
	if err := CallStructured(ctx, caller, "ingest.ChunkSection", prompt, chunkSchema, &out); err != nil {
		return nil, err
	}

	var chunks []vectorstore.Chunk
	idx := startIndex
	for _, u := range out.Units {
		for _, piece := range splitOversized(u.Text) {
			if len(piece) < minChunkChars {
				continue
			}
			ut := vectorstore.UnitType(u.UnitType)
			if !vectorstore.ValidUnitType(ut) {
				ut = vectorstore.UnitMainContent
			}
			chunks = append(chunks, vectorstore.Chunk{
				ID:                 chunkID(sec.Path, idx),
				Text:               piece,
				SectionPath:        vectorstore.NormalizeSectionPath(sec.Path),
				SectionLevel:       sec.Level,
				ChapterTitle:       sec.ChapterTitle,
				CanonicalReference: u.CanonicalReference,
				UnitType:           ut,
				OrderIndex:         idx,
				Language:           sec.Language,
			})
			idx++
		}
	}
	return chunks, nil
}

// chunkDeterministic splits on blank-line paragraph boundaries, greedily
// packing paragraphs up to maxChunkChars, the fallback path when semantic
// chunking is disabled. All unit_types are main_content.
func chunkDeterministic(sec sectionText, startIndex int) []vectorstore.Chunk {
	paragraphs := strings.Split(strings.TrimSpace(sec.Text), "\n\n")

	var chunks []vectorstore.Chunk
	idx := startIndex
	var cur strings.Builder

	flush := func() {
		for _, text := range splitOversized(cur.String()) {
			if len(text) < minChunkChars {
				continue
			}
			chunks = append(chunks, vectorstore.Chunk{
				ID:           chunkID(sec.Path, idx),
				Text:         text,
				SectionPath:  vectorstore.NormalizeSectionPath(sec.Path),
				SectionLevel: sec.Level,
				ChapterTitle: sec.ChapterTitle,
				UnitType:     vectorstore.UnitMainContent,
				OrderIndex:   idx,
				Language:     sec.Language,
			})
			idx++
		}
		cur.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if cur.Len()+len(p)+2 > maxChunkChars && cur.Len() > 0 {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
		if cur.Len() > maxChunkChars {
			flush()
		}
	}
	flush()

	return chunks
}

// splitOversized splits text exceeding maxChunkChars on paragraph (or, if
// no paragraph break is available, plain) boundaries so every resulting
// piece inherits the parent's section_path and stays within the 200-8000
// char bound (spec §8 boundary behaviour).
func splitOversized(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	var pieces []string
	for len(text) > maxChunkChars {
		cut := strings.LastIndex(text[:maxChunkChars], "\n\n")
		if cut < minChunkChars {
			cut = maxChunkChars
		}
		pieces = append(pieces, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		pieces = append(pieces, text)
	}
	return pieces
}

// chunkID generates a stable chunk identifier from its section path and
// order_index, following the same sha256-prefix idiom as
// pkg/index/chunk.go's generateChunkID.
func chunkID(sectionPath string, orderIndex int) string {
	data := fmt.Sprintf("%s:%d", sectionPath, orderIndex)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
