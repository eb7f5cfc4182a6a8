package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/vectorstore"
)

const summarizeSchema = `{"type":"object","properties":{"summary":{"type":"string"},"concepts":{"type":"array","items":{"type":"string"}}},"required":["summary","concepts"]}`

const charsPerToken = 4

// SummarizeSection implements the §4.7 Summarisation stage for one TOC
// node: concatenates up to cfg.SummaryMaxChunks chunks whose SectionPath
// is this node's path or a descendant of it (string-prefix match, spec
// §3/§9 — Summary<->Chunk linkage has no cross-reference ID), truncated to
// the section's character budget, then asks the LLM for a 100-400 word
// summary and 5-15 concepts. When no chunk matches, returns a fallback
// summary (ChunksCount=0, Fallback=true) instead of calling the LLM.
func SummarizeSection(ctx context.Context, caller StructuredCaller, sectionPath, title string, level int, allChunks []vectorstore.Chunk, cfg Config) (vectorstore.Summary, error) {
	path := vectorstore.NormalizeSectionPath(sectionPath)

	var matched []vectorstore.Chunk
	for _, c := range allChunks {
		if c.SectionPath == path || strings.HasPrefix(c.SectionPath, path+" > ") {
			matched = append(matched, c)
		}
	}

	if len(matched) == 0 {
		return vectorstore.Summary{
			Text:        fmt.Sprintf("No extracted content was found for %q.", title),
			SectionPath: path,
			Title:       title,
			Level:       level,
			ChunksCount: 0,
			Fallback:    true,
		}, nil
	}

	k := cfg.SummaryMaxChunks
	if k <= 0 {
		k = 15
	}
	if len(matched) > k {
		matched = matched[:k]
	}

	budget := cfg.SummaryTokenBudget
	if budget <= 0 {
		budget = 3000
	}
	charBudget := budget * charsPerToken

	var sb strings.Builder
	for _, c := range matched {
		if sb.Len()+len(c.Text) > charBudget {
			remaining := charBudget - sb.Len()
			if remaining > 0 {
				sb.WriteString(c.Text[:remaining])
			}
			break
		}
		sb.WriteString(c.Text)
		sb.WriteString("\n\n")
	}

	if caller == nil {
		return vectorstore.Summary{
			Text:        truncateWords(sb.String(), 400),
			SectionPath: path,
			Title:       title,
			Level:       level,
			ChunksCount: len(matched),
			Fallback:    false,
		}, nil
	}

	prompt := fmt.Sprintf("Write a 100-400 word summary of this section titled %q, and list 5-15 key concepts.\n\n%s", title, sb.String())

	var out struct {
		Summary  string   `json:"summary"`
		Concepts []string `json:"concepts"`
	}
	if err := CallStructured(ctx, caller, "ingest.SummarizeSection", prompt, summarizeSchema, &out); err != nil {
		return vectorstore.Summary{}, err
	}

	return vectorstore.Summary{
		Text:        out.Summary,
		Concepts:    out.Concepts,
		SectionPath: path,
		Title:       title,
		Level:       level,
		ChunksCount: len(matched),
		Fallback:    false,
	}, nil
}

// truncateWords caps text to approximately maxWords words, used only for
// the caller==nil (no-LLM) fallback summary path.
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

// summaryCheckpoint is the intermediate state written after every batch of
// SummarizeSections, so a crashed or interrupted run can resume without
// re-summarizing already-completed sections (spec §4.7, §4.11 resumability).
type summaryCheckpoint struct {
	DocName   string               `json:"doc_name"`
	Completed []vectorstore.Summary `json:"completed"`
}

// SummarizeSections summarizes every flattened TOC node against allChunks,
// checkpointing completed summaries to checkpointPath after each batch of
// summaryCheckpointBatch nodes so a resumed run can skip sections it
// already finished.
const summaryCheckpointBatch = 10

func SummarizeSections(ctx context.Context, caller StructuredCaller, docName string, flat []struct {
	Path  string
	Entry TOCEntry
}, allChunks []vectorstore.Chunk, cfg Config, checkpointPath string) ([]vectorstore.Summary, error) {
	done := loadSummaryCheckpoint(checkpointPath, docName)
	doneByPath := make(map[string]bool, len(done))
	for _, s := range done {
		doneByPath[s.SectionPath] = true
	}

	summaries := done
	log := logger.GetLogger()

	for i, node := range flat {
		path := vectorstore.NormalizeSectionPath(node.Path)
		if doneByPath[path] {
			continue
		}

		s, err := SummarizeSection(ctx, caller, node.Path, node.Entry.Title, node.Entry.Level, allChunks, cfg)
		if err != nil {
			saveSummaryCheckpoint(checkpointPath, docName, summaries)
			return nil, err
		}
		summaries = append(summaries, s)

		if checkpointPath != "" && (i+1)%summaryCheckpointBatch == 0 {
			saveSummaryCheckpoint(checkpointPath, docName, summaries)
			log.Info().Int("completed", len(summaries)).Int("total", len(flat)).Msg("ingest: summarization checkpoint saved")
		}
	}

	if checkpointPath != "" {
		saveSummaryCheckpoint(checkpointPath, docName, summaries)
	}
	return summaries, nil
}

func loadSummaryCheckpoint(path, docName string) []vectorstore.Summary {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var ck summaryCheckpoint
	if err := json.Unmarshal(data, &ck); err != nil || ck.DocName != docName {
		return nil
	}
	return ck.Completed
}

func saveSummaryCheckpoint(path, docName string, summaries []vectorstore.Summary) {
	if path == "" {
		return
	}
	data, err := json.MarshalIndent(summaryCheckpoint{DocName: docName, Completed: summaries}, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0o644)
}
