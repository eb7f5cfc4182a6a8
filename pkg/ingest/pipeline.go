package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/costledger"
	"github.com/loomwork/loom/pkg/progress"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/vectorstore"
)

const pipelineStageCount = 10

// Pipeline is the §4.11 Pipeline Orchestrator: threads a source PDF through
// the ten ingestion stages, reporting each via the Progress Channel and
// accumulating cost via the Cost & Cache Ledger (spec §4.6-§4.11).
type Pipeline struct {
	Config  Config
	OCR     OCRClient
	LLM     StructuredCaller
	Ledger  *costledger.Ledger
	Store   *vectorstore.Store
	OutDir  string
}

// Result is the outcome of one Run: the persisted <doc>_chunks.json
// content plus the vector-store ingestion counts, if IngestToVectorStore
// was requested.
type Result struct {
	ChunksJSON    ChunksJSON
	ChunkBatch    vectorstore.BatchResult
	SummaryBatch  vectorstore.BatchResult
	OutputPath    string
}

// Run executes all ten stages for one source PDF named docName, emitting
// progress on ch (nil is safe; events are simply dropped). On fatal stage
// error the ledger is flushed before returning so a skip_ocr retry can
// reuse any OCR already cached (spec §4.11: "the ledger is still flushed to
// disk even when a later stage fails fatally").
func (p *Pipeline) Run(ctx context.Context, docName, pdfPath string, ch *progress.Channel) (Result, error) {
	step := func(n int, label string) {
		if ch != nil {
			ch.Step(n, pipelineStageCount, label)
		}
	}
	fail := func(err error) (Result, error) {
		if p.Ledger != nil {
			_ = p.Ledger.Flush()
		}
		if ch != nil {
			ch.Error(err)
		}
		return Result{}, err
	}

	log := logger.GetLogger().Info().Str("doc", docName).Str("pdf", pdfPath)
	log.Msg("ingest: starting pipeline run")

	docOutDir := filepath.Join(p.OutDir, docName)
	if err := os.MkdirAll(docOutDir, 0o755); err != nil {
		return fail(sdk.NewError(sdk.ErrConfig, "ingest.Pipeline.Run", "create output dir", err))
	}

	// Stage 1: OCR
	step(1, "ocr")
	ocr, err := RunOCR(ctx, p.OCR, p.Ledger, docName, pdfPath, p.Config)
	if err != nil {
		return fail(err)
	}
	StripRunningHeaders(ocr.Pages)

	// Stage 2: image extraction
	step(2, "extract_images")
	var images []OCRImage
	if p.Config.UseOCRAnnotations {
		images, err = ExtractImages(pdfPath, docOutDir)
		if err != nil {
			return fail(err)
		}
	}

	// Stage 3: markdown build
	step(3, "build_markdown")
	markdown := BuildMarkdown(ocr, images)

	// Stage 4: metadata extraction
	step(4, "extract_metadata")
	var meta Metadata
	if p.Config.UseLLM {
		meta, err = ExtractMetadata(ctx, p.LLM, markdown)
		if err != nil {
			return fail(err)
		}
	}

	// Stage 5: TOC extraction
	step(5, "extract_toc")
	toc, err := ExtractTOC(ctx, p.LLM, markdown, p.Config)
	if err != nil {
		return fail(err)
	}
	headings := ParseHeadings(markdown)
	hierarchy := BuildHierarchy(headings)

	// Stage 6: section classification
	step(6, "classify_sections")
	var classified []ClassifiedSection
	if p.Config.UseLLM {
		classified, err = ClassifySections(ctx, p.LLM, toc)
		if err != nil {
			return fail(err)
		}
	}
	dropped := make(map[string]bool, len(classified))
	for _, c := range classified {
		if c.Dropped() {
			dropped[c.Title] = true
		}
	}

	// Stage 7: semantic chunking
	step(7, "chunk")
	flat := FlattenTOC(toc, "")
	var allChunks []vectorstore.Chunk
	idx := 0
	titleOccurrence := make(map[string]int, len(flat))
	for _, node := range flat {
		if dropped[node.Entry.Title] {
			continue
		}
		occurrence := titleOccurrence[node.Entry.Title]
		titleOccurrence[node.Entry.Title] = occurrence + 1
		sec := sectionText{
			Path:         node.Path,
			Level:        node.Entry.Level,
			ChapterTitle: node.Entry.Title,
			Text:         sectionBody(markdown, node.Entry.Title, occurrence),
			Language:     meta.Language,
		}
		if sec.Text == "" {
			continue
		}
		chunks, err := ChunkSection(ctx, p.LLM, sec, p.Config, idx)
		if err != nil {
			return fail(err)
		}
		allChunks = append(allChunks, chunks...)
		idx += len(chunks)
	}

	// Stage 8: cleaning
	step(8, "clean")
	allChunks = CleanChunks(allChunks)

	// Stage 9: validation + keywording
	step(9, "validate")
	var llmForValidate StructuredCaller
	if p.Config.UseLLM {
		llmForValidate = p.LLM
	}
	allChunks, err = ValidateChunks(ctx, llmForValidate, allChunks)
	if err != nil {
		return fail(err)
	}

	// Stage 9b: summarisation (shares stage 9's step since both are
	// LLM-quality passes over the chunked text; spec §6 lists them as one
	// combined "validate+summarize" progress label when both run).
	var summaries []vectorstore.Summary
	if p.Config.GenerateSummaries {
		var llmForSummary StructuredCaller
		if p.Config.UseLLM {
			llmForSummary = p.LLM
		}
		checkpointPath := filepath.Join(docOutDir, "summary_checkpoint.json")
		summaries, err = SummarizeSections(ctx, llmForSummary, docName, flat, allChunks, p.Config, checkpointPath)
		if err != nil {
			return fail(err)
		}
	}

	costs, err := p.Ledger.Get(docName)
	if err != nil {
		return fail(err)
	}

	out := ChunksJSON{
		Metadata:           meta,
		TOC:                toc,
		Hierarchy:          hierarchy,
		ClassifiedSections: classified,
		Chunks:             allChunks,
		Summaries:          summaries,
		CostOCR:            costs.OCR,
		CostLLM:            costs.LLM,
		CostTotal:          costs.Total(),
		Pages:              ocr.PageCount(),
		ChunksCount:        len(allChunks),
	}

	outputPath := filepath.Join(docOutDir, docName+"_chunks.json")
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("marshal chunks json: %w", err))
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fail(sdk.NewError(sdk.ErrConfig, "ingest.Pipeline.Run", "write "+outputPath, err))
	}

	result := Result{ChunksJSON: out, OutputPath: outputPath}

	// Stage 10: vector store ingestion
	step(10, "ingest_vector_store")
	if p.Config.IngestToVectorStore && p.Store != nil {
		workSnapshot := vectorstore.WorkSnapshot{Title: meta.Title, Author: meta.Author}
		docSnapshot := vectorstore.DocumentSnapshot{SourceID: docName, Language: meta.Language}
		for i := range allChunks {
			allChunks[i].Work = workSnapshot
			allChunks[i].Document = docSnapshot
		}
		for i := range summaries {
			summaries[i].Document = docSnapshot
		}

		chunkResult, summaryResult, err := p.Store.IngestDocument(ctx, vectorstore.Work{
			Title: meta.Title, Author: meta.Author, OriginalTitle: meta.OriginalTitle,
			Year: meta.Year, Language: meta.Language, Genre: meta.Genre,
		}, vectorstore.IngestMetadata{
			DocName: docName, Title: meta.Title, Author: meta.Author,
			OriginalTitle: meta.OriginalTitle, Year: meta.Year, Language: meta.Language, Genre: meta.Genre,
		}, allChunks, summaries, 2)
		if err != nil {
			return fail(err)
		}
		result.ChunkBatch = chunkResult
		result.SummaryBatch = summaryResult
	}

	if err := p.Ledger.Flush(); err != nil {
		return fail(err)
	}
	if ch != nil {
		ch.Complete(fmt.Sprintf("ingested %s: %d chunks, %d summaries", docName, len(allChunks), len(summaries)))
	}
	logger.GetLogger().Info().Str("doc", docName).Int("chunks", len(allChunks)).Int("summaries", len(summaries)).
		Msg("ingest: pipeline run complete")
	return result, nil
}

// sectionBody extracts the markdown text belonging to the n-th occurrence
// of an ATX heading with the given text, up to (not including) the next
// heading at the same or shallower level. occurrenceIndex lets repeated
// titles (e.g. "Notes" in several chapters) resolve to distinct bodies;
// the pipeline tracks how many times each title has already been consumed
// as it walks the flattened TOC in document order.
func sectionBody(markdown string, title string, occurrenceIndex int) string {
	lines := strings.Split(markdown, "\n")

	start, level, seen := -1, 0, 0
	for i, line := range lines {
		lvl, text, ok := atxHeading(line)
		if !ok || text != title {
			continue
		}
		if seen == occurrenceIndex {
			start, level = i, lvl
			break
		}
		seen++
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if lvl, _, ok := atxHeading(lines[i]); ok && lvl <= level {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
}

// atxHeading reports the level and text of a "#"-style heading line.
func atxHeading(line string) (level int, text string, ok bool) {
	trimmed := strings.TrimLeft(line, "#")
	level = len(line) - len(trimmed)
	if level == 0 || level > 6 || !strings.HasPrefix(trimmed, " ") {
		return 0, "", false
	}
	return level, strings.TrimSpace(trimmed), true
}
