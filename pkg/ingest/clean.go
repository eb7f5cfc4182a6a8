package ingest

import (
	"regexp"
	"strings"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/vectorstore"
)

// minChunkTokens rejects chunks too short to carry independent meaning
// once OCR artifacts are stripped, even if their raw char count cleared
// minChunkChars before cleaning (spec §4.7 Cleaning stage).
const minChunkTokens = 30

// ligatureReplacements repairs the stray ligature glyphs OCR engines
// commonly emit in place of "fi"/"fl"/"ffi" etc.
var ligatureReplacements = strings.NewReplacer(
	"ﬁ", "fi", "ﬂ", "fl", "ﬀ", "ff", "ﬃ", "ffi", "ﬄ", "ffl",
	"­", "", // soft hyphen
)

// hyphenationEOL matches a word broken across a line by a trailing hyphen,
// e.g. "argu-\nment" -> "argument".
var hyphenationEOL = regexp.MustCompile(`(\w)-\n(\w)`)

// repeatedWhitespace collapses runs of spaces/tabs (but not newlines,
// which carry paragraph structure) left behind after artifact removal.
var repeatedWhitespace = regexp.MustCompile(`[ \t]{2,}`)

// CleanChunkText repairs common OCR artifacts in one chunk's text: stray
// ligatures, end-of-line hyphenation, and collapsed whitespace (spec §4.7
// Cleaning). Header/footer stripping is handled at the page level by
// StripRunningHeaders before chunking, since it needs cross-page
// repetition to detect a running header.
func CleanChunkText(text string) string {
	text = ligatureReplacements.Replace(text)
	text = hyphenationEOL.ReplaceAllString(text, "$1$2")
	text = repeatedWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// StripRunningHeaders removes lines that repeat verbatim across a
// majority of pages — the running headers/footers OCR carries over from
// the page layout (spec §4.7 Cleaning: "duplicated headers/footers").
// pages is mutated in place.
func StripRunningHeaders(pages []OCRPage) {
	if len(pages) < 3 {
		return
	}

	lineCount := make(map[string]int)
	for _, p := range pages {
		seen := make(map[string]bool)
		for _, b := range p.Blocks {
			for _, line := range strings.Split(b.Text, "\n") {
				line = strings.TrimSpace(line)
				if line == "" || len(line) > 80 {
					continue // headers/footers are short; skip body lines
				}
				if !seen[line] {
					lineCount[line]++
					seen[line] = true
				}
			}
		}
	}

	threshold := (len(pages)*6 + 9) / 10 // ceil(60% of pages)
	if threshold < 2 {
		threshold = 2
	}
	running := make(map[string]bool)
	for line, count := range lineCount {
		if count >= threshold {
			running[line] = true
		}
	}
	if len(running) == 0 {
		return
	}

	for i := range pages {
		for j := range pages[i].Blocks {
			lines := strings.Split(pages[i].Blocks[j].Text, "\n")
			kept := lines[:0]
			for _, line := range lines {
				if running[strings.TrimSpace(line)] {
					continue
				}
				kept = append(kept, line)
			}
			pages[i].Blocks[j].Text = strings.Join(kept, "\n")
		}
	}
}

// CleanChunks cleans every chunk's text and drops any chunk that falls
// below minChunkTokens afterward, estimating tokens the same way
// pkg/index's codebase search does ((len+3)/4). Dropped chunks are
// logged, never renumbered — OrderIndex is preserved so gaps in the
// sequence are visible rather than silently closed (spec §4.7: "chunks
// below the min length are dropped, not merged or renumbered").
func CleanChunks(chunks []vectorstore.Chunk) []vectorstore.Chunk {
	log := logger.GetLogger()
	kept := make([]vectorstore.Chunk, 0, len(chunks))
	for _, c := range chunks {
		c.Text = CleanChunkText(c.Text)
		if estimateTokens(c.Text) < minChunkTokens {
			log.Warn().Str("section_path", c.SectionPath).Int("order_index", c.OrderIndex).
				Int("tokens", estimateTokens(c.Text)).Msg("ingest: dropping chunk below min token threshold after cleaning")
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// estimateTokens mirrors pkg/index.EstimateTokens's (len+3)/4 heuristic.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
