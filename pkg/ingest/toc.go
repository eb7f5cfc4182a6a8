package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/loomwork/loom/internal/logger"
)

// tocEntryLine matches a table-of-contents line of the form
// "  Title of section......... 42" (leading spaces, a title, a dotted or
// spaced leader, and a trailing page number).
var tocEntryLine = regexp.MustCompile(`^(\s*)(.+?)[\s.]{2,}(\d+)\s*$`)

// tocHeadingPattern finds a "Table of Contents" heading, case-insensitive.
var tocHeadingPattern = regexp.MustCompile(`(?i)^#{0,6}\s*table\s+of\s+contents\s*$`)

const tocIndentationScanLines = 400

// ExtractTOCIndentation implements the indentation-based strategy (spec
// §4.7): finds a "Table of contents" heading, then parses subsequent
// lines of the form "Title...page", computing each entry's level from its
// leading-space count (0-2 => 1, 3-6 => 2, >=7 => 3) and nesting entries
// via a parent stack. Fast and free; returns nil if no TOC heading is
// found within the first tocIndentationScanLines lines.
func ExtractTOCIndentation(markdown string) []TOCEntry {
	lines := strings.Split(markdown, "\n")
	if len(lines) > tocIndentationScanLines {
		lines = lines[:tocIndentationScanLines]
	}

	start := -1
	for i, l := range lines {
		if tocHeadingPattern.MatchString(strings.TrimSpace(l)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var entries []TOCEntry
	var stack []*TOCEntry
	levels := []int{0}

	for _, line := range lines[start:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := tocEntryLine.FindStringSubmatch(line)
		if m == nil {
			// A non-matching, non-blank line ends the TOC block.
			if len(entries) > 0 {
				break
			}
			continue
		}
		indent := len(strings.ReplaceAll(m[1], "\t", "    "))
		title := strings.TrimSpace(m[2])
		page, _ := strconv.Atoi(m[3])
		level := indentToLevel(indent)

		entry := TOCEntry{Title: title, Level: level, Page: page}

		for len(levels) > 1 && levels[len(levels)-1] >= level {
			stack = stack[:len(stack)-1]
			levels = levels[:len(levels)-1]
		}

		if len(stack) == 0 {
			entries = append(entries, entry)
			stack = []*TOCEntry{&entries[len(entries)-1]}
			levels = []int{0, level}
			continue
		}

		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, entry)
		stack = append(stack, &parent.Children[len(parent.Children)-1])
		levels = append(levels, level)
	}

	return entries
}

// indentToLevel maps leading-space count to a TOC nesting level (spec
// §4.7): 0-2 => 1, 3-6 => 2, >=7 => 3.
func indentToLevel(indent int) int {
	switch {
	case indent <= 2:
		return 1
	case indent <= 6:
		return 2
	default:
		return 3
	}
}

// LooksLikeIndentationTOC reports whether the document has a recognisable
// "Table of contents" heading followed by dotted/spaced leader entries —
// the heuristic this package uses to prefer the indentation strategy over
// the LLM strategy (spec §9 Open Question OQ-1; exposed explicitly via
// Config.TOCStrategy rather than hard-coded).
func LooksLikeIndentationTOC(markdown string) bool {
	return len(ExtractTOCIndentation(markdown)) >= 2
}

// tocSchema is the strict JSON schema sent to the LLM for the
// LLM-based TOC extraction strategy.
const tocSchema = `{"type":"object","properties":{"entries":{"type":"array","items":{"$ref":"#/$defs/entry"}}},"required":["entries"],"$defs":{"entry":{"type":"object","properties":{"title":{"type":"string"},"level":{"type":"integer"},"page":{"type":"integer"},"children":{"type":"array","items":{"$ref":"#/$defs/entry"}}},"required":["title","level"]}}}`

const tocTruncateChars = 20000

// ExtractTOCLLM implements the LLM-based strategy (spec §4.7): sends
// truncated markdown to the LLM with tocSchema, requesting a nested list
// of {title, level, page?, children}. Retries once on parse failure with
// a repaired prompt (spec §4.7 common LLM-call contract); fails the
// pipeline if still invalid.
func ExtractTOCLLM(ctx context.Context, caller StructuredCaller, markdown string) ([]TOCEntry, error) {
	doc := markdown
	if len(doc) > tocTruncateChars {
		doc = doc[:tocTruncateChars]
	}

	prompt := "Extract the hierarchical table of contents from this document. " +
		"Return a nested JSON list of {title, level, page, children} entries.\n\n" + doc

	var out struct {
		Entries []TOCEntry `json:"entries"`
	}
	if err := CallStructured(ctx, caller, "ingest.ExtractTOCLLM", prompt, tocSchema, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// ExtractTOC runs the strategy selected by cfg.TOCStrategy: Auto prefers
// indentation parsing when LooksLikeIndentationTOC holds, falling back to
// the LLM strategy otherwise (DESIGN.md OQ-1).
func ExtractTOC(ctx context.Context, caller StructuredCaller, markdown string, cfg Config) ([]TOCEntry, error) {
	strategy := cfg.TOCStrategy
	if strategy == "" {
		strategy = TOCStrategyAuto
	}

	switch strategy {
	case TOCStrategyIndentation:
		return ExtractTOCIndentation(markdown), nil
	case TOCStrategyLLM:
		return ExtractTOCLLM(ctx, caller, markdown)
	default: // Auto
		if entries := ExtractTOCIndentation(markdown); len(entries) >= 2 {
			logger.GetLogger().Info().Int("entries", len(entries)).Msg("toc: using indentation strategy")
			return entries, nil
		}
		logger.GetLogger().Info().Msg("toc: indentation parse yielded <2 headings, falling back to LLM strategy")
		return ExtractTOCLLM(ctx, caller, markdown)
	}
}

// FlattenTOC returns every entry in the TOC tree in document order,
// depth-first, used by the Summariser to iterate section paths.
func FlattenTOC(entries []TOCEntry, parentPath string) []struct {
	Path  string
	Entry TOCEntry
} {
	var out []struct {
		Path  string
		Entry TOCEntry
	}
	for _, e := range entries {
		path := e.Title
		if parentPath != "" {
			path = parentPath + " > " + e.Title
		}
		out = append(out, struct {
			Path  string
			Entry TOCEntry
		}{Path: path, Entry: e})
		out = append(out, FlattenTOC(e.Children, path)...)
	}
	return out
}
