package ingest

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// BuildMarkdown deterministically transforms an OCR response into a
// single markdown document: heading levels reflect OCR block structure
// (a block's own heading depth, inferred from its first line's leading
// "#" count if present, else treated as a paragraph), with image
// references inlined at their page position (spec §4.7 Markdown Builder).
func BuildMarkdown(ocr OCRResponse, images []OCRImage) string {
	var sb strings.Builder
	imagesByPage := make(map[int][]OCRImage)
	for _, img := range images {
		imagesByPage[img.Page] = append(imagesByPage[img.Page], img)
	}

	for _, page := range ocr.Pages {
		for _, block := range page.Blocks {
			switch block.Kind {
			case "table":
				sb.WriteString(block.Text)
				sb.WriteString("\n\n")
			default:
				sb.WriteString(block.Text)
				sb.WriteString("\n\n")
			}
		}
		for i, img := range imagesByPage[page.Number] {
			sb.WriteString(fmt.Sprintf("![page %d image %d](%s)\n\n", page.Number, i, img.Path))
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// Heading is one parsed heading node, used for the Hierarchy field
// written to <doc>_chunks.json.
type Heading struct {
	Level int
	Text  string
}

// ParseHeadings walks the markdown AST with goldmark and returns every
// ATX/Setext heading in document order. The TOC stage does not call it;
// ExtractTOCIndentation scans the markdown lines directly.
func ParseHeadings(markdown string) []Heading {
	md := goldmark.New()
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	var headings []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		headings = append(headings, Heading{Level: h.Level, Text: headingText(h, src)})
		return ast.WalkSkipChildren, nil
	})
	return headings
}

// headingText concatenates the raw source bytes of a heading's inline
// text children; goldmark's ast package has no built-in "full text of
// this node" accessor, so this mirrors how tools built on it extract
// plain-text headings.
func headingText(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
	}
	return strings.TrimSpace(sb.String())
}

// BuildHierarchy folds a flat heading list into a nested map suitable for
// the Hierarchy field of <doc>_chunks.json.
func BuildHierarchy(headings []Heading) map[string]any {
	root := map[string]any{"title": "root", "children": []any{}}
	stack := []map[string]any{root}
	levels := []int{0}

	for _, h := range headings {
		node := map[string]any{"title": h.Text, "children": []any{}}
		for len(levels) > 1 && levels[len(levels)-1] >= h.Level {
			stack = stack[:len(stack)-1]
			levels = levels[:len(levels)-1]
		}
		parent := stack[len(stack)-1]
		parent["children"] = append(parent["children"].([]any), node)
		stack = append(stack, node)
		levels = append(levels, h.Level)
	}
	return root
}
