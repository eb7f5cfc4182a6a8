package ingest

import (
	"context"
	"fmt"
)

const classifySchema = `{"type":"object","properties":{"sections":{"type":"array","items":{"type":"object","properties":{"title":{"type":"string"},"type":{"type":"string","enum":["main_content","preface","introduction","conclusion","bibliography","appendix","notes","table_of_contents","index","acknowledgments","abstract","ignore"]}},"required":["title","type"]}}},"required":["sections"]}`

// ClassifySections implements the §4.7 Section Classification stage:
// assigns each top-level TOC entry one of the enumerated SectionKinds.
// Sections classified as "ignore" are dropped from the chunking pass by
// the caller via ClassifiedSection.Dropped.
func ClassifySections(ctx context.Context, caller StructuredCaller, toc []TOCEntry) ([]ClassifiedSection, error) {
	if len(toc) == 0 {
		return nil, nil
	}

	titles := make([]string, len(toc))
	for i, e := range toc {
		titles[i] = e.Title
	}

	prompt := "Classify each of these top-level document sections by its role. Titles in order:\n"
	for i, t := range titles {
		prompt += fmt.Sprintf("%d. %s\n", i+1, t)
	}

	var out struct {
		Sections []ClassifiedSection `json:"sections"`
	}
	if err := CallStructured(ctx, caller, "ingest.ClassifySections", prompt, classifySchema, &out); err != nil {
		return nil, err
	}

	// Defensive: if the model returned fewer/more entries than requested,
	// fall back to main_content for any titles it skipped, preserving
	// input order (stage never silently drops a section it didn't
	// explicitly classify).
	byTitle := make(map[string]ClassifiedSection, len(out.Sections))
	for _, s := range out.Sections {
		byTitle[s.Title] = s
	}
	result := make([]ClassifiedSection, len(titles))
	for i, t := range titles {
		if s, ok := byTitle[t]; ok {
			result[i] = s
			continue
		}
		result[i] = ClassifiedSection{Title: t, Type: SectionMainContent}
	}
	return result, nil
}
