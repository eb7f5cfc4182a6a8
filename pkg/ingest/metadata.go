package ingest

import "context"

const metadataSchema = `{"type":"object","properties":{"title":{"type":"string"},"author":{"type":"string"},"original_title":{"type":"string"},"year":{"type":"integer"},"language":{"type":"string"},"genre":{"type":"string"}},"required":["title","author","language"]}`

// ExtractMetadata implements the §4.7 Metadata Extraction stage: asks the
// LLM to identify title/author/original_title/year/language/genre from the
// document's opening pages. Truncated to the same budget as TOC extraction
// since front matter always precedes the body.
func ExtractMetadata(ctx context.Context, caller StructuredCaller, markdown string) (Metadata, error) {
	doc := markdown
	if len(doc) > tocTruncateChars {
		doc = doc[:tocTruncateChars]
	}

	prompt := "Identify this document's title, author, original title (if a translation), " +
		"year of composition or original publication, language, and genre, from its opening pages.\n\n" + doc

	var meta Metadata
	if err := CallStructured(ctx, caller, "ingest.ExtractMetadata", prompt, metadataSchema, &meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}
