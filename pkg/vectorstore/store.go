package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/sdk"
)

const (
	collectionWork     = "works"
	collectionDocument = "documents"
	collectionChunk    = "chunks"
	collectionSummary  = "summaries"

	// Promotion thresholds from spec §4.9 (see CollectionStats.ShouldPromote).
	chunkHNSWThreshold   = 50_000
	summaryHNSWThreshold = 10_000
)

// Store is the Vector Store Adapter: four chromem-go collections plus the
// validation, batching, and deletion contracts spec §4.9 requires.
type Store struct {
	db *chromem.DB

	works     *chromem.Collection
	documents *chromem.Collection
	chunks    *chromem.Collection
	summaries *chromem.Collection
}

// BatchResult reports the outcome of a batched collection insert (spec
// §4.9: "{inserted, failed, failed_indices}").
type BatchResult struct {
	Inserted      int
	Failed        int
	FailedIndices []int
	BatchSize     int
}

// Open creates (or reopens, if path is non-empty) a persistent store rooted
// at path with the four collections schema-managed per spec §4.9: Chunk
// and Summary get a dynamic vector index (tracked via CollectionStats,
// see OQ-4), Work is semantically indexed on title+author, Document
// carries no vector index (queried only by metadata).
func Open(path string, embed chromem.EmbeddingFunc) (*Store, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, true)
		if err != nil {
			return nil, sdk.NewError(sdk.ErrConfig, "vectorstore.Open", "open persistent store at "+path, err)
		}
	}

	s := &Store{db: db}
	for name, coll := range map[string]**chromem.Collection{
		collectionWork:     &s.works,
		collectionDocument: &s.documents,
		collectionChunk:    &s.chunks,
		collectionSummary:  &s.summaries,
	} {
		c, err := db.GetOrCreateCollection(name, nil, embed)
		if err != nil {
			return nil, sdk.NewError(sdk.ErrConfig, "vectorstore.Open", "create collection "+name, err)
		}
		*coll = c
	}
	return s, nil
}

// CollectionStats reports a collection's size against the spec's dynamic
// FLAT->HNSW promotion thresholds.
type CollectionStats struct {
	Name      string
	Count     int
	Threshold int
}

// ShouldPromote reports whether the collection has crossed its promotion
// threshold. chromem-go has no ANN index to promote into (it is a
// brute-force cosine scan end to end; see DESIGN.md OQ-4), so this is a
// logged signal rather than an action.
func (s CollectionStats) ShouldPromote() bool {
	return s.Count >= s.Threshold
}

// Stats reports current sizes for the chunk and summary collections, the
// two with a dynamic-index promotion threshold in spec §4.9.
func (s *Store) Stats() []CollectionStats {
	return []CollectionStats{
		{Name: collectionChunk, Count: s.chunks.Count(), Threshold: chunkHNSWThreshold},
		{Name: collectionSummary, Count: s.summaries.Count(), Threshold: summaryHNSWThreshold},
	}
}

// CountDocuments, CountChunks, CountSummaries, CountWorks are counting
// helpers over the respective collections.
func (s *Store) CountDocuments() int { return s.documents.Count() }
func (s *Store) CountChunks() int    { return s.chunks.Count() }
func (s *Store) CountSummaries() int { return s.summaries.Count() }
func (s *Store) CountWorks() int     { return s.works.Count() }

// Chunks, Summaries, Works, Documents expose the underlying collections
// for pkg/retrieval, which needs direct near-text query access that the
// ingestion-side contract above doesn't.
func (s *Store) Chunks() *chromem.Collection    { return s.chunks }
func (s *Store) Summaries() *chromem.Collection { return s.summaries }
func (s *Store) Works() *chromem.Collection     { return s.works }
func (s *Store) Documents() *chromem.Collection { return s.documents }

// batchSizeForChunks derives the adaptive batch size from mean chunk
// character length (spec §4.9).
func batchSizeForChunks(meanLen int) int {
	switch {
	case meanLen > 50_000:
		return 10
	case meanLen > 10_000:
		return 25
	case meanLen > 3_000:
		return 50
	default:
		return 100
	}
}

// batchSizeForSummaries derives the adaptive batch size from mean summary
// character length (spec §4.9).
func batchSizeForSummaries(meanLen int) int {
	switch {
	case meanLen > 2_000:
		return 25
	case meanLen > 500:
		return 50
	default:
		return 75
	}
}

// IngestDocument validates metadata and nested-object invariants, then
// inserts the Document, Chunks, and Summaries for one source document.
// Validation happens synchronously before any write (spec §4.9, §7
// ValidationError).
func (s *Store) IngestDocument(ctx context.Context, work Work, meta IngestMetadata, chunks []Chunk, summaries []Summary, retries int) (BatchResult, BatchResult, error) {
	const op = "vectorstore.IngestDocument"

	for field, value := range map[string]string{
		"doc_name": meta.DocName, "title": meta.Title, "author": meta.Author, "language": meta.Language,
	} {
		if err := validateField(op, field, value); err != nil {
			return BatchResult{}, BatchResult{}, err
		}
	}

	existing, err := s.findDocumentBySourceID(ctx, meta.DocName)
	if err != nil {
		return BatchResult{}, BatchResult{}, err
	}
	if existing != "" {
		return BatchResult{}, BatchResult{}, sdk.NewError(sdk.ErrValidation, op,
			"duplicate source_id "+meta.DocName+": caller must delete_document first", nil)
	}

	for i, c := range chunks {
		if c.Work.Title == "" || c.Work.Author == "" || c.Document.SourceID == "" {
			return BatchResult{}, BatchResult{}, sdk.NewError(sdk.ErrValidation, op,
				fmt.Sprintf("chunk[%d] in %s: missing work.title/work.author/document.source_id", i, meta.DocName), nil)
		}
		if !ValidUnitType(c.UnitType) {
			return BatchResult{}, BatchResult{}, sdk.NewError(sdk.ErrValidation, op,
				fmt.Sprintf("chunk[%d] in %s: invalid unit_type %q", i, meta.DocName, c.UnitType), nil)
		}
	}

	workID := work.ID
	if workID == "" {
		workID = slug(meta.Author + "/" + meta.Title)
	}
	if err := s.upsertWork(ctx, Work{
		ID: workID, Title: meta.Title, Author: meta.Author, OriginalTitle: meta.OriginalTitle,
		Year: meta.Year, Language: meta.Language, Genre: meta.Genre,
	}); err != nil {
		return BatchResult{}, BatchResult{}, err
	}

	doc := Document{
		ID: meta.DocName, SourceID: meta.DocName, Edition: meta.Edition, Language: meta.Language,
		Pages: 0, ChunksCount: len(chunks), CreatedAt: time.Now(),
		Work: WorkSnapshot{Title: meta.Title, Author: meta.Author},
	}
	if err := s.insertDocument(ctx, doc); err != nil {
		return BatchResult{}, BatchResult{}, err
	}

	chunkBatch := batchSizeForChunks(meanLen(chunkTexts(chunks)))
	chunkResult, err := s.insertChunksBatched(ctx, chunks, chunkBatch, retries)
	if err != nil {
		return chunkResult, BatchResult{}, err
	}

	summaryBatch := batchSizeForSummaries(meanLen(summaryTexts(summaries)))
	summaryResult, err := s.insertSummariesBatched(ctx, summaries, summaryBatch, retries)
	return chunkResult, summaryResult, err
}

func chunkTexts(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func summaryTexts(summaries []Summary) []string {
	out := make([]string, len(summaries))
	for i, sm := range summaries {
		out[i] = sm.Text
	}
	return out
}

func meanLen(texts []string) int {
	if len(texts) == 0 {
		return 0
	}
	total := 0
	for _, t := range texts {
		total += len(t)
	}
	return total / len(texts)
}

func (s *Store) upsertWork(ctx context.Context, w Work) error {
	doc := chromem.Document{
		ID:      w.ID,
		Content: w.Title + " — " + w.Author,
		Metadata: map[string]string{
			"title":          w.Title,
			"author":         w.Author,
			"original_title": w.OriginalTitle,
			"year":           strconv.Itoa(w.Year),
			"language":       w.Language,
			"genre":          w.Genre,
		},
	}
	return s.works.AddDocument(ctx, doc)
}

func (s *Store) insertDocument(ctx context.Context, d Document) error {
	doc := chromem.Document{
		ID:      d.ID,
		Content: d.SourceID,
		Metadata: map[string]string{
			"source_id":    d.SourceID,
			"edition":      d.Edition,
			"language":     d.Language,
			"pages":        strconv.Itoa(d.Pages),
			"chunks_count": strconv.Itoa(d.ChunksCount),
			"created_at":   d.CreatedAt.Format(time.RFC3339),
			"work_title":   d.Work.Title,
			"work_author":  d.Work.Author,
		},
	}
	return s.documents.AddDocument(ctx, doc)
}

// insertChunksBatched inserts chunks in adaptive-size batches, retrying a
// failed batch up to retries times before recording its indices as failed.
// A failed batch never rolls back batches that already succeeded.
func (s *Store) insertChunksBatched(ctx context.Context, chunks []Chunk, batchSize, retries int) (BatchResult, error) {
	result := BatchResult{BatchSize: batchSize}
	log := logger.GetLogger()

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := make([]chromem.Document, 0, end-start)
		for _, c := range chunks[start:end] {
			batch = append(batch, chunkToDocument(c))
		}

		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if err = s.chunks.AddDocuments(ctx, batch, 1); err == nil {
				break
			}
		}
		if err != nil {
			log.Warn().Err(err).Int("batch_start", start).Int("batch_end", end).Msg("chunk batch insert failed after retries")
			result.Failed += end - start
			for i := start; i < end; i++ {
				result.FailedIndices = append(result.FailedIndices, i)
			}
			continue
		}
		result.Inserted += end - start
	}
	return result, nil
}

func (s *Store) insertSummariesBatched(ctx context.Context, summaries []Summary, batchSize, retries int) (BatchResult, error) {
	result := BatchResult{BatchSize: batchSize}
	log := logger.GetLogger()

	for start := 0; start < len(summaries); start += batchSize {
		end := start + batchSize
		if end > len(summaries) {
			end = len(summaries)
		}
		batch := make([]chromem.Document, 0, end-start)
		for _, sm := range summaries[start:end] {
			batch = append(batch, summaryToDocument(sm))
		}

		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			if err = s.summaries.AddDocuments(ctx, batch, 1); err == nil {
				break
			}
		}
		if err != nil {
			log.Warn().Err(err).Int("batch_start", start).Int("batch_end", end).Msg("summary batch insert failed after retries")
			result.Failed += end - start
			for i := start; i < end; i++ {
				result.FailedIndices = append(result.FailedIndices, i)
			}
			continue
		}
		result.Inserted += end - start
	}
	return result, nil
}

func chunkToDocument(c Chunk) chromem.Document {
	id := c.ID
	if id == "" {
		id = fmt.Sprintf("%s#%d", c.Document.SourceID, c.OrderIndex)
	}
	return chromem.Document{
		ID:      id,
		Content: c.Text,
		Metadata: map[string]string{
			"section_path":        NormalizeSectionPath(c.SectionPath),
			"section_level":       strconv.Itoa(c.SectionLevel),
			"chapter_title":       c.ChapterTitle,
			"canonical_reference": c.CanonicalReference,
			"unit_type":           string(c.UnitType),
			"order_index":         strconv.Itoa(c.OrderIndex),
			"language":            c.Language,
			"keywords":            strings.Join(c.Keywords, ","),
			"work_title":          c.Work.Title,
			"work_author":         c.Work.Author,
			"source_id":           c.Document.SourceID,
		},
	}
}

func summaryToDocument(sm Summary) chromem.Document {
	id := sm.ID
	if id == "" {
		id = fmt.Sprintf("%s#summary#%s", sm.Document.SourceID, NormalizeSectionPath(sm.SectionPath))
	}
	return chromem.Document{
		ID:      id,
		Content: sm.Text,
		Metadata: map[string]string{
			"section_path": NormalizeSectionPath(sm.SectionPath),
			"title":        sm.Title,
			"level":        strconv.Itoa(sm.Level),
			"chunks_count": strconv.Itoa(sm.ChunksCount),
			"fallback":     strconv.FormatBool(sm.Fallback),
			"concepts":     strings.Join(sm.Concepts, ","),
			"source_id":    sm.Document.SourceID,
		},
	}
}

// DeleteDocument removes the Document and all Chunks/Summaries carrying
// sourceID. Work is preserved by default (spec §4.9, OQ-3).
func (s *Store) DeleteDocument(ctx context.Context, sourceID string) error {
	if err := s.documents.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		return sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.DeleteDocument", "delete document "+sourceID, err)
	}
	if err := s.chunks.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		return sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.DeleteDocument", "delete chunks for "+sourceID, err)
	}
	if err := s.summaries.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		return sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.DeleteDocument", "delete summaries for "+sourceID, err)
	}
	return nil
}

// OrphanWork names a Work with zero remaining Documents.
type OrphanWork struct {
	Title  string
	Author string
}

// VerifyConsistency reports Works with no remaining Document, without
// deleting them — delete_document's cascade policy is left to the caller
// (spec §9 Open Question, resolved in DESIGN.md OQ-3).
func (s *Store) VerifyConsistency(ctx context.Context) ([]OrphanWork, error) {
	if s.works.Count() == 0 {
		return nil, nil
	}
	// chromem-go rejects an empty query text; with nResults equal to the
	// collection size every record comes back whatever the text is.
	works, err := s.works.Query(ctx, "work", s.works.Count(), nil, nil)
	if err != nil {
		return nil, sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.VerifyConsistency", "list works", err)
	}

	var orphans []OrphanWork
	for _, w := range works {
		title, author := w.Metadata["title"], w.Metadata["author"]
		if s.documents.Count() == 0 {
			orphans = append(orphans, OrphanWork{Title: title, Author: author})
			continue
		}
		docs, err := s.documents.Query(ctx, title, s.documents.Count(), map[string]string{"work_title": title, "work_author": author}, nil)
		if err != nil {
			return nil, sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.VerifyConsistency", "query documents for work "+title, err)
		}
		if len(docs) == 0 {
			orphans = append(orphans, OrphanWork{Title: title, Author: author})
		}
	}
	return orphans, nil
}

func (s *Store) findDocumentBySourceID(ctx context.Context, sourceID string) (string, error) {
	if s.documents.Count() == 0 {
		return "", nil
	}
	docs, err := s.documents.Query(ctx, sourceID, s.documents.Count(), map[string]string{"source_id": sourceID}, nil)
	if err != nil {
		return "", sdk.NewError(sdk.ErrRemoteFatal, "vectorstore.findDocumentBySourceID", "query documents", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].ID, nil
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
