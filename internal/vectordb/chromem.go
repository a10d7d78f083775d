package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/miskibin/sejmofil-sub001/internal/embeddings"
)

const collectionPrefix = "sejmofil_"

// ChromemExportFile is the file Persist writes under its directory.
const ChromemExportFile = "chromem.gob.gz"

// ChromemStore implements Store with one chromem-go collection per
// document type in a shared in-process DB.
type ChromemStore struct {
	mu          sync.RWMutex
	db          *chromem.DB
	collections map[DocumentType]*chromem.Collection
	embedder    embeddings.Embedder
	embedFunc   chromem.EmbeddingFunc
}

// NewChromemStore creates a new in-memory ChromemStore.
func NewChromemStore(embedder embeddings.Embedder) (*ChromemStore, error) {
	s := &ChromemStore{
		db:        chromem.NewDB(),
		embedder:  embedder,
		embedFunc: embeddings.ToChromemFunc(embedder),
	}
	if err := s.bindCollections(); err != nil {
		return nil, err
	}
	return s, nil
}

func collectionName(t DocumentType) string {
	return collectionPrefix + string(t)
}

// bindCollections (re)acquires one collection per type. Callers hold mu
// or own s exclusively.
func (s *ChromemStore) bindCollections() error {
	cols := make(map[DocumentType]*chromem.Collection, len(AllTypes))
	for _, t := range AllTypes {
		col, err := s.db.GetOrCreateCollection(collectionName(t), map[string]string{"type": string(t)}, s.embedFunc)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", collectionName(t), err)
		}
		cols[t] = col
	}
	s.collections = cols
	return nil
}

func (s *ChromemStore) collection(t DocumentType) *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collections[t]
}

// AddDocuments embeds docs in batches and adds them to their type's
// collection. Documents with an unknown type are rejected.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	for t, group := range groupByType(docs) {
		col := s.collection(t)
		if col == nil {
			return fmt.Errorf("no collection for document type %q", t)
		}

		texts := make([]string, len(group))
		for i, d := range group {
			texts[i] = embeddingText(d)
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed %s documents: %w", t, err)
		}
		if len(vecs) != len(group) {
			return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(group))
		}

		chromDocs := make([]chromem.Document, len(group))
		for i, d := range group {
			chromDocs[i] = chromem.Document{
				ID:        d.ID,
				Content:   d.Content,
				Metadata:  metadataToMap(d),
				Embedding: vecs[i],
			}
		}
		if err := col.AddDocuments(ctx, chromDocs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("add %s documents: %w", t, err)
		}
	}
	return nil
}

// Indices returns one Index per document type.
func (s *ChromemStore) Indices() []Index {
	out := make([]Index, 0, len(AllTypes))
	for _, t := range AllTypes {
		out = append(out, &chromemIndex{store: s, docType: t})
	}
	return out
}

// Count returns the total number of documents across all collections.
func (s *ChromemStore) Count() int {
	total := 0
	for _, t := range AllTypes {
		total += s.CountByType(t)
	}
	return total
}

// CountByType returns the number of documents of the given type.
func (s *ChromemStore) CountByType(t DocumentType) int {
	col := s.collection(t)
	if col == nil {
		return 0
	}
	return col.Count()
}

// Persist saves all collections to a compressed file under dir.
func (s *ChromemStore) Persist(_ context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.ExportToFile(filepath.Join(dir, ChromemExportFile), true, ""); err != nil {
		return fmt.Errorf("export to file: %w", err)
	}
	return nil
}

// Load restores collections previously written by Persist.
func (s *ChromemStore) Load(_ context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.ImportFromFile(filepath.Join(dir, ChromemExportFile), ""); err != nil {
		return fmt.Errorf("import from file: %w", err)
	}

	// Re-acquire collection references after import.
	return s.bindCollections()
}

// chromemIndex is the read side of a single collection.
type chromemIndex struct {
	store   *ChromemStore
	docType DocumentType
}

func (i *chromemIndex) Type() DocumentType { return i.docType }

// QueryEmbedding runs a nearest-neighbour query. chromem reports cosine
// similarity, which is converted to distance as 1 - similarity.
func (i *chromemIndex) QueryEmbedding(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	col := i.store.collection(i.docType)
	if col == nil {
		return nil, fmt.Errorf("no collection for document type %q", i.docType)
	}
	if limit <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	limit = min(limit, count)

	results, err := col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query %s: %w", i.docType, err)
	}

	matches := make([]Match, len(results))
	for j, r := range results {
		matches[j] = Match{
			Document: mapToDocument(r.ID, r.Content, r.Metadata),
			Distance: 1 - r.Similarity,
		}
	}
	return matches, nil
}

// embeddingText is the text a document is embedded as.
func embeddingText(d Document) string {
	if d.Title == "" {
		return d.Content
	}
	return d.Title + "\n\n" + d.Content
}

// metadataToMap converts document fields to a flat map[string]string for chromem.
func metadataToMap(d Document) map[string]string {
	return map[string]string{
		"type":        string(d.Type),
		"title":       d.Title,
		"url":         d.URL,
		"change_date": formatChangeDate(d.ChangeDate),
	}
}

// mapToDocument converts a flat map[string]string back to a Document.
func mapToDocument(id, content string, m map[string]string) Document {
	return Document{
		ID:         id,
		Type:       DocumentType(m["type"]),
		Title:      m["title"],
		Content:    content,
		URL:        m["url"],
		ChangeDate: parseChangeDate(m["change_date"]),
	}
}
