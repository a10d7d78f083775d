package vectordb

import "context"

// Index is a single per-type document index queried by embedding.
type Index interface {
	// Type returns the document type this index holds.
	Type() DocumentType

	// QueryEmbedding returns up to limit nearest documents, closest first.
	QueryEmbedding(ctx context.Context, vec []float32, limit int) ([]Match, error)
}

// Writer stores documents, embedding them on the way in.
type Writer interface {
	AddDocuments(ctx context.Context, docs []Document) error
}

// Store is a backend holding one index per document type.
type Store interface {
	Writer

	// Indices returns one Index per document type, in AllTypes order.
	Indices() []Index
}

// groupByType splits docs by type, preserving order within each group.
func groupByType(docs []Document) map[DocumentType][]Document {
	groups := make(map[DocumentType][]Document)
	for _, d := range docs {
		groups[d.Type] = append(groups[d.Type], d)
	}
	return groups
}
