package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/miskibin/sejmofil-sub001/internal/embeddings"
)

// weaviateIDSpace namespaces deterministic object UUIDs derived from document IDs.
var weaviateIDSpace = uuid.MustParse("6f1d0a52-4c1e-4d7b-9a56-2f1f3c0b9e11")

// WeaviateStore implements Store against a remote Weaviate instance with
// one class per document type.
type WeaviateStore struct {
	client   *weaviate.Client
	prefix   string
	embedder embeddings.Embedder
}

// NewWeaviateStore connects to the Weaviate instance at rawURL. Class names
// are prefix + the capitalized document type, e.g. SejmofilPrint.
func NewWeaviateStore(rawURL, prefix string, embedder embeddings.Embedder) (*WeaviateStore, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse weaviate url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("weaviate url %q has no host", rawURL)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   u.Host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateStore{client: client, prefix: prefix, embedder: embedder}, nil
}

// ClassName returns the Weaviate class holding documents of type t.
func ClassName(prefix string, t DocumentType) string {
	s := string(t)
	if s == "" {
		return prefix
	}
	return prefix + strings.ToUpper(s[:1]) + s[1:]
}

// Indices returns one Index per document type.
func (s *WeaviateStore) Indices() []Index {
	out := make([]Index, 0, len(AllTypes))
	for _, t := range AllTypes {
		out = append(out, &weaviateIndex{store: s, docType: t, class: ClassName(s.prefix, t)})
	}
	return out
}

// AddDocuments embeds docs and writes them with the batch API. Object IDs
// are derived from document IDs so re-indexing overwrites.
func (s *WeaviateStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = embeddingText(d)
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(docs) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(docs))
	}

	objects := make([]*models.Object, len(docs))
	for i, d := range docs {
		if !d.Type.Valid() {
			return fmt.Errorf("document %s has unknown type %q", d.ID, d.Type)
		}
		objects[i] = &models.Object{
			Class:      ClassName(s.prefix, d.Type),
			ID:         objectID(d.ID),
			Properties: documentProperties(d),
			Vector:     vecs[i],
		}
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate batch: %w", err)
	}
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			return fmt.Errorf("weaviate batch object %s: %s", item.ID, item.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func objectID(docID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(weaviateIDSpace, []byte(docID)).String())
}

func documentProperties(d Document) map[string]any {
	props := map[string]any{
		"doc_id":  d.ID,
		"title":   d.Title,
		"content": d.Content,
		"url":     d.URL,
	}
	if d.ChangeDate != nil {
		props["change_date"] = formatChangeDate(d.ChangeDate)
	}
	return props
}

// weaviateIndex queries one class with nearVector.
type weaviateIndex struct {
	store   *WeaviateStore
	docType DocumentType
	class   string
}

func (i *weaviateIndex) Type() DocumentType { return i.docType }

func (i *weaviateIndex) QueryEmbedding(ctx context.Context, vec []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}

	nearVector := i.store.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec)

	fields := []graphql.Field{
		{Name: "doc_id"},
		{Name: "title"},
		{Name: "content"},
		{Name: "url"},
		{Name: "change_date"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	resp, err := i.store.client.GraphQL().Get().
		WithClassName(i.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search %s: %w", i.class, err)
	}

	return parseMatches(resp, i.class, i.docType)
}

// weaviateObject is one entry under Get.<Class> in a GraphQL response.
type weaviateObject struct {
	DocID      string `json:"doc_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	URL        string `json:"url"`
	ChangeDate string `json:"change_date"`
	Additional struct {
		Distance float32 `json:"distance"`
	} `json:"_additional"`
}

type weaviateGetResponse struct {
	Get map[string][]weaviateObject `json:"Get"`
}

// parseMatches converts a GraphQL Get response for class into matches.
func parseMatches(resp *models.GraphQLResponse, class string, t DocumentType) ([]Match, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("weaviate graphql %s: %s", class, strings.Join(msgs, "; "))
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal weaviate response: %w", err)
	}
	var parsed weaviateGetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal weaviate response: %w", err)
	}

	objs := parsed.Get[class]
	matches := make([]Match, 0, len(objs))
	for _, o := range objs {
		matches = append(matches, Match{
			Document: Document{
				ID:         o.DocID,
				Type:       t,
				Title:      o.Title,
				Content:    o.Content,
				URL:        o.URL,
				ChangeDate: parseChangeDate(o.ChangeDate),
			},
			Distance: o.Additional.Distance,
		})
	}
	return matches, nil
}
