package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// record is the on-disk shape of a document in JSON and YAML sources.
type record struct {
	ID         string `json:"id" yaml:"id"`
	Type       string `json:"type" yaml:"type"`
	Title      string `json:"title" yaml:"title"`
	Content    string `json:"content" yaml:"content"`
	URL        string `json:"url" yaml:"url"`
	ChangeDate string `json:"changeDate" yaml:"changeDate"`
}

// dirTypes maps source directory names to document types.
var dirTypes = map[string]vectordb.DocumentType{
	"print":         vectordb.TypePrint,
	"prints":        vectordb.TypePrint,
	"druki":         vectordb.TypePrint,
	"topic":         vectordb.TypeTopic,
	"topics":        vectordb.TypeTopic,
	"tematy":        vectordb.TypeTopic,
	"organization":  vectordb.TypeOrganization,
	"organizations": vectordb.TypeOrganization,
	"organizacje":   vectordb.TypeOrganization,
}

// TypeFromPath derives the document type from the parent directory of a
// slash-separated relative path.
func TypeFromPath(rel string) (vectordb.DocumentType, bool) {
	dir := path.Base(path.Dir(rel))
	t, ok := dirTypes[strings.ToLower(dir)]
	return t, ok
}

// LoadFile reads the documents in f.
func LoadFile(f SourceFile) ([]vectordb.Document, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.RelPath, err)
	}

	switch f.Format {
	case FormatJSON:
		return loadJSON(f.RelPath, data)
	case FormatYAML:
		return loadYAML(f.RelPath, data)
	case FormatMarkdown:
		doc, err := loadMarkdown(f.RelPath, data)
		if err != nil {
			return nil, err
		}
		return []vectordb.Document{doc}, nil
	}
	return nil, fmt.Errorf("%s: unsupported format %q", f.RelPath, f.Format)
}

// loadJSON accepts either an array of records or a single record.
func loadJSON(rel string, data []byte) ([]vectordb.Document, error) {
	var recs []record
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", rel, err)
		}
	} else {
		var r record
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", rel, err)
		}
		recs = []record{r}
	}
	return toDocuments(rel, recs)
}

// loadYAML accepts either a sequence of records or a single mapping.
func loadYAML(rel string, data []byte) ([]vectordb.Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rel, err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var recs []record
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&recs); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rel, err)
		}
	case yaml.MappingNode:
		var r record
		if err := root.Decode(&r); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", rel, err)
		}
		recs = []record{r}
	default:
		return nil, fmt.Errorf("%s: expected a document or a list of documents", rel)
	}
	return toDocuments(rel, recs)
}

func loadMarkdown(rel string, data []byte) (vectordb.Document, error) {
	t, ok := TypeFromPath(rel)
	if !ok {
		return vectordb.Document{}, fmt.Errorf("%s: cannot infer document type from directory", rel)
	}
	title, body := FlattenMarkdown(data)
	if title == "" {
		title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	if body == "" {
		return vectordb.Document{}, fmt.Errorf("%s: empty document", rel)
	}
	return vectordb.Document{
		ID:      strings.TrimSuffix(rel, path.Ext(rel)),
		Type:    t,
		Title:   title,
		Content: body,
	}, nil
}

func toDocuments(rel string, recs []record) ([]vectordb.Document, error) {
	fallback, hasFallback := TypeFromPath(rel)

	docs := make([]vectordb.Document, 0, len(recs))
	for i, r := range recs {
		var t vectordb.DocumentType
		switch {
		case r.Type != "":
			parsed, err := vectordb.ParseDocumentType(r.Type)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", rel, i, err)
			}
			t = parsed
		case hasFallback:
			t = fallback
		default:
			return nil, fmt.Errorf("%s[%d]: missing type", rel, i)
		}

		if strings.TrimSpace(r.Content) == "" {
			return nil, fmt.Errorf("%s[%d]: empty content", rel, i)
		}
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("%s#%d", strings.TrimSuffix(rel, path.Ext(rel)), i)
		}

		changed, err := ParseChangeDate(r.ChangeDate)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", rel, i, err)
		}

		docs = append(docs, vectordb.Document{
			ID:         id,
			Type:       t,
			Title:      strings.TrimSpace(r.Title),
			Content:    r.Content,
			URL:        r.URL,
			ChangeDate: changed,
		})
	}
	return docs, nil
}

// ParseChangeDate accepts RFC 3339 timestamps and plain dates. An empty
// string yields nil.
func ParseChangeDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid change date %q", s)
}
