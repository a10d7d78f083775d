package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// DefaultTopK is the number of documents kept after merging when the
// caller does not specify one.
const DefaultTopK = 5

// ContextDocument is a retrieved document with its similarity to the query.
type ContextDocument struct {
	ID         string
	Type       vectordb.DocumentType
	Title      string
	Content    string
	URL        string
	ChangeDate *time.Time
	// Score is 1 - distance; higher means more similar.
	Score float64
}

// Result is the ordered, truncated set of context documents for one
// question. Index i corresponds to citation marker [i+1].
type Result []ContextDocument

// Reference is the client-facing projection of a ContextDocument.
type Reference struct {
	Type       vectordb.DocumentType `json:"type"`
	Title      string                `json:"title"`
	URL        string                `json:"url"`
	Score      float64               `json:"score"`
	ChangeDate *time.Time            `json:"changeDate,omitempty"`
}

// References projects the result for the references event. It never
// returns nil, so an empty result still encodes as [].
func (r Result) References() []Reference {
	refs := make([]Reference, 0, len(r))
	for _, d := range r {
		refs = append(refs, Reference{
			Type:       d.Type,
			Title:      d.Title,
			URL:        d.URL,
			Score:      d.Score,
			ChangeDate: d.ChangeDate,
		})
	}
	return refs
}

// FormatResult renders a result as human-readable text.
func FormatResult(r Result) string {
	if len(r) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(r)))

	for i, d := range r {
		sb.WriteString(fmt.Sprintf("--- [%d] %s (score: %.4f) ---\n", i+1, d.Type, d.Score))
		sb.WriteString(fmt.Sprintf("Title: %s\n", d.Title))
		if d.URL != "" {
			sb.WriteString(fmt.Sprintf("URL: %s\n", d.URL))
		}
		if d.ChangeDate != nil {
			sb.WriteString(fmt.Sprintf("Changed: %s\n", d.ChangeDate.Format("2006-01-02")))
		}

		sb.WriteString("\n")
		sb.WriteString(d.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
