// Package prompt builds the grounded system instruction sent ahead of the
// conversation history.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/miskibin/sejmofil-sub001/internal/llm"
	"github.com/miskibin/sejmofil-sub001/internal/retrieval"
	"github.com/miskibin/sejmofil-sub001/internal/vectordb"
)

// DefaultExcerptChars bounds the document content quoted in the prompt.
const DefaultExcerptChars = 1500

const intro = "Jesteś asystentem portalu Sejmofil. Odpowiadasz na pytania o pracę Sejmu RP " +
	"na podstawie dokumentów źródłowych z bazy portalu."

const rules = `Zasady:
- Odpowiadaj zwięźle i wyłącznie po polsku.
- Opieraj odpowiedź na dokumentach źródłowych i cytuj je numerami w nawiasach kwadratowych, np. [1].
- Jeśli dokument ma datę zmiany, podaj ją, gdy odnosisz się do jego treści.
- Jeśli dokumenty nie zawierają odpowiedzi, powiedz o tym wprost i nie zgaduj.`

const noDocuments = "Nie znaleziono dokumentów źródłowych pasujących do pytania. " +
	"Poinformuj o tym użytkownika i nie podawaj faktów, których nie możesz potwierdzić."

var months = [...]string{
	"stycznia", "lutego", "marca", "kwietnia", "maja", "czerwca",
	"lipca", "sierpnia", "września", "października", "listopada", "grudnia",
}

var typeLabels = map[vectordb.DocumentType]string{
	vectordb.TypePrint:        "druk",
	vectordb.TypeTopic:        "temat",
	vectordb.TypeOrganization: "organizacja",
}

// Assembler renders retrieval results into a system message.
type Assembler struct {
	excerptChars int
	loc          *time.Location
}

// New creates an Assembler. excerptChars <= 0 disables truncation; a nil
// location formats dates in UTC.
func New(excerptChars int, loc *time.Location) *Assembler {
	if loc == nil {
		loc = time.UTC
	}
	return &Assembler{excerptChars: excerptChars, loc: loc}
}

// Assemble returns the system message followed by history, unmodified.
// Document i of result is numbered [i+1].
func (a *Assembler) Assemble(result retrieval.Result, history []llm.Message, now time.Time) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.System(result, now)})
	return append(msgs, history...)
}

// System renders the grounding instruction alone.
func (a *Assembler) System(result retrieval.Result, now time.Time) string {
	var sb strings.Builder
	sb.WriteString(intro)
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Dzisiejsza data: %s.\n\n", a.FormatDate(now))
	sb.WriteString(rules)
	sb.WriteString("\n\n")

	if len(result) == 0 {
		sb.WriteString(noDocuments)
		return sb.String()
	}

	fmt.Fprintf(&sb, "Dokumenty źródłowe ([1]..[%d]):\n", len(result))
	for i, d := range result {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "[%d] (%s) %s\n", i+1, TypeLabel(d.Type), d.Title)
		if d.ChangeDate != nil {
			fmt.Fprintf(&sb, "Data zmiany: %s\n", a.FormatDate(*d.ChangeDate))
		}
		fmt.Fprintf(&sb, "Treść: %s\n", Excerpt(d.Content, a.excerptChars))
		url := d.URL
		if url == "" {
			url = "brak"
		}
		fmt.Fprintf(&sb, "URL: %s\n", url)
	}
	return sb.String()
}

// FormatDate renders t as a Polish date, e.g. "16 października 2026".
func (a *Assembler) FormatDate(t time.Time) string {
	t = t.In(a.loc)
	return fmt.Sprintf("%d %s %d", t.Day(), months[t.Month()-1], t.Year())
}

// TypeLabel returns the Polish label of a document type.
func TypeLabel(t vectordb.DocumentType) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Excerpt truncates s to at most n runes, appending "..." when cut.
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
