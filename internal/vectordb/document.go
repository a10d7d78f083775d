package vectordb

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType names one of the per-type document indices.
type DocumentType string

const (
	TypePrint        DocumentType = "print"
	TypeTopic        DocumentType = "topic"
	TypeOrganization DocumentType = "organization"
)

// AllTypes lists the document types in the order their indices are queried.
var AllTypes = []DocumentType{TypePrint, TypeTopic, TypeOrganization}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case TypePrint, TypeTopic, TypeOrganization:
		return true
	}
	return false
}

// ParseDocumentType normalizes s and checks it names a known type.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown document type %q: must be one of print, topic, organization", s)
	}
	return t, nil
}

// Document is a unit of indexed content: a parliamentary print, a topic
// summary, or an organization description.
type Document struct {
	ID         string
	Type       DocumentType
	Title      string
	Content    string
	URL        string
	ChangeDate *time.Time
}

// Match pairs a document with the backend's distance to the query vector.
// Lower distance means closer.
type Match struct {
	Document Document
	Distance float32
}

const changeDateLayout = time.RFC3339

func formatChangeDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(changeDateLayout)
}

func parseChangeDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(changeDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}
