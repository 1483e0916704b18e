package storage

import (
	"time"

	"github.com/mvp-joe/project-codex/internal/model"
)

// timeLayout is fixed-width so that lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DocumentInput is the caller-supplied part of an indexed document. Derived
// fields are computed by the store.
type DocumentInput struct {
	ID           string
	ResourceType model.ResourceType
	Content      string
}

// Document is a row of the primary fuzzy index.
type Document struct {
	ID                string             `json:"id"`
	ResourceType      model.ResourceType `json:"resourceType"`
	Content           string             `json:"content"`
	NormalizedContent string             `json:"normalizedContent"`
	PhoneticCode      string             `json:"phoneticCode"`
	NGrams            string             `json:"ngrams"`
	WordCount         int                `json:"wordCount"`
	CharCount         int                `json:"charCount"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// Candidate is a document returned by a full-text query together with its
// BM25 rank. Lower ranks are better, as reported by FTS5.
type Candidate struct {
	Document
	Rank float64
}

// IndexStats summarizes the primary index.
type IndexStats struct {
	TotalEntries     int                        `json:"totalEntries"`
	EntriesByType    map[model.ResourceType]int `json:"entriesByType"`
	AverageWordCount float64                    `json:"averageWordCount"`
	AverageCharCount float64                    `json:"averageCharCount"`
	OldestEntry      *time.Time                 `json:"oldestEntry,omitempty"`
	NewestEntry      *time.Time                 `json:"newestEntry,omitempty"`
	ShadowEntries    int                        `json:"shadowEntries"`
}
