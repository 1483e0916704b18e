package search

import (
	"context"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// DefaultLimit is the number of results returned when Options.Limit is unset.
const DefaultLimit = 5

// Options narrows a single search call.
type Options struct {
	// ResourceType restricts results to one resource type; empty means all.
	ResourceType model.ResourceType
	Limit        int
	// Fuzziness overrides Config.MaxDistance for this call when positive.
	Fuzziness int
}

func (o Options) limit() int {
	if o.Limit <= 0 {
		return DefaultLimit
	}
	return o.Limit
}

// Result is one ranked hit.
type Result struct {
	ID           string             `json:"id"`
	ResourceType model.ResourceType `json:"resourceType"`
	Content      string             `json:"content"`
	Score        float64            `json:"score"`
	Distance     int                `json:"distance"`
	MatchType    fuzzy.MatchType    `json:"matchType"`
}

func (r Result) key() string {
	return string(r.ResourceType) + "|" + r.ID
}

// Index is the read side of storage.IndexStore used by the searcher.
type Index interface {
	EnsureShadow(ctx context.Context) (bool, error)
	Generation(ctx context.Context) (uint64, error)
	ExactMatches(ctx context.Context, query string, resourceType model.ResourceType, caseSensitive bool, limit int) ([]storage.Document, error)
	FullTextCandidates(ctx context.Context, match string, resourceType model.ResourceType, limit int) ([]storage.Candidate, error)
	PhoneticCandidates(ctx context.Context, codes []string, resourceType model.ResourceType, limit int) ([]storage.Candidate, error)
	ScanDocuments(ctx context.Context, resourceType model.ResourceType, fn func(storage.Document) error) error
}

var _ Index = (*storage.IndexStore)(nil)
