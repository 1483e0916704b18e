package mcp

import (
	"context"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/indexer"
	"github.com/mvp-joe/project-codex/internal/search"
)

// Search modes accepted by codex_search.
const (
	ModeFuzzy      = "fuzzy"
	ModeSimilarity = "similarity"
	ModePhonetic   = "phonetic"
)

const maxLimit = 100

// CellSearcher is the fuzzy search surface of search.Searcher.
type CellSearcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	SimilaritySearch(ctx context.Context, query string, opts search.Options, minSimilarity float64) ([]search.Result, error)
	PhoneticSearch(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
}

// BranchSearcher is satisfied by branching.Searcher.
type BranchSearcher interface {
	Search(ctx context.Context, query string, opts branching.Options) ([]branching.Match, error)
}

// StatusFunc reports the current index status.
type StatusFunc func(ctx context.Context) (*indexer.Status, error)

// SearchRequest holds the arguments of codex_search.
type SearchRequest struct {
	Query         string  `json:"query"`
	Mode          string  `json:"mode,omitempty"`
	ResourceType  string  `json:"resource_type,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	Fuzziness     int     `json:"fuzziness,omitempty"`
	MinSimilarity float64 `json:"min_similarity,omitempty"`
}

// SearchResponse is the JSON body returned by codex_search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Mode    string          `json:"mode"`
	Results []search.Result `json:"results"`
	Total   int             `json:"total"`
}

// BranchSearchRequest holds the arguments of codex_branch_search.
type BranchSearchRequest struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit,omitempty"`
	MaxRestarts *int   `json:"max_restarts,omitempty"`
}

// BranchSearchResponse is the JSON body returned by codex_branch_search.
type BranchSearchResponse struct {
	Query   string            `json:"query"`
	Matches []branching.Match `json:"matches"`
	Total   int               `json:"total"`
}
