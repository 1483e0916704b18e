// Package branching answers multi-clause queries by repeatedly taking the
// candidate that best covers one query branch, then searching again for the
// words that candidate did not cover.
package branching

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// Candidate is a retrievable cell with a base relevance score. Higher is better.
type Candidate struct {
	ID           string
	ResourceType model.ResourceType
	Content      string
	Score        float64
}

// Retriever returns candidates for a branch of the query.
type Retriever interface {
	Candidates(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// PairResolver looks up the translation pair for a cell id.
type PairResolver interface {
	GetTranslationPair(ctx context.Context, cellID string) (*model.TranslationPair, error)
}

// Options tune a branching search. Zero values take the defaults below; a
// negative MaxRestarts disables restarts.
type Options struct {
	Limit               int
	CoverageWeight      float64
	CandidatesPerBranch int
	MaxRestarts         int
	MaxBranches         int
}

const (
	DefaultLimit          = 5
	DefaultCoverageWeight = 0.5
	DefaultMaxRestarts    = 2
	DefaultMaxBranches    = 12
	minCandidates         = 150
	candidatesPerResult   = 30
)

// DefaultOptions returns the stock options for limit results.
func DefaultOptions(limit int) Options {
	return Options{Limit: limit}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.CoverageWeight <= 0 {
		o.CoverageWeight = DefaultCoverageWeight
	}
	if o.CandidatesPerBranch <= 0 {
		o.CandidatesPerBranch = max(minCandidates, candidatesPerResult*o.Limit)
	}
	if o.MaxRestarts < 0 {
		o.MaxRestarts = 0
	} else if o.MaxRestarts == 0 {
		o.MaxRestarts = DefaultMaxRestarts
	}
	if o.MaxBranches <= 0 {
		o.MaxBranches = DefaultMaxBranches
	}
	return o
}

// Match is one emitted result.
type Match struct {
	Pair model.TranslationPair `json:"pair"`
	// Score is base × (1 + CoverageWeight × Coverage).
	Score    float64 `json:"score"`
	Coverage float64 `json:"coverage"`
	// Branch is the query text the candidate was selected for.
	Branch string `json:"branch"`
	// Remainder holds the branches pushed after removing the covered words.
	Remainder []string `json:"remainder,omitempty"`
}

// Searcher runs branching searches.
type Searcher struct {
	retriever Retriever
	pairs     PairResolver
	logger    zerolog.Logger
}

// NewSearcher creates a Searcher. pairs may be nil, in which case pairs are
// built from the candidate content alone.
func NewSearcher(retriever Retriever, pairs PairResolver, logger zerolog.Logger) *Searcher {
	return &Searcher{retriever: retriever, pairs: pairs, logger: logger}
}

// Search greedily decomposes query. Each iteration retrieves candidates for
// every live branch, picks the single best (branch, candidate) pair by
// coverage-boosted score, emits it and replaces the branch with the text on
// either side of its longest covered run of words. When branches run out the
// search restarts from the original query, up to MaxRestarts times.
//
// Cancellation is checked between iterations; results found so far are
// returned with ctx.Err().
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Match, error) {
	opts = opts.withDefaults()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	branches := []string{query}
	used := make(map[string]bool)
	var results []Match
	restarts := 0

	for len(results) < opts.Limit {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if len(branches) == 0 {
			if restarts >= opts.MaxRestarts {
				break
			}
			restarts++
			branches = []string{query}
			s.logger.Debug().Int("restart", restarts).Msg("branches exhausted, restarting from original query")
		}

		best, bestBranch, found, err := s.selectBest(ctx, branches, used, opts)
		if err != nil {
			return results, err
		}
		if !found {
			if len(branches) == 1 && branches[0] == query {
				// Nothing left anywhere for the full query; restarting cannot help.
				break
			}
			branches = nil
			continue
		}

		used[best.candidate.ID] = true
		branch := branches[bestBranch]
		branches = slices.Delete(branches, bestBranch, bestBranch+1)

		remainder := splitRemainder(branch, best.tokens)
		for _, r := range remainder {
			if len(branches) >= opts.MaxBranches {
				break
			}
			branches = append(branches, r)
		}

		pair, err := s.resolvePair(ctx, best.candidate)
		if err != nil {
			return results, err
		}
		results = append(results, Match{
			Pair:      *pair,
			Score:     best.score,
			Coverage:  best.coverage,
			Branch:    branch,
			Remainder: remainder,
		})
	}
	return results, nil
}

type scored struct {
	candidate Candidate
	tokens    map[string]struct{}
	score     float64
	coverage  float64
}

// selectBest scores every unused candidate of every branch and returns the
// best one. Ties keep the first found, in branch then retrieval order.
func (s *Searcher) selectBest(ctx context.Context, branches []string, used map[string]bool, opts Options) (scored, int, bool, error) {
	var best scored
	bestBranch := -1

	for i, branch := range branches {
		branchTokens := fuzzy.Tokenize(branch)
		if len(branchTokens) == 0 {
			continue
		}
		candidates, err := s.retriever.Candidates(ctx, branch, opts.CandidatesPerBranch)
		if err != nil {
			return scored{}, -1, false, fmt.Errorf("retrieving candidates for %q: %w", branch, err)
		}
		for _, c := range candidates {
			if used[c.ID] {
				continue
			}
			tokens := fuzzy.TokenSet(c.Content)
			coverage := Coverage(branchTokens, tokens)
			score := c.Score * (1 + opts.CoverageWeight*coverage)
			if bestBranch < 0 || score > best.score {
				best = scored{candidate: c, tokens: tokens, score: score, coverage: coverage}
				bestBranch = i
			}
		}
	}
	return best, bestBranch, bestBranch >= 0, nil
}

func (s *Searcher) resolvePair(ctx context.Context, c Candidate) (*model.TranslationPair, error) {
	if s.pairs != nil {
		pair, err := s.pairs.GetTranslationPair(ctx, c.ID)
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("resolving pair %s: %w", c.ID, err)
		}
	}

	pair := &model.TranslationPair{CellID: c.ID}
	cell := model.Cell{CellID: c.ID, Content: c.Content}
	if side, ok := model.SideForResourceType(c.ResourceType); ok && side == model.SideSource {
		pair.SourceCell = cell
	} else {
		pair.TargetCell = cell
	}
	return pair, nil
}

// Coverage is the fraction of branch tokens present in the candidate's token set.
func Coverage(branchTokens []string, candidateTokens map[string]struct{}) float64 {
	if len(branchTokens) == 0 {
		return 0
	}
	hit := 0
	for _, t := range branchTokens {
		if _, ok := candidateTokens[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(branchTokens))
}

// LongestCoveredRun returns the start and end (exclusive) of the longest run
// of consecutive branch tokens that all appear in candidateTokens. The
// earliest run wins ties. ok is false when no token is covered.
func LongestCoveredRun(branchTokens []string, candidateTokens map[string]struct{}) (start, end int, ok bool) {
	k := len(branchTokens)
	for length := k; length > 0; length-- {
		for i := 0; i+length <= k; i++ {
			covered := true
			for _, t := range branchTokens[i : i+length] {
				if _, ok := candidateTokens[t]; !ok {
					covered = false
					break
				}
			}
			if covered {
				return i, i + length, true
			}
		}
	}
	return 0, 0, false
}

// splitRemainder removes the longest covered run from branch and returns the
// non-empty text on either side of it.
func splitRemainder(branch string, candidateTokens map[string]struct{}) []string {
	tokens := fuzzy.Tokenize(branch)
	start, end, ok := LongestCoveredRun(tokens, candidateTokens)
	if !ok {
		return nil
	}
	var out []string
	if left := strings.Join(tokens[:start], " "); left != "" {
		out = append(out, left)
	}
	if right := strings.Join(tokens[end:], " "); right != "" {
		out = append(out, right)
	}
	return out
}
