// Package search ranks indexed documents against free-text queries. Search
// runs exact, full-text candidate and phonetic tiers in order and falls back
// to a scan of the primary index when the full-text shadow is unusable.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// Searcher runs tiered searches over an Index.
type Searcher struct {
	index  Index
	cfg    Config
	cache  *resultCache
	logger zerolog.Logger
}

// SearcherOptions configures a Searcher.
type SearcherOptions struct {
	Config Config
	Logger zerolog.Logger
	// CacheSize bounds the result cache. Negative disables caching.
	CacheSize int
}

// NewSearcher creates a Searcher over index.
func NewSearcher(index Index, opts SearcherOptions) (*Searcher, error) {
	s := &Searcher{index: index, cfg: opts.Config, logger: opts.Logger}
	if s.cfg.NgramSize <= 0 {
		s.cfg.NgramSize = fuzzy.DefaultNGramSize
	}
	if opts.CacheSize >= 0 {
		c, err := newResultCache(opts.CacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = c
	}
	return s, nil
}

// Config returns the active configuration.
func (s *Searcher) Config() Config {
	return s.cfg
}

// Close releases the result cache.
func (s *Searcher) Close() {
	s.cache.close()
}

// Search returns up to opts.Limit results for query, best first. It never
// fails because of the full-text shadow: an empty or broken shadow degrades
// to a scan of the primary index. Errors are returned only when that scan
// fails too or ctx is cancelled.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	sc := s.scoreConfig(opts)
	limit := opts.limit()

	shadowOK := s.healShadow(ctx)
	key := s.resultKey(ctx, "search", query, opts, 0)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	var results []Result
	var err error
	if shadowOK {
		results, err = s.tiered(ctx, query, opts, sc, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("query", query).Msg("tiered search failed, falling back to scan")
			shadowOK = false
		}
	}
	if !shadowOK {
		results, err = s.scan(ctx, query, opts, sc)
		if err != nil {
			return nil, fmt.Errorf("fallback scan failed: %w", err)
		}
	}

	results = s.finish(results, limit)
	s.cache.set(key, results)
	return results, nil
}

// healShadow rebuilds an empty shadow from the primary table and reports
// whether the full-text tiers can be used.
func (s *Searcher) healShadow(ctx context.Context) bool {
	if _, err := s.index.EnsureShadow(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("full-text shadow unavailable, using scan")
		return false
	}
	return true
}

func (s *Searcher) scoreConfig(opts Options) fuzzy.ScoreConfig {
	maxDistance := s.cfg.MaxDistance
	if opts.Fuzziness > 0 {
		maxDistance = opts.Fuzziness
	}
	return s.cfg.scoreConfig(maxDistance)
}

func candidateLimit(limit int) int {
	return max(100, limit*20)
}

func (s *Searcher) tiered(ctx context.Context, query string, opts Options, sc fuzzy.ScoreConfig, limit int) ([]Result, error) {
	seen := make(map[string]bool)
	var results []Result
	add := func(r Result) {
		if seen[r.key()] {
			return
		}
		seen[r.key()] = true
		results = append(results, r)
	}

	// Tier 1: exact.
	exact, err := s.index.ExactMatches(ctx, query, opts.ResourceType, s.cfg.CaseSensitive, limit)
	if err != nil {
		return nil, fmt.Errorf("exact tier: %w", err)
	}
	for _, doc := range exact {
		add(resultFromDocument(doc, 1.0*s.cfg.BoostExactMatch, 0, fuzzy.MatchExact))
	}
	if len(results) >= limit {
		return results, nil
	}

	// Tier 2: full-text candidates, scored by edit distance.
	ngramSize := 0
	if s.cfg.EnableNgram {
		ngramSize = s.cfg.NgramSize
	}
	if match := storage.BuildCandidateQuery(query, ngramSize); match != "" {
		candidates, err := s.index.FullTextCandidates(ctx, match, opts.ResourceType, candidateLimit(limit))
		if err != nil {
			return nil, fmt.Errorf("candidate tier: %w", err)
		}
		for _, c := range candidates {
			if m, ok := bestMatch(query, c.Content, sc); ok {
				add(resultFromDocument(c.Document, m.Score, m.Distance, m.Type))
			}
		}
	}
	if len(results) >= limit || !s.cfg.EnablePhonetic {
		return results, nil
	}

	// Tier 3: phonetic.
	codes := fuzzy.PhoneticCodes(query)
	if len(codes) > 0 {
		candidates, err := s.index.PhoneticCandidates(ctx, codes, opts.ResourceType, candidateLimit(limit))
		if err != nil {
			return nil, fmt.Errorf("phonetic tier: %w", err)
		}
		for _, c := range candidates {
			add(resultFromDocument(c.Document, fuzzy.PhoneticScore, minWindowDistance(query, c.Content, sc.CaseSensitive), fuzzy.MatchPhonetic))
		}
	}
	return results, nil
}

// scan scores every document of the primary index with the same rules as
// the tiers, without touching the shadow.
func (s *Searcher) scan(ctx context.Context, query string, opts Options, sc fuzzy.ScoreConfig) ([]Result, error) {
	normalizedQuery := fuzzy.Normalize(query, sc.CaseSensitive)
	codes := fuzzy.PhoneticCodes(query)

	var results []Result
	err := s.index.ScanDocuments(ctx, opts.ResourceType, func(doc storage.Document) error {
		content := fuzzy.Normalize(doc.Content, sc.CaseSensitive)
		if content == normalizedQuery {
			results = append(results, resultFromDocument(doc, 1.0*sc.BoostExactMatch, 0, fuzzy.MatchExact))
			return nil
		}

		if m, ok := bestMatch(query, doc.Content, sc); ok {
			results = append(results, resultFromDocument(doc, m.Score, m.Distance, m.Type))
			return nil
		}
		if strings.Contains(content, normalizedQuery) {
			score := 0.8 * sc.BoostPrefixMatch * fuzzy.LengthPenalty(fuzzy.CharCount(normalizedQuery), fuzzy.CharCount(content))
			results = append(results, resultFromDocument(doc, score, fuzzy.CharCount(content)-fuzzy.CharCount(normalizedQuery), fuzzy.MatchPrefix))
			return nil
		}
		if sc.EnablePhonetic && hasAllCodes(doc.PhoneticCode, codes) {
			results = append(results, resultFromDocument(doc, fuzzy.PhoneticScore, minWindowDistance(query, doc.Content, sc.CaseSensitive), fuzzy.MatchPhonetic))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// finish filters by MinScore, sorts best first (ties by id) and truncates.
func (s *Searcher) finish(results []Result, limit int) []Result {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= s.cfg.MinScore {
			kept = append(kept, r)
		}
	}
	sortResults(kept)
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ID != results[j].ID {
			return results[i].ID < results[j].ID
		}
		return results[i].ResourceType < results[j].ResourceType
	})
}

func resultFromDocument(doc storage.Document, score float64, distance int, matchType fuzzy.MatchType) Result {
	return Result{
		ID:           doc.ID,
		ResourceType: doc.ResourceType,
		Content:      doc.Content,
		Score:        score,
		Distance:     distance,
		MatchType:    matchType,
	}
}
