package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// DefaultMinSimilarity is the Jaro-Winkler threshold used when none is given.
const DefaultMinSimilarity = 0.8

// SimilaritySearch ranks documents purely by Jaro-Winkler similarity between
// the query and the best matching run of content words, keeping those at or
// above minSimilarity.
func (s *Searcher) SimilaritySearch(ctx context.Context, query string, opts Options, minSimilarity float64) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	limit := opts.limit()

	shadowOK := s.healShadow(ctx)
	key := s.resultKey(ctx, "similarity", query, opts, minSimilarity)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	score := func(doc storage.Document) (Result, bool) {
		sim, dist := bestSimilarity(query, doc.Content, s.cfg.CaseSensitive)
		if sim < minSimilarity {
			return Result{}, false
		}
		matchType := fuzzy.MatchFuzzy
		if sim == 1.0 {
			matchType = fuzzy.MatchExact
		}
		return resultFromDocument(doc, sim, dist, matchType), true
	}

	results, err := s.collect(ctx, query, opts, shadowOK, score)
	if err != nil {
		return nil, err
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	s.cache.set(key, results)
	return results, nil
}

// PhoneticSearch returns documents whose phonetic key contains the code of
// every query word, each scored flatly.
func (s *Searcher) PhoneticSearch(ctx context.Context, query string, opts Options) ([]Result, error) {
	codes := fuzzy.PhoneticCodes(query)
	if len(codes) == 0 {
		return nil, nil
	}
	limit := opts.limit()

	shadowOK := s.healShadow(ctx)
	key := s.resultKey(ctx, "phonetic", query, opts, 0)
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}

	var results []Result
	var err error
	if shadowOK {
		var candidates []storage.Candidate
		candidates, err = s.index.PhoneticCandidates(ctx, codes, opts.ResourceType, candidateLimit(limit))
		if err == nil {
			for _, c := range candidates {
				results = append(results, resultFromDocument(c.Document, fuzzy.PhoneticScore, minWindowDistance(query, c.Content, s.cfg.CaseSensitive), fuzzy.MatchPhonetic))
			}
		} else {
			s.logger.Warn().Err(err).Str("query", query).Msg("phonetic lookup failed, falling back to scan")
		}
	}
	if !shadowOK || err != nil {
		results = nil
		err = s.index.ScanDocuments(ctx, opts.ResourceType, func(doc storage.Document) error {
			if hasAllCodes(doc.PhoneticCode, codes) {
				results = append(results, resultFromDocument(doc, fuzzy.PhoneticScore, minWindowDistance(query, doc.Content, s.cfg.CaseSensitive), fuzzy.MatchPhonetic))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("fallback scan failed: %w", err)
		}
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	s.cache.set(key, results)
	return results, nil
}

// collect applies score to full-text candidates, or to every document when
// the shadow is unusable or the candidate query fails.
func (s *Searcher) collect(ctx context.Context, query string, opts Options, shadowOK bool, score func(storage.Document) (Result, bool)) ([]Result, error) {
	var results []Result
	if shadowOK {
		match := storage.BuildCandidateQuery(query, s.cfg.NgramSize)
		candidates, err := s.index.FullTextCandidates(ctx, match, opts.ResourceType, candidateLimit(opts.limit()))
		if err == nil {
			for _, c := range candidates {
				if r, ok := score(c.Document); ok {
					results = append(results, r)
				}
			}
			return results, nil
		}
		s.logger.Warn().Err(err).Str("query", query).Msg("candidate lookup failed, falling back to scan")
	}

	err := s.index.ScanDocuments(ctx, opts.ResourceType, func(doc storage.Document) error {
		if r, ok := score(doc); ok {
			results = append(results, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fallback scan failed: %w", err)
	}
	return results, nil
}
