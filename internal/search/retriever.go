package search

import (
	"context"
	"sort"
	"strings"

	"github.com/bbalet/stopwords"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// FullTextRetriever feeds branching searches from the index's full-text
// shadow. A candidate matches when it shares any content word with the
// branch; its base score is the negated BM25 rank.
type FullTextRetriever struct {
	index        Index
	resourceType model.ResourceType
	logger       zerolog.Logger
}

var _ branching.Retriever = (*FullTextRetriever)(nil)

// NewFullTextRetriever creates a retriever limited to resourceType, or to all
// types when empty.
func NewFullTextRetriever(index Index, resourceType model.ResourceType, logger zerolog.Logger) *FullTextRetriever {
	return &FullTextRetriever{index: index, resourceType: resourceType, logger: logger}
}

// Candidates implements branching.Retriever.
func (r *FullTextRetriever) Candidates(ctx context.Context, query string, limit int) ([]branching.Candidate, error) {
	tokens := contentTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	if _, err := r.index.EnsureShadow(ctx); err == nil {
		hits, err := r.index.FullTextCandidates(ctx, storage.BuildAnyTermQuery(tokens), r.resourceType, limit)
		if err == nil {
			out := make([]branching.Candidate, 0, len(hits))
			for _, h := range hits {
				out = append(out, branching.Candidate{
					ID:           h.ID,
					ResourceType: h.ResourceType,
					Content:      h.Content,
					Score:        -h.Rank,
				})
			}
			return out, nil
		}
		r.logger.Warn().Err(err).Str("query", query).Msg("full-text retrieval failed, scanning")
	} else {
		r.logger.Warn().Err(err).Msg("full-text shadow unavailable, scanning")
	}

	return r.scan(ctx, tokens, limit)
}

// scan scores every document by the fraction of query tokens it contains.
func (r *FullTextRetriever) scan(ctx context.Context, tokens []string, limit int) ([]branching.Candidate, error) {
	var out []branching.Candidate
	err := r.index.ScanDocuments(ctx, r.resourceType, func(doc storage.Document) error {
		set := fuzzy.TokenSet(doc.Content)
		hit := 0
		for _, t := range tokens {
			if _, ok := set[t]; ok {
				hit++
			}
		}
		if hit > 0 {
			out = append(out, branching.Candidate{
				ID:           doc.ID,
				ResourceType: doc.ResourceType,
				Content:      doc.Content,
				Score:        float64(hit) / float64(len(tokens)),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stable order: score desc, then scan (id) order.
	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// contentTokens drops English stop words from query. A query made only of
// stop words keeps all its tokens.
func contentTokens(query string) []string {
	tokens := fuzzy.Tokenize(stopwords.CleanString(query, "en", false))
	if len(tokens) == 0 {
		tokens = fuzzy.Tokenize(query)
	}
	return dedupe(tokens)
}

func dedupe(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sortCandidates(cs []branching.Candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
}
