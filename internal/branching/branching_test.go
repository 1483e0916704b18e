package branching

// Test Plan for Branching Search:
// - Coverage is |branch ∩ candidate| / |branch|
// - LongestCoveredRun finds the longest contiguous covered run, earliest on ties
// - "love one another as I have loved you" decomposes into the two covering
//   candidates, and the remaining branch no longer holds the covered words
// - Branches exhausted → restart from the original query, bounded by MaxRestarts
// - Used candidates are never emitted twice
// - Pairs come from the resolver; unknown ids fall back to candidate content
// - Cancellation between iterations returns partial results with ctx.Err()
// - Retriever errors propagate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/storage"
)

// tokenRetriever scores each corpus entry by the number of distinct query
// tokens it contains, in corpus order.
type tokenRetriever struct {
	corpus  []Candidate
	queries []string
	err     error
}

func (r *tokenRetriever) Candidates(_ context.Context, query string, limit int) ([]Candidate, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	q := fuzzy.TokenSet(query)
	var out []Candidate
	for _, c := range r.corpus {
		shared := 0
		for tok := range fuzzy.TokenSet(c.Content) {
			if _, ok := q[tok]; ok {
				shared++
			}
		}
		if shared > 0 {
			c.Score = float64(shared)
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mapResolver map[string]model.TranslationPair

func (m mapResolver) GetTranslationPair(_ context.Context, id string) (*model.TranslationPair, error) {
	p, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("pair %s: %w", id, storage.ErrNotFound)
	}
	return &p, nil
}

var loveCorpus = []Candidate{
	{ID: "1JN 3:11", ResourceType: model.ResourceTranslationPair, Content: "Little children, love one another with pure hearts."},
	{ID: "JHN 15:9", ResourceType: model.ResourceTranslationPair, Content: "Abide in me as I have loved you, says the Lord."},
	{ID: "ISA 40:8", ResourceType: model.ResourceTranslationPair, Content: "The grass withers and the flower fades."},
}

func TestCoverage(t *testing.T) {
	t.Parallel()

	tokens := fuzzy.TokenSet("Little children, love one another")
	assert.InDelta(t, 3.0/8.0, Coverage(fuzzy.Tokenize("love one another as I have loved you"), tokens), 1e-9)
	assert.Zero(t, Coverage(nil, tokens))
}

func TestLongestCoveredRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		branch    string
		candidate string
		start     int
		end       int
		ok        bool
	}{
		{"suffix run", "love one another as i have loved you", "abide in me as i have loved you", 3, 8, true},
		{"prefix run", "love one another as i have loved you", "love one another with pure hearts", 0, 3, true},
		{"earliest tie", "a x b", "a b", 0, 1, true},
		{"nothing covered", "grace", "peace", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := LongestCoveredRun(fuzzy.Tokenize(tt.branch), fuzzy.TokenSet(tt.candidate))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestSearch_Decomposition(t *testing.T) {
	t.Parallel()

	retriever := &tokenRetriever{corpus: loveCorpus}
	s := NewSearcher(retriever, nil, zerolog.Nop())

	matches, err := s.Search(context.Background(), "love one another as I have loved you", Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "JHN 15:9", matches[0].Pair.CellID)
	assert.Equal(t, []string{"love one another"}, matches[0].Remainder)
	assert.InDelta(t, 5*(1+0.5*5.0/8.0), matches[0].Score, 1e-9)

	assert.Equal(t, "1JN 3:11", matches[1].Pair.CellID)
	assert.Equal(t, "love one another", matches[1].Branch)
	assert.NotContains(t, matches[1].Branch, "loved")
	assert.InDelta(t, 1.0, matches[1].Coverage, 1e-9)

	assert.Equal(t, []string{"love one another as I have loved you", "love one another"}, retriever.queries)
}

func TestSearch_Restart(t *testing.T) {
	t.Parallel()

	corpus := []Candidate{
		{ID: "X", Content: "alpha beta"},
		{ID: "Y", Content: "alpha gamma"},
		{ID: "Z", Content: "beta delta"},
	}

	t.Run("restarts recover more results", func(t *testing.T) {
		t.Parallel()
		s := NewSearcher(&tokenRetriever{corpus: corpus}, nil, zerolog.Nop())
		matches, err := s.Search(context.Background(), "alpha beta", Options{Limit: 3})
		require.NoError(t, err)

		var ids []string
		for _, m := range matches {
			ids = append(ids, m.Pair.CellID)
		}
		assert.Equal(t, []string{"X", "Y", "Z"}, ids)
		assert.Empty(t, matches[0].Remainder)
		assert.Equal(t, []string{"beta"}, matches[1].Remainder)
	})

	t.Run("restarts disabled", func(t *testing.T) {
		t.Parallel()
		s := NewSearcher(&tokenRetriever{corpus: corpus}, nil, zerolog.Nop())
		matches, err := s.Search(context.Background(), "alpha beta", Options{Limit: 3, MaxRestarts: -1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "X", matches[0].Pair.CellID)
	})

	t.Run("no candidates at all", func(t *testing.T) {
		t.Parallel()
		s := NewSearcher(&tokenRetriever{corpus: corpus}, nil, zerolog.Nop())
		matches, err := s.Search(context.Background(), "omega", Options{Limit: 3})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})
}

func TestSearch_NoDuplicates(t *testing.T) {
	t.Parallel()

	s := NewSearcher(&tokenRetriever{corpus: loveCorpus}, nil, zerolog.Nop())
	matches, err := s.Search(context.Background(), "love one another as I have loved you", Options{Limit: 10})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, m := range matches {
		assert.False(t, seen[m.Pair.CellID], "duplicate %s", m.Pair.CellID)
		seen[m.Pair.CellID] = true
	}
	assert.Len(t, matches, 2, "noise candidate shares no tokens and is never retrieved")
}

func TestSearch_PairResolution(t *testing.T) {
	t.Parallel()

	resolver := mapResolver{
		"JHN 15:9": {
			CellID:     "JHN 15:9",
			SourceCell: model.Cell{CellID: "JHN 15:9", Content: "Καθὼς ἠγάπησέν με ὁ πατήρ"},
			TargetCell: model.Cell{CellID: "JHN 15:9", Content: loveCorpus[1].Content},
		},
	}
	corpus := append([]Candidate{}, loveCorpus...)
	corpus[0].ResourceType = model.ResourceSourceText

	s := NewSearcher(&tokenRetriever{corpus: corpus}, resolver, zerolog.Nop())
	matches, err := s.Search(context.Background(), "love one another as I have loved you", Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "Καθὼς ἠγάπησέν με ὁ πατήρ", matches[0].Pair.SourceCell.Content)
	assert.Equal(t, corpus[0].Content, matches[1].Pair.SourceCell.Content, "source_text candidates fill the source side")
	assert.Empty(t, matches[1].Pair.TargetCell.Content)
}

func TestSearch_Cancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSearcher(&tokenRetriever{corpus: loveCorpus}, nil, zerolog.Nop())
	matches, err := s.Search(ctx, "love one another", Options{Limit: 2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, matches)
}

func TestSearch_RetrieverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("index offline")
	s := NewSearcher(&tokenRetriever{err: boom}, nil, zerolog.Nop())
	_, err := s.Search(context.Background(), "love", Options{})
	assert.ErrorIs(t, err, boom)
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	o := DefaultOptions(2)
	assert.Equal(t, 150, o.CandidatesPerBranch)
	assert.Equal(t, DefaultCoverageWeight, o.CoverageWeight)
	assert.Equal(t, DefaultMaxRestarts, o.MaxRestarts)
	assert.Equal(t, DefaultMaxBranches, o.MaxBranches)

	assert.Equal(t, 300, DefaultOptions(10).CandidatesPerBranch)
}
