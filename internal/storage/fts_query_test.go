package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteFTSTerm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"grace"`, QuoteFTSTerm("grace"))
	assert.Equal(t, `"say ""amen"""`, QuoteFTSTerm(`say "amen"`))
}

func TestBuildCandidateQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		ngramSize int
		expected  string
	}{
		{"empty", "  ...  ", 3, ""},
		{"prefix only", "Love one", 0, `normalized_content : "love"* OR normalized_content : "one"*`},
		{"with ngrams", "word", 3, `normalized_content : "word"* OR ngrams : "wor" OR ngrams : "ord"`},
		{"short token kept whole", "in", 3, `normalized_content : "in"* OR ngrams : "in"`},
		{"duplicates collapsed", "amen amen", 0, `normalized_content : "amen"*`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildCandidateQuery(tt.query, tt.ngramSize))
		})
	}
}

func TestBuildAnyTermQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `normalized_content : "love" OR normalized_content : "hearts"`,
		BuildAnyTermQuery([]string{"love", "", "hearts", "love"}))
	assert.Empty(t, BuildAnyTermQuery(nil))
}

func TestBuildPhoneticQuery(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `phonetic_code : "R163" AND phonetic_code : "W530"`, BuildPhoneticQuery([]string{"R163", "", "W530"}))
}
