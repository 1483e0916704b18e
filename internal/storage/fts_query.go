package storage

import (
	"strings"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
)

// QuoteFTSTerm wraps term in double quotes for use as an FTS5 phrase.
// Embedded quotes are doubled, so user input never reaches the query parser
// as syntax.
func QuoteFTSTerm(term string) string {
	return `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
}

// BuildCandidateQuery turns free text into an FTS5 expression that matches a
// document sharing any token prefix or, when ngramSize > 0, any character
// n-gram with the query. Returns "" when the query has no tokens.
//
// Examples:
//   - "begining" → normalized_content : "begining"* OR ngrams : "beg" OR ...
func BuildCandidateQuery(query string, ngramSize int) string {
	tokens := fuzzy.Tokenize(query)
	if len(tokens) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var terms []string
	add := func(term string) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}

	for _, tok := range tokens {
		add("normalized_content : " + QuoteFTSTerm(tok) + "*")
	}
	if ngramSize > 0 {
		for _, gram := range fuzzy.TokenNGrams(query, ngramSize) {
			add("ngrams : " + QuoteFTSTerm(gram))
		}
	}
	return strings.Join(terms, " OR ")
}

// BuildAnyTermQuery matches documents containing any of the given tokens.
func BuildAnyTermQuery(tokens []string) string {
	terms := make([]string, 0, len(tokens))
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		terms = append(terms, "normalized_content : "+QuoteFTSTerm(tok))
	}
	return strings.Join(terms, " OR ")
}

// BuildPhoneticQuery matches documents whose phonetic key contains every code.
func BuildPhoneticQuery(codes []string) string {
	terms := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		terms = append(terms, "phonetic_code : "+QuoteFTSTerm(code))
	}
	return strings.Join(terms, " AND ")
}
