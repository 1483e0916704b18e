package fuzzy

import "strings"

// DefaultNGramSize is the n used when a configuration leaves it unset.
const DefaultNGramSize = 3

// NGrams returns every contiguous n-rune substring of the lowercased,
// punctuation-stripped text, space joined. Text shorter than n, or a
// non-positive n, returns text unchanged.
func NGrams(text string, n int) string {
	clean := []rune(StripPunctuation(strings.ToLower(text)))
	if n <= 0 || len(clean) < n {
		return text
	}
	grams := make([]string, 0, len(clean)-n+1)
	for i := 0; i+n <= len(clean); i++ {
		grams = append(grams, string(clean[i:i+n]))
	}
	return strings.Join(grams, " ")
}

// IndexNGrams applies NGrams to each token of text and joins the results.
// Grams never span a word boundary, which keeps them usable as full-text
// tokens in the shadow table.
func IndexNGrams(text string, n int) string {
	tokens := Tokenize(text)
	parts := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		parts = append(parts, NGrams(tok, n))
	}
	return strings.Join(parts, " ")
}

// TokenNGrams returns the distinct n-grams of every token of text.
func TokenNGrams(text string, n int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range strings.Fields(IndexNGrams(text, n)) {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
