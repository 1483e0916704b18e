// Package fuzzy implements the text derivations and similarity metrics used by
// the cell index: normalization, Soundex-style phonetic codes, n-grams,
// Levenshtein distance, Jaro-Winkler similarity and the composite fuzzy score.
//
// Every function here is total. Empty or malformed input yields a sentinel
// value (0, "", or the input itself) instead of an error or a panic.
package fuzzy

import (
	"regexp"
	"strings"
	"unicode"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Normalize trims s and, unless caseSensitive is set, lowercases it.
func Normalize(s string, caseSensitive bool) string {
	s = strings.TrimSpace(s)
	if caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

// StripTags removes HTML/XML tags, replacing each with a space.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}

// StripPunctuation removes punctuation and symbol runes and collapses runs of
// whitespace into single spaces.
func StripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize returns the lowercase words of text after stripping tags.
// Anything that is not a letter or digit separates words.
func Tokenize(text string) []string {
	text = strings.ToLower(StripTags(text))
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// CharCount counts runes.
func CharCount(s string) int {
	return len([]rune(s))
}
