package search

import (
	"strings"
	"unicode"

	"github.com/mvp-joe/project-codex/internal/fuzzy"
)

// words splits text into the units used for window scoring. Unlike
// fuzzy.Tokenize it keeps case when the search is case sensitive.
func words(text string, caseSensitive bool) []string {
	text = fuzzy.StripTags(text)
	if !caseSensitive {
		text = strings.ToLower(text)
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// windows returns every run of n consecutive words of content, space joined.
func windows(content []string, n int) []string {
	if n <= 0 || len(content) < n {
		return nil
	}
	out := make([]string, 0, len(content)-n+1)
	for i := 0; i+n <= len(content); i++ {
		out = append(out, strings.Join(content[i:i+n], " "))
	}
	return out
}

// bestMatch scores query against content as a whole and against every run of
// content words as long as the query, returning the highest scoring exact,
// prefix or fuzzy match. An exact hit on a window inside a longer cell is
// reported as a prefix match.
func bestMatch(query, content string, sc fuzzy.ScoreConfig) (fuzzy.Match, bool) {
	best, ok := fuzzy.Score(query, content, sc)
	if ok && best.Type == fuzzy.MatchPhonetic {
		ok = false
	}

	qWords := words(query, sc.CaseSensitive)
	q := strings.Join(qWords, " ")
	for _, w := range windows(words(content, sc.CaseSensitive), len(qWords)) {
		m, hit := fuzzy.Score(q, w, sc)
		if !hit || m.Type == fuzzy.MatchPhonetic {
			continue
		}
		if m.Type == fuzzy.MatchExact {
			m = fuzzy.Match{Score: 0.8 * sc.BoostPrefixMatch, Type: fuzzy.MatchPrefix}
		}
		if !ok || m.Score > best.Score {
			best, ok = m, true
		}
	}
	return best, ok
}

// minWindowDistance is the smallest edit distance between query and any
// same-length run of content words, or the whole content when shorter.
func minWindowDistance(query, content string, caseSensitive bool) int {
	qWords := words(query, caseSensitive)
	q := strings.Join(qWords, " ")
	cWords := words(content, caseSensitive)
	ws := windows(cWords, len(qWords))
	if len(ws) == 0 {
		return fuzzy.Levenshtein(q, strings.Join(cWords, " "))
	}
	best := -1
	for _, w := range ws {
		if d := fuzzy.Levenshtein(q, w); best < 0 || d < best {
			best = d
		}
	}
	return best
}

// bestSimilarity is the highest Jaro-Winkler similarity between query and the
// whole content or any same-length run of content words.
func bestSimilarity(query, content string, caseSensitive bool) (float64, int) {
	qWords := words(query, caseSensitive)
	q := strings.Join(qWords, " ")
	cWords := words(content, caseSensitive)

	whole := strings.Join(cWords, " ")
	best := fuzzy.JaroWinkler(q, whole)
	bestDist := fuzzy.Levenshtein(q, whole)
	for _, w := range windows(cWords, len(qWords)) {
		if s := fuzzy.JaroWinkler(q, w); s > best {
			best = s
			bestDist = fuzzy.Levenshtein(q, w)
		}
	}
	return best, bestDist
}

// hasAllCodes reports whether every code appears in the space-joined key.
func hasAllCodes(key string, codes []string) bool {
	if len(codes) == 0 {
		return false
	}
	have := make(map[string]bool)
	for _, c := range strings.Fields(key) {
		have[c] = true
	}
	for _, c := range codes {
		if !have[c] {
			return false
		}
	}
	return true
}
