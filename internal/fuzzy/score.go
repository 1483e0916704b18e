package fuzzy

import "strings"

// MatchType says which rule produced a score.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchPrefix   MatchType = "prefix"
	MatchFuzzy    MatchType = "fuzzy"
	MatchPhonetic MatchType = "phonetic"
)

// PhoneticScore is the flat score of a phonetic-only match.
const PhoneticScore = 0.6

// ScoreConfig carries the knobs of the composite score.
type ScoreConfig struct {
	MaxDistance      int
	BoostExactMatch  float64
	BoostPrefixMatch float64
	EnablePhonetic   bool
	CaseSensitive    bool
}

// Match is the outcome of scoring a query against a target.
type Match struct {
	Score    float64
	Distance int
	Type     MatchType
}

// Score compares query with target and returns the best applicable rule:
//
//	exact     1.0 × BoostExactMatch
//	prefix    0.8 × BoostPrefixMatch (target starts with query)
//	fuzzy     max(0, (maxLen−distance)/maxLen) when distance ≤ MaxDistance
//	phonetic  0.6 when the Soundex codes agree
//
// The result is halved when the shorter string is less than half the length
// of the longer one. The boolean is false when no rule applies.
func Score(query, target string, cfg ScoreConfig) (Match, bool) {
	q := Normalize(query, cfg.CaseSensitive)
	t := Normalize(target, cfg.CaseSensitive)
	if q == "" || t == "" {
		return Match{}, false
	}

	ql, tl := CharCount(q), CharCount(t)
	penalty := LengthPenalty(ql, tl)

	if q == t {
		return Match{Score: 1.0 * cfg.BoostExactMatch * penalty, Type: MatchExact}, true
	}
	if strings.HasPrefix(t, q) {
		return Match{Score: 0.8 * cfg.BoostPrefixMatch * penalty, Distance: tl - ql, Type: MatchPrefix}, true
	}

	d := Levenshtein(q, t)
	if d <= cfg.MaxDistance {
		maxLen := float64(max(ql, tl))
		s := max(0, (maxLen-float64(d))/maxLen)
		return Match{Score: s * penalty, Distance: d, Type: MatchFuzzy}, true
	}

	if cfg.EnablePhonetic {
		if code := Soundex(q); code != "" && code == Soundex(t) {
			return Match{Score: PhoneticScore * penalty, Distance: d, Type: MatchPhonetic}, true
		}
	}
	return Match{}, false
}

// LengthPenalty returns 0.5 when the shorter length is under half the longer
// one and 1 otherwise. Zero lengths yield 1.
func LengthPenalty(a, b int) float64 {
	lo, hi := min(a, b), max(a, b)
	if hi == 0 {
		return 1
	}
	if float64(lo)/float64(hi) < 0.5 {
		return 0.5
	}
	return 1
}
