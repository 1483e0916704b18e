package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for fuzzy:
// - Levenshtein is 0 for identical strings and len(s) against ""
// - Levenshtein matches known distances and counts runes, not bytes
// - Jaro-Winkler is 1.0 for identical strings and 0 against ""
// - Jaro-Winkler matches published reference values
// - Soundex matches classic reference codes and collapses classes
// - NGrams emits contiguous grams and degrades for short input
// - Score ranks exact > fuzzy > phonetic for the same pair
// - Score applies the length-ratio penalty
// - Tokenize strips tags and punctuation

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"same", "same", 0},
		{"kitten", "sitting", 3},
		{"begining", "beginning", 1},
		{"flaw", "lawn", 2},
		{"über", "uber", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
			assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a))
		})
	}
}

func TestLevenshtein_Properties(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"a", "in the beginning", "ἐν ἀρχῇ", "GEN 1:1"} {
		assert.Equal(t, 0, Levenshtein(s, s))
		assert.Equal(t, CharCount(s), Levenshtein("", s))
	}
}

func TestJaroWinkler(t *testing.T) {
	t.Parallel()

	t.Run("identical and empty", func(t *testing.T) {
		t.Parallel()
		for _, s := range []string{"a", "martha", "in the beginning"} {
			assert.Equal(t, 1.0, JaroWinkler(s, s))
			assert.Equal(t, 0.0, JaroWinkler("", s))
			assert.Equal(t, 0.0, JaroWinkler(s, ""))
		}
		assert.Equal(t, 0.0, JaroWinkler("", ""))
	})

	t.Run("reference values", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.9611, JaroWinkler("MARTHA", "MARHTA"), 0.001)
		assert.InDelta(t, 0.8133, JaroWinkler("DIXON", "DICKSONX"), 0.001)
		assert.InDelta(t, 0.9444, Jaro("MARTHA", "MARHTA"), 0.001)
	})

	t.Run("no common runes", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 0.0, JaroWinkler("abc", "xyz"))
	})
}

func TestSoundex(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Robert":   "R163",
		"Rupert":   "R163",
		"Ashcraft": "A261",
		"Tymczak":  "T522",
		"Pfister":  "P236",
		"Honeyman": "H555",
		"a":        "A000",
		"":         "",
		"123":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Soundex(in), "Soundex(%q)", in)
	}
}

func TestPhoneticKey(t *testing.T) {
	t.Parallel()

	key := PhoneticKey("Robert and Rupert went")
	assert.Equal(t, "R163 A530 W530", key)
	assert.Empty(t, PhoneticKey("..."))
}

func TestNGrams(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hel ell llo", NGrams("Hello", 3))
	assert.Equal(t, "hi", NGrams("hi", 3))
	assert.Equal(t, "hello", NGrams("hello", 0))
	assert.Equal(t, "ab bc", NGrams("a.b,c", 2))
}

func TestIndexNGrams(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "in the beg egi gin inn nni nin ing", IndexNGrams("In the beginning", 3))
	assert.ElementsMatch(t, []string{"beg", "egi", "gin", "ini", "nin", "ing"}, TokenNGrams("begining", 3))
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	got := Tokenize(`<span class="v">Love</span> one another, as I have loved you.`)
	assert.Equal(t, []string{"love", "one", "another", "as", "i", "have", "loved", "you"}, got)
	assert.Empty(t, Tokenize("  <br/>  "))
}

func TestScore(t *testing.T) {
	t.Parallel()

	cfg := ScoreConfig{
		MaxDistance:      1,
		BoostExactMatch:  2.0,
		BoostPrefixMatch: 1.5,
		EnablePhonetic:   true,
	}

	t.Run("exact", func(t *testing.T) {
		m, ok := Score("Robert", "robert", cfg)
		require.True(t, ok)
		assert.Equal(t, MatchExact, m.Type)
		assert.Equal(t, 2.0, m.Score)
		assert.Equal(t, 0, m.Distance)
	})

	t.Run("prefix", func(t *testing.T) {
		m, ok := Score("begin", "beginning", cfg)
		require.True(t, ok)
		assert.Equal(t, MatchPrefix, m.Type)
		assert.InDelta(t, 1.2, m.Score, 1e-9)
	})

	t.Run("fuzzy", func(t *testing.T) {
		m, ok := Score("robert", "roberd", cfg)
		require.True(t, ok)
		assert.Equal(t, MatchFuzzy, m.Type)
		assert.Equal(t, 1, m.Distance)
		assert.InDelta(t, 5.0/6.0, m.Score, 1e-9)
	})

	t.Run("phonetic", func(t *testing.T) {
		m, ok := Score("robert", "rupert", cfg)
		require.True(t, ok)
		assert.Equal(t, MatchPhonetic, m.Type)
		assert.Equal(t, PhoneticScore, m.Score)
	})

	t.Run("ordering", func(t *testing.T) {
		exact, _ := Score("robert", "robert", cfg)
		fz, _ := Score("robert", "roberd", cfg)
		ph, _ := Score("robert", "rupert", cfg)
		assert.Greater(t, exact.Score, fz.Score)
		assert.Greater(t, fz.Score, ph.Score)
	})

	t.Run("length penalty", func(t *testing.T) {
		m, ok := Score("in", "in the beginning", cfg)
		require.True(t, ok)
		assert.Equal(t, MatchPrefix, m.Type)
		assert.InDelta(t, 0.6, m.Score, 1e-9)
	})

	t.Run("no match and empty input", func(t *testing.T) {
		_, ok := Score("robert", "zebra", cfg)
		assert.False(t, ok)
		_, ok = Score("", "zebra", cfg)
		assert.False(t, ok)
		_, ok = Score("zebra", "   ", cfg)
		assert.False(t, ok)
	})

	t.Run("case sensitive", func(t *testing.T) {
		cs := cfg
		cs.CaseSensitive = true
		cs.EnablePhonetic = false
		cs.MaxDistance = 0
		_, ok := Score("Robert", "robert", cs)
		assert.False(t, ok)
	})
}

func TestDerive(t *testing.T) {
	t.Parallel()

	d := Derive("  In the Beginning God  ", 3)
	assert.Equal(t, "in the beginning god", d.Normalized)
	assert.Equal(t, 4, d.WordCount)
	assert.Equal(t, 24, d.CharCount)
	assert.Contains(t, d.PhoneticCode, "B255")
	assert.Contains(t, d.NGrams, "beg")
}
