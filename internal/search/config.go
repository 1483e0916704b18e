package search

import "github.com/mvp-joe/project-codex/internal/fuzzy"

// Config controls scoring and tier selection.
type Config struct {
	MaxDistance      int
	MinScore         float64
	EnablePhonetic   bool
	EnableNgram      bool
	NgramSize        int
	BoostExactMatch  float64
	BoostPrefixMatch float64
	CaseSensitive    bool
}

// DefaultConfig returns the stock search configuration.
func DefaultConfig() Config {
	return Config{
		MaxDistance:      2,
		MinScore:         0.1,
		EnablePhonetic:   true,
		EnableNgram:      true,
		NgramSize:        fuzzy.DefaultNGramSize,
		BoostExactMatch:  2.0,
		BoostPrefixMatch: 1.5,
		CaseSensitive:    false,
	}
}

func (c Config) scoreConfig(maxDistance int) fuzzy.ScoreConfig {
	return fuzzy.ScoreConfig{
		MaxDistance:      maxDistance,
		BoostExactMatch:  c.BoostExactMatch,
		BoostPrefixMatch: c.BoostPrefixMatch,
		EnablePhonetic:   c.EnablePhonetic,
		CaseSensitive:    c.CaseSensitive,
	}
}
