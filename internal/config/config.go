// Package config loads project configuration from .codex/config.yml with
// CODEX_* environment overrides.
//
// Configuration Hierarchy (highest to lowest priority):
//  1. Environment variables (CODEX_*)
//  2. Project config (.codex/config.yml or .codex/config.yaml)
//  3. Built-in defaults
//
// Nested fields use underscores in environment variables, for example
// CODEX_SEARCH_MAX_DISTANCE or CODEX_LOGGING_LEVEL.
package config

import (
	"path/filepath"
	"time"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/corpus"
	"github.com/mvp-joe/project-codex/internal/fuzzy"
	"github.com/mvp-joe/project-codex/internal/ledger"
	"github.com/mvp-joe/project-codex/internal/search"
)

// Config represents the complete codex configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Branching BranchingConfig `yaml:"branching" mapstructure:"branching"`
	Indexing  IndexingConfig  `yaml:"indexing" mapstructure:"indexing"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// PathsConfig defines which files hold source and target cells.
type PathsConfig struct {
	Source []string `yaml:"source" mapstructure:"source"` // glob patterns for source text files
	Target []string `yaml:"target" mapstructure:"target"` // glob patterns for .codex notebooks
	Ignore []string `yaml:"ignore" mapstructure:"ignore"` // glob patterns to ignore
}

// SearchConfig mirrors search.Config plus the result cache size.
type SearchConfig struct {
	MaxDistance      int     `yaml:"max_distance" mapstructure:"max_distance"`
	MinScore         float64 `yaml:"min_score" mapstructure:"min_score"`
	EnablePhonetic   bool    `yaml:"enable_phonetic" mapstructure:"enable_phonetic"`
	EnableNgram      bool    `yaml:"enable_ngram" mapstructure:"enable_ngram"`
	NgramSize        int     `yaml:"ngram_size" mapstructure:"ngram_size"`
	BoostExactMatch  float64 `yaml:"boost_exact_match" mapstructure:"boost_exact_match"`
	BoostPrefixMatch float64 `yaml:"boost_prefix_match" mapstructure:"boost_prefix_match"`
	CaseSensitive    bool    `yaml:"case_sensitive" mapstructure:"case_sensitive"`
	CacheSize        int     `yaml:"cache_size" mapstructure:"cache_size"` // negative disables the result cache
}

// BranchingConfig configures query decomposition search.
type BranchingConfig struct {
	Limit               int     `yaml:"limit" mapstructure:"limit"`
	CoverageWeight      float64 `yaml:"coverage_weight" mapstructure:"coverage_weight"`
	CandidatesPerBranch int     `yaml:"candidates_per_branch" mapstructure:"candidates_per_branch"` // 0 derives from limit
	MaxRestarts         int     `yaml:"max_restarts" mapstructure:"max_restarts"`
	MaxBranches         int     `yaml:"max_branches" mapstructure:"max_branches"`
	Retriever           string  `yaml:"retriever" mapstructure:"retriever"` // "fts" or "snapshot"
}

// IndexingConfig controls the change ledger pump and the file watcher.
type IndexingConfig struct {
	Debounce      time.Duration `yaml:"debounce" mapstructure:"debounce"`             // ledger quiet period per resource type
	WatchDebounce time.Duration `yaml:"watch_debounce" mapstructure:"watch_debounce"` // filesystem event coalescing
	PollInterval  time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	BatchSize     int           `yaml:"batch_size" mapstructure:"batch_size"`
	Workers       int           `yaml:"workers" mapstructure:"workers"` // 0 means GOMAXPROCS
	RetentionDays int           `yaml:"retention_days" mapstructure:"retention_days"`
}

// StorageConfig locates the database and snapshot.
type StorageConfig struct {
	DataDir         string `yaml:"data_dir" mapstructure:"data_dir"` // relative to the project root unless absolute
	DatabaseName    string `yaml:"database_name" mapstructure:"database_name"`
	SnapshotEnabled bool   `yaml:"snapshot_enabled" mapstructure:"snapshot_enabled"`
}

// LoggingConfig selects log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // "console" or "json"
}

// Retriever names accepted by BranchingConfig.Retriever.
const (
	RetrieverFTS      = "fts"
	RetrieverSnapshot = "snapshot"
)

// Default returns a configuration with sensible defaults.
func Default() *Config {
	sc := search.DefaultConfig()
	return &Config{
		Paths: PathsConfig{
			Source: append([]string(nil), corpus.DefaultSourcePatterns...),
			Target: append([]string(nil), corpus.DefaultTargetPatterns...),
			Ignore: append([]string(nil), corpus.DefaultIgnorePatterns...),
		},
		Search: SearchConfig{
			MaxDistance:      sc.MaxDistance,
			MinScore:         sc.MinScore,
			EnablePhonetic:   sc.EnablePhonetic,
			EnableNgram:      sc.EnableNgram,
			NgramSize:        fuzzy.DefaultNGramSize,
			BoostExactMatch:  sc.BoostExactMatch,
			BoostPrefixMatch: sc.BoostPrefixMatch,
			CaseSensitive:    sc.CaseSensitive,
			CacheSize:        search.DefaultCacheSize,
		},
		Branching: BranchingConfig{
			Limit:          branching.DefaultLimit,
			CoverageWeight: branching.DefaultCoverageWeight,
			MaxRestarts:    branching.DefaultMaxRestarts,
			MaxBranches:    branching.DefaultMaxBranches,
			Retriever:      RetrieverFTS,
		},
		Indexing: IndexingConfig{
			Debounce:      ledger.DefaultDebounceWindow,
			WatchDebounce: 500 * time.Millisecond,
			PollInterval:  500 * time.Millisecond,
			BatchSize:     100,
			RetentionDays: ledger.DefaultRetentionDays,
		},
		Storage: StorageConfig{
			DataDir:         corpus.DataDir,
			DatabaseName:    "index.db",
			SnapshotEnabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SearchSettings converts the search section to a search.Config.
func (c *Config) SearchSettings() search.Config {
	return search.Config{
		MaxDistance:      c.Search.MaxDistance,
		MinScore:         c.Search.MinScore,
		EnablePhonetic:   c.Search.EnablePhonetic,
		EnableNgram:      c.Search.EnableNgram,
		NgramSize:        c.Search.NgramSize,
		BoostExactMatch:  c.Search.BoostExactMatch,
		BoostPrefixMatch: c.Search.BoostPrefixMatch,
		CaseSensitive:    c.Search.CaseSensitive,
	}
}

// BranchingOptions converts the branching section, with limit overriding the
// configured limit when positive.
func (c *Config) BranchingOptions(limit int) branching.Options {
	if limit <= 0 {
		limit = c.Branching.Limit
	}
	return branching.Options{
		Limit:               limit,
		CoverageWeight:      c.Branching.CoverageWeight,
		CandidatesPerBranch: c.Branching.CandidatesPerBranch,
		MaxRestarts:         c.Branching.MaxRestarts,
		MaxBranches:         c.Branching.MaxBranches,
	}
}

// DataDir resolves the storage directory against rootDir.
func (c *Config) DataDir(rootDir string) string {
	if filepath.IsAbs(c.Storage.DataDir) {
		return c.Storage.DataDir
	}
	return filepath.Join(rootDir, c.Storage.DataDir)
}

// DatabasePath returns the SQLite file location.
func (c *Config) DatabasePath(rootDir string) string {
	return filepath.Join(c.DataDir(rootDir), c.Storage.DatabaseName)
}

// WatchExtensions extracts unique file extensions from source and target patterns.
// Returns extensions with leading dot (e.g., []string{".bible", ".codex"}),
// or nil when some pattern does not end in an extension.
func (c *Config) WatchExtensions() []string {
	seen := make(map[string]bool)
	var extensions []string
	for _, patterns := range [][]string{c.Paths.Source, c.Paths.Target} {
		for _, pattern := range patterns {
			ext := extractExtension(pattern)
			if ext == "" {
				return nil
			}
			if !seen[ext] {
				seen[ext] = true
				extensions = append(extensions, ext)
			}
		}
	}
	return extensions
}

// extractExtension extracts the file extension from a glob pattern.
// Returns empty string if pattern doesn't match a simple extension pattern.
// Examples: "**/*.codex" -> ".codex", "*.bible" -> ".bible"
func extractExtension(pattern string) string {
	for i := len(pattern) - 1; i >= 1; i-- {
		if pattern[i] == '.' && pattern[i-1] == '*' {
			return pattern[i:]
		}
	}
	return ""
}
