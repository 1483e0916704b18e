package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mvp-joe/project-codex/internal/corpus"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// envKeys are bound explicitly so AutomaticEnv also reaches keys that have
// no config file entry.
var envKeys = []string{
	"search.max_distance",
	"search.min_score",
	"search.enable_phonetic",
	"search.enable_ngram",
	"search.ngram_size",
	"search.boost_exact_match",
	"search.boost_prefix_match",
	"search.case_sensitive",
	"search.cache_size",

	"branching.limit",
	"branching.coverage_weight",
	"branching.candidates_per_branch",
	"branching.max_restarts",
	"branching.max_branches",
	"branching.retriever",

	"indexing.debounce",
	"indexing.watch_debounce",
	"indexing.poll_interval",
	"indexing.batch_size",
	"indexing.workers",
	"indexing.retention_days",

	"storage.data_dir",
	"storage.database_name",
	"storage.snapshot_enabled",

	"logging.level",
	"logging.format",
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (CODEX_*)
// 2. Config file (.codex/config.yml or .codex/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, corpus.DataDir))

	// CODEX_SEARCH_MAX_DISTANCE -> search.max_distance
	v.SetEnvPrefix("CODEX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.source", d.Paths.Source)
	v.SetDefault("paths.target", d.Paths.Target)
	v.SetDefault("paths.ignore", d.Paths.Ignore)

	v.SetDefault("search.max_distance", d.Search.MaxDistance)
	v.SetDefault("search.min_score", d.Search.MinScore)
	v.SetDefault("search.enable_phonetic", d.Search.EnablePhonetic)
	v.SetDefault("search.enable_ngram", d.Search.EnableNgram)
	v.SetDefault("search.ngram_size", d.Search.NgramSize)
	v.SetDefault("search.boost_exact_match", d.Search.BoostExactMatch)
	v.SetDefault("search.boost_prefix_match", d.Search.BoostPrefixMatch)
	v.SetDefault("search.case_sensitive", d.Search.CaseSensitive)
	v.SetDefault("search.cache_size", d.Search.CacheSize)

	v.SetDefault("branching.limit", d.Branching.Limit)
	v.SetDefault("branching.coverage_weight", d.Branching.CoverageWeight)
	v.SetDefault("branching.candidates_per_branch", d.Branching.CandidatesPerBranch)
	v.SetDefault("branching.max_restarts", d.Branching.MaxRestarts)
	v.SetDefault("branching.max_branches", d.Branching.MaxBranches)
	v.SetDefault("branching.retriever", d.Branching.Retriever)

	v.SetDefault("indexing.debounce", d.Indexing.Debounce)
	v.SetDefault("indexing.watch_debounce", d.Indexing.WatchDebounce)
	v.SetDefault("indexing.poll_interval", d.Indexing.PollInterval)
	v.SetDefault("indexing.batch_size", d.Indexing.BatchSize)
	v.SetDefault("indexing.workers", d.Indexing.Workers)
	v.SetDefault("indexing.retention_days", d.Indexing.RetentionDays)

	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.database_name", d.Storage.DatabaseName)
	v.SetDefault("storage.snapshot_enabled", d.Storage.SnapshotEnabled)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
