package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-codex/internal/branching"
	"github.com/mvp-joe/project-codex/internal/search"
)

// Test Plan for Config System:
// - Default() returns valid configuration with all expected defaults
// - Load uses defaults when no config file exists
// - Load reads .codex/config.yml and .codex/config.yaml
// - A partial config file merges with defaults
// - Environment variables override config file values and defaults
// - Durations parse from strings in files and env
// - Load returns error for malformed YAML and for invalid values
// - Validate rejects each invalid field with its sentinel error
// - Validate reports every failure and keeps every sentinel reachable
// - SearchSettings / BranchingOptions / DataDir / WatchExtensions conversions

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, ".codex")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	return root
}

func TestDefault_ReturnsValidConfiguration(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"**/*.bible", "**/*.source"}, cfg.Paths.Source)
	assert.Equal(t, []string{"**/*.codex"}, cfg.Paths.Target)
	assert.Contains(t, cfg.Paths.Ignore, ".git/**")

	assert.Equal(t, search.DefaultConfig(), cfg.SearchSettings())
	assert.Equal(t, search.DefaultCacheSize, cfg.Search.CacheSize)

	assert.Equal(t, branching.DefaultLimit, cfg.Branching.Limit)
	assert.Equal(t, RetrieverFTS, cfg.Branching.Retriever)

	assert.Equal(t, 2*time.Second, cfg.Indexing.Debounce)
	assert.Equal(t, 100, cfg.Indexing.BatchSize)
	assert.Equal(t, 7, cfg.Indexing.RetentionDays)

	assert.Equal(t, ".codex", cfg.Storage.DataDir)
	assert.Equal(t, "index.db", cfg.Storage.DatabaseName)
	assert.True(t, cfg.Storage.SnapshotEnabled)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)

	assert.NoError(t, Validate(cfg))
}

func TestLoadConfig_UsesDefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_LoadsFromConfigYml(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yml", `
paths:
  source: ["**/*.usfm.txt"]
  target: ["files/**/*.codex"]
  ignore: ["archive/**"]

search:
  max_distance: 3
  min_score: 0.5
  enable_phonetic: false
  cache_size: -1

branching:
  limit: 10
  max_restarts: -1
  retriever: snapshot

indexing:
  debounce: 5s
  poll_interval: 250ms
  batch_size: 20
  workers: 4

storage:
  data_dir: /var/lib/codex
  snapshot_enabled: false

logging:
  level: debug
  format: json
`)

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"**/*.usfm.txt"}, cfg.Paths.Source)
	assert.Equal(t, []string{"files/**/*.codex"}, cfg.Paths.Target)
	assert.Equal(t, []string{"archive/**"}, cfg.Paths.Ignore)

	assert.Equal(t, 3, cfg.Search.MaxDistance)
	assert.Equal(t, 0.5, cfg.Search.MinScore)
	assert.False(t, cfg.Search.EnablePhonetic)
	assert.True(t, cfg.Search.EnableNgram, "unset keys keep defaults")
	assert.Equal(t, -1, cfg.Search.CacheSize)

	assert.Equal(t, 10, cfg.Branching.Limit)
	assert.Equal(t, -1, cfg.Branching.MaxRestarts)
	assert.Equal(t, RetrieverSnapshot, cfg.Branching.Retriever)

	assert.Equal(t, 5*time.Second, cfg.Indexing.Debounce)
	assert.Equal(t, 250*time.Millisecond, cfg.Indexing.PollInterval)
	assert.Equal(t, 20, cfg.Indexing.BatchSize)
	assert.Equal(t, 4, cfg.Indexing.Workers)

	assert.Equal(t, "/var/lib/codex", cfg.Storage.DataDir)
	assert.Equal(t, "index.db", cfg.Storage.DatabaseName)
	assert.False(t, cfg.Storage.SnapshotEnabled)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_LoadsFromConfigYaml(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yaml", `
search:
  max_distance: 1
`)
	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Search.MaxDistance)
}

func TestLoadConfig_EnvironmentVariablesOverrideConfigFile(t *testing.T) {
	// Note: Cannot use t.Parallel() with t.Setenv()

	root := writeConfig(t, "config.yml", `
search:
  max_distance: 1
  min_score: 0.3
logging:
  level: warn
`)

	t.Setenv("CODEX_SEARCH_MAX_DISTANCE", "4")
	t.Setenv("CODEX_LOGGING_LEVEL", "error")
	t.Setenv("CODEX_INDEXING_DEBOUNCE", "750ms")

	cfg, err := NewLoader(root).Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Search.MaxDistance)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, 750*time.Millisecond, cfg.Indexing.Debounce)

	// Not overridden, comes from the file
	assert.Equal(t, 0.3, cfg.Search.MinScore)
}

func TestLoadConfig_EnvironmentVariablesOverrideDefaults(t *testing.T) {
	t.Setenv("CODEX_BRANCHING_RETRIEVER", "snapshot")
	t.Setenv("CODEX_STORAGE_SNAPSHOT_ENABLED", "false")

	cfg, err := NewLoader(t.TempDir()).Load()
	require.NoError(t, err)

	assert.Equal(t, RetrieverSnapshot, cfg.Branching.Retriever)
	assert.False(t, cfg.Storage.SnapshotEnabled)
}

func TestLoadConfig_ReturnsErrorForMalformedYaml(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yml", `
search:
  max_distance: "unclosed quote
  min_score: not-a-number
`)
	cfg, err := NewLoader(root).Load()
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadConfig_ReturnsErrorForInvalidValues(t *testing.T) {
	t.Parallel()

	root := writeConfig(t, "config.yml", `
branching:
  retriever: vector
`)
	cfg, err := NewLoader(root).Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRetriever)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestValidate_RejectsInvalidFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no patterns", func(c *Config) { c.Paths.Source, c.Paths.Target = nil, nil }, ErrEmptyPatterns},
		{"bad glob", func(c *Config) { c.Paths.Ignore = []string{"[unclosed"} }, ErrInvalidPattern},
		{"negative distance", func(c *Config) { c.Search.MaxDistance = -1 }, ErrInvalidDistance},
		{"negative min score", func(c *Config) { c.Search.MinScore = -0.1 }, ErrInvalidScore},
		{"boost below one", func(c *Config) { c.Search.BoostExactMatch = 0.5 }, ErrInvalidScore},
		{"zero ngram", func(c *Config) { c.Search.NgramSize = 0 }, ErrInvalidNgramSize},
		{"zero branching limit", func(c *Config) { c.Branching.Limit = 0 }, ErrInvalidScore},
		{"unknown retriever", func(c *Config) { c.Branching.Retriever = "bm25" }, ErrInvalidRetriever},
		{"zero poll interval", func(c *Config) { c.Indexing.PollInterval = 0 }, ErrInvalidIndexing},
		{"zero batch size", func(c *Config) { c.Indexing.BatchSize = 0 }, ErrInvalidIndexing},
		{"negative retention", func(c *Config) { c.Indexing.RetentionDays = -1 }, ErrInvalidIndexing},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = " " }, ErrInvalidStorage},
		{"empty db name", func(c *Config) { c.Storage.DatabaseName = "" }, ErrInvalidStorage},
		{"unknown level", func(c *Config) { c.Logging.Level = "loud" }, ErrInvalidLogging},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalidLogging},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_ReturnsMultipleErrorsForMultipleInvalidFields(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Search.MaxDistance = -1
	cfg.Branching.Retriever = "bm25"
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrInvalidDistance))
	assert.True(t, errors.Is(err, ErrInvalidRetriever))
	assert.True(t, errors.Is(err, ErrInvalidLogging))

	msg := err.Error()
	assert.Contains(t, msg, "validation failed")
	assert.Contains(t, msg, "max_distance")
	assert.Contains(t, msg, "bm25")
	assert.Contains(t, msg, "xml")
}

func TestConfig_Conversions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Search.MaxDistance = 3
	cfg.Branching.CoverageWeight = 0.8

	assert.Equal(t, 3, cfg.SearchSettings().MaxDistance)

	opts := cfg.BranchingOptions(0)
	assert.Equal(t, branching.DefaultLimit, opts.Limit)
	assert.Equal(t, 0.8, opts.CoverageWeight)
	assert.Equal(t, 9, cfg.BranchingOptions(9).Limit)

	assert.Equal(t, filepath.Join("/proj", ".codex"), cfg.DataDir("/proj"))
	assert.Equal(t, filepath.Join("/proj", ".codex", "index.db"), cfg.DatabasePath("/proj"))
	cfg.Storage.DataDir = "/abs/data"
	assert.Equal(t, "/abs/data", cfg.DataDir("/proj"))

	assert.Equal(t, []string{".bible", ".source", ".codex"}, cfg.WatchExtensions())
	cfg.Paths.Target = append(cfg.Paths.Target, "notebooks/*")
	assert.Nil(t, cfg.WatchExtensions())
}

func TestExtractExtension(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"**/*.codex":    ".codex",
		"*.bible":       ".bible",
		"**/*.usfm.txt": ".usfm.txt",
		"files/*":       "",
		"GEN.codex":     "",
	}
	for pattern, want := range tests {
		assert.Equal(t, want, extractExtension(pattern), pattern)
	}
}
