package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid path pattern")

	// ErrEmptyPatterns indicates no source or target patterns
	ErrEmptyPatterns = errors.New("empty path patterns")

	// ErrInvalidDistance indicates a negative edit distance
	ErrInvalidDistance = errors.New("invalid max distance")

	// ErrInvalidScore indicates an out-of-range score or weight
	ErrInvalidScore = errors.New("invalid score setting")

	// ErrInvalidNgramSize indicates a non-positive n-gram width
	ErrInvalidNgramSize = errors.New("invalid ngram size")

	// ErrInvalidRetriever indicates an unknown branching retriever
	ErrInvalidRetriever = errors.New("invalid branching retriever")

	// ErrInvalidIndexing indicates invalid pump or watcher settings
	ErrInvalidIndexing = errors.New("invalid indexing settings")

	// ErrInvalidStorage indicates missing storage locations
	ErrInvalidStorage = errors.New("invalid storage settings")

	// ErrInvalidLogging indicates an unknown log level or format
	ErrInvalidLogging = errors.New("invalid logging settings")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error
	errs = append(errs, validatePaths(&cfg.Paths)...)
	errs = append(errs, validateSearch(&cfg.Search)...)
	errs = append(errs, validateBranching(&cfg.Branching)...)
	errs = append(errs, validateIndexing(&cfg.Indexing)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	return joinErrors(errs)
}

func validatePaths(cfg *PathsConfig) []error {
	var errs []error

	if len(cfg.Source) == 0 && len(cfg.Target) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one source or target pattern required", ErrEmptyPatterns))
	}
	for _, group := range [][]string{cfg.Source, cfg.Target, cfg.Ignore} {
		for _, p := range group {
			if _, err := glob.Compile(p, '/'); err != nil {
				errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, p, err))
			}
		}
	}
	return errs
}

func validateSearch(cfg *SearchConfig) []error {
	var errs []error

	if cfg.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("%w: max_distance cannot be negative, got %d", ErrInvalidDistance, cfg.MaxDistance))
	}
	if cfg.MinScore < 0 {
		errs = append(errs, fmt.Errorf("%w: min_score cannot be negative, got %.2f", ErrInvalidScore, cfg.MinScore))
	}
	if cfg.BoostExactMatch < 1 || cfg.BoostPrefixMatch < 1 {
		errs = append(errs, fmt.Errorf("%w: boosts must be at least 1, got exact %.2f prefix %.2f", ErrInvalidScore, cfg.BoostExactMatch, cfg.BoostPrefixMatch))
	}
	if cfg.NgramSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: ngram_size must be positive, got %d", ErrInvalidNgramSize, cfg.NgramSize))
	}
	return errs
}

func validateBranching(cfg *BranchingConfig) []error {
	var errs []error

	if cfg.Limit <= 0 {
		errs = append(errs, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidScore, cfg.Limit))
	}
	if cfg.CoverageWeight < 0 {
		errs = append(errs, fmt.Errorf("%w: coverage_weight cannot be negative, got %.2f", ErrInvalidScore, cfg.CoverageWeight))
	}
	switch strings.ToLower(cfg.Retriever) {
	case RetrieverFTS, RetrieverSnapshot:
	default:
		errs = append(errs, fmt.Errorf("%w: must be '%s' or '%s', got '%s'", ErrInvalidRetriever, RetrieverFTS, RetrieverSnapshot, cfg.Retriever))
	}
	return errs
}

func validateIndexing(cfg *IndexingConfig) []error {
	var errs []error

	if cfg.Debounce < 0 || cfg.WatchDebounce < 0 {
		errs = append(errs, fmt.Errorf("%w: debounce periods cannot be negative", ErrInvalidIndexing))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: poll_interval must be positive, got %s", ErrInvalidIndexing, cfg.PollInterval))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidIndexing, cfg.BatchSize))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidIndexing, cfg.Workers))
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("%w: retention_days cannot be negative, got %d", ErrInvalidIndexing, cfg.RetentionDays))
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []error {
	var errs []error

	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, fmt.Errorf("%w: data_dir is required", ErrInvalidStorage))
	}
	if strings.TrimSpace(cfg.DatabaseName) == "" {
		errs = append(errs, fmt.Errorf("%w: database_name is required", ErrInvalidStorage))
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []error {
	var errs []error

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err != nil || cfg.Level == "" {
		errs = append(errs, fmt.Errorf("%w: unknown level '%s'", ErrInvalidLogging, cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: format must be 'console' or 'json', got '%s'", ErrInvalidLogging, cfg.Format))
	}
	return errs
}

// validationError reports every failed check, one per line, while keeping
// each underlying sentinel reachable through errors.Is.
type validationError struct {
	errs []error
}

func (e *validationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return "validation failed:\n  - " + strings.Join(msgs, "\n  - ")
}

func (e *validationError) Unwrap() []error {
	return e.errs
}

// joinErrors combines multiple errors into a single error with clear formatting.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &validationError{errs: errs}
}
