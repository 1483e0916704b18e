package search

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// DefaultCacheSize is the number of result lists kept when caching is enabled.
const DefaultCacheSize = 1024

const cacheTTL = 10 * time.Minute

// resultCache memoizes ranked result lists. Keys embed the persisted index
// generation, so a write from any process makes earlier entries unreachable.
// An empty key bypasses the cache.
type resultCache struct {
	cache otter.Cache[string, []Result]
}

func newResultCache(size int) (*resultCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := otter.MustBuilder[string, []Result](size).
		WithTTL(cacheTTL).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build result cache: %w", err)
	}
	return &resultCache{cache: c}, nil
}

func cacheKey(generation uint64, mode, query string, opts Options, extra float64) string {
	return fmt.Sprintf("%d|%s|%s|%d|%d|%g|%s", generation, mode, opts.ResourceType, opts.limit(), opts.Fuzziness, extra, query)
}

// resultKey builds the cache key for a query at the current index generation.
// It returns "" when the generation cannot be read.
func (s *Searcher) resultKey(ctx context.Context, mode, query string, opts Options, extra float64) string {
	if s.cache == nil {
		return ""
	}
	gen, err := s.index.Generation(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("index generation unavailable, bypassing result cache")
		return ""
	}
	return cacheKey(gen, mode, query, opts, extra)
}

func (c *resultCache) get(key string) ([]Result, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	results, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return append([]Result(nil), results...), true
}

func (c *resultCache) set(key string, results []Result) {
	if c == nil || key == "" {
		return
	}
	c.cache.Set(key, append([]Result(nil), results...))
}

func (c *resultCache) close() {
	if c != nil {
		c.cache.Close()
	}
}
