// Package cache provides the read-side query cache: TTL memoization plus
// single-flight deduplication of concurrent identical fetches.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL applies when callers pass a zero TTL.
	DefaultTTL = 5 * time.Minute
	// RecentFeedTTL is the shorter window used for "recent" discovery feeds.
	RecentFeedTTL = 1 * time.Minute

	cleanupInterval = 10 * time.Minute
)

// Producer computes the value for a cache key on a miss.
type Producer func(ctx context.Context) (any, error)

// QueryCache memoizes expensive reads with a TTL and guarantees at most one
// concurrent producer execution per key. A failed producer is never cached,
// so the next call retries immediately.
type QueryCache struct {
	store  *gocache.Cache
	group  singleflight.Group
	logger *slog.Logger
}

func New(logger *slog.Logger) *QueryCache {
	return &QueryCache{
		store:  gocache.New(DefaultTTL, cleanupInterval),
		logger: logger,
	}
}

// Fetch returns the cached value for key if present and unexpired; otherwise
// it runs producer, caches the result for ttl and returns it. Overlapping
// calls for the same key share a single producer execution and receive the
// same result.
func (c *QueryCache) Fetch(ctx context.Context, key string, ttl time.Duration, producer Producer) (any, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A concurrent caller may have populated the entry while this one
		// was waiting on the flight group.
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		c.store.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.DebugContext(ctx, "cache fetch shared in-flight result", slog.String("key", key))
	}
	return v, nil
}

// Invalidate removes one cached entry.
func (c *QueryCache) Invalidate(key string) {
	c.store.Delete(key)
}

// InvalidatePrefix removes every cached entry whose key starts with prefix.
// Used after writes that should bust aggregate read caches regardless of
// their query parameters.
func (c *QueryCache) InvalidatePrefix(prefix string) {
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
		}
	}
}

// Flush drops every entry. Test helper.
func (c *QueryCache) Flush() {
	c.store.Flush()
}
