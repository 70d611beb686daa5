package refcache

import (
	"context"
	"sync"

	"bible-study/domain/bible"

	"golang.org/x/sync/singleflight"
)

// TranslationFetcher loads the translations list from the API.
type TranslationFetcher func(ctx context.Context) (*bible.TranslationsResponse, error)

// TranslationsCache memoizes the translations list for the process lifetime.
// The list changes rarely enough that the first successful fetch is pinned
// until Invalidate. Concurrent first callers share one in-flight fetch; a
// failed fetch leaves nothing pinned, so the next caller retries.
type TranslationsCache struct {
	fetch TranslationFetcher
	group singleflight.Group

	mu       sync.RWMutex
	snapshot *bible.TranslationsResponse
}

func NewTranslationsCache(fetch TranslationFetcher) *TranslationsCache {
	return &TranslationsCache{fetch: fetch}
}

// Get returns the memoized snapshot, fetching it on first use.
func (c *TranslationsCache) Get(ctx context.Context) (*bible.TranslationsResponse, error) {
	c.mu.RLock()
	snapshot := c.snapshot
	c.mu.RUnlock()
	if snapshot != nil {
		return snapshot, nil
	}

	v, err, _ := c.group.Do("translations", func() (any, error) {
		// Re-check under the flight: a racing caller may have populated
		// the snapshot between the read above and joining the flight.
		c.mu.RLock()
		cached := c.snapshot
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		resp, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.snapshot = resp
		c.mu.Unlock()
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bible.TranslationsResponse), nil
}

// Invalidate drops the snapshot so the next Get refetches.
func (c *TranslationsCache) Invalidate() {
	c.mu.Lock()
	c.snapshot = nil
	c.mu.Unlock()
}
