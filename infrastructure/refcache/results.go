package refcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"bible-study/domain/bible"

	lru "github.com/hashicorp/golang-lru/v2"
)

// SearchResultCache is a bounded LRU of complete search responses keyed by
// the normalized request. Follow-up requests carrying conversation history
// are never cached: their answers depend on the whole conversation, not just
// the query.
type SearchResultCache struct {
	cache *lru.Cache[string, *bible.SearchResponse]
}

func NewSearchResultCache(size int) (*SearchResultCache, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, *bible.SearchResponse](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &SearchResultCache{cache: cache}, nil
}

// Key derives a stable cache key from the normalized query, the sorted
// translation list, and the canonicalized filters.
func Key(req *bible.SearchRequest) string {
	query := strings.ToLower(strings.TrimSpace(req.Query))

	translations := make([]string, len(req.Translations))
	copy(translations, req.Translations)
	sort.Strings(translations)

	filters, _ := json.Marshal(req.Filters)

	hashInput := fmt.Sprintf("%s|%s|%s|%d|%t",
		query, strings.Join(translations, ","), string(filters), req.MaxResults, req.IncludeOriginal)
	sum := md5.Sum([]byte(hashInput))
	return hex.EncodeToString(sum[:])
}

// Get returns a cached response for the request, marked as cached. The
// stored value is not mutated.
func (c *SearchResultCache) Get(req *bible.SearchRequest) (*bible.SearchResponse, bool) {
	if len(req.ConversationHistory) > 0 {
		return nil, false
	}
	cached, ok := c.cache.Get(Key(req))
	if !ok {
		return nil, false
	}

	resp := *cached
	resp.SearchMetadata.Cached = true
	return &resp, true
}

// Add stores a response unless the request carried conversation history.
func (c *SearchResultCache) Add(req *bible.SearchRequest, resp *bible.SearchResponse) {
	if len(req.ConversationHistory) > 0 || resp == nil {
		return
	}
	c.cache.Add(Key(req), resp)
}

// Len reports the number of cached responses.
func (c *SearchResultCache) Len() int {
	return c.cache.Len()
}
