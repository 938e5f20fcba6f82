package controls

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache shares fetched option lists between views.
type Cache interface {
	Get(key string) (OptionList, bool)
	Set(key string, opts OptionList)
}

// MemCache is a Cache backed by ristretto. Cost is counted in options, so
// maxOptions bounds the number of cached options across all lists.
type MemCache struct {
	cache *ristretto.Cache[string, OptionList]
	ttl   time.Duration
}

// NewMemCache creates a cache; ttl of zero keeps entries until evicted.
func NewMemCache(maxOptions int64, ttl time.Duration) (*MemCache, error) {
	if maxOptions <= 0 {
		maxOptions = 1 << 16
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, OptionList]{
		NumCounters: maxOptions * 10,
		MaxCost:     maxOptions,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemCache{cache: cache, ttl: ttl}, nil
}

func (c *MemCache) Get(key string) (OptionList, bool) {
	opts, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return append(OptionList(nil), opts...), true
}

// Set stores opts. Ristretto may drop writes under contention; a dropped write
// only costs a later refetch.
func (c *MemCache) Set(key string, opts OptionList) {
	cost := int64(len(opts)) + 1
	stored := append(OptionList(nil), opts...)
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, stored, cost, c.ttl)
	} else {
		c.cache.Set(key, stored, cost)
	}
	c.cache.Wait()
}

// Clear drops every entry.
func (c *MemCache) Clear() { c.cache.Clear() }

func (c *MemCache) Close() error {
	c.cache.Close()
	return nil
}
