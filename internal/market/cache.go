package market

import (
	"sort"
	"sync"
	"time"
)

// Cache keeps the latest featured snapshot of each market for a TTL.
type Cache struct {
	mu      sync.RWMutex
	markets map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	market    *Market
	fetchedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		markets: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *Cache) Get(symbol string) (*Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.markets[symbol]
	if !ok || time.Since(entry.fetchedAt) > c.ttl {
		return nil, false
	}
	return entry.market, true
}

// SetAll replaces the cached snapshot of every given market.
func (c *Cache) SetAll(markets []*Market) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for _, m := range markets {
		c.markets[m.Symbol] = cacheEntry{
			market:    m,
			fetchedAt: now,
		}
	}
}

// Symbols returns the symbols of all non-expired entries, sorted.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	result := make([]string, 0, len(c.markets))
	for symbol, entry := range c.markets {
		if now.Sub(entry.fetchedAt) <= c.ttl {
			result = append(result, symbol)
		}
	}
	sort.Strings(result)
	return result
}
