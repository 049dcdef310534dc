package narrate

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slipstreamco/slipcast/internal/events"
)

const (
	DefaultCacheTTL = 30 * time.Second
	DefaultCacheMax = 100
)

// CacheKey builds a canonical, order-independent key from a batch's semantic
// fields and the narration style. Keys are deliberately not match-scoped: the
// same situation in two matches should reuse the same line.
func CacheKey(batch []events.Event, style Style) string {
	keys := make([]string, 0, len(batch))
	for _, ev := range batch {
		keys = append(keys, ev.Key())
	}
	sort.Strings(keys)
	return strings.Join(keys, ";") + "|" + string(style)
}

type cacheEntry struct {
	text      string
	createdAt time.Time
}

// Cache holds generated lines with a TTL and a bounded size, evicting the
// oldest entry first. All mutation happens under one lock.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	ttl     time.Duration
	max     int
	now     func() time.Time
}

func NewCache(ttl time.Duration, max int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if max <= 0 {
		max = DefaultCacheMax
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		max:     max,
		now:     time.Now,
	}
}

func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.createdAt) > c.ttl {
		c.remove(key)
		return "", false
	}
	return entry.text, true
}

func (c *Cache) Put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.remove(key)
	}
	c.entries[key] = cacheEntry{text: text, createdAt: c.now()}
	c.order = append(c.order, key)

	for len(c.entries) > c.max {
		c.remove(c.order[0])
	}
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for key, entry := range c.entries {
		if entry.createdAt.Before(cutoff) {
			c.remove(key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove must be called with the lock held.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
