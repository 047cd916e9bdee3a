package proxy

import (
	"sync"
	"time"

	"retarget/linkfix"
)

type cacheEntry struct {
	page    *renderedPage
	created time.Time
}

// pageCache keeps rewritten pages for a short while so repeated requests do
// not refetch upstream.
type pageCache struct {
	mu   sync.RWMutex
	now  func() time.Time
	ttl  time.Duration
	data map[string]cacheEntry
}

func newPageCache(now func() time.Time, ttl time.Duration) *pageCache {
	if now == nil {
		now = time.Now
	}
	return &pageCache{
		now:  now,
		ttl:  ttl,
		data: make(map[string]cacheEntry),
	}
}

func cacheKey(target string, site linkfix.Site, mode Mode) string {
	return target + "|" + string(site) + "|" + string(mode)
}

// Store keeps successful pages only. A non-positive ttl disables the cache.
func (c *pageCache) Store(key string, page *renderedPage) {
	if c.ttl <= 0 || page == nil || len(page.Body) == 0 {
		return
	}
	if page.Status != 0 && page.Status != 200 {
		return
	}
	cp := *page
	cp.Body = append([]byte(nil), page.Body...)
	now := c.now()
	c.mu.Lock()
	c.data[key] = cacheEntry{page: &cp, created: now}
	c.pruneLocked(now)
	c.mu.Unlock()
}

func (c *pageCache) Get(key string) (*renderedPage, bool) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.created) >= c.ttl {
		c.mu.Lock()
		if cur, ok := c.data[key]; ok && cur.created.Equal(entry.created) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.page, true
}

func (c *pageCache) pruneLocked(now time.Time) {
	for k, e := range c.data {
		if now.Sub(e.created) >= c.ttl {
			delete(c.data, k)
		}
	}
}
