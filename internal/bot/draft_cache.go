package bot

import (
	"container/list"
	"sync"
	"time"

	"ainewsletter/internal/newsletter"
)

const (
	draftCacheMaxEntries = 1024
	draftCacheTTL        = 24 * time.Hour
)

// draftCache keeps generated drafts until they are saved or expire. The
// least recently used draft is evicted when the cache is full.
type draftCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type draftCacheEntry struct {
	key       string
	draft     *newsletter.Draft
	expiresAt time.Time
}

func newDraftCache(maxEntries int) *draftCache {
	if maxEntries <= 0 {
		return nil
	}

	return &draftCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *draftCache) get(key string, now time.Time) (*newsletter.Draft, bool) {
	if c == nil || key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	entry := elem.Value.(*draftCacheEntry) //nolint:forcetypeassert // Only entries are stored.
	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return nil, false
	}

	c.order.MoveToFront(elem)

	return entry.draft, true
}

func (c *draftCache) set(
	key string,
	draft *newsletter.Draft,
	expiresAt time.Time,
	now time.Time,
) {
	if c == nil || key == "" || draft == nil || !expiresAt.After(now) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*draftCacheEntry) //nolint:forcetypeassert // Only entries are stored.
		entry.draft = draft
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&draftCacheEntry{
		key:       key,
		draft:     draft,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *draftCache) delete(key string) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

func (c *draftCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()

		entry := elem.Value.(*draftCacheEntry) //nolint:forcetypeassert // Only entries are stored.
		if now.After(entry.expiresAt) {
			c.removeElement(elem)
		}

		elem = prev
	}
}

func (c *draftCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *draftCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*draftCacheEntry) //nolint:forcetypeassert // Only entries are stored.

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
