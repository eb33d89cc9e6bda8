package decoder

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

// programCache holds compiled decoder programs keyed by catalog id. Entries
// expire after a freshness window and are evicted opportunistically once the
// cache grows past its bound. Correctness never depends on a cache hit: a
// miss just recompiles.
type programCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*cacheEntry
}

type cacheEntry struct {
	program  *goja.Program
	revision int
	expires  time.Time
}

func newProgramCache(ttl time.Duration, maxEntries int) *programCache {
	return &programCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

// get returns a cached compilation when the revision matches and the entry is
// fresh, compiling and caching otherwise. A revision bump on the catalog
// entry therefore invalidates stale programs immediately.
func (c *programCache) get(catalogID string, revision int, script string) (*goja.Program, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[catalogID]; ok && e.revision == revision && now.Before(e.expires) {
		program := e.program
		c.mu.Unlock()
		return program, nil
	}
	c.mu.Unlock()

	program, err := goja.Compile("decoder.js", script, true)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[catalogID] = &cacheEntry{
		program:  program,
		revision: revision,
		expires:  now.Add(c.ttl),
	}
	if len(c.entries) > c.maxEntries {
		c.evictLocked(now)
	}
	c.mu.Unlock()

	return program, nil
}

// evictLocked drops expired entries first, then the oldest remaining entries
// until the cache is back under its bound.
func (c *programCache) evictLocked(now time.Time) {
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}

	for len(c.entries) > c.maxEntries {
		var oldestID string
		var oldest time.Time
		for id, e := range c.entries {
			if oldestID == "" || e.expires.Before(oldest) {
				oldestID = id
				oldest = e.expires
			}
		}
		delete(c.entries, oldestID)
	}
}
