package pager

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maskdotdev/sombra-sub004/internal/metrics"
)

// frame is one cached page buffer plus its pin count and last-committed
// LSN, matching spec §4.4's "reference-counted page buffer" cache
// entry.
type frame struct {
	id     PageID
	buf    []byte
	dirty  bool
	lsn    LSN
	pinned int
}

// cache is an LRU-ordered page cache with pin-count-aware eviction: the
// underlying hashicorp/golang-lru structure tracks recency for us, but
// pinned pages must never be evicted (spec §4.4), a policy the stock
// LRU has no notion of. We therefore size the underlying structure
// generously and evict manually, walking from least-recent, skipping
// pinned entries, exactly as tinySQL's hand-rolled PageBufferPool does
// (see DESIGN.md).
type cache struct {
	mu       sync.Mutex
	maxPages int
	lru      *lru.Cache[PageID, *frame]
	metrics  *metrics.Registry
}

func newCache(maxPages int, m *metrics.Registry) *cache {
	if maxPages <= 0 {
		maxPages = 1024
	}
	// Give the underlying structure slack so its own auto-eviction
	// never fires before our pin-aware eviction gets a chance to run.
	l, _ := lru.New[PageID, *frame](maxPages*2 + 16)
	return &cache{maxPages: maxPages, lru: l, metrics: m}
}

// get returns the cached frame for id, marking it most-recently-used.
func (c *cache) get(id PageID) (*frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.lru.Get(id)
	if ok {
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
	} else if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
	return f, ok
}

// put inserts f, evicting least-recently-used unpinned frames first if
// at capacity.
func (c *cache) put(f *frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.lru.Peek(f.id); !exists {
		for c.lru.Len() >= c.maxPages {
			if !c.evictOneLocked() {
				break // all pages pinned — cannot evict, grow past capacity
			}
		}
	}
	c.lru.Add(f.id, f)
}

func (c *cache) evictOneLocked() bool {
	keys := c.lru.Keys() // oldest first
	for _, k := range keys {
		f, ok := c.lru.Peek(k)
		if !ok || f.pinned > 0 {
			continue
		}
		c.lru.Remove(k)
		if c.metrics != nil {
			c.metrics.CacheEvictions.Inc()
		}
		return true
	}
	return false
}

func (c *cache) remove(id PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}

func (c *cache) pin(id PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.lru.Peek(id); ok {
		f.pinned++
	}
}

func (c *cache) unpin(id PageID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.lru.Peek(id); ok && f.pinned > 0 {
		f.pinned--
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
