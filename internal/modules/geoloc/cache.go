// README: Bounded FIFO location cache with durable write-through persistence.
package geoloc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

const (
	cacheKey     = "geoloc:cache"
	lastKnownKey = "geoloc:lastknown"

	// DefaultCacheMax bounds the ring when the caller passes 0.
	DefaultCacheMax = 50
	// DefaultCacheMaxAge prunes stale entries at load time.
	DefaultCacheMaxAge = 7 * 24 * time.Hour
)

// Cache keeps the most recent position entries, oldest first. Appends evict
// the oldest entry when full. All mutation happens under one mutex so a
// writer never observes a ring above its bound mid-operation.
//
// Persistence is write-through and best-effort: a failing KV degrades the
// cache to memory-only (logged once) instead of failing the caller.
type Cache struct {
	kv     KV
	max    int
	maxAge time.Duration

	mu        sync.Mutex
	entries   []Entry
	lastKnown *Sample
	kvWarned  bool
}

func NewCache(kv KV, max int, maxAge time.Duration) *Cache {
	if max <= 0 {
		max = DefaultCacheMax
	}
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Cache{kv: kv, max: max, maxAge: maxAge}
}

type persistedCache struct {
	Entries []Entry `json:"entries"`
}

// Load restores persisted entries, dropping anything older than maxAge, and
// restores the last-known sample. A missing or unreadable blob starts empty.
func (c *Cache) Load(ctx context.Context) error {
	if c.kv == nil {
		return nil
	}
	raw, err := c.kv.Get(ctx, cacheKey)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		// first run
	case err != nil:
		c.warnKV(err)
	default:
		var blob persistedCache
		if jerr := json.Unmarshal([]byte(raw), &blob); jerr != nil {
			log.Printf("geoloc: discarding corrupt cache blob: %v", jerr)
		} else {
			cutoff := time.Now().Add(-c.maxAge)
			kept := make([]Entry, 0, len(blob.Entries))
			for _, e := range blob.Entries {
				if e.InsertedAt.After(cutoff) {
					kept = append(kept, e)
				}
			}
			if len(kept) > c.max {
				kept = kept[len(kept)-c.max:]
			}
			c.mu.Lock()
			c.entries = kept
			c.mu.Unlock()
		}
	}

	if raw, err := c.kv.Get(ctx, lastKnownKey); err == nil {
		var s Sample
		if jerr := json.Unmarshal([]byte(raw), &s); jerr == nil {
			c.mu.Lock()
			c.lastKnown = &s
			c.mu.Unlock()
		}
	}
	return nil
}

// Add appends a sample with its source tag, evicting the oldest entry when
// the ring is full, and persists the new state. Live readings also become
// the last-known position used for degraded acquisition.
func (c *Cache) Add(ctx context.Context, s Sample, src Source) {
	c.mu.Lock()
	c.entries = append(c.entries, Entry{Sample: s, Source: src, InsertedAt: time.Now()})
	if len(c.entries) > c.max {
		c.entries = c.entries[1:]
	}
	if src == SourceLiveGPS {
		cp := s
		c.lastKnown = &cp
	}
	snapshot := persistedCache{Entries: append([]Entry(nil), c.entries...)}
	last := c.lastKnown
	c.mu.Unlock()

	c.persist(ctx, snapshot, src == SourceLiveGPS, last)
}

func (c *Cache) persist(ctx context.Context, blob persistedCache, saveLast bool, last *Sample) {
	if c.kv == nil {
		return
	}
	b, err := json.Marshal(blob)
	if err != nil {
		return
	}
	if err := c.kv.Put(ctx, cacheKey, string(b)); err != nil {
		c.warnKV(err)
		return
	}
	if saveLast && last != nil {
		if lb, err := json.Marshal(last); err == nil {
			if err := c.kv.Put(ctx, lastKnownKey, string(lb)); err != nil {
				c.warnKV(err)
			}
		}
	}
}

func (c *Cache) warnKV(err error) {
	c.mu.Lock()
	warned := c.kvWarned
	c.kvWarned = true
	c.mu.Unlock()
	if !warned {
		log.Printf("geoloc: cache persistence degraded to memory-only: %v", err)
	}
}

// Entries returns a copy of the ring, oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.entries...)
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// LastKnown returns the most recent live sample, if any was ever recorded.
func (c *Cache) LastKnown() (Sample, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastKnown == nil {
		return Sample{}, false
	}
	return *c.lastKnown, true
}

// Best returns the cached entry maximising the accuracy/recency score, or
// false when the cache is empty.
func (c *Cache) Best(now time.Time) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	best := c.entries[0]
	bestScore := entryScore(best, now)
	for _, e := range c.entries[1:] {
		if s := entryScore(e, now); s > bestScore {
			best, bestScore = e, s
		}
	}
	return best, true
}
