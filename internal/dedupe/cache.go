// Package dedupe remembers recently ingested batches so that redelivered or
// unchanged batches are not ingested twice.
package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/DeafMist/news-credibility-rag/internal/models"
)

type entry struct {
	key string
	ts  time.Time
}

// Cache keeps a bounded set of recently seen keys.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// IsSeen reports whether any of keys was recorded inside the ttl window.
func (c *Cache) IsSeen(keys ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if ts, ok := c.items[key]; ok && now.Sub(ts) <= c.ttl {
			return true
		}
	}
	return false
}

// MarkSeen records keys. Empty keys are ignored.
func (c *Cache) MarkSeen(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, key := range keys {
		if key == "" {
			continue
		}
		c.items[key] = now
		c.order = append(c.order, entry{key: key, ts: now})
	}
	c.compact(now)
}

// Len returns the number of remembered keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.key]; ok && ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}

// Fingerprint identifies the content of a batch independent of its ID and
// of document order. Empty batches have no fingerprint.
func Fingerprint(batch models.Batch) string {
	if len(batch.Documents) == 0 {
		return ""
	}
	parts := make([]string, len(batch.Documents))
	for i, d := range batch.Documents {
		parts[i] = d.URL + "\x00" + d.Title + "\x00" + d.Content
	}
	sort.Strings(parts)

	h := sha1.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{'\n'})
	}
	return "content:" + hex.EncodeToString(h.Sum(nil))
}
