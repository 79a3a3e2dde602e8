package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// cacheEntry is a built payload together with the time it was built.
type cacheEntry struct {
	payload   *Payload
	updatedAt time.Time
}

// payloadCache is a thread-safe in-memory payload cache, keyed by client
// ID. A background goroutine (Run) periodically evicts entries older than
// the TTL so departed clients do not pin memory.
type payloadCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

func newPayloadCache(ttl time.Duration) *payloadCache {
	return &payloadCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// get returns a cached payload still within the TTL.
func (c *payloadCache) get(clientID string) (*Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.data[clientID]
	if !ok || !e.updatedAt.After(c.now().Add(-c.ttl)) {
		return nil, false
	}
	return e.payload, true
}

func (c *payloadCache) put(clientID string, p *Payload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[clientID] = &cacheEntry{payload: p, updatedAt: c.now()}
}

func (c *payloadCache) invalidate(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, clientID)
}

// evict removes entries older than now minus TTL, returning the count.
func (c *payloadCache) evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.ttl)
	removed := 0
	for id, e := range c.data {
		if !e.updatedAt.After(cutoff) {
			delete(c.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (c *payloadCache) Run(ctx context.Context) {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.evict(now); n > 0 {
				slog.Debug("dashboard: evicted stale payloads", "count", n)
			}
		}
	}
}
