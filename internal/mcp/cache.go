package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/omegaflow/agentcore/internal/models"
)

// listCache is a read-through, TTL-bounded cache of one server's tool
// listing with in-flight request de-duplication, so N concurrent callers
// during a cache miss produce exactly one upstream tools/list call.
type listCache struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*listEntry

	hits, misses *counter
}

type listEntry struct {
	tools     []models.ToolDescriptor
	fetchedAt time.Time
	inflight  chan struct{} // closed once a fetch completes
	err       error
}

type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newListCache(ttl time.Duration, capacity int) *listCache {
	return &listCache{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*listEntry),
		hits:     &counter{},
		misses:   &counter{},
	}
}

// getOrFetch returns server's cached tool listing, refreshing it via fetch
// when absent or expired. Concurrent callers for the same server share one
// fetch.
func (c *listCache) getOrFetch(ctx context.Context, server string, fetch func(ctx context.Context) ([]models.ToolDescriptor, error)) ([]models.ToolDescriptor, error) {
	c.mu.Lock()
	entry, ok := c.entries[server]
	if ok && entry.inflight == nil && time.Since(entry.fetchedAt) < c.ttl {
		c.mu.Unlock()
		c.hits.inc()
		return entry.tools, nil
	}
	if ok && entry.inflight != nil {
		wait := entry.inflight
		c.mu.Unlock()
		<-wait
		c.mu.Lock()
		entry = c.entries[server]
		c.mu.Unlock()
		if entry.err != nil {
			return nil, entry.err
		}
		return entry.tools, nil
	}

	// We are the fetcher.
	inflight := make(chan struct{})
	c.entries[server] = &listEntry{inflight: inflight}
	c.evictIfOverCapacity()
	c.mu.Unlock()
	c.misses.inc()

	tools, err := fetch(ctx)

	c.mu.Lock()
	if err != nil {
		c.entries[server] = &listEntry{err: err, fetchedAt: time.Now()}
	} else {
		c.entries[server] = &listEntry{tools: tools, fetchedAt: time.Now()}
	}
	c.mu.Unlock()
	close(inflight)

	return tools, err
}

// evictIfOverCapacity drops the oldest entry when the cache has grown past
// its configured capacity. Caller holds c.mu.
func (c *listCache) evictIfOverCapacity() {
	if c.capacity <= 0 || len(c.entries) <= c.capacity {
		return
	}
	var oldestKey string
	var oldestAt time.Time
	first := true
	for k, v := range c.entries {
		if v.inflight != nil {
			continue
		}
		if first || v.fetchedAt.Before(oldestAt) {
			oldestKey, oldestAt, first = k, v.fetchedAt, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *listCache) stats() (hits, misses int64) {
	return c.hits.value(), c.misses.value()
}
