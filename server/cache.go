package server

import (
	"sync"
	"time"
)

// SimpleCache is an in-memory key→value cache with per-entry TTL. Expired
// entries are removed on first access past expiry; there is no background
// eviction because the key spaces using it (gauge, AI, tension results) are
// tiny and request-driven.
type SimpleCache struct {
	clock Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// NewSimpleCache returns an empty cache on the given clock.
func NewSimpleCache(clock Clock) *SimpleCache {
	if clock == nil {
		clock = SystemClock
	}
	return &SimpleCache{clock: clock, entries: make(map[string]cacheEntry)}
}

// Get returns the live value for key, if any.
func (c *SimpleCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key for ttlSeconds.
func (c *SimpleCache) Set(key string, value any, ttlSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: c.clock.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
}

// Len reports resident entry count (expired entries still count until
// touched).
func (c *SimpleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
