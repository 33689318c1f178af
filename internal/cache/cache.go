// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package cache provides a thread-safe in-memory TTL cache.
//
// FleetMan uses it as the reactive query cache in front of the notification
// store: list and unread-count responses are cached per user, and the
// notification observer invalidates the affected keys when a live event
// arrives, so the next read sees fresh data.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// sweepInterval is how often the background sweeper drops expired entries
// that nobody read in the meantime.
const sweepInterval = 5 * time.Minute

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a TTL map with hit/miss accounting.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// New creates a cache whose entries live for ttl by default. A background
// sweeper runs for the cache lifetime.
//
//	c := cache.New(30 * time.Second)
//	c.Set(cache.UserListKey("u1"), page)
func New(ttl time.Duration) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
	go c.sweepLoop()
	return c
}

// UserListKey is the cache key for a user's notification list.
func UserListKey(userID string) string {
	return "notifications:user:" + userID
}

// UserUnreadKey is the cache key for a user's unread count.
func UserUnreadKey(userID string) string {
	return "notifications:unread:" + userID
}

// Get returns the live value for key. Expired entries are dropped on access
// and count as misses.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	switch {
	case !ok:
		c.misses.Add(1)
		return nil, false
	case time.Now().After(e.expiresAt):
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		c.misses.Add(1)
		c.evictions.Add(1)
		return nil, false
	default:
		c.hits.Add(1)
		return e.value, true
	}
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores value under key with an explicit TTL.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Delete drops one key. Missing keys are fine.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.evictions.Add(1)
}

// InvalidateUser drops the cached list and unread count for one user.
// Called for every live notification event.
func (c *Cache) InvalidateUser(userID string) {
	c.Delete(UserListKey(userID))
	c.Delete(UserUnreadKey(userID))
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	c.evictions.Add(int64(n))
}

// GetStats snapshots the counters.
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	keys := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		TotalKeys: int64(keys),
	}
}

// HitRate returns the hit percentage since startup, 0 when unused.
func (c *Cache) HitRate() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses) * 100
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.mu.Lock()
		for key, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, key)
				c.evictions.Add(1)
			}
		}
		c.mu.Unlock()
	}
}
