// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package cache

import (
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	c := New(time.Minute)

	c.Set("key", "value")
	got, ok := c.Get("key")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.(string) != "value" {
		t.Errorf("Get = %v, want value", got)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestExpiration(t *testing.T) {
	c := New(time.Minute)

	c.SetWithTTL("short", 1, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Error("expired entry should miss")
	}

	stats := c.GetStats()
	if stats.Evictions == 0 {
		t.Error("expired access should count as eviction")
	}
}

func TestInvalidateUser(t *testing.T) {
	c := New(time.Minute)

	c.Set(UserListKey("u1"), []string{"a"})
	c.Set(UserUnreadKey("u1"), 3)
	c.Set(UserListKey("u2"), []string{"b"})

	c.InvalidateUser("u1")

	if _, ok := c.Get(UserListKey("u1")); ok {
		t.Error("u1 list should be invalidated")
	}
	if _, ok := c.Get(UserUnreadKey("u1")); ok {
		t.Error("u1 unread count should be invalidated")
	}
	if _, ok := c.Get(UserListKey("u2")); !ok {
		t.Error("u2 entries must survive u1 invalidation")
	}
}

func TestClearAndStats(t *testing.T) {
	c := New(time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Get("nope")

	c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("Clear should drop all entries")
	}

	stats := c.GetStats()
	if stats.TotalKeys != 0 {
		t.Errorf("TotalKeys = %d, want 0", stats.TotalKeys)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if c.HitRate() <= 0 {
		t.Error("hit rate should be positive after a hit")
	}
}
