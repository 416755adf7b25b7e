// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package dedup suppresses repeated member identities within a rolling
// window. It is an at-most-once-per-window filter held in process memory.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
)

// Stats reports cache activity.
type Stats struct {
	Forwarded  int64     `json:"forwarded"`
	Suppressed int64     `json:"suppressed"`
	Swept      int64     `json:"swept"`
	Entries    int       `json:"entries"`
	LastSweep  time.Time `json:"last_sweep"`
}

// Cache maps identity to the time it was last forwarded.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	window  time.Duration
	sweep   time.Duration
	now     func() time.Time
	stats   Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithSweepInterval sets how often Serve purges expired entries.
// The default is the window length.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweep = d
		}
	}
}

// New creates a cache with the given window. Serve starts the sweeper.
func New(window time.Duration, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]time.Time),
		window:  window,
		sweep:   window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats.LastSweep = c.now()
	return c
}

// ShouldForward reports whether userID has not been forwarded within the
// window. A true result records userID, so an immediate second call
// returns false.
func (c *Cache) ShouldForward(userID string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if insertedAt, ok := c.entries[userID]; ok && now.Sub(insertedAt) < c.window {
		c.stats.Suppressed++
		return false
	}

	c.entries[userID] = now
	c.stats.Forwarded++
	metrics.DedupEntries.Set(float64(len(c.entries)))
	return true
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, insertedAt := range c.entries {
		if now.Sub(insertedAt) >= c.window {
			delete(c.entries, id)
			removed++
		}
	}
	c.stats.Swept += int64(removed)
	c.stats.LastSweep = now
	metrics.DedupEntries.Set(float64(len(c.entries)))
	return removed
}

// Len returns the number of tracked identities, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetStats returns a snapshot of cache statistics.
func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// Serve sweeps on the configured interval until ctx is cancelled.
// It implements suture.Service.
func (c *Cache) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logging.Debug().Int("removed", n).Msg("Dedup sweep")
			}
		}
	}
}

func (c *Cache) String() string {
	return "dedup-sweeper"
}
