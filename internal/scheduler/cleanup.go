// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package scheduler

import (
	"context"
	"time"

	"github.com/tomtom215/roomwatch/internal/logging"
)

// Pruner deletes status records last updated before cutoff.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Cleaner prunes the room status log once at start and then every interval.
type Cleaner struct {
	pruner    Pruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewCleaner keeps records for retention.
func NewCleaner(p Pruner, retention, interval time.Duration) *Cleaner {
	return &Cleaner{pruner: p, retention: retention, interval: interval, now: time.Now}
}

// RunOnce deletes expired records and returns how many were removed.
func (c *Cleaner) RunOnce(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.retention)
	n, err := c.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logging.Error().Str("component", "status-cleanup").Err(err).Msg("Failed to prune room status log")
		return 0, err
	}
	if n > 0 {
		logging.Info().Str("component", "status-cleanup").Int("deleted", n).Time("cutoff", cutoff).
			Msg("Pruned room status log")
	}
	return n, nil
}

// Serve implements suture.Service.
func (c *Cleaner) Serve(ctx context.Context) error {
	_, _ = c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = c.RunOnce(ctx)
		}
	}
}

func (c *Cleaner) String() string {
	return "status-cleanup"
}
