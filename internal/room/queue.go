// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package room

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/roomwatch/internal/metrics"
)

// ConnectQueue serializes vendor joins across the whole process so a burst
// of rooms does not storm the vendor. Each slot holder waits Delay before
// running its attempt.
type ConnectQueue struct {
	sem   *semaphore.Weighted
	delay time.Duration
}

// NewConnectQueue creates a queue that runs at most concurrency attempts at
// once, each preceded by delay.
func NewConnectQueue(concurrency int, delay time.Duration) *ConnectQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ConnectQueue{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		delay: delay,
	}
}

// Do waits for a slot, sleeps the configured delay and runs fn. It returns
// ctx.Err() if ctx ends before fn starts.
func (q *ConnectQueue) Do(ctx context.Context, fn func(context.Context) error) error {
	metrics.ConnectQueueDepth.Inc()
	err := q.sem.Acquire(ctx, 1)
	metrics.ConnectQueueDepth.Dec()
	if err != nil {
		return err
	}
	defer q.sem.Release(1)

	if q.delay > 0 {
		timer := time.NewTimer(q.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fn(ctx)
}
