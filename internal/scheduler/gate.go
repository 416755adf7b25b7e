// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
	"github.com/tomtom215/roomwatch/internal/mirror"
)

// Occupancy reports the mirror pool status.
type Occupancy interface {
	Status() mirror.Status
}

// Gate starts the scheduler while the pool has live contexts and stops it
// when the pool empties. Its only state is whether the scheduler is started.
// Gate implements suture.Service.
type Gate struct {
	pool      Occupancy
	scheduler *Scheduler
	interval  time.Duration
	tick      time.Duration

	active  atomic.Bool
	restart chan struct{}
}

// NewGate polls pool every interval and ticks the scheduler every tick while
// active.
func NewGate(pool Occupancy, s *Scheduler, interval, tick time.Duration) *Gate {
	return &Gate{
		pool:      pool,
		scheduler: s,
		interval:  interval,
		tick:      tick,
		restart:   make(chan struct{}, 1),
	}
}

// Active reports whether the scheduler is started.
func (g *Gate) Active() bool {
	return g.active.Load()
}

// Restart stops the scheduler and re-evaluates occupancy immediately.
func (g *Gate) Restart() {
	select {
	case g.restart <- struct{}{}:
	default:
	}
}

func (g *Gate) String() string {
	return "leaderboard-gate"
}

// Serve runs until ctx is cancelled. Ticks run on their own goroutine so a
// slow leaderboard fetch never delays the occupancy check; overlapping
// ticks are turned away by the scheduler.
func (g *Gate) Serve(ctx context.Context) error {
	log := logging.WithComponent("scheduler")
	log.Info().Dur("interval", g.interval).Dur("tick", g.tick).Msg("Leaderboard gate started")

	var (
		wg     sync.WaitGroup
		ticker *time.Ticker
		tickC  <-chan time.Time
	)
	deactivate := func() {
		if !g.active.Load() {
			return
		}
		ticker.Stop()
		ticker, tickC = nil, nil
		g.scheduler.Stop()
		g.active.Store(false)
		metrics.SetSchedulerRunning(false)
	}
	check := func() {
		running := g.pool.Status().Count > 0
		switch {
		case running && !g.active.Load():
			log.Info().Msg("Monitoring active, starting leaderboard scheduler")
			g.scheduler.Start(logging.ContextWithNewCorrelationID(ctx))
			ticker = time.NewTicker(g.tick)
			tickC = ticker.C
			g.active.Store(true)
			metrics.SetSchedulerRunning(true)
		case !running && g.active.Load():
			log.Info().Msg("No active monitoring, stopping leaderboard scheduler")
			deactivate()
		}
	}
	defer func() {
		deactivate()
		wg.Wait()
		log.Info().Msg("Leaderboard gate stopped")
	}()

	poll := time.NewTicker(g.interval)
	defer poll.Stop()

	check()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
			check()
		case <-g.restart:
			log.Info().Msg("Restarting leaderboard scheduler")
			deactivate()
			check()
		case <-tickC:
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.scheduler.Tick(logging.ContextWithNewCorrelationID(ctx))
			}()
		}
	}
}
