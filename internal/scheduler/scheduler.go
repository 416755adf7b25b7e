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
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/notifier"
)

// Outcome is the result of one tick.
type Outcome string

const (
	// OutcomeSent means a leaderboard was formatted and delivered.
	OutcomeSent Outcome = "sent"
	// OutcomeEmpty means the room had no leaderboard entries.
	OutcomeEmpty Outcome = "empty"
	// OutcomeBusy means a previous tick was still running.
	OutcomeBusy Outcome = "skipped_busy"
	// OutcomeInactive means the task's mirror context is gone.
	OutcomeInactive Outcome = "skipped_inactive"
	// OutcomeFailed means fetching or sending failed.
	OutcomeFailed Outcome = "failed"
	// OutcomeNoTasks means the rebuilt task list was empty.
	OutcomeNoTasks Outcome = "no_tasks"
)

// TaskSource lists the room tasks that are currently eligible.
type TaskSource interface {
	RoomTasks(ctx context.Context) ([]models.RoomTask, error)
}

// Fetcher requests a room's leaderboard through a mirror context.
type Fetcher interface {
	Request(ctx context.Context, viewID mirror.ViewID, roomID, sessionID string) (*models.Leaderboard, error)
}

// Activity reports whether a mirror context is live.
type Activity interface {
	IsInUse(id mirror.ViewID) bool
}

// Result describes one tick.
type Result struct {
	Outcome Outcome          `json:"outcome"`
	Task    *models.RoomTask `json:"task,omitempty"`
	Index   int              `json:"index"`
	Total   int              `json:"total"`
	Error   string           `json:"error,omitempty"`
}

// Snapshot is the scheduler's rotation state.
type Snapshot struct {
	Tasks  []models.RoomTask `json:"tasks"`
	Cursor int               `json:"cursor"`
	Busy   bool              `json:"busy"`
}

// Scheduler visits room tasks round-robin, one task per tick. Ticks never
// overlap: a tick that finds another in flight returns OutcomeBusy without
// touching the rotation.
type Scheduler struct {
	source   TaskSource
	fetcher  Fetcher
	activity Activity
	sender   notifier.Sender
	loc      *time.Location
	now      func() time.Time

	busy atomic.Bool

	mu     sync.Mutex
	tasks  []models.RoomTask
	cursor int
	// gen changes whenever the rotation is replaced, so a tick that raced
	// with Stop does not advance a cursor it no longer owns.
	gen uint64
}

// New creates a scheduler rendering timestamps in loc.
func New(source TaskSource, fetcher Fetcher, activity Activity, sender notifier.Sender, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		source:   source,
		fetcher:  fetcher,
		activity: activity,
		sender:   sender,
		loc:      loc,
		now:      time.Now,
	}
}

// Start seeds the rotation.
func (s *Scheduler) Start(ctx context.Context) {
	n := s.refresh(ctx)
	logging.Ctx(ctx).Info().Str("component", "scheduler").Int("tasks", n).Msg("Leaderboard scheduler started")
}

// Stop clears the rotation. A tick in flight finishes but does not advance.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.tasks = nil
	s.cursor = 0
	s.gen++
	s.mu.Unlock()
	metrics.SchedulerTasks.Set(0)
	logging.Info().Str("component", "scheduler").Msg("Leaderboard scheduler stopped")
}

// Snapshot returns a copy of the rotation state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Tasks:  append([]models.RoomTask(nil), s.tasks...),
		Cursor: s.cursor,
		Busy:   s.busy.Load(),
	}
}

// Tick processes the task at the cursor. Failures are logged and reported in
// the result; the cursor advances regardless.
func (s *Scheduler) Tick(ctx context.Context) Result {
	if !s.busy.CompareAndSwap(false, true) {
		logging.Ctx(ctx).Info().Str("component", "scheduler").Msg("Previous leaderboard tick still running, skipping")
		return s.finish(Result{Outcome: OutcomeBusy})
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	empty := len(s.tasks) == 0
	exhausted := s.cursor >= len(s.tasks)
	s.mu.Unlock()

	if empty || exhausted {
		if s.refresh(ctx) == 0 {
			return s.finish(Result{Outcome: OutcomeNoTasks})
		}
	}

	s.mu.Lock()
	if s.cursor >= len(s.tasks) {
		// Stop ran between the refresh and here.
		s.mu.Unlock()
		return s.finish(Result{Outcome: OutcomeNoTasks})
	}
	task := s.tasks[s.cursor]
	res := Result{Task: &task, Index: s.cursor, Total: len(s.tasks)}
	gen := s.gen
	s.mu.Unlock()

	res = s.execute(ctx, task, res)

	s.mu.Lock()
	if s.gen == gen {
		s.cursor++
	}
	s.mu.Unlock()
	return s.finish(res)
}

func (s *Scheduler) execute(ctx context.Context, task models.RoomTask, res Result) Result {
	log := logging.Ctx(ctx).With().
		Str("component", "scheduler").
		Str("session", task.SessionName).
		Str("room", task.RoomID).
		Int("index", res.Index+1).
		Int("total", res.Total).
		Logger()

	viewID := mirror.Key{Type: models.SessionContextType, Name: task.SessionName}.ViewID()
	if !s.activity.IsInUse(viewID) {
		log.Info().Msg("Session no longer monitored, skipping room")
		res.Outcome = OutcomeInactive
		return res
	}

	log.Debug().Msg("Fetching room leaderboard")
	lb, err := s.fetcher.Request(ctx, viewID, task.RoomID, task.SessionName)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch room leaderboard")
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}
	if lb.Empty() {
		log.Debug().Msg("Room leaderboard empty")
		res.Outcome = OutcomeEmpty
		return res
	}

	md := FormatLeaderboard(lb, task.RoomID, s.now(), s.loc)
	if err := s.sender.SendMarkdown(ctx, task.WebhookKey, md); err != nil {
		log.Error().Err(err).Msg("Failed to send room leaderboard")
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}
	log.Info().Msg("Room leaderboard sent")
	res.Outcome = OutcomeSent
	return res
}

// refresh replaces the rotation with a fresh task list and resets the
// cursor. It returns the number of tasks.
func (s *Scheduler) refresh(ctx context.Context) int {
	tasks, err := s.source.RoomTasks(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Str("component", "scheduler").Err(err).Msg("Failed to collect room tasks")
		tasks = nil
	}

	s.mu.Lock()
	s.tasks = tasks
	s.cursor = 0
	s.gen++
	s.mu.Unlock()

	metrics.SchedulerTasks.Set(float64(len(tasks)))
	logging.Ctx(ctx).Debug().Str("component", "scheduler").Int("tasks", len(tasks)).Msg("Room tasks refreshed")
	return len(tasks)
}

func (s *Scheduler) finish(res Result) Result {
	metrics.SchedulerTicks.WithLabelValues(string(res.Outcome)).Inc()
	return res
}
