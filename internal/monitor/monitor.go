// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package monitor owns the process-wide components and wires them together.
//
// One Orchestrator exists per process. It builds the mirror pool, the message
// bus, the correlator, the dedup cache, the notification dispatcher and the
// leaderboard scheduler, and exposes the operations the ops API calls:
// starting and stopping monitoring, reconnecting a room and inspecting state.
// It is also the pool's Factory: every mirror context it creates hosts one
// session's room connections.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/roomwatch/internal/config"
	"github.com/tomtom215/roomwatch/internal/correlator"
	"github.com/tomtom215/roomwatch/internal/dedup"
	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/notifier"
	"github.com/tomtom215/roomwatch/internal/room"
	"github.com/tomtom215/roomwatch/internal/scheduler"
	"github.com/tomtom215/roomwatch/internal/store"
	"github.com/tomtom215/roomwatch/internal/supervisor"
)

var (
	// ErrSessionDisabled is reported for sessions that are not enabled.
	ErrSessionDisabled = errors.New("session disabled")

	// ErrUnboundWebhook is reported for sessions missing a webhook.
	ErrUnboundWebhook = errors.New("session webhook not bound")
)

// StartResult reports the outcome of StartMonitoring per session.
type StartResult struct {
	Started []mirror.ViewID   `json:"started"`
	Failed  map[string]string `json:"failed,omitempty"`
	notifier.Validation
}

// Broadcaster receives live events for the ops feed.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastJSON(string, interface{}) {}

// Live event types passed to the Broadcaster.
const (
	FeedRoomStatus = "room_status"
	FeedArrival    = "arrival"
)

// Orchestrator is the top-level owner of the monitoring components.
type Orchestrator struct {
	cfg       *config.Config
	sessions  *store.Sessions
	statusLog *store.StatusLog
	vendor    room.Vendor
	sender    notifier.Sender
	feed      Broadcaster

	bus        *mirror.Bus
	pool       *mirror.Pool
	correlator *correlator.Correlator
	dedup      *dedup.Cache
	queue      *room.ConnectQueue
	dispatcher *notifier.Dispatcher
	scheduler  *scheduler.Scheduler
	gate       *scheduler.Gate
	cleaner    *scheduler.Cleaner
}

// New builds every component. Nothing runs until the services returned by
// Services are added to a supervisor.
func New(cfg *config.Config, st *store.Store, v room.Vendor, sender notifier.Sender) (*Orchestrator, error) {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load scheduler timezone: %w", err)
	}

	o := &Orchestrator{
		cfg:        cfg,
		sessions:   st.Sessions(),
		statusLog:  st.StatusLog(),
		vendor:     v,
		sender:     sender,
		feed:       nopBroadcaster{},
		bus:        mirror.NewBus(),
		dedup:      dedup.New(cfg.Dedup.Window, dedup.WithSweepInterval(cfg.Dedup.SweepInterval)),
		queue:      room.NewConnectQueue(cfg.Room.ConnectConcurrency, cfg.Room.ConnectDelay),
		dispatcher: notifier.NewDispatcher(sender, cfg.Notifier.QueueSize, cfg.Notifier.Workers),
	}

	o.pool = mirror.NewPool(o, mirror.PoolOptions{
		StopTimeout: cfg.Supervisor.ShutdownTimeout,
		Spec: suture.Spec{
			EventHook:        supervisor.EventHook(logging.NewSlogLogger()),
			FailureThreshold: cfg.Supervisor.FailureThreshold,
			FailureDecay:     cfg.Supervisor.FailureDecay,
			FailureBackoff:   cfg.Supervisor.FailureBackoff,
			Timeout:          cfg.Supervisor.ShutdownTimeout,
		},
	})
	o.correlator = correlator.New(o.bus, o.pool, cfg.Correlator.Timeout)
	o.pool.OnDestroy(func(id mirror.ViewID) {
		if n := o.correlator.FailPending(id); n > 0 {
			logging.Info().Str("component", "monitor").Str("view_id", string(id)).Int("failed", n).
				Msg("Failed pending leaderboard requests for destroyed context")
		}
	})

	o.scheduler = scheduler.New(
		scheduler.NewSessionTasks(o.sessions, o.pool),
		o.correlator,
		o.pool,
		sender,
		loc,
	)
	o.gate = scheduler.NewGate(o.pool, o.scheduler, cfg.Scheduler.GateInterval, cfg.Scheduler.TickInterval)
	o.cleaner = scheduler.NewCleaner(o.statusLog, cfg.Scheduler.LogRetention, cfg.Scheduler.LogCleanupInterval)
	return o, nil
}

// Services returns the long-running components grouped by supervisor layer.
type Services struct {
	// Core services own in-memory state shared by every context.
	Core []suture.Service
	// Monitoring services run mirror contexts and the scheduler.
	Monitoring []suture.Service
}

// Services lists the components to supervise.
func (o *Orchestrator) Services() Services {
	return Services{
		Core:       []suture.Service{o.dedup, o.dispatcher, o.cleaner},
		Monitoring: []suture.Service{o.pool, o.correlator, o.gate},
	}
}

// SetBroadcaster installs the live event feed. Call it before the services
// start.
func (o *Orchestrator) SetBroadcaster(b Broadcaster) {
	if b == nil {
		b = nopBroadcaster{}
	}
	o.feed = b
}

// Pool returns the mirror pool.
func (o *Orchestrator) Pool() *mirror.Pool { return o.pool }

// Scheduler returns the leaderboard scheduler.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.scheduler }

// Gate returns the scheduler gate.
func (o *Orchestrator) Gate() *scheduler.Gate { return o.gate }

// Dispatcher returns the notification dispatcher.
func (o *Orchestrator) Dispatcher() *notifier.Dispatcher { return o.dispatcher }

// Dedup returns the arrival dedup cache.
func (o *Orchestrator) Dedup() *dedup.Cache { return o.dedup }

// Correlator returns the request correlator.
func (o *Orchestrator) Correlator() *correlator.Correlator { return o.correlator }

// StatusLog returns the room status log.
func (o *Orchestrator) StatusLog() *store.StatusLog { return o.statusLog }

// New implements mirror.Factory.
func (o *Orchestrator) New(spec mirror.Spec) (mirror.Context, error) {
	if spec.Key.Type != models.SessionContextType {
		return nil, fmt.Errorf("unsupported mirror context type %q", spec.Key.Type)
	}
	if _, err := o.sessions.GetByName(context.Background(), spec.Key.Name); err != nil {
		return nil, err
	}
	return newSessionContext(o, spec), nil
}

// SeedSessions saves the sessions listed in configuration into the store.
func (o *Orchestrator) SeedSessions(ctx context.Context) error {
	for _, seed := range o.cfg.Sessions {
		if err := o.sessions.Save(ctx, seed.Session()); err != nil {
			return fmt.Errorf("seed session %q: %w", seed.Name, err)
		}
		logging.Info().Str("component", "monitor").Str("session", seed.Name).Msg("Seeded session from configuration")
	}
	return nil
}

// StartMonitoring creates one mirror context per session reference (id or
// name). Sessions without both webhooks, disabled sessions and sessions whose
// context fails to start are reported in the result; the others start.
func (o *Orchestrator) StartMonitoring(ctx context.Context, refs []string) StartResult {
	log := logging.Ctx(ctx).With().Str("component", "monitor").Logger()

	res := StartResult{
		Started:    []mirror.ViewID{},
		Failed:     map[string]string{},
		Validation: notifier.ValidateSessions(ctx, o.sessions, refs),
	}
	if !res.Validation.OK() {
		log.Warn().
			Strs("unbound", res.UnboundSessions).
			Strs("unbound_leaderboard", res.UnboundLeaderboardSessions).
			Msg("Some sessions have no webhook bound")
	}

	for _, ref := range refs {
		if res.Validation.Unbound(ref) {
			res.Failed[ref] = ErrUnboundWebhook.Error()
			continue
		}
		s, err := notifier.ResolveSession(ctx, o.sessions, ref)
		if err != nil {
			res.Failed[ref] = err.Error()
			continue
		}
		if !s.Enabled {
			res.Failed[ref] = ErrSessionDisabled.Error()
			continue
		}

		id, err := o.pool.Create(ctx, s.Name, models.SessionContextType, o.cfg.Vendor.ChatURL)
		if err != nil {
			log.Error().Str("session", s.Name).Err(err).Msg("Failed to start monitoring session")
			res.Failed[ref] = err.Error()
			continue
		}
		res.Started = append(res.Started, id)
	}

	log.Info().Int("started", len(res.Started)).Int("failed", len(res.Failed)).Msg("Start monitoring finished")
	return res
}

// StopMonitoring tears down the given contexts, or all of them.
func (o *Orchestrator) StopMonitoring(ids ...mirror.ViewID) map[mirror.ViewID]error {
	return o.pool.StopAll(ids...)
}

// Reconnect asks a live context to reset and re-join a room.
func (o *Orchestrator) Reconnect(id mirror.ViewID, cmd models.ReconnectCommand) error {
	if !o.pool.IsInUse(id) {
		return fmt.Errorf("%w: %s", mirror.ErrNotFound, id)
	}
	if cmd.RoomID == "" {
		return errors.New("reconnect requires a room id")
	}
	return o.bus.SendReconnect(id, cmd)
}

// TickOnce runs one scheduler tick immediately.
func (o *Orchestrator) TickOnce(ctx context.Context) scheduler.Result {
	return o.scheduler.Tick(ctx)
}

// Close releases the message bus. Call it after the supervisor has stopped.
func (o *Orchestrator) Close() error {
	return o.bus.Close()
}

// handleEvent records connection changes in the status log and forwards
// member arrivals to the session's webhook. It never blocks on delivery.
func (o *Orchestrator) handleEvent(ctx context.Context, s *models.Session, ev room.Event) {
	log := logging.With().
		Str("component", "monitor").
		Str("session", s.Name).
		Str("room", ev.Key.RoomID).
		Logger()

	switch ev.Kind {
	case room.EventConnected, room.EventDisconnected:
		msg := ""
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		if err := o.statusLog.Upsert(ctx, s.Name, ev.Key.RoomID, string(ev.Status), msg); err != nil {
			log.Warn().Err(err).Msg("Failed to record room status")
		}
		now := time.Now()
		o.feed.BroadcastJSON(FeedRoomStatus, models.RoomStatusRecord{
			SessionName: s.Name,
			RoomID:      ev.Key.RoomID,
			Status:      string(ev.Status),
			Message:     msg,
			CreatedAt:   now,
			UpdatedAt:   now,
		})

	case room.EventMemberArrived:
		if ev.Arrival == nil {
			return
		}
		o.feed.BroadcastJSON(FeedArrival, ev.Arrival)
		key, err := notifier.ExtractKey(s.WebhookURL)
		if err != nil {
			log.Warn().Err(err).Msg("Session webhook unusable, dropping arrival")
			return
		}
		err = o.dispatcher.Enqueue(notifier.Notification{
			Key:     key,
			MsgType: notifier.MsgTypeText,
			Content: FormatArrival(ev.Arrival),
			Source:  s.Name,
		})
		if err != nil {
			log.Warn().Err(err).Str("member", ev.Arrival.MemberID).Msg("Arrival notification dropped")
		}
	}
}

// FormatArrival renders a member arrival as webhook text.
func FormatArrival(a *models.MemberArrival) string {
	text := "房间 " + a.RoomID + " 有新用户进入\nID: " + a.MemberID
	if a.Nickname != "" {
		text += "\n昵称: " + a.Nickname
	}
	return text
}

// Health summarizes the orchestrator for the ops API.
type Health struct {
	Mirrors          int                      `json:"mirrors"`
	SchedulerRunning bool                     `json:"scheduler_running"`
	PendingRequests  int                      `json:"pending_requests"`
	DedupEntries     int                      `json:"dedup_entries"`
	Notifier         notifier.DispatcherStats `json:"notifier"`
}

// Health reports current component state.
func (o *Orchestrator) Health() Health {
	return Health{
		Mirrors:          o.pool.Status().Count,
		SchedulerRunning: o.gate.Active(),
		PendingRequests:  o.correlator.Pending(),
		DedupEntries:     o.dedup.Len(),
		Notifier:         o.dispatcher.Stats(),
	}
}

// MirrorStatus returns the pool status.
func (o *Orchestrator) MirrorStatus() mirror.Status {
	return o.pool.Status()
}

// IsInUse reports whether a mirror context is live.
func (o *Orchestrator) IsInUse(id mirror.ViewID) bool {
	return o.pool.IsInUse(id)
}

// RestartScheduler stops the scheduler and lets the gate start it again
// if any context is live.
func (o *Orchestrator) RestartScheduler() {
	o.gate.Restart()
}

// RoomStatuses lists the status log, for one session or all when session
// is empty.
func (o *Orchestrator) RoomStatuses(ctx context.Context, session string) ([]models.RoomStatusRecord, error) {
	return o.statusLog.List(ctx, session)
}

// Notify sends content to the normal webhook of the session with the given
// id or name.
func (o *Orchestrator) Notify(ctx context.Context, ref, msgType, content string) error {
	return notifier.SendBySession(ctx, o.sessions, o.sender, ref, msgType, content)
}
