// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package room

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/roomwatch/internal/config"
	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/vendor"
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("room manager closed")

// ErrUnknownRoom is returned for rooms the Manager has never joined.
var ErrUnknownRoom = errors.New("room not joined")

// Vendor joins rooms and fetches leaderboards. *vendor.Gateway implements it.
type Vendor interface {
	Join(ctx context.Context, p vendor.JoinParams) (vendor.Stream, error)
	Leaderboard(ctx context.Context, authorization, roomID string) (*models.Leaderboard, error)
}

// Deduper suppresses repeated member identities. *dedup.Cache implements it.
type Deduper interface {
	ShouldForward(userID string) bool
}

// Credentials identify the session a Manager joins rooms as.
type Credentials struct {
	SessionName   string
	Account       string
	Authorization string
}

// Options tune reconnect behaviour.
type Options struct {
	MaxReconnect        int
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
	EventBuffer         int
}

// OptionsFromConfig maps room configuration onto Options.
func OptionsFromConfig(cfg config.RoomConfig) Options {
	return Options{
		MaxReconnect:        cfg.MaxReconnect,
		ReconnectBackoff:    cfg.ReconnectBackoff,
		MaxReconnectBackoff: cfg.MaxReconnectBackoff,
		EventBuffer:         cfg.EventBuffer,
	}
}

// connection is the reusable state for one Key. A repeated Join restarts the
// same object instead of allocating a second one.
type connection struct {
	key Key

	// opMu serializes restart/stop of this connection.
	opMu sync.Mutex

	mu             sync.Mutex
	status         Status
	reconnectCount int
	lastErr        string
	updatedAt      time.Time
	cancel         context.CancelFunc
	done           chan struct{}
}

func (c *connection) snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Key:            c.key,
		Status:         c.status,
		ReconnectCount: c.reconnectCount,
		LastError:      c.lastErr,
		UpdatedAt:      c.updatedAt,
	}
}

func (c *connection) setStatus(s Status, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != s {
		if c.status != "" {
			metrics.RoomConnections.WithLabelValues(string(c.status)).Dec()
		}
		metrics.RoomConnections.WithLabelValues(string(s)).Inc()
	}
	c.status = s
	c.updatedAt = time.Now()
	if err != nil {
		c.lastErr = err.Error()
	} else if s == StatusConnected {
		c.lastErr = ""
	}
}

// stopRun cancels the running loop, if any, and waits for it. Caller holds opMu.
func (c *connection) stopRun() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Manager owns the room connections of one session. It joins through a
// shared ConnectQueue, reconnects with exponential backoff, filters member
// arrivals and gates them through the Deduper before emitting them.
type Manager struct {
	creds  Credentials
	vendor Vendor
	dedup  Deduper
	queue  *ConnectQueue
	opts   Options
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu     sync.Mutex
	conns  map[Key]*connection
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager. Events must be drained by the caller.
func NewManager(creds Credentials, v Vendor, d Deduper, q *ConnectQueue, opts Options) *Manager {
	if opts.EventBuffer < 1 {
		opts.EventBuffer = 1
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = time.Second
	}
	if opts.MaxReconnectBackoff < opts.ReconnectBackoff {
		opts.MaxReconnectBackoff = opts.ReconnectBackoff
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		creds:  creds,
		vendor: v,
		dedup:  d,
		queue:  q,
		opts:   opts,
		log:    logging.With().Str("component", "room").Str("session", creds.SessionName).Logger(),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, opts.EventBuffer),
		conns:  make(map[Key]*connection),
	}
}

// Events returns the event stream. It is closed by Close.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Join starts (or restarts) the connection for roomID. Restarting resets
// the reconnect counter.
func (m *Manager) Join(roomID string) error {
	key := Key{RoomID: roomID, SessionID: m.creds.SessionName}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	c, ok := m.conns[key]
	if !ok {
		c = &connection{key: key}
		m.conns[key] = c
	}
	m.mu.Unlock()

	return m.start(c)
}

// Leave stops the connection for roomID and forgets it.
func (m *Manager) Leave(roomID string) error {
	key := Key{RoomID: roomID, SessionID: m.creds.SessionName}

	m.mu.Lock()
	c, ok := m.conns[key]
	if ok {
		delete(m.conns, key)
	}
	m.mu.Unlock()
	if !ok {
		return ErrUnknownRoom
	}

	c.opMu.Lock()
	c.stopRun()
	c.opMu.Unlock()

	c.mu.Lock()
	if c.status != "" {
		metrics.RoomConnections.WithLabelValues(string(c.status)).Dec()
	}
	c.mu.Unlock()
	return nil
}

// State returns the state of one room.
func (m *Manager) State(roomID string) (State, bool) {
	m.mu.Lock()
	c, ok := m.conns[Key{RoomID: roomID, SessionID: m.creds.SessionName}]
	m.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return c.snapshot(), true
}

// States returns every tracked room, ordered by room id.
func (m *Manager) States() []State {
	m.mu.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	states := make([]State, 0, len(conns))
	for _, c := range conns {
		states = append(states, c.snapshot())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Key.RoomID < states[j].Key.RoomID })
	return states
}

// FetchLeaderboard fetches roomID's leaderboard with the session's
// credentials. The room does not need to be joined.
func (m *Manager) FetchLeaderboard(ctx context.Context, roomID string) (*models.Leaderboard, error) {
	return m.vendor.Leaderboard(ctx, m.creds.Authorization, roomID)
}

// Close stops every connection, waits for them and closes Events.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	for _, c := range conns {
		c.mu.Lock()
		if c.status != "" {
			metrics.RoomConnections.WithLabelValues(string(c.status)).Dec()
			c.status = ""
		}
		c.mu.Unlock()
	}
	close(m.events)
}

func (m *Manager) start(c *connection) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.stopRun()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(m.ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel, c.done = cancel, done
	c.reconnectCount = 0
	c.mu.Unlock()
	c.setStatus(StatusConnecting, nil)

	go func() {
		defer m.wg.Done()
		defer close(done)
		m.run(ctx, c)
	}()
	return nil
}

// run drives one connection until it is stopped, abandoned or refused as a
// duplicate join.
func (m *Manager) run(ctx context.Context, c *connection) {
	log := m.log.With().Str("room", c.key.RoomID).Logger()
	params := vendor.JoinParams{
		RoomID:        c.key.RoomID,
		Account:       m.creds.Account,
		Authorization: m.creds.Authorization,
	}

	for {
		c.setStatus(StatusConnecting, nil)

		var stream vendor.Stream
		err := m.queue.Do(ctx, func(ctx context.Context) error {
			s, err := m.vendor.Join(ctx, params)
			stream = s
			return err
		})
		if ctx.Err() != nil {
			if stream != nil {
				_ = stream.Close()
			}
			return
		}

		if err == nil {
			c.mu.Lock()
			c.reconnectCount = 0
			c.mu.Unlock()
			c.setStatus(StatusConnected, nil)
			log.Info().Msg("Room connected")
			m.emit(ctx, Event{Kind: EventConnected, Key: c.key, Status: StatusConnected})

			err = m.consume(ctx, c.key, stream)
			_ = stream.Close()
			if ctx.Err() != nil {
				return
			}
		}

		if !m.handleDisconnect(ctx, c, err, log) {
			return
		}
	}
}

// handleDisconnect applies the reconnect policy. It returns true when a
// retry should be attempted now.
func (m *Manager) handleDisconnect(ctx context.Context, c *connection, err error, log zerolog.Logger) bool {
	cause := vendor.CauseOf(err)

	if cause == vendor.CauseDuplicateJoin {
		c.setStatus(StatusDisconnected, err)
		log.Info().Err(err).Msg("Room already joined by this account elsewhere, not reconnecting")
		m.emit(ctx, Event{Kind: EventDisconnected, Key: c.key, Status: StatusDisconnected, Cause: cause, Err: err})
		return false
	}

	c.mu.Lock()
	count := c.reconnectCount
	exhausted := count >= m.opts.MaxReconnect
	if !exhausted {
		c.reconnectCount++
		count = c.reconnectCount
	}
	c.mu.Unlock()

	if exhausted {
		c.setStatus(StatusAbandoned, err)
		metrics.RoomsAbandoned.WithLabelValues(m.creds.SessionName).Inc()
		log.Error().Err(err).Int("reconnect_count", count).Msg("Room reconnect budget exhausted, abandoning")
		m.emit(ctx, Event{Kind: EventDisconnected, Key: c.key, Status: StatusAbandoned, Cause: cause, Err: err, ReconnectCount: count})
		return false
	}

	c.setStatus(StatusConnecting, err)
	metrics.RoomReconnects.WithLabelValues(m.creds.SessionName).Inc()
	delay := m.backoff(count)
	log.Warn().Err(err).Str("cause", string(cause)).Int("reconnect_count", count).Dur("delay", delay).
		Msg("Room disconnected, reconnecting")
	m.emit(ctx, Event{Kind: EventDisconnected, Key: c.key, Status: StatusConnecting, Cause: cause, Err: err, ReconnectCount: count})

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// backoff returns the wait before retry n (1-based): base, 2*base, ... capped.
func (m *Manager) backoff(n int) time.Duration {
	d := m.opts.ReconnectBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= m.opts.MaxReconnectBackoff {
			return m.opts.MaxReconnectBackoff
		}
	}
	return d
}

func (m *Manager) consume(ctx context.Context, key Key, stream vendor.Stream) error {
	selfID := models.StripAccountPrefix(m.creds.Account)
	for {
		msgs, err := stream.Next(ctx)
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			m.handleMessage(ctx, key, msg, selfID)
		}
	}
}

func (m *Manager) handleMessage(ctx context.Context, key Key, msg vendor.Message, selfID string) {
	a, outcome := parseArrival(msg, selfID)
	switch outcome {
	case ArrivalAccepted:
	case ArrivalNotArrival:
		return
	default:
		metrics.MemberArrivals.WithLabelValues("filtered").Inc()
		m.log.Debug().Str("room", key.RoomID).Str("reason", outcome).Msg("Member arrival filtered")
		return
	}

	if !m.dedup.ShouldForward(a.memberID) {
		metrics.MemberArrivals.WithLabelValues("duplicate").Inc()
		return
	}
	metrics.MemberArrivals.WithLabelValues("forwarded").Inc()

	m.emit(ctx, Event{
		Kind: EventMemberArrived,
		Key:  key,
		Arrival: &models.MemberArrival{
			SessionName: m.creds.SessionName,
			RoomID:      key.RoomID,
			MemberID:    a.memberID,
			Nickname:    a.nickname,
			Attrs:       a.attrs,
			At:          time.Now(),
		},
	})
}

// emit delivers ev unless ctx ends first.
func (m *Manager) emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}
