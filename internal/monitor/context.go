// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/room"
)

// errChannelClosed ends a context whose bus subscription went away; the pool
// supervisor restarts it.
var errChannelClosed = errors.New("mirror channel closed")

// sessionContext is one mirror context. It owns a room.Manager for its
// session and talks to the rest of the process only through the bus and
// the orchestrator's event handler.
type sessionContext struct {
	o     *Orchestrator
	spec  mirror.Spec
	id    mirror.ViewID
	ready chan struct{}
	once  sync.Once
}

func newSessionContext(o *Orchestrator, spec mirror.Spec) *sessionContext {
	return &sessionContext{o: o, spec: spec, id: spec.Key.ViewID(), ready: make(chan struct{})}
}

// Ready implements mirror.Context.
func (c *sessionContext) Ready() <-chan struct{} {
	return c.ready
}

func (c *sessionContext) String() string {
	return "mirror:" + string(c.id)
}

// Serve implements suture.Service. It subscribes to the context's topics,
// loads the session, signals readiness and then joins the session's rooms.
func (c *sessionContext) Serve(ctx context.Context) error {
	log := logging.With().Str("component", "mirror").Str("view_id", string(c.id)).Logger()

	requests, err := c.o.bus.Requests(ctx, c.id)
	if err != nil {
		return fmt.Errorf("subscribe requests: %w", err)
	}
	reconnects, err := c.o.bus.Reconnects(ctx, c.id)
	if err != nil {
		return fmt.Errorf("subscribe reconnects: %w", err)
	}

	session, err := c.o.sessions.GetByName(ctx, c.spec.Key.Name)
	if err != nil {
		// A missing session will not appear by restarting.
		return fmt.Errorf("load session %q: %w: %w", c.spec.Key.Name, err, suture.ErrDoNotRestart)
	}

	mgr := room.NewManager(
		room.Credentials{
			SessionName:   session.Name,
			Account:       session.Data.Account,
			Authorization: session.Data.Token,
		},
		c.o.vendor,
		c.o.dedup,
		c.o.queue,
		room.OptionsFromConfig(c.o.cfg.Room),
	)
	defer mgr.Close()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	c.once.Do(func() { close(c.ready) })
	log.Info().Str("url", c.spec.URL).Int("rooms", len(session.Data.Rooms)).Msg("Mirror context ready")

	joinTimer := time.NewTimer(c.o.cfg.Room.InitialJoinDelay)
	defer joinTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Mirror context stopping")
			return ctx.Err()

		case <-joinTimer.C:
			for _, roomID := range session.RoomIDs() {
				if err := mgr.Join(roomID); err != nil {
					log.Warn().Str("room", roomID).Err(err).Msg("Failed to join room")
				}
			}

		case req, ok := <-requests:
			if !ok {
				return c.closed(ctx, "requests")
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				c.answer(ctx, mgr, req, log)
			}()

		case cmd, ok := <-reconnects:
			if !ok {
				return c.closed(ctx, "reconnects")
			}
			log.Info().Str("room", cmd.RoomID).Str("chatroom", cmd.ChatroomName).Msg("Reconnect requested")
			if err := mgr.Join(cmd.RoomID); err != nil {
				log.Warn().Str("room", cmd.RoomID).Err(err).Msg("Reconnect failed")
			}

		case ev, ok := <-mgr.Events():
			if !ok {
				return c.closed(ctx, "events")
			}
			c.o.handleEvent(ctx, session, ev)
		}
	}
}

// answer fetches a leaderboard and publishes the tagged response.
func (c *sessionContext) answer(ctx context.Context, mgr *room.Manager, req models.LeaderboardRequest, log zerolog.Logger) {
	resp := models.LeaderboardResponse{RequestID: req.RequestID}
	lb, err := mgr.FetchLeaderboard(ctx, req.RoomID)
	if err != nil {
		log.Warn().Str("room", req.RoomID).Str("request_id", req.RequestID).Err(err).Msg("Leaderboard fetch failed")
		resp.Error = err.Error()
	} else {
		resp.Success = true
		resp.Data = lb
	}
	if ctx.Err() != nil {
		return
	}
	if err := c.o.bus.SendResponse(c.id, resp); err != nil {
		log.Error().Str("request_id", req.RequestID).Err(err).Msg("Failed to publish leaderboard response")
	}
}

func (c *sessionContext) closed(ctx context.Context, what string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s: %w", what, errChannelClosed)
}
