// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package correlator matches leaderboard requests sent into mirror contexts
// with the replies that come back on the shared response topic.
//
// Every request is resolved exactly once: by its first matching response,
// by timeout, by context cancellation or by the target context being
// destroyed. Whichever path removes the pending entry from the map owns the
// resolution; the others find nothing and return.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/metrics"
	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
)

var (
	// ErrNoContext is returned immediately when the target view has no live
	// mirror context. No pending entry or timer is created.
	ErrNoContext = errors.New("no live mirror context")

	// ErrTimeout is returned when no response arrives in time.
	ErrTimeout = errors.New("mirror request timed out")

	// ErrContextDestroyed is returned for requests whose mirror context was
	// torn down while they were pending.
	ErrContextDestroyed = errors.New("mirror context destroyed")
)

// RemoteError is a failure reported by the mirror context itself.
type RemoteError struct {
	RequestID string
	Message   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mirror request %s failed: %s", e.RequestID, e.Message)
}

// Transport is the part of the mirror bus the correlator needs.
type Transport interface {
	SendRequest(id mirror.ViewID, req models.LeaderboardRequest) error
	Responses(ctx context.Context) (<-chan models.LeaderboardResponse, error)
}

// Registry reports whether a mirror context is live.
type Registry interface {
	IsInUse(id mirror.ViewID) bool
}

type result struct {
	data *models.Leaderboard
	err  error
}

type pending struct {
	viewID mirror.ViewID
	start  time.Time
	ch     chan result
}

// Correlator owns the pending-request map.
type Correlator struct {
	transport Transport
	registry  Registry
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates a Correlator with the given request timeout.
func New(transport Transport, registry Registry, timeout time.Duration) *Correlator {
	return &Correlator{
		transport: transport,
		registry:  registry,
		timeout:   timeout,
		pending:   make(map[string]*pending),
	}
}

// NewRequestID returns room_session_unixnano_random.
func NewRequestID(roomID, sessionID string) string {
	return roomID + "_" + sessionID + "_" + strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + uuid.NewString()[:8]
}

// Request asks viewID's context for roomID's leaderboard and waits for the
// reply.
func (c *Correlator) Request(ctx context.Context, viewID mirror.ViewID, roomID, sessionID string) (*models.Leaderboard, error) {
	if !c.registry.IsInUse(viewID) {
		metrics.CorrelatorRequests.WithLabelValues("no_context").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNoContext, viewID)
	}

	requestID := NewRequestID(roomID, sessionID)
	p := &pending{viewID: viewID, start: time.Now(), ch: make(chan result, 1)}

	c.mu.Lock()
	c.pending[requestID] = p
	n := len(c.pending)
	c.mu.Unlock()
	metrics.CorrelatorPending.Set(float64(n))

	log := logging.Ctx(ctx).With().Str("request_id", requestID).Str("view_id", string(viewID)).Logger()

	err := c.transport.SendRequest(viewID, models.LeaderboardRequest{
		RequestID: requestID,
		RoomID:    roomID,
		SessionID: sessionID,
	})
	if err != nil {
		if c.take(requestID) != nil {
			c.record("send_error", p)
			return nil, fmt.Errorf("send request to %s: %w", viewID, err)
		}
		// Lost the race to a concurrent resolution; use its result.
		r := <-p.ch
		return r.data, r.err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-p.ch:
		return r.data, r.err
	case <-timer.C:
		if c.take(requestID) != nil {
			c.record("timeout", p)
			log.Warn().Dur("timeout", c.timeout).Msg("Mirror request timed out")
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
	case <-ctx.Done():
		if c.take(requestID) != nil {
			c.record("cancelled", p)
			return nil, ctx.Err()
		}
	}
	// Another path removed the entry first and has delivered (or is about
	// to deliver) the result.
	r := <-p.ch
	return r.data, r.err
}

// Resolve delivers resp to its pending request. Responses with unknown or
// already-resolved request ids are ignored; it reports whether resp was
// consumed.
func (c *Correlator) Resolve(resp models.LeaderboardResponse) bool {
	p := c.take(resp.RequestID)
	if p == nil {
		logging.Debug().Str("component", "correlator").Str("request_id", resp.RequestID).
			Msg("Ignoring late or unknown mirror response")
		return false
	}

	if resp.Success {
		c.record("success", p)
		p.ch <- result{data: resp.Data}
		return true
	}
	c.record("remote_error", p)
	p.ch <- result{err: &RemoteError{RequestID: resp.RequestID, Message: resp.Error}}
	return true
}

// FailPending fails every pending request aimed at viewID. The pool calls
// it when the context is destroyed.
func (c *Correlator) FailPending(viewID mirror.ViewID) int {
	c.mu.Lock()
	var failed []*pending
	for id, p := range c.pending {
		if p.viewID == viewID {
			failed = append(failed, p)
			delete(c.pending, id)
		}
	}
	n := len(c.pending)
	c.mu.Unlock()
	metrics.CorrelatorPending.Set(float64(n))

	for _, p := range failed {
		c.record("destroyed", p)
		p.ch <- result{err: fmt.Errorf("%w: %s", ErrContextDestroyed, viewID)}
	}
	return len(failed)
}

// Pending returns the number of unresolved requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Serve consumes the shared response topic until ctx is cancelled.
func (c *Correlator) Serve(ctx context.Context) error {
	responses, err := c.transport.Responses(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-responses:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("mirror response subscription closed")
			}
			c.Resolve(resp)
		}
	}
}

func (c *Correlator) String() string {
	return "correlator"
}

// take removes and returns the pending entry, or nil if another path
// already took it.
func (c *Correlator) take(requestID string) *pending {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	n := len(c.pending)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	metrics.CorrelatorPending.Set(float64(n))
	return p
}

func (c *Correlator) record(outcome string, p *pending) {
	metrics.RecordCorrelatorResult(outcome, time.Since(p.start))
}
