// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package correlator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
)

type staticRegistry map[mirror.ViewID]bool

func (r staticRegistry) IsInUse(id mirror.ViewID) bool { return r[id] }

// startCorrelator serves c on bus until the test ends.
func startCorrelator(t *testing.T, c *Correlator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Serve subscribes asynchronously; wait until it is listening.
	time.Sleep(10 * time.Millisecond)
}

// respondingContext answers every request on id with fn's result.
func respondingContext(t *testing.T, bus *mirror.Bus, id mirror.ViewID, fn func(models.LeaderboardRequest) models.LeaderboardResponse) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reqs, err := bus.Requests(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for req := range reqs {
			_ = bus.SendResponse(id, fn(req))
		}
	}()
}

func newBus(t *testing.T) *mirror.Bus {
	t.Helper()
	bus := mirror.NewBus()
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRequestRoundTrip(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	c := New(bus, staticRegistry{"session_alpha": true}, time.Second)
	startCorrelator(t, c)

	respondingContext(t, bus, "session_alpha", func(req models.LeaderboardRequest) models.LeaderboardResponse {
		return models.LeaderboardResponse{
			RequestID: req.RequestID,
			Success:   true,
			Data:      &models.Leaderboard{TopByWealth: []models.RankItem{{UID: req.RoomID}}},
		}
	})

	lb, err := c.Request(context.Background(), "session_alpha", "42", "alpha")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if lb == nil || lb.TopByWealth[0].UID != "42" {
		t.Fatalf("Request() = %+v", lb)
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", c.Pending())
	}
}

func TestRequestRemoteError(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	c := New(bus, staticRegistry{"session_alpha": true}, time.Second)
	startCorrelator(t, c)

	respondingContext(t, bus, "session_alpha", func(req models.LeaderboardRequest) models.LeaderboardResponse {
		return models.LeaderboardResponse{RequestID: req.RequestID, Error: "vendor down"}
	})

	_, err := c.Request(context.Background(), "session_alpha", "42", "alpha")
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "vendor down" {
		t.Fatalf("Request() error = %v, want RemoteError", err)
	}
}

func TestRequestTimeoutWithSilentContext(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	c := New(bus, staticRegistry{"session_silent": true}, 50*time.Millisecond)
	startCorrelator(t, c)

	start := time.Now()
	_, err := c.Request(context.Background(), "session_silent", "42", "silent")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("timed out after %v, before the configured timeout", elapsed)
	}
	if c.Pending() != 0 {
		t.Fatal("timed-out request must be deregistered")
	}
}

func TestRequestNoContext(t *testing.T) {
	t.Parallel()

	c := New(newBus(t), staticRegistry{}, time.Hour)

	start := time.Now()
	_, err := c.Request(context.Background(), "session_gone", "1", "gone")
	if !errors.Is(err, ErrNoContext) {
		t.Fatalf("Request() error = %v, want ErrNoContext", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("missing context must fail immediately")
	}
	if c.Pending() != 0 {
		t.Fatal("no pending entry may be registered")
	}
}

func TestLateResponseIgnored(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	c := New(bus, staticRegistry{"session_slow": true}, 30*time.Millisecond)

	var (
		mu   sync.Mutex
		seen []string
	)
	respondingContext(t, bus, "session_slow", func(req models.LeaderboardRequest) models.LeaderboardResponse {
		mu.Lock()
		seen = append(seen, req.RequestID)
		mu.Unlock()
		return models.LeaderboardResponse{RequestID: req.RequestID, Success: true}
	})
	// No Serve: responses pile up and are resolved by hand after the timeout.

	if _, err := c.Request(context.Background(), "session_slow", "1", "slow"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request() error = %v, want ErrTimeout", err)
	}

	var ids []string
	deadline := time.Now().Add(time.Second)
	for len(ids) == 0 && time.Now().Before(deadline) {
		mu.Lock()
		ids = append([]string(nil), seen...)
		mu.Unlock()
		time.Sleep(time.Millisecond)
	}
	if len(ids) != 1 {
		t.Fatalf("context saw %d requests", len(ids))
	}
	if c.Resolve(models.LeaderboardResponse{RequestID: ids[0], Success: true}) {
		t.Fatal("late response must not be consumed")
	}
}

func TestExactlyOnceUnderRace(t *testing.T) {
	t.Parallel()

	// Responses race with a timeout of the same order; every request must
	// come back with exactly one outcome.
	bus := newBus(t)
	c := New(bus, staticRegistry{"session_race": true}, 5*time.Millisecond)
	startCorrelator(t, c)

	respondingContext(t, bus, "session_race", func(req models.LeaderboardRequest) models.LeaderboardResponse {
		time.Sleep(4 * time.Millisecond)
		return models.LeaderboardResponse{RequestID: req.RequestID, Success: true, Data: &models.Leaderboard{}}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lb, err := c.Request(context.Background(), "session_race", "1", "race")
			if err == nil && lb == nil {
				t.Error("success without data")
			}
			if err != nil && !errors.Is(err, ErrTimeout) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d after all requests returned", c.Pending())
	}
}

func TestFailPending(t *testing.T) {
	t.Parallel()

	bus := newBus(t)
	c := New(bus, staticRegistry{"session_doomed": true}, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "session_doomed", "1", "doomed")
		errCh <- err
	}()

	deadline := time.Now().Add(time.Second)
	for c.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never registered")
		}
		time.Sleep(time.Millisecond)
	}

	if n := c.FailPending("session_doomed"); n != 1 {
		t.Fatalf("FailPending() = %d, want 1", n)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrContextDestroyed) {
			t.Fatalf("Request() error = %v, want ErrContextDestroyed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("request not failed")
	}
}

func TestRequestCancelled(t *testing.T) {
	t.Parallel()

	c := New(newBus(t), staticRegistry{"session_x": true}, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := c.Request(ctx, "session_x", "1", "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Request() error = %v", err)
	}
	if c.Pending() != 0 {
		t.Fatal("cancelled request must be deregistered")
	}
}

func TestNewRequestIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID("42", "alpha")
		if !strings.HasPrefix(id, "42_alpha_") {
			t.Fatalf("request id %q missing room/session prefix", id)
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
