// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/roomwatch/internal/config"
	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/scheduler"
	"github.com/tomtom215/roomwatch/internal/store"
	"github.com/tomtom215/roomwatch/internal/vendor"
)

// idleStream delivers one batch and then blocks until canceled.
type idleStream struct {
	mu    sync.Mutex
	batch []vendor.Message
}

func (s *idleStream) Next(ctx context.Context) ([]vendor.Message, error) {
	s.mu.Lock()
	b := s.batch
	s.batch = nil
	s.mu.Unlock()
	if b != nil {
		return b, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *idleStream) Close() error { return nil }

type fakeVendor struct {
	mu    sync.Mutex
	joins []string
}

func (v *fakeVendor) Join(_ context.Context, p vendor.JoinParams) (vendor.Stream, error) {
	v.mu.Lock()
	v.joins = append(v.joins, p.RoomID)
	v.mu.Unlock()
	return &idleStream{batch: []vendor.Message{{
		Type:       vendor.MsgTypeNotification,
		FromCustom: `{}`,
		Attach:     vendor.Attach{Type: vendor.AttachUpdateMemberInfo, From: "wp_3001", FromNick: "visitor"},
	}}}, nil
}

func (v *fakeVendor) Leaderboard(_ context.Context, _, roomID string) (*models.Leaderboard, error) {
	return &models.Leaderboard{
		TopByActivity: []models.RankItem{{UID: "9" + roomID, Nickname: "top"}},
	}, nil
}

func (v *fakeVendor) joinCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.joins)
}

type sent struct {
	kind    string
	key     string
	content string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingSender) SendText(_ context.Context, key, content string) error {
	r.mu.Lock()
	r.sent = append(r.sent, sent{"text", key, content})
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) SendMarkdown(_ context.Context, key, content string) error {
	r.mu.Lock()
	r.sent = append(r.sent, sent{"markdown", key, content})
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) find(kind string) (sent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sent {
		if s.kind == kind {
			return s, true
		}
	}
	return sent{}, false
}

func testConfig() *config.Config {
	return &config.Config{
		Dedup: config.DedupConfig{Window: time.Minute},
		Room: config.RoomConfig{
			MaxReconnect:        2,
			ConnectConcurrency:  1,
			InitialJoinDelay:    time.Millisecond,
			ReconnectBackoff:    time.Millisecond,
			MaxReconnectBackoff: 4 * time.Millisecond,
			EventBuffer:         32,
		},
		Correlator: config.CorrelatorConfig{Timeout: 2 * time.Second},
		Scheduler: config.SchedulerConfig{
			TickInterval:       time.Hour,
			GateInterval:       20 * time.Millisecond,
			Timezone:           "UTC",
			LogRetention:       time.Hour,
			LogCleanupInterval: time.Hour,
		},
		Notifier: config.NotifierConfig{QueueSize: 16, Workers: 1},
		Vendor:   config.VendorConfig{ChatURL: "wss://chat.example.test"},
		Supervisor: config.SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  2 * time.Second,
		},
	}
}

type harness struct {
	o      *Orchestrator
	vendor *fakeVendor
	sender *recordingSender
	store  *store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	for _, s := range []*models.Session{
		{
			ID: "s1", Name: "alpha", Enabled: true,
			Data:                  models.SessionData{Rooms: []int64{11}, Account: "wp_1001", Token: "tok"},
			WebhookURL:            "https://hook.example/send?key=ka",
			LeaderboardWebhookURL: "https://hook.example/send?key=kb",
		},
		{
			ID: "s2", Name: "beta", Enabled: true,
			Data:       models.SessionData{Rooms: []int64{22}},
			WebhookURL: "https://hook.example/send?key=kc",
		},
		{
			ID: "s3", Name: "gamma", Enabled: false,
			Data:                  models.SessionData{Rooms: []int64{33}},
			WebhookURL:            "https://hook.example/send?key=kd",
			LeaderboardWebhookURL: "https://hook.example/send?key=ke",
		},
	} {
		if err := st.Sessions().Save(ctx, s); err != nil {
			t.Fatalf("Save(%s): %v", s.Name, err)
		}
	}

	h := &harness{vendor: &fakeVendor{}, sender: &recordingSender{}, store: st}
	h.o, err = New(testConfig(), st, h.vendor, h.sender)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	svcs := h.o.Services()
	for _, svc := range append(svcs.Core, svcs.Monitoring...) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Serve(runCtx)
		}()
	}
	t.Cleanup(func() {
		h.o.StopMonitoring()
		cancel()
		wg.Wait()
		_ = h.o.Close()
	})
	return h
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartMonitoringReportsUnboundAndDisabled(t *testing.T) {
	h := newHarness(t)

	res := h.o.StartMonitoring(context.Background(), []string{"alpha", "beta", "s3", "nobody"})

	if len(res.Started) != 1 || res.Started[0] != "session_alpha" {
		t.Fatalf("Started = %v, want [session_alpha]", res.Started)
	}
	if res.Failed["beta"] != ErrUnboundWebhook.Error() {
		t.Errorf("beta failure = %q", res.Failed["beta"])
	}
	if res.Failed["s3"] != ErrSessionDisabled.Error() {
		t.Errorf("gamma failure = %q", res.Failed["s3"])
	}
	if _, ok := res.Failed["nobody"]; !ok {
		t.Error("unknown session should be reported as failed")
	}
	if got := strings.Join(res.UnboundLeaderboardSessions, ","); got != "beta,nobody" {
		t.Errorf("UnboundLeaderboardSessions = %q", got)
	}
	if st := h.o.Pool().Status(); st.Count != 1 {
		t.Errorf("pool count = %d, want 1", st.Count)
	}
}

func TestArrivalIsForwardedToSessionWebhook(t *testing.T) {
	h := newHarness(t)
	h.o.StartMonitoring(context.Background(), []string{"alpha"})

	var msg sent
	eventually(t, "arrival notification", func() bool {
		var ok bool
		msg, ok = h.sender.find("text")
		return ok
	})
	if msg.key != "ka" {
		t.Errorf("arrival sent to key %q, want ka", msg.key)
	}
	want := "房间 11 有新用户进入\nID: 3001\n昵称: visitor"
	if msg.content != want {
		t.Errorf("arrival content = %q, want %q", msg.content, want)
	}

	eventually(t, "connected status record", func() bool {
		recs, err := h.o.StatusLog().List(context.Background(), "alpha")
		return err == nil && len(recs) == 1 && recs[0].Status == "connected"
	})
}

func TestTickOnceDeliversLeaderboard(t *testing.T) {
	h := newHarness(t)
	h.o.StartMonitoring(context.Background(), []string{"alpha"})

	res := h.o.TickOnce(context.Background())
	if res.Outcome != scheduler.OutcomeSent {
		t.Fatalf("TickOnce outcome = %s (err %v), want sent", res.Outcome, res.Error)
	}
	msg, ok := h.sender.find("markdown")
	if !ok {
		t.Fatal("no leaderboard delivered")
	}
	if msg.key != "kb" {
		t.Errorf("leaderboard sent to key %q, want kb", msg.key)
	}
	if !strings.Contains(msg.content, "房间 11") || !strings.Contains(msg.content, "911 - top") {
		t.Errorf("unexpected leaderboard content %q", msg.content)
	}
}

func TestReconnect(t *testing.T) {
	h := newHarness(t)

	err := h.o.Reconnect("session_alpha", models.ReconnectCommand{RoomID: "11"})
	if !errors.Is(err, mirror.ErrNotFound) {
		t.Fatalf("Reconnect on missing context = %v, want ErrNotFound", err)
	}

	h.o.StartMonitoring(context.Background(), []string{"alpha"})
	eventually(t, "initial join", func() bool { return h.vendor.joinCount() >= 1 })

	if err := h.o.Reconnect("session_alpha", models.ReconnectCommand{}); err == nil {
		t.Error("Reconnect without room id should fail")
	}
	if err := h.o.Reconnect("session_alpha", models.ReconnectCommand{RoomID: "12"}); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	eventually(t, "reconnect join", func() bool { return h.vendor.joinCount() >= 2 })
}

func TestStopMonitoringDeactivatesGate(t *testing.T) {
	h := newHarness(t)
	h.o.StartMonitoring(context.Background(), []string{"alpha"})
	eventually(t, "gate activation", h.o.Gate().Active)

	errs := h.o.StopMonitoring("session_alpha")
	if err := errs["session_alpha"]; err != nil {
		t.Fatalf("StopMonitoring: %v", err)
	}
	if h.o.Pool().IsInUse("session_alpha") {
		t.Error("context still in use after stop")
	}
	eventually(t, "gate deactivation", func() bool { return !h.o.Gate().Active() })
}

func TestFactoryRejectsUnknownTypeAndSession(t *testing.T) {
	h := newHarness(t)

	if _, err := h.o.New(mirror.Spec{Key: mirror.Key{Type: "other", Name: "alpha"}}); err == nil {
		t.Error("expected error for unsupported context type")
	}
	_, err := h.o.New(mirror.Spec{Key: mirror.Key{Type: models.SessionContextType, Name: "nobody"}})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing session, got %v", err)
	}
}

func TestSeedSessions(t *testing.T) {
	h := newHarness(t)
	h.o.cfg.Sessions = []config.SessionSeed{{ID: "s9", Name: "seeded", Rooms: []int64{5}}}

	if err := h.o.SeedSessions(context.Background()); err != nil {
		t.Fatalf("SeedSessions: %v", err)
	}
	s, err := h.store.Sessions().GetByName(context.Background(), "seeded")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if len(s.Data.Rooms) != 1 || s.Data.Rooms[0] != 5 {
		t.Errorf("seeded rooms = %v", s.Data.Rooms)
	}
}

func TestFormatArrival(t *testing.T) {
	t.Parallel()

	a := &models.MemberArrival{RoomID: "7", MemberID: "42"}
	if got := FormatArrival(a); got != "房间 7 有新用户进入\nID: 42" {
		t.Errorf("FormatArrival() = %q", got)
	}
}

type recordingFeed struct {
	mu    sync.Mutex
	types []string
}

func (f *recordingFeed) BroadcastJSON(messageType string, _ interface{}) {
	f.mu.Lock()
	f.types = append(f.types, messageType)
	f.mu.Unlock()
}

func (f *recordingFeed) has(messageType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.types {
		if t == messageType {
			return true
		}
	}
	return false
}

func TestLiveFeedReceivesStatusAndArrival(t *testing.T) {
	h := newHarness(t)
	feed := &recordingFeed{}
	h.o.SetBroadcaster(feed)

	h.o.StartMonitoring(context.Background(), []string{"alpha"})

	eventually(t, "room status on feed", func() bool { return feed.has(FeedRoomStatus) })
	eventually(t, "arrival on feed", func() bool { return feed.has(FeedArrival) })
}
