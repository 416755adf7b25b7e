// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/monitor"
	"github.com/tomtom215/roomwatch/internal/notifier"
	"github.com/tomtom215/roomwatch/internal/scheduler"
	"github.com/tomtom215/roomwatch/internal/store"
)

// fakeMonitor records calls and serves canned answers.
type fakeMonitor struct {
	mu         sync.Mutex
	live       map[mirror.ViewID]bool
	started    []string
	reconnects []models.ReconnectCommand
	restarts   int
	notified   []string
	records    []models.RoomStatusRecord
}

func newFakeMonitor(live ...mirror.ViewID) *fakeMonitor {
	m := &fakeMonitor{live: map[mirror.ViewID]bool{}}
	for _, id := range live {
		m.live[id] = true
	}
	return m
}

func (m *fakeMonitor) Health() monitor.Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return monitor.Health{Mirrors: len(m.live), SchedulerRunning: len(m.live) > 0}
}

func (m *fakeMonitor) MirrorStatus() mirror.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]mirror.ViewID, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	return mirror.Status{Running: len(ids) > 0, Count: len(ids), IDs: ids}
}

func (m *fakeMonitor) IsInUse(id mirror.ViewID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[id]
}

func (m *fakeMonitor) StartMonitoring(_ context.Context, refs []string) monitor.StartResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := monitor.StartResult{Failed: map[string]string{}}
	for _, ref := range refs {
		if ref == "unbound" {
			res.Failed[ref] = monitor.ErrUnboundWebhook.Error()
			res.UnboundSessions = append(res.UnboundSessions, ref)
			continue
		}
		id := mirror.ViewID("session_" + ref)
		m.live[id] = true
		m.started = append(m.started, ref)
		res.Started = append(res.Started, id)
	}
	return res
}

func (m *fakeMonitor) StopMonitoring(ids ...mirror.ViewID) map[mirror.ViewID]error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		for id := range m.live {
			ids = append(ids, id)
		}
	}
	out := make(map[mirror.ViewID]error, len(ids))
	for _, id := range ids {
		if !m.live[id] {
			out[id] = fmt.Errorf("%w: %s", mirror.ErrNotFound, id)
			continue
		}
		delete(m.live, id)
		out[id] = nil
	}
	return out
}

func (m *fakeMonitor) Reconnect(id mirror.ViewID, cmd models.ReconnectCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live[id] {
		return fmt.Errorf("%w: %s", mirror.ErrNotFound, id)
	}
	m.reconnects = append(m.reconnects, cmd)
	return nil
}

func (m *fakeMonitor) TickOnce(context.Context) scheduler.Result {
	return scheduler.Result{Outcome: scheduler.OutcomeNoTasks}
}

func (m *fakeMonitor) RestartScheduler() {
	m.mu.Lock()
	m.restarts++
	m.mu.Unlock()
}

func (m *fakeMonitor) RoomStatuses(_ context.Context, session string) ([]models.RoomStatusRecord, error) {
	var out []models.RoomStatusRecord
	for _, r := range m.records {
		if session == "" || r.SessionName == session {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *fakeMonitor) Notify(_ context.Context, ref, msgType, content string) error {
	switch ref {
	case "nobody":
		return errors.Join(store.ErrNotFound, store.ErrNotFound)
	case "nohook":
		return fmt.Errorf("%w: %s", notifier.ErrNoWebhook, ref)
	}
	m.mu.Lock()
	m.notified = append(m.notified, ref+"|"+msgType+"|"+content)
	m.mu.Unlock()
	return nil
}

func newTestServer(t *testing.T, m Monitor, rateLimit int) *httptest.Server {
	t.Helper()
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"https://ops.example"},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE"},
		RateLimitRequests:  rateLimit,
		RateLimitWindow:    time.Minute,
	})
	srv := httptest.NewServer(NewRouter(NewHandler(m), mw))
	t.Cleanup(srv.Close)
	return srv
}

// envelope decodes an APIResponse with Data left raw.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if resp.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp, env
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor("session_a"), 0)

	resp, env := do(t, srv, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || env.Status != "success" {
		t.Fatalf("status %d, envelope %+v", resp.StatusCode, env)
	}
	var h monitor.Health
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.Mirrors != 1 || !h.SchedulerRunning {
		t.Errorf("health = %+v", h)
	}
	if env.Metadata.RequestID == "" || resp.Header.Get("X-Request-ID") != env.Metadata.RequestID {
		t.Errorf("request id not propagated: header %q, body %q", resp.Header.Get("X-Request-ID"), env.Metadata.RequestID)
	}
}

func TestStartAndStopMonitoring(t *testing.T) {
	m := newFakeMonitor()
	srv := newTestServer(t, m, 0)

	resp, env := do(t, srv, http.MethodPost, "/api/v1/monitoring/start", `{"sessions":["alpha","unbound"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var res monitor.StartResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Started) != 1 || res.Started[0] != "session_alpha" {
		t.Errorf("Started = %v", res.Started)
	}
	if len(res.UnboundSessions) != 1 || res.UnboundSessions[0] != "unbound" {
		t.Errorf("UnboundSessions = %v", res.UnboundSessions)
	}

	_, env = do(t, srv, http.MethodGet, "/api/v1/mirrors/session_alpha", "")
	var state MirrorState
	if err := json.Unmarshal(env.Data, &state); err != nil {
		t.Fatal(err)
	}
	if !state.InUse {
		t.Error("session_alpha should be in use")
	}

	resp, env = do(t, srv, http.MethodPost, "/api/v1/monitoring/stop", `{}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	var stop StopResult
	if err := json.Unmarshal(env.Data, &stop); err != nil {
		t.Fatal(err)
	}
	if stop.Results["session_alpha"] != "stopped" {
		t.Errorf("stop results = %v", stop.Results)
	}
	if m.IsInUse("session_alpha") {
		t.Error("context still live after stop")
	}
}

func TestStartMonitoringValidation(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor(), 0)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"empty list", `{"sessions":[]}`},
		{"blank name", `{"sessions":[""]}`},
		{"malformed", `{"sessions":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, srv, http.MethodPost, "/api/v1/monitoring/start", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if env.Error == nil || env.Error.Code != codeValidation {
				t.Errorf("error = %+v", env.Error)
			}
		})
	}
}

func TestStopMonitoringRejectsBadViewID(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor(), 0)

	resp, env := do(t, srv, http.MethodPost, "/api/v1/monitoring/stop", `{"view_ids":["noprefix"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Details == nil {
		t.Errorf("expected field details, got %+v", env.Error)
	}
}

func TestDeleteMirror(t *testing.T) {
	m := newFakeMonitor("session_a")
	srv := newTestServer(t, m, 0)

	if resp, _ := do(t, srv, http.MethodDelete, "/api/v1/mirrors/session_a", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp, env := do(t, srv, http.MethodDelete, "/api/v1/mirrors/session_a", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d (%+v)", resp.StatusCode, env.Error)
	}
	if resp, _ := do(t, srv, http.MethodGet, "/api/v1/mirrors/bad", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid view id status = %d", resp.StatusCode)
	}
}

func TestReconnect(t *testing.T) {
	m := newFakeMonitor("session_a")
	srv := newTestServer(t, m, 0)

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/mirrors/session_a/reconnect", `{"roomId":"11","chatroomName":"lobby"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("reconnect status = %d", resp.StatusCode)
	}
	if len(m.reconnects) != 1 || m.reconnects[0].RoomID != "11" || m.reconnects[0].ChatroomName != "lobby" {
		t.Errorf("reconnects = %+v", m.reconnects)
	}

	if resp, _ := do(t, srv, http.MethodPost, "/api/v1/mirrors/session_a/reconnect", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing roomId status = %d", resp.StatusCode)
	}
	if resp, _ := do(t, srv, http.MethodPost, "/api/v1/mirrors/session_b/reconnect", `{"roomId":"1"}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing context status = %d", resp.StatusCode)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	m := newFakeMonitor()
	srv := newTestServer(t, m, 0)

	_, env := do(t, srv, http.MethodPost, "/api/v1/scheduler/tick", "")
	var res scheduler.Result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Outcome != scheduler.OutcomeNoTasks {
		t.Errorf("tick outcome = %s", res.Outcome)
	}

	if resp, _ := do(t, srv, http.MethodPost, "/api/v1/scheduler/restart", ""); resp.StatusCode != http.StatusAccepted {
		t.Errorf("restart status = %d", resp.StatusCode)
	}
	if m.restarts != 1 {
		t.Errorf("restarts = %d", m.restarts)
	}
}

func TestStatusLog(t *testing.T) {
	m := newFakeMonitor()
	m.records = []models.RoomStatusRecord{
		{SessionName: "alpha", RoomID: "1", Status: "connected"},
		{SessionName: "beta", RoomID: "2", Status: "abandoned"},
	}
	srv := newTestServer(t, m, 0)

	_, env := do(t, srv, http.MethodGet, "/api/v1/status-log?session=beta", "")
	var recs []models.RoomStatusRecord
	if err := json.Unmarshal(env.Data, &recs); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Status != "abandoned" {
		t.Errorf("records = %+v", recs)
	}

	_, env = do(t, srv, http.MethodGet, "/api/v1/status-log?session=nobody", "")
	if string(env.Data) != "[]" {
		t.Errorf("empty log should encode as [], got %s", env.Data)
	}
}

func TestNotify(t *testing.T) {
	m := newFakeMonitor()
	srv := newTestServer(t, m, 0)

	if resp, _ := do(t, srv, http.MethodPost, "/api/v1/notify", `{"session":"alpha","content":"hi"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("notify status = %d", resp.StatusCode)
	}
	if len(m.notified) != 1 || m.notified[0] != "alpha|text|hi" {
		t.Errorf("notified = %v", m.notified)
	}
	if resp, _ := do(t, srv, http.MethodPost, "/api/v1/notify", `{"session":"alpha","msg_type":"markdown","content":"**hi**"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("markdown notify status = %d", resp.StatusCode)
	}
	if len(m.notified) != 2 || m.notified[1] != "alpha|markdown|**hi**" {
		t.Errorf("notified = %v", m.notified)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{"session":"nobody","content":"x"}`, http.StatusNotFound},
		{`{"session":"nohook","content":"x"}`, http.StatusUnprocessableEntity},
		{`{"session":"alpha","msg_type":"image","content":"x"}`, http.StatusBadRequest},
		{`{"session":"alpha"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if resp, _ := do(t, srv, http.MethodPost, "/api/v1/notify", tt.body); resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.body, resp.StatusCode, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor(), 2)

	for i := 0; i < 2; i++ {
		if resp, _ := do(t, srv, http.MethodGet, "/api/v1/mirrors", ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	resp, env := do(t, srv, http.MethodGet, "/api/v1/mirrors", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v", env.Error)
	}

	// Health checks are outside the limited group.
	if resp, _ := do(t, srv, http.MethodGet, "/healthz", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor(), 0)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/mirrors", nil)
	req.Header.Set("Origin", "https://ops.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeMonitor(), 0)

	do(t, srv, http.MethodGet, "/api/v1/mirrors", "")
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()

	if got := sanitizeLogValue("a\nb\r\tc"); got != "abc" {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
