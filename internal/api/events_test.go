// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/roomwatch/internal/websocket"
)

func TestEventFeedThroughRouter(t *testing.T) {
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 0})
	handler := NewHandler(&fakeMonitor{}).WithEventFeed(hub, nil)
	srv := httptest.NewServer(NewRouter(handler, mw))
	defer srv.Close()

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastJSON(websocket.MessageTypeArrival, map[string]string{"member_id": "42"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != websocket.MessageTypeArrival || msg.Data["member_id"] != "42" {
		t.Errorf("received %+v", msg)
	}
}

func TestEventFeedAbsentWithoutHub(t *testing.T) {
	srv := newTestServer(t, &fakeMonitor{}, 0)
	resp, _ := do(t, srv, "GET", "/api/v1/events", "")
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
