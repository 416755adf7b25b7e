// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/roomwatch/internal/logging"
)

// NewUpgrader returns an upgrader that accepts requests without an Origin
// header, from the listed origins, or from anywhere when origins contains "*".
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// ServeWS upgrades requests and registers each connection with hub.
func ServeWS(hub *Hub, origins []string) http.HandlerFunc {
	upgrader := NewUpgrader(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Event feed upgrade failed")
			return
		}
		client := NewClient(hub, conn)
		hub.Register <- client
		client.Start()
	}
}
