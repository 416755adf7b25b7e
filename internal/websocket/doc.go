// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package websocket streams live monitoring events to ops clients.

Each connected client receives every room status change and member arrival
the orchestrator observes, as JSON messages of the form

	{"type": "room_status", "data": {...}}
	{"type": "arrival", "data": {...}}

The package uses a hub-and-spoke layout on gorilla/websocket:

	┌──────────┐
	│   Hub    │ ← broadcasts to all clients
	└────┬─────┘
	     │
	┌────┴─────┬─────────┬─────────┐
	│ Client1  │ Client2 │ Client3 │
	└──────────┴─────────┴─────────┘

Each client runs a read pump (answers "ping" messages, tracks pongs) and a
write pump (drains the client's send queue, sends keepalive pings). A client
whose queue is full is dropped rather than slowing the hub down.

The Hub implements suture.Service and lives in the API layer of the
supervisor tree:

	hub := websocket.NewHub()
	tree.AddAPIService(hub)
	orch.SetBroadcaster(hub)
	r.Get("/api/v1/events", websocket.ServeWS(hub, allowedOrigins))
*/
package websocket
