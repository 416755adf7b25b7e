// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package main is the entry point for the Roomwatch server.

Roomwatch joins live chat rooms on behalf of configured sessions, forwards
member arrivals to each session's webhook and posts room leaderboards on a
round-robin schedule while any session is being monitored.

# Startup

 1. Configuration: koanf v2 (defaults, optional config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Store: BadgerDB holding session records and the room status log
 4. Orchestrator: mirror pool, message bus, correlator, dedup cache,
    notification dispatcher, leaderboard scheduler and gate
 5. Session seeding from the sessions list in configuration, if any
 6. Supervisor tree (suture v4) with the ops API in its own layer

Nothing is monitored at startup. Monitoring begins with
POST /api/v1/monitoring/start.

# Configuration

Common environment variables:

	VENDOR_API_URL, VENDOR_CHAT_URL, VENDOR_APP_KEY
	NOTIFIER_BASE_URL            webhook send endpoint
	DEDUP_WINDOW=10m             arrival suppression window
	ROOM_MAX_RECONNECT=10        retries per disconnect episode
	SCHEDULER_TICK_INTERVAL=60s  one room per tick
	SCHEDULER_TIMEZONE=Asia/Shanghai
	STORE_PATH=/data/roomwatch
	HTTP_PORT=8090
	LOG_LEVEL=info LOG_FORMAT=json

# Signals

SIGINT and SIGTERM cancel the supervisor tree. Mirror contexts are torn
down, pending leaderboard requests fail, the HTTP server drains and the
store is closed.
*/
package main
