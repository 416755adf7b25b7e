// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package api serves the Roomwatch ops API with chi.

# Routes

	GET    /healthz                             component summary
	GET    /metrics                             Prometheus
	GET    /api/v1/mirrors                      pool status
	GET    /api/v1/mirrors/{viewID}             whether one context is live
	DELETE /api/v1/mirrors/{viewID}             stop one context
	POST   /api/v1/mirrors/{viewID}/reconnect   reset and re-join a room
	POST   /api/v1/monitoring/start             {"sessions": [...]}
	POST   /api/v1/monitoring/stop              {"view_ids": [...]} or {} for all
	POST   /api/v1/scheduler/tick               run one leaderboard tick now
	POST   /api/v1/scheduler/restart            restart the leaderboard scheduler
	GET    /api/v1/status-log?session=          room connection status records
	POST   /api/v1/notify                       send to a session's webhook
	GET    /api/v1/events                       live event feed (websocket)

Every JSON response uses the models.APIResponse envelope. /api/v1 routes
are rate limited per client IP with go-chi/httprate; CORS is handled by
go-chi/cors on every route.

The API has no authentication. Bind it to a private interface.
*/
package api
