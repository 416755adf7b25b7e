// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package middleware provides HTTP middleware for the ops API.
//
// Both middlewares use the http.HandlerFunc shape; the api package adapts
// them to chi's func(http.Handler) http.Handler.
//
//   - RequestID: X-Request-ID propagation and logging context
//   - PrometheusMetrics: latency histogram labelled by chi route pattern
package middleware
