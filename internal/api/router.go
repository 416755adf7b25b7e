// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/roomwatch/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to chi's r.Use.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// NewRouter wires the ops API routes.
func NewRouter(handler *Handler, mw *ChiMiddleware) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Get("/mirrors", handler.ListMirrors)
		r.Get("/mirrors/{viewID}", handler.GetMirror)
		r.Delete("/mirrors/{viewID}", handler.DeleteMirror)
		r.Post("/mirrors/{viewID}/reconnect", handler.Reconnect)

		r.Post("/monitoring/start", handler.StartMonitoring)
		r.Post("/monitoring/stop", handler.StopMonitoring)

		r.Post("/scheduler/tick", handler.TickScheduler)
		r.Post("/scheduler/restart", handler.RestartScheduler)

		r.Get("/status-log", handler.StatusLog)
		r.Post("/notify", handler.Notify)

		if handler.events != nil {
			r.Get("/events", handler.events)
		}
	})

	return r
}
