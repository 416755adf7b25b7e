// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package metrics holds the Prometheus collectors for every Roomwatch
// component. Collectors register with the default registry through promauto
// and are served on /metrics by the ops API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Mirror-context pool
	MirrorContextsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_mirror_contexts_active",
			Help: "Number of live mirror contexts",
		},
	)

	MirrorContextOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_mirror_context_operations_total",
			Help: "Mirror context lifecycle operations",
		},
		[]string{"operation", "result"}, // create|replace|stop, success|error
	)

	// Room connections
	RoomConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomwatch_room_connections",
			Help: "Room connections by status",
		},
		[]string{"status"},
	)

	RoomReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_room_reconnects_total",
			Help: "Reconnect attempts scheduled after a retryable disconnect",
		},
		[]string{"session"},
	)

	RoomsAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_rooms_abandoned_total",
			Help: "Room connections that exhausted their reconnect budget",
		},
		[]string{"session"},
	)

	ConnectQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_connect_queue_depth",
			Help: "Connect attempts waiting for the connect queue",
		},
	)

	MemberArrivals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_member_arrivals_total",
			Help: "Member arrival notifications by outcome",
		},
		[]string{"outcome"}, // forwarded|duplicate|filtered
	)

	// Dedup cache
	DedupEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_dedup_entries",
			Help: "Identities currently held in the dedup window",
		},
	)

	// Correlator
	CorrelatorPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_correlator_pending_requests",
			Help: "Requests awaiting a mirror context response",
		},
	)

	CorrelatorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_correlator_requests_total",
			Help: "Correlated requests by result",
		},
		[]string{"result"}, // success|remote_error|timeout|no_context|cancelled
	)

	CorrelatorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roomwatch_correlator_request_duration_seconds",
			Help:    "Time from request publish to resolution",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// Scheduler
	SchedulerTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_scheduler_ticks_total",
			Help: "Scheduler ticks by outcome",
		},
		[]string{"outcome"}, // sent|empty|skipped_busy|skipped_inactive|failed|no_tasks
	)

	SchedulerTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_scheduler_tasks",
			Help: "Room tasks in the current rotation",
		},
	)

	SchedulerRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_scheduler_running",
			Help: "1 while the gate has the scheduler started",
		},
	)

	// Notifier
	NotifierSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_notifier_sends_total",
			Help: "Webhook deliveries by message type and result",
		},
		[]string{"msgtype", "result"},
	)

	NotifierQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomwatch_notifier_queue_depth",
			Help: "Notifications waiting for a dispatcher worker",
		},
	)

	NotifierDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomwatch_notifier_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full",
		},
	)

	// Circuit breakers (vendor API, webhook)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roomwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // success|failure|rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomwatch_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Ops API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomwatch_api_request_duration_seconds",
			Help:    "Ops API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordCorrelatorResult records one resolved correlator request.
func RecordCorrelatorResult(result string, elapsed time.Duration) {
	CorrelatorRequests.WithLabelValues(result).Inc()
	CorrelatorDuration.Observe(elapsed.Seconds())
}

// RecordNotifierSend records one webhook delivery.
func RecordNotifierSend(msgType string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	NotifierSends.WithLabelValues(msgType, result).Inc()
}

// RecordMirrorOperation records a pool create/replace/stop.
func RecordMirrorOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	MirrorContextOperations.WithLabelValues(operation, result).Inc()
}

// SetSchedulerRunning flips the scheduler running gauge.
func SetSchedulerRunning(running bool) {
	if running {
		SchedulerRunning.Set(1)
		return
	}
	SchedulerRunning.Set(0)
}

// RecordAPIRequest records one ops API request. route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func RecordAPIRequest(method, route string, status int, elapsed time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
