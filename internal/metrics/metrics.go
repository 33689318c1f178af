// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Notification registry (active streams, fan-out)
// - Event dispatch and delivery
// - API endpoint latency and throughput
// - Notification store operations (Badger)
// - NATS relay traffic

var (
	// Registry Metrics
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_streams_active",
			Help: "Current number of open notification streams (device connections)",
		},
	)

	StreamUsersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_stream_users_active",
			Help: "Current number of distinct users with at least one open stream",
		},
	)

	StreamsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_streams_opened_total",
			Help: "Total number of notification streams opened",
		},
	)

	StreamsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_streams_closed_total",
			Help: "Total number of notification streams closed",
		},
		[]string{"reason"}, // "disconnect", "write_failure", "shutdown"
	)

	// Delivery Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_events_published_total",
			Help: "Total number of notification events published to the registry",
		},
		[]string{"source_type"},
	)

	EventsDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_events_delivered_total",
			Help: "Total number of event frames delivered to subscribers",
		},
	)

	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_delivery_failures_total",
			Help: "Total number of frame writes that failed and dropped a subscriber",
		},
	)

	KeepAlivesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_keepalives_sent_total",
			Help: "Total number of keep-alive comment frames sent",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Store Metrics (Badger)
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of notification store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "save", "list", "unread_count", "mark_read", "mark_all_read"
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operation_errors_total",
			Help: "Total number of notification store operation errors",
		},
		[]string{"operation"},
	)

	// Relay Metrics (NATS)
	RelayPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_published_total",
			Help: "Total number of events forwarded to NATS",
		},
	)

	RelayReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_received_total",
			Help: "Total number of events received from NATS and republished locally",
		},
	)

	RelayEchoesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_echoes_dropped_total",
			Help: "Total number of relay messages dropped because this instance originated them",
		},
	)

	RelayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_errors_total",
			Help: "Total number of relay failures",
		},
		[]string{"kind"}, // "publish", "decode"
	)
)

// RecordAPIRequest records metrics for an API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the active request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreOperation records a notification store operation.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// SetRegistryStats updates the registry gauges from a stats snapshot.
func SetRegistryStats(connections, users int) {
	StreamsActive.Set(float64(connections))
	StreamUsersActive.Set(float64(users))
}
