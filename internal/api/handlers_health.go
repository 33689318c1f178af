// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"net/http"
	"time"
)

var startTime = time.Now()

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: dependencies are wired and the
// service can accept traffic.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.registry == nil || h.store == nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// Health reports overall service health with stream and cache statistics.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.registry.GetStats()

	WriteSuccess(w, r, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(startTime).Seconds()),
		"streams": map[string]int{
			"connections": stats.Connections,
			"users":       stats.Users,
		},
		"cache": map[string]interface{}{
			"hit_rate": h.cache.HitRate(),
			"keys":     h.cache.GetStats().TotalKeys,
		},
	})
}
