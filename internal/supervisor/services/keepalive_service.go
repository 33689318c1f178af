// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package services

import (
	"context"
	"time"
)

// KeepAlivePinger broadcasts a keep-alive to every open stream.
// Satisfied by the connection registry.
type KeepAlivePinger interface {
	SendKeepAlive()
}

// KeepAliveService ticks the registry's keep-alive broadcast so idle SSE
// connections survive proxies and load balancers that kill quiet sockets.
//
// One central ticker serves every connection; per-connection timers would
// multiply wakeups for no benefit. Broken connections surface here too:
// the failed keep-alive write is what evicts a silently dead subscriber.
type KeepAliveService struct {
	pinger   KeepAlivePinger
	interval time.Duration
}

// NewKeepAliveService creates the keep-alive ticker. interval defaults to
// 30 seconds, which stays under common proxy idle timeouts.
func NewKeepAliveService(pinger KeepAlivePinger, interval time.Duration) *KeepAliveService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &KeepAliveService{
		pinger:   pinger,
		interval: interval,
	}
}

// Serve implements suture.Service.
func (k *KeepAliveService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			k.pinger.SendKeepAlive()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String identifies the service in supervisor logs.
func (k *KeepAliveService) String() string {
	return "keepalive-broadcaster"
}
