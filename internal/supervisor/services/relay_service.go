// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package services

import (
	"context"
	"fmt"
)

// InboundRelay is the inbound half of the cross-instance relay.
// Satisfied by the relay package.
type InboundRelay interface {
	Start() error
	StopInbound()
}

// RelayService runs the relay's inbound subscription under supervision.
// The NATS connection itself outlives the service (the dispatcher forwards
// over it regardless); what the supervisor restarts is the subscription
// that delivers remote events locally.
type RelayService struct {
	relay InboundRelay
}

// NewRelayService wraps a relay.
func NewRelayService(relay InboundRelay) *RelayService {
	return &RelayService{relay: relay}
}

// Serve implements suture.Service.
func (r *RelayService) Serve(ctx context.Context) error {
	if err := r.relay.Start(); err != nil {
		return fmt.Errorf("relay inbound start: %w", err)
	}

	<-ctx.Done()
	r.relay.StopInbound()
	return ctx.Err()
}

// String identifies the service in supervisor logs.
func (r *RelayService) String() string {
	return "notification-relay"
}
