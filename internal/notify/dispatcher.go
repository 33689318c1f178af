// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/validation"
)

// Store persists notification records so clients can backfill after a
// disconnect. The live push path works without one.
type Store interface {
	Save(ctx context.Context, userID string, event *Event) error
}

// Forwarder hands an event to the cross-instance relay so subscribers on
// other instances receive it too.
type Forwarder interface {
	Forward(ctx context.Context, userID string, event *Event) error
}

// Dispatcher is the producer-facing entry point for notifications.
//
// Dispatch enriches the event, persists it, fans it out to local
// subscribers, and forwards it to the relay. Only producer errors (an
// invalid event) surface to the caller; delivery-path problems are logged
// and swallowed so a flaky subscriber can never break alarm evaluation or
// inspection processing upstream.
type Dispatcher struct {
	registry  *Registry
	store     Store     // optional
	forwarder Forwarder // optional
	logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher. store and forwarder may be nil.
func NewDispatcher(registry *Registry, store Store, forwarder Forwarder) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		store:     store,
		forwarder: forwarder,
		logger:    logging.WithComponent("notify.dispatcher"),
	}
}

// Dispatch validates and delivers one notification for a user.
//
// Missing NotificationID and CreatedAt are filled in here, so producers
// only supply domain fields. The event is mutated in place.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, event *Event) error {
	if userID == "" {
		return fmt.Errorf("dispatch: user ID is required")
	}
	if event == nil {
		return fmt.Errorf("dispatch: event is required")
	}

	if event.NotificationID == "" {
		event.NotificationID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if err := validation.ValidateStruct(event); err != nil {
		return fmt.Errorf("dispatch: invalid event: %w", err)
	}

	// Persistence failures must not block the live push.
	if d.store != nil {
		if err := d.store.Save(ctx, userID, event); err != nil {
			logging.Ctx(ctx).Error().
				Err(err).
				Str("user_id", userID).
				Str("notification_id", event.NotificationID).
				Msg("Failed to persist notification; live push continues")
		}
	}

	delivered := d.registry.Publish(userID, event)

	if d.forwarder != nil {
		if err := d.forwarder.Forward(ctx, userID, event); err != nil {
			logging.Ctx(ctx).Error().
				Err(err).
				Str("user_id", userID).
				Str("notification_id", event.NotificationID).
				Msg("Failed to forward notification to relay")
		}
	}

	d.logger.Debug().
		Str("user_id", userID).
		Str("notification_id", event.NotificationID).
		Str("source_type", string(event.SourceType)).
		Int("delivered", delivered).
		Msg("Notification dispatched")

	return nil
}
