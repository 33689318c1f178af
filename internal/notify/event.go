// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package notify implements the real-time notification core: the event
// model, the SSE wire frames, the per-user connection registry, and the
// dispatcher that producers hand events to.
package notify

import (
	"time"
)

// Variant classifies the visual severity of a notification.
type Variant string

// Known notification variants. Consumers treat anything else as info.
const (
	VariantSuccess Variant = "success"
	VariantWarning Variant = "warning"
	VariantError   Variant = "error"
	VariantInfo    Variant = "info"
)

// Valid reports whether v is one of the known variants.
func (v Variant) Valid() bool {
	switch v {
	case VariantSuccess, VariantWarning, VariantError, VariantInfo:
		return true
	}
	return false
}

// SourceType identifies the producing subsystem of a notification.
type SourceType string

// Known notification sources.
const (
	SourceQuickCheck  SourceType = "QUICKCHECK"
	SourceEvent       SourceType = "EVENT"
	SourceMaintenance SourceType = "MAINTENANCE"
	SourceSystem      SourceType = "SYSTEM"
)

// Event is a single notification as it travels over the wire.
//
// The JSON field names are the stream contract; browser and Go clients
// decode exactly these.
type Event struct {
	// NotificationID uniquely identifies the notification. Assigned by
	// the dispatcher when empty.
	NotificationID string `json:"notificationId" validate:"required,uuid"`

	// NotificationType is the display variant. Optional; consumers
	// default unknown or missing values to info.
	NotificationType Variant `json:"notificationType,omitempty" validate:"omitempty,oneof=success warning error info"`

	// SourceType names the producing subsystem.
	SourceType SourceType `json:"sourceType" validate:"required,oneof=QUICKCHECK EVENT MAINTENANCE SYSTEM"`

	// Message is the human-readable notification body.
	Message string `json:"message" validate:"required,max=2000"`

	// Metadata carries free-form producer context (machine ID, inspection
	// ID, and so on). Opaque to the push pipeline.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// ActionURL is an optional in-app navigation target. Must be a
	// relative path starting with "/"; consumers drop anything else.
	ActionURL string `json:"actionUrl,omitempty" validate:"omitempty,internalpath"`

	// CreatedAt is the server-side creation time (UTC). Assigned by the
	// dispatcher when zero.
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the event. Subscribers may hold events
// past the publish call, so the registry hands each consumer its own copy
// of the metadata map.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}
