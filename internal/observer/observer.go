// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package observer turns raw notification events into user-facing effects:
// cache invalidation, a toast, and a desktop notification.
//
// The observer owns the policy layer between the stream and the UI. It
// normalizes unknown variants to info, localizes titles by source type,
// refuses external action URLs, and tears down its desktop notifications
// when the session ends.
package observer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/streamclient"
	"github.com/tomtom215/fleetman/internal/validation"
)

// defaultToastDuration is how long a toast stays on screen.
const defaultToastDuration = 5 * time.Second

// Toast is one transient on-screen notification.
type Toast struct {
	Title    string
	Message  string
	Variant  notify.Variant
	Duration time.Duration

	// ActionURL is the validated in-app navigation target; empty when the
	// event carried none or an unsafe one.
	ActionURL string
}

// Toaster displays transient toasts.
type Toaster interface {
	ShowToast(toast Toast)
}

// DesktopNotification is one OS-level notification.
type DesktopNotification struct {
	// Tag deduplicates: showing a notification with an existing tag
	// replaces it.
	Tag       string
	Title     string
	Body      string
	ActionURL string
}

// DesktopNotifier raises and dismisses OS-level notifications.
type DesktopNotifier interface {
	Show(notification DesktopNotification)
	Close(tag string)
}

// Localizer resolves display strings. Ok is false for unknown keys, which
// makes the observer fall back to the built-in title.
type Localizer interface {
	Localize(key string) (value string, ok bool)
}

// sourceTitleKeys maps source types to localization keys.
var sourceTitleKeys = map[notify.SourceType]string{
	notify.SourceQuickCheck:  "notifications.title.quickcheck",
	notify.SourceEvent:       "notifications.title.event",
	notify.SourceMaintenance: "notifications.title.maintenance",
	notify.SourceSystem:      "notifications.title.system",
}

// fallbackTitles are the built-in English titles per source type.
var fallbackTitles = map[notify.SourceType]string{
	notify.SourceQuickCheck:  "Quick Check",
	notify.SourceEvent:       "Event",
	notify.SourceMaintenance: "Maintenance",
	notify.SourceSystem:      "System",
}

// genericTitle covers source types the build does not know yet.
const genericTitle = "Notification"

// Config wires an Observer. Client, UserID, Toaster, and Desktop are
// required; the rest is optional.
type Config struct {
	// Client is the shared stream client. The observer never owns it;
	// Connect is idempotent across all consumers of the session.
	Client *streamclient.Client

	// UserID is the user whose cached notification queries the observer
	// invalidates.
	UserID string

	Toaster Toaster
	Desktop DesktopNotifier

	// Cache is the reactive query cache. Optional.
	Cache *cache.Cache

	// Localizer resolves titles. Optional; built-in titles are the
	// fallback.
	Localizer Localizer

	// ToastDuration overrides the 5 second default.
	ToastDuration time.Duration
}

// Observer consumes the notification stream for one user session.
type Observer struct {
	config Config
	logger zerolog.Logger

	startOnce sync.Once
	mu        sync.Mutex
	unsub     func()
	openTags  map[string]struct{}
}

// New creates an observer. Start begins consuming.
func New(config Config) *Observer {
	if config.ToastDuration <= 0 {
		config.ToastDuration = defaultToastDuration
	}
	return &Observer{
		config:   config,
		logger:   logging.WithComponent("observer"),
		openTags: make(map[string]struct{}),
	}
}

// Start subscribes to the stream and connects the shared client. Calling
// Start again on the same observer is a no-op: one session, one
// subscription.
func (o *Observer) Start(ctx context.Context) {
	o.startOnce.Do(func() {
		o.mu.Lock()
		o.unsub = o.config.Client.Subscribe(o.handle)
		o.mu.Unlock()

		o.config.Client.Connect(ctx)

		o.logger.Debug().Str("user_id", o.config.UserID).Msg("Notification observer started")
	})
}

// Stop unsubscribes and dismisses every desktop notification this observer
// raised. Safe to call more than once and before Start.
func (o *Observer) Stop() {
	o.mu.Lock()
	unsub := o.unsub
	o.unsub = nil
	tags := make([]string, 0, len(o.openTags))
	for tag := range o.openTags {
		tags = append(tags, tag)
	}
	o.openTags = make(map[string]struct{})
	o.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, tag := range tags {
		o.config.Desktop.Close(tag)
	}

	o.logger.Debug().Str("user_id", o.config.UserID).Msg("Notification observer stopped")
}

// handle applies the display policy to one event.
func (o *Observer) handle(event *notify.Event) {
	if o.config.Cache != nil {
		o.config.Cache.InvalidateUser(o.config.UserID)
	}

	variant := event.NotificationType
	if !variant.Valid() {
		o.logger.Warn().
			Str("notification_id", event.NotificationID).
			Str("notification_type", string(event.NotificationType)).
			Msg("Unknown notification variant; defaulting to info")
		variant = notify.VariantInfo
	}

	title := o.title(event.SourceType)
	actionURL := o.safeActionURL(event)

	o.config.Toaster.ShowToast(Toast{
		Title:     title,
		Message:   event.Message,
		Variant:   variant,
		Duration:  o.config.ToastDuration,
		ActionURL: actionURL,
	})

	o.config.Desktop.Show(DesktopNotification{
		Tag:       event.NotificationID,
		Title:     title,
		Body:      event.Message,
		ActionURL: actionURL,
	})

	o.mu.Lock()
	o.openTags[event.NotificationID] = struct{}{}
	o.mu.Unlock()
}

// title resolves the display title for a source type: localization first,
// built-in fallback second, generic last.
func (o *Observer) title(sourceType notify.SourceType) string {
	if o.config.Localizer != nil {
		if key, ok := sourceTitleKeys[sourceType]; ok {
			if value, found := o.config.Localizer.Localize(key); found {
				return value
			}
		}
	}
	if title, ok := fallbackTitles[sourceType]; ok {
		return title
	}
	return genericTitle
}

// safeActionURL returns the event's action URL when it is a relative in-app
// path, and empty otherwise. External or malformed targets are dropped, not
// sanitized: a notification must never navigate the user off-site.
func (o *Observer) safeActionURL(event *notify.Event) string {
	if event.ActionURL == "" {
		return ""
	}
	if !validation.IsInternalPath(event.ActionURL) {
		o.logger.Warn().
			Str("notification_id", event.NotificationID).
			Str("action_url", event.ActionURL).
			Msg("Dropping non-internal action URL")
		return ""
	}
	return event.ActionURL
}
