// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/metrics"
)

// DeviceWriter is the write side of one subscriber connection.
// Implementations must serialize concurrent WriteFrame calls; the registry
// may write keep-alives and events from different goroutines. A publish can
// race an unsubscribe of the same handle (fan-out snapshots the set before
// writing), so implementations must also fail writes that arrive after
// their connection tears down rather than touch a recycled response.
type DeviceWriter interface {
	// WriteFrame writes one complete SSE frame and flushes it.
	// A non-nil error marks the connection dead; the registry drops the
	// subscription and never retries.
	WriteFrame(frame []byte) error
}

// Subscription is one registered device connection for a user.
// Values are handles: the creator passes the same pointer to Unsubscribe.
type Subscription struct {
	id        uint64
	userID    string
	writer    DeviceWriter
	createdAt time.Time
	done      chan struct{}
}

// UserID returns the user this subscription belongs to.
func (s *Subscription) UserID() string {
	return s.userID
}

// Done is closed when the subscription leaves the registry, whether by
// explicit Unsubscribe, a write failure, or CloseAll during shutdown.
// Stream handlers park on it alongside the request context.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// subscriptionIDCounter assigns registry-unique subscription IDs for logging.
var subscriptionIDCounter atomic.Uint64

// Stats is a point-in-time snapshot of registry occupancy.
type Stats struct {
	// Connections is the total number of open device connections.
	Connections int

	// Users is the number of distinct users with at least one connection.
	Users int

	// ConnectionsPerUser maps user ID to open connection count.
	ConnectionsPerUser map[string]int
}

// Registry tracks which users have open notification streams and fans
// events out to every device a user has connected.
//
// All methods are safe for concurrent use. Frame writes happen outside the
// registry lock so one slow subscriber cannot stall subscribe traffic.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logging.WithComponent("notify.registry"),
	}
}

// Subscribe registers a device connection for a user and returns its handle.
func (r *Registry) Subscribe(userID string, w DeviceWriter) *Subscription {
	sub := &Subscription{
		id:        subscriptionIDCounter.Add(1),
		userID:    userID,
		writer:    w,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	set, ok := r.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[userID] = set
	}
	set[sub] = struct{}{}
	connections, users := r.countLocked()
	r.mu.Unlock()

	metrics.StreamsOpenedTotal.Inc()
	metrics.SetRegistryStats(connections, users)

	r.logger.Debug().
		Str("user_id", userID).
		Uint64("subscription_id", sub.id).
		Int("user_connections", len(set)).
		Msg("Subscription registered")

	return sub
}

// Unsubscribe removes a subscription. Idempotent: unsubscribing a handle
// that was already removed is a no-op. The user's entry disappears from
// the map when its last connection goes away.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.unsubscribe(sub, "disconnect")
}

func (r *Registry) unsubscribe(sub *Subscription, reason string) {
	r.mu.Lock()
	set, ok := r.subs[sub.userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := set[sub]; !ok {
		r.mu.Unlock()
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.userID)
	}
	connections, users := r.countLocked()
	r.mu.Unlock()

	// Removal happens at most once per subscription (guarded by the set
	// membership check above), so this close cannot double-fire.
	close(sub.done)

	metrics.StreamsClosedTotal.WithLabelValues(reason).Inc()
	metrics.SetRegistryStats(connections, users)

	r.logger.Debug().
		Str("user_id", sub.userID).
		Uint64("subscription_id", sub.id).
		Str("reason", reason).
		Dur("connected_for", time.Since(sub.createdAt)).
		Msg("Subscription removed")
}

// Publish delivers an event to every open connection of a user and returns
// the number of successful deliveries.
//
// Publishing to a user with no subscribers is a no-op. A write failure
// drops only the failing connection; it never propagates to the caller and
// never affects sibling connections of the same user.
func (r *Registry) Publish(userID string, event *Event) int {
	frame, err := EncodeDataFrame(event)
	if err != nil {
		// Producer handed us an unencodable event; nothing to deliver.
		r.logger.Error().Err(err).Str("user_id", userID).Msg("Dropping unencodable event")
		return 0
	}

	targets := r.snapshot(userID)
	if len(targets) == 0 {
		return 0
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(event.SourceType)).Inc()

	delivered := 0
	for _, sub := range targets {
		if err := sub.writer.WriteFrame(frame); err != nil {
			r.dropDead(sub, err)
			continue
		}
		delivered++
		metrics.EventsDeliveredTotal.Inc()
	}

	return delivered
}

// SendKeepAlive writes a keep-alive comment frame to every open connection.
// Dead connections discovered here are dropped the same way Publish drops
// them.
func (r *Registry) SendKeepAlive() {
	targets := r.snapshotAll()
	for _, sub := range targets {
		if err := sub.writer.WriteFrame(keepAliveFrame); err != nil {
			r.dropDead(sub, err)
			continue
		}
		metrics.KeepAlivesSentTotal.Inc()
	}
}

// CloseAll unsubscribes every connection. Wired into the HTTP server's
// shutdown hooks: http.Server.Shutdown never cancels in-flight request
// contexts, so without this the parked stream handlers would hold graceful
// shutdown open for its full timeout.
func (r *Registry) CloseAll() {
	for _, sub := range r.snapshotAll() {
		r.unsubscribe(sub, "shutdown")
	}
}

// GetStats returns a snapshot of current registry occupancy.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{
		Users:              len(r.subs),
		ConnectionsPerUser: make(map[string]int, len(r.subs)),
	}
	for userID, set := range r.subs {
		stats.Connections += len(set)
		stats.ConnectionsPerUser[userID] = len(set)
	}
	return stats
}

// snapshot copies the subscription set of one user for lock-free writes.
func (r *Registry) snapshot(userID string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[userID]
	if len(set) == 0 {
		return nil
	}
	targets := make([]*Subscription, 0, len(set))
	for sub := range set {
		targets = append(targets, sub)
	}
	return targets
}

// snapshotAll copies every subscription across all users.
func (r *Registry) snapshotAll() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []*Subscription
	for _, set := range r.subs {
		for sub := range set {
			targets = append(targets, sub)
		}
	}
	return targets
}

// dropDead removes a subscription whose writer failed.
func (r *Registry) dropDead(sub *Subscription, err error) {
	metrics.DeliveryFailuresTotal.Inc()
	r.logger.Warn().
		Err(err).
		Str("user_id", sub.userID).
		Uint64("subscription_id", sub.id).
		Msg("Dropping dead subscriber after write failure")
	r.unsubscribe(sub, "write_failure")
}

// countLocked returns (connections, users); caller must hold mu.
func (r *Registry) countLocked() (int, int) {
	connections := 0
	for _, set := range r.subs {
		connections += len(set)
	}
	return connections, len(r.subs)
}
