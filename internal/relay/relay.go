// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package relay bridges notification fan-out across FleetMan instances
// over NATS.
//
// Each instance publishes dispatched events to "<prefix>.<userID>" and
// subscribes to "<prefix>.>". A header carries the publishing instance ID
// so an instance can drop its own messages instead of delivering them
// twice.
package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/metrics"
	"github.com/tomtom215/fleetman/internal/notify"
)

// originHeader names the publishing instance on every relayed message.
const originHeader = "Fleetman-Origin"

// Options configures the relay.
type Options struct {
	// URL is the NATS server URL.
	URL string

	// SubjectPrefix is the subject namespace, e.g. "fleetman.notify".
	SubjectPrefix string

	// ReconnectWait is the delay between NATS reconnect attempts.
	// Default 2s.
	ReconnectWait time.Duration

	// InstanceID identifies this instance for echo suppression. Defaults
	// to a random UUID, which is right for all deployments except tests
	// that need a stable ID.
	InstanceID string
}

// Relay connects local dispatch to the NATS fabric in both directions.
// It implements notify.Forwarder for the outbound side.
type Relay struct {
	conn       *nats.Conn
	registry   *notify.Registry
	prefix     string
	instanceID string
	sub        *nats.Subscription
	logger     zerolog.Logger
}

// New connects to NATS and returns a relay. Start begins inbound delivery.
func New(opts Options, registry *notify.Registry) (*Relay, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("relay: NATS URL is required")
	}
	if opts.SubjectPrefix == "" {
		return nil, fmt.Errorf("relay: subject prefix is required")
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.New().String()
	}

	logger := logging.WithComponent("relay")

	conn, err := nats.Connect(opts.URL,
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: connect to NATS at %s: %w", opts.URL, err)
	}

	return &Relay{
		conn:       conn,
		registry:   registry,
		prefix:     opts.SubjectPrefix,
		instanceID: opts.InstanceID,
		logger:     logger,
	}, nil
}

// InstanceID returns the echo-suppression identity of this relay.
func (r *Relay) InstanceID() string {
	return r.instanceID
}

// Start subscribes to the relay subject tree and begins delivering inbound
// events to the local registry.
func (r *Relay) Start() error {
	sub, err := r.conn.Subscribe(r.prefix+".>", r.handleInbound)
	if err != nil {
		return fmt.Errorf("relay: subscribe %s.>: %w", r.prefix, err)
	}
	r.sub = sub

	r.logger.Info().
		Str("subject", r.prefix+".>").
		Str("instance_id", r.instanceID).
		Msg("Relay started")
	return nil
}

// StopInbound drains the inbound subscription. The connection stays open
// so Forward keeps working and a later Start can resubscribe.
func (r *Relay) StopInbound() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Drain(); err != nil {
		r.logger.Warn().Err(err).Msg("Relay subscription drain failed")
	}
	r.sub = nil
}

// Close drains the subscription and closes the NATS connection.
func (r *Relay) Close() {
	r.StopInbound()
	if err := r.conn.Drain(); err != nil {
		r.logger.Warn().Err(err).Msg("NATS connection drain failed")
	}
}

// Forward publishes one event to the relay fabric. Implements
// notify.Forwarder; the dispatcher calls this after local fan-out.
func (r *Relay) Forward(ctx context.Context, userID string, event *notify.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.RelayErrorsTotal.WithLabelValues("encode").Inc()
		return fmt.Errorf("relay: encode event %s: %w", event.NotificationID, err)
	}

	msg := &nats.Msg{
		Subject: r.prefix + "." + userID,
		Header:  nats.Header{originHeader: []string{r.instanceID}},
		Data:    payload,
	}

	if err := r.conn.PublishMsg(msg); err != nil {
		metrics.RelayErrorsTotal.WithLabelValues("publish").Inc()
		return fmt.Errorf("relay: publish %s: %w", msg.Subject, err)
	}

	metrics.RelayPublishedTotal.Inc()
	logging.Ctx(ctx).Debug().
		Str("subject", msg.Subject).
		Str("notification_id", event.NotificationID).
		Msg("Event forwarded to relay")
	return nil
}

// handleInbound delivers one relayed message to local subscribers.
func (r *Relay) handleInbound(msg *nats.Msg) {
	if msg.Header.Get(originHeader) == r.instanceID {
		// Our own publish coming back around.
		metrics.RelayEchoesDroppedTotal.Inc()
		return
	}

	userID := strings.TrimPrefix(msg.Subject, r.prefix+".")
	if userID == "" || userID == msg.Subject {
		metrics.RelayErrorsTotal.WithLabelValues("subject").Inc()
		r.logger.Warn().Str("subject", msg.Subject).Msg("Relay message with unusable subject")
		return
	}

	var event notify.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		metrics.RelayErrorsTotal.WithLabelValues("decode").Inc()
		r.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Undecodable relay message")
		return
	}

	metrics.RelayReceivedTotal.Inc()
	delivered := r.registry.Publish(userID, &event)

	r.logger.Debug().
		Str("user_id", userID).
		Str("notification_id", event.NotificationID).
		Int("delivered", delivered).
		Msg("Relayed event delivered locally")
}
