// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package main is the entry point for the FleetMan notification server.
//
// FleetMan pushes real-time maintenance notifications to connected fleet
// operators over Server-Sent Events. Notifications are dispatched to every
// device a user has open, archived for later retrieval, and optionally
// relayed across server instances through NATS.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered loading from environment variables, YAML config
//     file, and built-in defaults (Koanf v2)
//  2. Store: BadgerDB-backed notification archive with TTL-based retention
//  3. Registry: in-memory connection registry for SSE subscribers
//  4. Relay (optional): NATS-based cross-instance fan-out
//  5. Dispatcher: validates, persists, publishes, and forwards notifications
//  6. Authentication: JWT (HS256) token issuing and verification
//  7. HTTP Server: REST API plus the SSE stream endpoint
//  8. Supervisor: suture tree running the keep-alive broadcaster, store GC,
//     relay inbound subscription, and HTTP server
//
// # Configuration
//
// All settings have defaults; only JWT_SECRET is required. Common overrides:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export HTTP_PORT=8085
//	export STORE_PATH=/data/fleetman/notifications
//	export NATS_ENABLED=true
//	export NATS_URL=nats://nats:4222
//	./fleetman
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// stops accepting connections and drains in-flight requests, open SSE
// streams are closed, the relay drains its NATS connection, and the store
// is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/fleetman/internal/api"
	"github.com/tomtom215/fleetman/internal/auth"
	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/config"
	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/relay"
	"github.com/tomtom215/fleetman/internal/store"
	"github.com/tomtom215/fleetman/internal/supervisor"
	"github.com/tomtom215/fleetman/internal/supervisor/services"
)

// cacheTTL bounds staleness of the list/unread-count response cache. Writes
// invalidate eagerly, so the TTL only matters for entries orphaned by a
// crashed request.
const cacheTTL = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetman: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.WithComponent("main")
	logger.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Bool("nats", cfg.NATS.Enabled).
		Msg("Starting FleetMan notification server")

	notifStore, err := store.Open(store.Options{
		Path:      cfg.Store.Path,
		InMemory:  cfg.Store.Path == "",
		Retention: time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("open notification store: %w", err)
	}
	defer func() {
		if cerr := notifStore.Close(); cerr != nil {
			logger.Error().Err(cerr).Msg("Failed to close notification store")
		}
	}()

	registry := notify.NewRegistry()

	// The relay is both the dispatcher's Forwarder (outbound) and a
	// supervised inbound subscription. Without NATS the dispatcher simply
	// has no forwarder and events stay local.
	var (
		natsRelay *relay.Relay
		forwarder notify.Forwarder
	)
	if cfg.NATS.Enabled {
		natsRelay, err = relay.New(relay.Options{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, registry)
		if err != nil {
			return fmt.Errorf("connect notification relay: %w", err)
		}
		defer natsRelay.Close()
		forwarder = natsRelay
		logger.Info().Str("instance_id", natsRelay.InstanceID()).Msg("Notification relay connected")
	}

	dispatcher := notify.NewDispatcher(registry, notifStore, forwarder)
	responseCache := cache.New(cacheTTL)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return fmt.Errorf("initialize JWT manager: %w", err)
	}

	router := api.NewRouter(api.RouterDeps{
		Config:     cfg,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      notifStore,
		Cache:      responseCache,
		JWT:        jwtManager,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		// No global read/write timeouts: the stream endpoint holds
		// connections open until the client disconnects.
	}

	// Shutdown never cancels in-flight request contexts, so the parked
	// stream handlers must be kicked loose explicitly or every graceful
	// shutdown burns the full drain timeout.
	server.RegisterOnShutdown(registry.CloseAll)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStorageService(services.NewStoreGCService(notifStore, cfg.Store.GCInterval))
	tree.AddStreamingService(services.NewKeepAliveService(registry, cfg.Notify.KeepAliveInterval))
	if natsRelay != nil {
		tree.AddStreamingService(services.NewRelayService(natsRelay))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}
