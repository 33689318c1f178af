// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fleetman/internal/auth"
	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/config"
	"github.com/tomtom215/fleetman/internal/middleware"
	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/store"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the plain middleware package works
// with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Router wires handlers and middleware into the HTTP surface.
type Router struct {
	handler       *Handler
	authMW        *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// RouterDeps carries everything the HTTP surface needs. All fields are
// injected; the api package holds no globals.
type RouterDeps struct {
	Config     *config.Config
	Registry   *notify.Registry
	Dispatcher *notify.Dispatcher
	Store      *store.NotificationStore
	Cache      *cache.Cache
	JWT        *auth.JWTManager
}

// NewRouter creates the router from its dependencies.
func NewRouter(deps RouterDeps) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	if deps.Config != nil {
		mwConfig.CORSAllowedOrigins = deps.Config.Security.CORSOrigins
		mwConfig.RateLimitRequests = deps.Config.Security.RateLimitReqs
		mwConfig.RateLimitWindow = deps.Config.Security.RateLimitWindow
		mwConfig.RateLimitDisabled = deps.Config.Security.RateLimitDisabled
		mwConfig.TrustedProxies = deps.Config.Security.TrustedProxies
	}

	return &Router{
		handler:       NewHandler(deps),
		authMW:        auth.NewMiddleware(deps.JWT),
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(router.chiMiddleware.RealIP())
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is handled

	// Health endpoints stay public so load balancers and monitoring can
	// probe without credentials.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// Prometheus scrape endpoint.
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Notification REST endpoints for the authenticated user.
	r.Route("/api/v1/notifications", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.authMW.Authenticate)

		r.Get("/", router.handler.ListNotifications)
		r.Get("/unread-count", router.handler.UnreadCount)
		r.Post("/{id}/read", router.handler.MarkRead)
		r.Post("/read-all", router.handler.MarkAllRead)
	})

	// SSE stream endpoint. Authentication runs inside the handler so the
	// 401/403 decision happens before any stream output, and so the
	// per-user identity check can compare the path identity against the
	// token.
	r.Route("/api/v1/notifications/stream", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitStream())
		r.Get("/", router.handler.Stream)
		r.Get("/{userID}", router.handler.Stream)
	})

	// Admin-only producer endpoint for system broadcasts.
	r.Route("/api/v1/notifications/publish", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitPublish())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(router.authMW.Authenticate)
		r.Use(router.authMW.RequireRole("admin"))

		r.Post("/", router.handler.PublishNotification)
	})

	return r
}
