// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"strconv"

	"github.com/tomtom215/fleetman/internal/auth"
	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/config"
	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/store"
)

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	cfg        *config.Config
	registry   *notify.Registry
	dispatcher *notify.Dispatcher
	store      *store.NotificationStore
	cache      *cache.Cache
	jwt        *auth.JWTManager
}

// NewHandler creates the handler set from the router dependencies.
func NewHandler(deps RouterDeps) *Handler {
	return &Handler{
		cfg:        deps.Config,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		cache:      deps.Cache,
		jwt:        deps.JWT,
	}
}

// pageParams resolves limit and offset from query values against the
// configured default and ceiling. Invalid or negative values fall back to
// the defaults rather than erroring.
func (h *Handler) pageParams(limitParam, offsetParam string) (limit, offset int) {
	limit = 20
	maxLimit := 100
	if h.cfg != nil {
		limit = h.cfg.API.DefaultPageSize
		maxLimit = h.cfg.API.MaxPageSize
	}

	if v, err := strconv.Atoi(limitParam); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if v, err := strconv.Atoi(offsetParam); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
