// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package services

import (
	"context"
	"errors"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/fleetman/internal/logging"
)

// ValueLogGC runs one garbage collection pass. Satisfied by the
// notification store.
type ValueLogGC interface {
	RunValueLogGC() error
}

// StoreGCService periodically reclaims space from the notification store's
// value log. Badger only garbage-collects when asked; without this loop,
// expired notifications keep their disk space forever.
type StoreGCService struct {
	store    ValueLogGC
	interval time.Duration
}

// NewStoreGCService creates the GC loop. interval defaults to 10 minutes.
func NewStoreGCService(store ValueLogGC, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
	}
}

// Serve implements suture.Service. One GC call reclaims at most one value
// log file, so successful passes repeat immediately until there is nothing
// left to collect.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger := logging.WithComponent("store-gc")

	for {
		select {
		case <-ticker.C:
			for {
				err := s.store.RunValueLogGC()
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					logger.Warn().Err(err).Msg("Value log GC pass failed")
				}
				break
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String identifies the service in supervisor logs.
func (s *StoreGCService) String() string {
	return "store-gc"
}
