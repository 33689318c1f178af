// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetRegistryStats(t *testing.T) {
	SetRegistryStats(7, 3)

	if got := testutil.ToFloat64(StreamsActive); got != 7 {
		t.Errorf("StreamsActive = %v, want 7", got)
	}
	if got := testutil.ToFloat64(StreamUsersActive); got != 3 {
		t.Errorf("StreamUsersActive = %v, want 3", got)
	}

	SetRegistryStats(0, 0)
	if got := testutil.ToFloat64(StreamsActive); got != 0 {
		t.Errorf("StreamsActive after reset = %v, want 0", got)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	after := testutil.ToFloat64(APIActiveRequests)

	if after-before != 1 {
		t.Errorf("active requests delta = %v, want 1", after-before)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	before := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("save"))
	RecordStoreOperation("save", 5*time.Millisecond, nil)
	RecordStoreOperation("save", 5*time.Millisecond, errors.New("boom"))
	after := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("save"))

	if after-before != 1 {
		t.Errorf("store error delta = %v, want 1", after-before)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/notifications", "200"))
	RecordAPIRequest("GET", "/api/v1/notifications", "200", 10*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/notifications", "200"))

	if after-before != 1 {
		t.Errorf("request counter delta = %v, want 1", after-before)
	}
}
