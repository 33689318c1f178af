// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package relay

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
)

//nolint:gochecknoinits // silence logs during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// frameRecorder captures frames a registry writes to one subscription.
type frameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *frameRecorder) WriteFrame(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]byte, len(frame))
	copy(copied, frame)
	r.frames = append(r.frames, copied)
	return nil
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameRecorder) last(t *testing.T) *notify.Event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		t.Fatal("no frames recorded")
	}
	event, err := notify.DecodeDataLine(r.frames[len(r.frames)-1])
	if err != nil {
		t.Fatalf("DecodeDataLine() error: %v", err)
	}
	return event
}

// startNATS runs an embedded NATS server on a random port.
func startNATS(t *testing.T) string {
	t.Helper()

	opts := &server.Options{Host: "127.0.0.1", Port: -1}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer() error: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("embedded NATS server never became ready")
	}
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}

func newRelay(t *testing.T, url, instanceID string, registry *notify.Registry) *Relay {
	t.Helper()
	r, err := New(Options{
		URL:           url,
		SubjectPrefix: "fleetman.notify",
		InstanceID:    instanceID,
	}, registry)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestRelayCrossInstanceDelivery(t *testing.T) {
	url := startNATS(t)

	registryA := notify.NewRegistry()
	registryB := notify.NewRegistry()
	relayA := newRelay(t, url, "instance-a", registryA)
	newRelay(t, url, "instance-b", registryB)

	writerA := &frameRecorder{}
	writerB := &frameRecorder{}
	registryA.Subscribe("u-1", writerA)
	registryB.Subscribe("u-1", writerB)

	event := &notify.Event{
		NotificationID:   "11111111-2222-3333-4444-555555555555",
		NotificationType: notify.VariantWarning,
		SourceType:       notify.SourceMaintenance,
		Message:          "hydraulic pressure low",
		ActionURL:        "/machines/m-3",
		CreatedAt:        time.Now().UTC(),
	}

	if err := relayA.Forward(context.Background(), "u-1", event); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}

	// Instance B delivers the relayed event to its local subscriber.
	if !waitFor(t, 3*time.Second, func() bool { return writerB.count() == 1 }) {
		t.Fatal("instance B never delivered the relayed event")
	}

	got := writerB.last(t)
	if got.NotificationID != event.NotificationID {
		t.Errorf("NotificationID = %q, want %q", got.NotificationID, event.NotificationID)
	}
	if got.Message != event.Message {
		t.Errorf("Message = %q, want %q", got.Message, event.Message)
	}

	// Instance A must drop its own echo: its subscriber sees nothing from
	// the relay round-trip.
	time.Sleep(200 * time.Millisecond)
	if n := writerA.count(); n != 0 {
		t.Errorf("instance A delivered %d echoed frames, want 0", n)
	}
}

func TestRelayDropsUndecodablePayload(t *testing.T) {
	url := startNATS(t)

	registry := notify.NewRegistry()
	relay := newRelay(t, url, "instance-a", registry)

	writer := &frameRecorder{}
	registry.Subscribe("u-1", writer)

	// Garbage from a foreign publisher must be dropped, not delivered and
	// not fatal to the subscription.
	if err := relay.conn.Publish("fleetman.notify.u-1", []byte("not json")); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := relay.conn.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if n := writer.count(); n != 0 {
		t.Errorf("delivered %d frames for undecodable payload, want 0", n)
	}
}

func TestRelayTargetsOnlyTheAddressedUser(t *testing.T) {
	url := startNATS(t)

	registryA := notify.NewRegistry()
	registryB := notify.NewRegistry()
	relayA := newRelay(t, url, "instance-a", registryA)
	newRelay(t, url, "instance-b", registryB)

	target := &frameRecorder{}
	bystander := &frameRecorder{}
	registryB.Subscribe("u-1", target)
	registryB.Subscribe("u-2", bystander)

	event := &notify.Event{
		NotificationID: "66666666-7777-8888-9999-000000000000",
		SourceType:     notify.SourceSystem,
		Message:        "only for u-1",
		CreatedAt:      time.Now().UTC(),
	}
	if err := relayA.Forward(context.Background(), "u-1", event); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}

	if !waitFor(t, 3*time.Second, func() bool { return target.count() == 1 }) {
		t.Fatal("target user never received the relayed event")
	}
	if n := bystander.count(); n != 0 {
		t.Errorf("bystander received %d frames, want 0", n)
	}
}
