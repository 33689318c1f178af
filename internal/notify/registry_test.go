// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package notify

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/fleetman/internal/logging"
)

//nolint:gochecknoinits // silence logs during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// recordWriter captures frames written to one fake device connection.
type recordWriter struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (w *recordWriter) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	w.frames = append(w.frames, buf)
	return nil
}

func (w *recordWriter) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *recordWriter) dataFrames() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out [][]byte
	for _, f := range w.frames {
		if bytes.HasPrefix(f, []byte("data:")) {
			out = append(out, f)
		}
	}
	return out
}

func (w *recordWriter) commentFrames() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out [][]byte
	for _, f := range w.frames {
		if bytes.HasPrefix(f, []byte(":")) {
			out = append(out, f)
		}
	}
	return out
}

func testEvent(id string) *Event {
	return &Event{
		NotificationID:   id,
		NotificationType: VariantInfo,
		SourceType:       SourceSystem,
		Message:          "machine 42 needs inspection",
	}
}

func TestPublishFansOutToAllUserDevices(t *testing.T) {
	r := NewRegistry()

	phone := &recordWriter{}
	laptop := &recordWriter{}
	other := &recordWriter{}
	r.Subscribe("alice", phone)
	r.Subscribe("alice", laptop)
	r.Subscribe("bob", other)

	delivered := r.Publish("alice", testEvent("n1"))
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}

	if len(phone.dataFrames()) != 1 {
		t.Error("phone should have received the event")
	}
	if len(laptop.dataFrames()) != 1 {
		t.Error("laptop should have received the event")
	}
	if len(other.dataFrames()) != 0 {
		t.Error("bob must not receive alice's event")
	}
}

func TestPublishWithNoSubscribersIsNoOp(t *testing.T) {
	r := NewRegistry()

	delivered := r.Publish("ghost", testEvent("n1"))
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}

	stats := r.GetStats()
	if stats.Connections != 0 || stats.Users != 0 {
		t.Errorf("registry should stay empty, got %+v", stats)
	}
}

func TestDeadHandleDroppedWithoutAffectingSiblings(t *testing.T) {
	r := NewRegistry()

	healthy := &recordWriter{}
	dead := &recordWriter{}
	r.Subscribe("alice", healthy)
	r.Subscribe("alice", dead)
	dead.fail(errors.New("broken pipe"))

	if delivered := r.Publish("alice", testEvent("n1")); delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}

	stats := r.GetStats()
	if stats.Connections != 1 {
		t.Errorf("dead handle should be dropped, connections = %d", stats.Connections)
	}

	// Subsequent publishes keep flowing to the healthy device.
	if delivered := r.Publish("alice", testEvent("n2")); delivered != 1 {
		t.Errorf("second publish delivered = %d, want 1", delivered)
	}
	if len(healthy.dataFrames()) != 2 {
		t.Errorf("healthy device frames = %d, want 2", len(healthy.dataFrames()))
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()

	w := &recordWriter{}
	sub := r.Subscribe("alice", w)

	r.Unsubscribe(sub)
	r.Unsubscribe(sub) // second call must be a no-op
	r.Unsubscribe(nil) // nil handle tolerated

	stats := r.GetStats()
	if stats.Connections != 0 {
		t.Errorf("connections = %d, want 0", stats.Connections)
	}
}

func TestLastUnsubscribeRemovesUserEntry(t *testing.T) {
	r := NewRegistry()

	s1 := r.Subscribe("alice", &recordWriter{})
	s2 := r.Subscribe("alice", &recordWriter{})

	r.Unsubscribe(s1)
	stats := r.GetStats()
	if stats.ConnectionsPerUser["alice"] != 1 {
		t.Errorf("alice connections = %d, want 1", stats.ConnectionsPerUser["alice"])
	}

	r.Unsubscribe(s2)
	stats = r.GetStats()
	if _, ok := stats.ConnectionsPerUser["alice"]; ok {
		t.Error("alice entry should be removed after last unsubscribe")
	}
	if stats.Users != 0 {
		t.Errorf("users = %d, want 0", stats.Users)
	}
}

func TestTwoDevicesThenOneDisconnects(t *testing.T) {
	r := NewRegistry()

	phone := &recordWriter{}
	laptop := &recordWriter{}
	phoneSub := r.Subscribe("alice", phone)
	r.Subscribe("alice", laptop)

	if delivered := r.Publish("alice", testEvent("n1")); delivered != 2 {
		t.Fatalf("first publish delivered = %d, want 2", delivered)
	}

	r.Unsubscribe(phoneSub)

	if delivered := r.Publish("alice", testEvent("n2")); delivered != 1 {
		t.Errorf("second publish delivered = %d, want 1", delivered)
	}
	if len(phone.dataFrames()) != 1 {
		t.Errorf("disconnected phone frames = %d, want 1", len(phone.dataFrames()))
	}
	if len(laptop.dataFrames()) != 2 {
		t.Errorf("laptop frames = %d, want 2", len(laptop.dataFrames()))
	}
}

func TestSendKeepAliveReachesAllConnections(t *testing.T) {
	r := NewRegistry()

	a := &recordWriter{}
	b := &recordWriter{}
	r.Subscribe("alice", a)
	r.Subscribe("bob", b)

	r.SendKeepAlive()

	for name, w := range map[string]*recordWriter{"alice": a, "bob": b} {
		comments := w.commentFrames()
		if len(comments) != 1 {
			t.Errorf("%s comment frames = %d, want 1", name, len(comments))
			continue
		}
		if !bytes.Equal(comments[0], []byte(": ping\n\n")) {
			t.Errorf("%s keep-alive frame = %q", name, comments[0])
		}
	}
}

func TestSendKeepAliveDropsDeadConnections(t *testing.T) {
	r := NewRegistry()

	dead := &recordWriter{}
	r.Subscribe("alice", dead)
	dead.fail(errors.New("connection reset"))

	r.SendKeepAlive()

	if stats := r.GetStats(); stats.Connections != 0 {
		t.Errorf("connections = %d, want 0 after keep-alive failure", stats.Connections)
	}
}

func TestConcurrentSubscribePublishUnsubscribe(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := r.Subscribe("alice", &recordWriter{})
				r.Publish("alice", testEvent("n"))
				r.Unsubscribe(sub)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			r.SendKeepAlive()
			r.GetStats()
		}
	}()
	wg.Wait()

	if stats := r.GetStats(); stats.Connections != 0 {
		t.Errorf("connections = %d, want 0 after all goroutines finished", stats.Connections)
	}
}

func TestCloseAllReleasesEverySubscription(t *testing.T) {
	r := NewRegistry()

	subs := []*Subscription{
		r.Subscribe("alice", &recordWriter{}),
		r.Subscribe("alice", &recordWriter{}),
		r.Subscribe("bob", &recordWriter{}),
	}

	r.CloseAll()

	for i, sub := range subs {
		select {
		case <-sub.Done():
		default:
			t.Errorf("subscription %d still open after CloseAll", i)
		}
	}
	if stats := r.GetStats(); stats.Connections != 0 {
		t.Errorf("connections = %d, want 0 after CloseAll", stats.Connections)
	}
}

func TestDoneClosedWhenWriterFails(t *testing.T) {
	r := NewRegistry()

	w := &recordWriter{}
	sub := r.Subscribe("alice", w)

	w.fail(errors.New("broken pipe"))
	r.Publish("alice", testEvent("n1"))

	select {
	case <-sub.Done():
	default:
		t.Error("write failure should release the subscription's Done channel")
	}
}
