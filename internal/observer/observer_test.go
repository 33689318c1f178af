// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package observer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/streamclient"
)

//nolint:gochecknoinits // silence logs during tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type fakeToaster struct {
	mu     sync.Mutex
	toasts []Toast
}

func (f *fakeToaster) ShowToast(toast Toast) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toasts = append(f.toasts, toast)
}

func (f *fakeToaster) all() []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Toast(nil), f.toasts...)
}

type fakeDesktop struct {
	mu     sync.Mutex
	shown  []DesktopNotification
	closed []string
}

func (f *fakeDesktop) Show(n DesktopNotification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = append(f.shown, n)
}

func (f *fakeDesktop) Close(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tag)
}

func (f *fakeDesktop) closedTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type mapLocalizer map[string]string

func (m mapLocalizer) Localize(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func newTestObserver(t *testing.T, mutate func(*Config)) (*Observer, *fakeToaster, *fakeDesktop) {
	t.Helper()
	toaster := &fakeToaster{}
	desktop := &fakeDesktop{}
	cfg := Config{
		UserID:  "u-1",
		Toaster: toaster,
		Desktop: desktop,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), toaster, desktop
}

func testObserverEvent(id string) *notify.Event {
	return &notify.Event{
		NotificationID:   id,
		NotificationType: notify.VariantWarning,
		SourceType:       notify.SourceMaintenance,
		Message:          "Oil change overdue",
		CreatedAt:        time.Now().UTC(),
	}
}

func TestHandleShowsToastAndDesktop(t *testing.T) {
	observer, toaster, desktop := newTestObserver(t, nil)

	observer.handle(testObserverEvent("n-1"))

	toasts := toaster.all()
	if len(toasts) != 1 {
		t.Fatalf("toasts = %d, want 1", len(toasts))
	}
	if toasts[0].Variant != notify.VariantWarning {
		t.Errorf("variant = %q, want warning", toasts[0].Variant)
	}
	if toasts[0].Duration != 5*time.Second {
		t.Errorf("duration = %v, want 5s", toasts[0].Duration)
	}
	if toasts[0].Title != "Maintenance" {
		t.Errorf("title = %q, want Maintenance", toasts[0].Title)
	}

	desktop.mu.Lock()
	defer desktop.mu.Unlock()
	if len(desktop.shown) != 1 || desktop.shown[0].Tag != "n-1" {
		t.Errorf("desktop notifications = %+v, want one tagged n-1", desktop.shown)
	}
}

func TestHandleDefaultsUnknownVariantToInfo(t *testing.T) {
	tests := []struct {
		name    string
		variant notify.Variant
		want    notify.Variant
	}{
		{"empty variant", "", notify.VariantInfo},
		{"unknown variant", "catastrophic", notify.VariantInfo},
		{"known variant kept", notify.VariantError, notify.VariantError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer, toaster, _ := newTestObserver(t, nil)

			event := testObserverEvent("n-1")
			event.NotificationType = tt.variant
			observer.handle(event)

			toasts := toaster.all()
			if len(toasts) != 1 {
				t.Fatalf("toasts = %d, want 1", len(toasts))
			}
			if toasts[0].Variant != tt.want {
				t.Errorf("variant = %q, want %q", toasts[0].Variant, tt.want)
			}
		})
	}
}

func TestHandleTitleLocalization(t *testing.T) {
	t.Run("localizer wins", func(t *testing.T) {
		observer, toaster, _ := newTestObserver(t, func(cfg *Config) {
			cfg.Localizer = mapLocalizer{"notifications.title.maintenance": "Wartung"}
		})

		observer.handle(testObserverEvent("n-1"))

		if got := toaster.all()[0].Title; got != "Wartung" {
			t.Errorf("title = %q, want Wartung", got)
		}
	})

	t.Run("missing key falls back to built-in", func(t *testing.T) {
		observer, toaster, _ := newTestObserver(t, func(cfg *Config) {
			cfg.Localizer = mapLocalizer{}
		})

		observer.handle(testObserverEvent("n-1"))

		if got := toaster.all()[0].Title; got != "Maintenance" {
			t.Errorf("title = %q, want Maintenance", got)
		}
	})

	t.Run("unknown source type gets generic title", func(t *testing.T) {
		observer, toaster, _ := newTestObserver(t, nil)

		event := testObserverEvent("n-1")
		event.SourceType = "TELEMATICS"
		observer.handle(event)

		if got := toaster.all()[0].Title; got != "Notification" {
			t.Errorf("title = %q, want Notification", got)
		}
	})
}

func TestHandleActionURLPolicy(t *testing.T) {
	tests := []struct {
		name      string
		actionURL string
		want      string
	}{
		{"internal path kept", "/work-orders/42", "/work-orders/42"},
		{"nested path kept", "/machines/m-7/inspections?tab=open", "/machines/m-7/inspections?tab=open"},
		{"absolute URL dropped", "https://example.com/phish", ""},
		{"scheme-relative dropped", "//example.com/phish", ""},
		{"javascript scheme dropped", "javascript:alert(1)", ""},
		{"relative without slash dropped", "work-orders/42", ""},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer, toaster, desktop := newTestObserver(t, nil)

			event := testObserverEvent("n-1")
			event.ActionURL = tt.actionURL
			observer.handle(event)

			if got := toaster.all()[0].ActionURL; got != tt.want {
				t.Errorf("toast ActionURL = %q, want %q", got, tt.want)
			}
			desktop.mu.Lock()
			if got := desktop.shown[0].ActionURL; got != tt.want {
				t.Errorf("desktop ActionURL = %q, want %q", got, tt.want)
			}
			desktop.mu.Unlock()
		})
	}
}

func TestHandleInvalidatesCache(t *testing.T) {
	queryCache := cache.New(time.Minute)
	queryCache.Set(cache.UserListKey("u-1"), "stale list")
	queryCache.Set(cache.UserUnreadKey("u-1"), 7)
	queryCache.Set(cache.UserListKey("u-2"), "other user")

	observer, _, _ := newTestObserver(t, func(cfg *Config) {
		cfg.Cache = queryCache
	})

	observer.handle(testObserverEvent("n-1"))

	if _, ok := queryCache.Get(cache.UserListKey("u-1")); ok {
		t.Error("list cache entry survived invalidation")
	}
	if _, ok := queryCache.Get(cache.UserUnreadKey("u-1")); ok {
		t.Error("unread cache entry survived invalidation")
	}
	if _, ok := queryCache.Get(cache.UserListKey("u-2")); !ok {
		t.Error("other user's cache entry was invalidated")
	}
}

func TestObserverLifecycle(t *testing.T) {
	frames := make(chan []byte, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(notify.ConnectedFrame()); err != nil {
			return
		}
		flusher.Flush()
		for {
			select {
			case frame := <-frames:
				if _, err := w.Write(frame); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	client, err := streamclient.New(streamclient.Config{
		BaseURL:        server.URL,
		Token:          "t",
		InitialBackoff: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("streamclient.New() error: %v", err)
	}
	t.Cleanup(client.Close)

	observer, toaster, desktop := newTestObserver(t, func(cfg *Config) {
		cfg.Client = client
	})

	ctx := context.Background()
	observer.Start(ctx)
	observer.Start(ctx) // second Start must be a no-op

	frame, err := notify.EncodeDataFrame(testObserverEvent("n-1"))
	if err != nil {
		t.Fatalf("EncodeDataFrame() error: %v", err)
	}
	frames <- frame

	deadline := time.Now().Add(3 * time.Second)
	for len(toaster.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := len(toaster.all()); got != 1 {
		t.Fatalf("toasts = %d, want exactly 1 despite double Start", got)
	}

	observer.Stop()

	if tags := desktop.closedTags(); len(tags) != 1 || tags[0] != "n-1" {
		t.Errorf("closed tags = %v, want [n-1]", tags)
	}

	// Events after Stop must not reach this observer.
	frames <- frame
	time.Sleep(100 * time.Millisecond)
	if got := len(toaster.all()); got != 1 {
		t.Errorf("toasts after Stop = %d, want still 1", got)
	}
}
