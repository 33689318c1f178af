// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleetman/internal/auth"
	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/notify"
)

// errStreamClosed marks a frame write that arrived after the handler tore
// the connection down. The registry treats it like any other dead handle.
var errStreamClosed = errors.New("stream connection closed")

// streamWriter adapts the SSE response to notify.DeviceWriter.
//
// The mutex serializes writes (the registry fans out events and keep-alives
// from different goroutines) and guards the closed flag: the handler closes
// the writer before returning, so a publish that snapshotted this handle
// just before unsubscribe gets an error instead of writing into a response
// net/http has already recycled.
type streamWriter struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	flusher      http.Flusher
	control      *http.ResponseController
	writeTimeout time.Duration
	closed       bool
}

func newStreamWriter(w http.ResponseWriter, flusher http.Flusher, writeTimeout time.Duration) *streamWriter {
	return &streamWriter{
		w:            w,
		flusher:      flusher,
		control:      http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}
}

// WriteFrame writes one complete SSE frame and flushes it to the client.
// Each write carries its own deadline so one stalled client cannot hold up
// the registry's sequential fan-out for everyone else.
func (sw *streamWriter) WriteFrame(frame []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return errStreamClosed
	}

	// Deadline errors are deliberately dropped: test recorders and exotic
	// writers don't support deadlines, and a frame write without one is
	// merely unbounded, not broken.
	if sw.writeTimeout > 0 {
		_ = sw.control.SetWriteDeadline(time.Now().Add(sw.writeTimeout))
	}
	if _, err := sw.w.Write(frame); err != nil {
		return err
	}
	sw.flusher.Flush()
	if sw.writeTimeout > 0 {
		_ = sw.control.SetWriteDeadline(time.Time{})
	}
	return nil
}

// close marks the writer dead. It blocks until any in-flight write has
// finished, so once it returns no frame can land on the response.
func (sw *streamWriter) close() {
	sw.mu.Lock()
	sw.closed = true
	sw.mu.Unlock()
}

// Stream serves the per-user SSE notification stream.
//
// Authentication happens here, not in middleware, so every rejection is a
// plain 401/403 JSON response issued before a single byte of stream output.
// The browser EventSource API cannot set headers, so the token may arrive
// in the "token" query parameter instead of the Authorization header.
//
// Once accepted, the handler writes the ": connected" handshake comment,
// registers the connection, and parks until the client goes away or the
// registry closes the subscription (write failure, server shutdown). Frame
// traffic after the handshake is driven entirely by the registry.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	token := auth.ExtractToken(r)
	if token == "" {
		rw.Unauthorized("Authentication required")
		return
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Stream token rejected")
		rw.Unauthorized("Invalid or expired token")
		return
	}

	userID := claims.UserID
	if pathUser := chi.URLParam(r, "userID"); pathUser != "" && pathUser != claims.UserID {
		// Only admins may attach to another user's stream.
		if claims.Role != "admin" {
			rw.Forbidden("Cannot subscribe to another user's stream")
			return
		}
		userID = pathUser
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		rw.Error(http.StatusInternalServerError, ErrCodeInternalError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Stop nginx-style proxies from buffering the stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := newStreamWriter(w, flusher, h.cfg.Notify.WriteTimeout)

	// The handshake comment goes out before the subscription exists, so
	// the client never sees a data frame ahead of ": connected".
	if err := sw.WriteFrame(notify.ConnectedFrame()); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Client gone before stream handshake")
		return
	}

	sub := h.registry.Subscribe(userID, sw)

	logging.Ctx(r.Context()).Info().
		Str("user_id", userID).
		Str("remote_addr", r.RemoteAddr).
		Msg("Notification stream opened")

	select {
	case <-r.Context().Done():
	case <-sub.Done():
	}

	// Close the writer before unsubscribing: a concurrent publish may have
	// snapshotted this subscription already, and its write must fail once
	// this handler returns.
	sw.close()
	h.registry.Unsubscribe(sub)

	logging.Ctx(r.Context()).Info().
		Str("user_id", userID).
		Msg("Notification stream closed")
}
