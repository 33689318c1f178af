// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package notify

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// SSE wire frames. Comment frames (leading ":") are connection plumbing
// that event consumers ignore; data frames carry one JSON-encoded Event.
var (
	connectedFrame = []byte(": connected\n\n")
	keepAliveFrame = []byte(": ping\n\n")
)

// ConnectedFrame is the acknowledgment comment sent once when a stream opens.
func ConnectedFrame() []byte {
	return connectedFrame
}

// KeepAliveFrame is the periodic comment that keeps idle connections open
// through proxies.
func KeepAliveFrame() []byte {
	return keepAliveFrame
}

// EncodeDataFrame serializes an event into an SSE data frame:
//
//	data: {"notificationId":...}\n\n
//
// The payload is a single line; goccy/go-json never emits raw newlines
// inside a JSON document.
func EncodeDataFrame(e *Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.NotificationID, err)
	}

	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// IsCommentFrame reports whether a raw SSE line is a comment frame.
func IsCommentFrame(line []byte) bool {
	return len(line) > 0 && line[0] == ':'
}

// DecodeDataLine parses one "data: <JSON>" line into an Event.
// Returns (nil, nil) for comment frames and blank lines.
func DecodeDataLine(line []byte) (*Event, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 || IsCommentFrame(line) {
		return nil, nil
	}

	payload, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, fmt.Errorf("malformed stream line %q", line)
	}
	payload = bytes.TrimLeft(payload, " ")

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return &event, nil
}
