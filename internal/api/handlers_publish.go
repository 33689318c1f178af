// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fleetman/internal/notify"
	"github.com/tomtom215/fleetman/internal/validation"
)

// publishRequest is the admin publish payload. Identification and timestamp
// fields are filled in by the dispatcher, so producers only supply domain
// fields.
type publishRequest struct {
	UserID           string                 `json:"userId"`
	NotificationType notify.Variant         `json:"notificationType,omitempty"`
	SourceType       notify.SourceType      `json:"sourceType"`
	Message          string                 `json:"message"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	ActionURL        string                 `json:"actionUrl,omitempty"`
}

// PublishNotification lets an administrator push a notification to a user.
// The event is validated, persisted, fanned out to the user's open streams,
// and forwarded to the relay in one call.
func (h *Handler) PublishNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON payload")
		return
	}

	if req.UserID == "" {
		rw.BadRequest("userId is required")
		return
	}

	event := &notify.Event{
		NotificationType: req.NotificationType,
		SourceType:       req.SourceType,
		Message:          req.Message,
		Metadata:         req.Metadata,
		ActionURL:        req.ActionURL,
	}

	if err := h.dispatcher.Dispatch(r.Context(), req.UserID, event); err != nil {
		var validationErr *validation.RequestValidationError
		if errors.As(err, &validationErr) {
			apiErr := validationErr.ToAPIError()
			rw.ValidationError(apiErr.Message, apiErr.Details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	rw.Created(event)
}
