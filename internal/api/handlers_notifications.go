// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/fleetman/internal/auth"
	"github.com/tomtom215/fleetman/internal/cache"
	"github.com/tomtom215/fleetman/internal/store"
)

// listPage is the cached shape of one notification list response.
type listPage struct {
	Items  []store.Notification
	Limit  int
	Offset int
}

// ListNotifications returns the authenticated user's notifications newest
// first. The default page (no explicit paging) is served from the cache;
// the observer invalidates it when a live event arrives.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		rw.Unauthorized("Authentication required")
		return
	}

	query := r.URL.Query()
	limit, offset := h.pageParams(query.Get("limit"), query.Get("offset"))
	defaultPage := query.Get("limit") == "" && query.Get("offset") == ""

	if defaultPage {
		if cached, hit := h.cache.Get(cache.UserListKey(claims.UserID)); hit {
			if page, ok := cached.(listPage); ok {
				rw.SuccessWithPagination(page.Items, &PaginationMeta{
					Count:   len(page.Items),
					Offset:  page.Offset,
					Limit:   page.Limit,
					HasMore: len(page.Items) == page.Limit,
				})
				return
			}
		}
	}

	items, err := h.store.List(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		rw.StoreError(err)
		return
	}

	if defaultPage {
		h.cache.Set(cache.UserListKey(claims.UserID), listPage{
			Items:  items,
			Limit:  limit,
			Offset: offset,
		})
	}

	rw.SuccessWithPagination(items, &PaginationMeta{
		Count:   len(items),
		Offset:  offset,
		Limit:   limit,
		HasMore: len(items) == limit,
	})
}

// UnreadCount returns the authenticated user's unread notification count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		rw.Unauthorized("Authentication required")
		return
	}

	if cached, hit := h.cache.Get(cache.UserUnreadKey(claims.UserID)); hit {
		if count, ok := cached.(int); ok {
			rw.Success(map[string]int{"unreadCount": count})
			return
		}
	}

	count, err := h.store.UnreadCount(r.Context(), claims.UserID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	h.cache.Set(cache.UserUnreadKey(claims.UserID), count)

	rw.Success(map[string]int{"unreadCount": count})
}

// MarkRead marks one notification as read for the authenticated user.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		rw.Unauthorized("Authentication required")
		return
	}

	notificationID := chi.URLParam(r, "id")
	if notificationID == "" {
		rw.BadRequest("Notification ID is required")
		return
	}

	err := h.store.MarkRead(r.Context(), claims.UserID, notificationID)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Notification not found")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	h.cache.InvalidateUser(claims.UserID)
	rw.Success(map[string]string{"notificationId": notificationID, "status": "read"})
}

// MarkAllRead marks every notification of the authenticated user as read.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		rw.Unauthorized("Authentication required")
		return
	}

	affected, err := h.store.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		rw.StoreError(err)
		return
	}

	h.cache.InvalidateUser(claims.UserID)
	rw.Success(map[string]int{"markedRead": affected})
}
