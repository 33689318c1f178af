// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package store persists notification records in Badger so clients can
// backfill missed notifications after a reconnect.
//
// Key layout:
//
//	user/<userID>/<inverted-ns-timestamp>/<notificationID> -> Notification JSON
//	unread/<userID>/<notificationID>                       -> (empty)
//
// The inverted timestamp makes lexicographic iteration return newest
// records first. Unread state lives in a separate keyspace so counting
// unread is a keys-only prefix scan.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fleetman/internal/logging"
	"github.com/tomtom215/fleetman/internal/metrics"
	"github.com/tomtom215/fleetman/internal/notify"
)

// ErrNotFound is returned when a notification ID does not exist for the user.
var ErrNotFound = errors.New("notification not found")

// Notification is a stored notification record: the wire event plus
// per-user read state.
type Notification struct {
	notify.Event
	Read bool `json:"read"`
}

// Options configures the notification store.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without disk persistence. Used in tests and
	// ephemeral deployments.
	InMemory bool

	// Retention is how long records are kept. Badger expires entries
	// via per-key TTL; zero means keep forever.
	Retention time.Duration
}

// NotificationStore is a Badger-backed notification archive.
type NotificationStore struct {
	db        *badger.DB
	retention time.Duration
	logger    zerolog.Logger
}

// Open opens (or creates) the notification store.
func Open(opts Options) (*NotificationStore, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	// Badger's default logger writes unstructured lines to stderr.
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	return &NotificationStore{
		db:        db,
		retention: opts.Retention,
		logger:    logging.WithComponent("store"),
	}, nil
}

// Close closes the underlying database.
func (s *NotificationStore) Close() error {
	return s.db.Close()
}

// Save persists one notification for a user and marks it unread.
func (s *NotificationStore) Save(ctx context.Context, userID string, event *notify.Event) error {
	start := time.Now()
	err := s.save(userID, event)
	metrics.RecordStoreOperation("save", time.Since(start), err)
	if err != nil {
		return err
	}

	logging.Ctx(ctx).Debug().
		Str("user_id", userID).
		Str("notification_id", event.NotificationID).
		Msg("Notification persisted")
	return nil
}

func (s *NotificationStore) save(userID string, event *notify.Event) error {
	record := Notification{Event: *event, Read: false}
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", event.NotificationID, err)
	}

	recordKey := userKey(userID, event.CreatedAt, event.NotificationID)
	unread := unreadKey(userID, event.NotificationID)

	return s.db.Update(func(txn *badger.Txn) error {
		recordEntry := badger.NewEntry(recordKey, value)
		unreadEntry := badger.NewEntry(unread, nil)
		if s.retention > 0 {
			recordEntry = recordEntry.WithTTL(s.retention)
			unreadEntry = unreadEntry.WithTTL(s.retention)
		}
		if err := txn.SetEntry(recordEntry); err != nil {
			return err
		}
		return txn.SetEntry(unreadEntry)
	})
}

// List returns a user's notifications newest first.
// offset skips that many records; limit caps the page size.
func (s *NotificationStore) List(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	start := time.Now()
	records, err := s.list(userID, limit, offset)
	metrics.RecordStoreOperation("list", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	_ = ctx
	return records, nil
}

func (s *NotificationStore) list(userID string, limit, offset int) ([]Notification, error) {
	prefix := []byte("user/" + userID + "/")
	records := make([]Notification, 0, limit)

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		it := txn.NewIterator(itOpts)
		defer it.Close()

		skipped := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && len(records) >= limit {
				break
			}

			var record Notification
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				// One corrupt record must not hide the rest of the page.
				s.logger.Error().Err(err).
					Str("key", string(it.Item().Key())).
					Msg("Skipping undecodable notification record")
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	return records, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	count, err := s.unreadCount(userID)
	metrics.RecordStoreOperation("unread_count", time.Since(start), err)
	_ = ctx
	return count, err
}

func (s *NotificationStore) unreadCount(userID string) (int, error) {
	prefix := []byte("unread/" + userID + "/")
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = prefix
		itOpts.PrefetchValues = false
		it := txn.NewIterator(itOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count unread for %s: %w", userID, err)
	}
	return count, nil
}

// MarkRead marks one notification as read.
// Returns ErrNotFound if the user has no such notification.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	start := time.Now()
	err := s.markRead(userID, notificationID)
	metrics.RecordStoreOperation("mark_read", time.Since(start), err)
	_ = ctx
	return err
}

func (s *NotificationStore) markRead(userID, notificationID string) error {
	recordKey, err := s.findRecordKey(userID, notificationID)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := s.setRecordRead(txn, recordKey); err != nil {
			return err
		}
		return txn.Delete(unreadKey(userID, notificationID))
	})
}

// MarkAllRead marks every notification of a user as read and returns the
// number of records affected.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	start := time.Now()
	affected, err := s.markAllRead(userID)
	metrics.RecordStoreOperation("mark_all_read", time.Since(start), err)
	_ = ctx
	return affected, err
}

func (s *NotificationStore) markAllRead(userID string) (int, error) {
	unreadPrefix := []byte("unread/" + userID + "/")
	affected := 0

	err := s.db.Update(func(txn *badger.Txn) error {
		itOpts := badger.DefaultIteratorOptions
		itOpts.Prefix = unreadPrefix
		itOpts.PrefetchValues = false
		it := txn.NewIterator(itOpts)

		var ids []string
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(unreadPrefix)))
		}
		it.Close()

		for _, id := range ids {
			recordKey, err := s.findRecordKeyTxn(txn, userID, id)
			if err == nil {
				if err := s.setRecordRead(txn, recordKey); err != nil {
					return err
				}
			}
			if err := txn.Delete(unreadKey(userID, id)); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", userID, err)
	}
	return affected, nil
}

// RunValueLogGC runs one Badger value-log GC pass.
// Returns badger.ErrNoRewrite when there was nothing to collect; callers
// treat that as success.
func (s *NotificationStore) RunValueLogGC() error {
	return s.db.RunValueLogGC(0.5)
}

// setRecordRead rewrites a record with Read set to true, preserving the
// remaining TTL.
func (s *NotificationStore) setRecordRead(txn *badger.Txn, recordKey []byte) error {
	item, err := txn.Get(recordKey)
	if err != nil {
		return err
	}

	var record Notification
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return err
	}
	if record.Read {
		return nil
	}
	record.Read = true

	value, err := json.Marshal(record)
	if err != nil {
		return err
	}

	entry := badger.NewEntry(recordKey, value)
	if expires := item.ExpiresAt(); expires > 0 {
		remaining := time.Until(time.Unix(int64(expires), 0))
		if remaining <= 0 {
			// Record is about to expire anyway.
			return nil
		}
		entry = entry.WithTTL(remaining)
	}
	return txn.SetEntry(entry)
}

// findRecordKey locates the full record key for a notification ID.
func (s *NotificationStore) findRecordKey(userID, notificationID string) ([]byte, error) {
	var key []byte
	err := s.db.View(func(txn *badger.Txn) error {
		found, err := s.findRecordKeyTxn(txn, userID, notificationID)
		key = found
		return err
	})
	return key, err
}

func (s *NotificationStore) findRecordKeyTxn(txn *badger.Txn, userID, notificationID string) ([]byte, error) {
	prefix := []byte("user/" + userID + "/")
	suffix := []byte("/" + notificationID)

	itOpts := badger.DefaultIteratorOptions
	itOpts.Prefix = prefix
	itOpts.PrefetchValues = false
	it := txn.NewIterator(itOpts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().Key()
		if len(key) > len(suffix) && string(key[len(key)-len(suffix):]) == string(suffix) {
			return it.Item().KeyCopy(nil), nil
		}
	}
	return nil, ErrNotFound
}

// userKey builds the record key. The timestamp component is inverted so
// ascending key order is newest-first.
func userKey(userID string, createdAt time.Time, notificationID string) []byte {
	inverted := uint64(math.MaxInt64 - createdAt.UnixNano())
	return []byte(fmt.Sprintf("user/%s/%020d/%s", userID, inverted, notificationID))
}

func unreadKey(userID, notificationID string) []byte {
	return []byte("unread/" + userID + "/" + notificationID)
}
