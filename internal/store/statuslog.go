// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/tomtom215/roomwatch/internal/models"
)

// StatusLog keeps the latest connection status per (session, room).
type StatusLog struct {
	store *Store
}

func statusKey(sessionName, roomID string) []byte {
	return []byte(prefixStatus + sessionName + keySep + roomID)
}

// Upsert records the current status of a room, keeping the original
// creation time when the record already exists.
func (l *StatusLog) Upsert(ctx context.Context, sessionName, roomID, status, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	key := statusKey(sessionName, roomID)

	return l.store.update(func(txn *badger.Txn) error {
		rec := models.RoomStatusRecord{
			SessionName: sessionName,
			RoomID:      roomID,
			CreatedAt:   now,
		}
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var existing models.RoomStatusRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); err == nil {
				rec.CreatedAt = existing.CreatedAt
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		rec.Status = status
		rec.Message = message
		rec.UpdatedAt = now

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("marshal status record: %w", err)
		}
		return txn.Set(key, data)
	})
}

// List returns status records, newest update first. An empty sessionName
// lists every session.
func (l *StatusLog) List(ctx context.Context, sessionName string) ([]models.RoomStatusRecord, error) {
	prefix := []byte(prefixStatus)
	if sessionName != "" {
		prefix = []byte(prefixStatus + sessionName + keySep)
	}

	var records []models.RoomStatusRecord
	err := l.store.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.RoomStatusRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list status log: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].UpdatedAt.After(records[j].UpdatedAt) })
	return records, nil
}

// DeleteOlderThan removes records whose last update is before cutoff and
// returns how many were removed.
func (l *StatusLog) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale [][]byte
	err := l.store.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixStatus)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.RoomStatusRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if rec.UpdatedAt.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan status log: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := l.store.deleteKeys(stale); err != nil {
		return 0, err
	}
	return len(stale), nil
}
