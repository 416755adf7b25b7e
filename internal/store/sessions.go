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
	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/models"
)

// Sessions reads and writes session records.
type Sessions struct {
	store *Store
}

// Get returns the session with the given id.
func (s *Sessions) Get(ctx context.Context, id string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var session *models.Session
	err := s.store.view(func(txn *badger.Txn) error {
		var err error
		session, err = getSession(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetByName returns the session with the given name.
func (s *Sessions) GetByName(ctx context.Context, name string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var session *models.Session
	err := s.store.view(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSessionName + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("session %q: %w", name, ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		session, err = getSession(txn, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Save inserts or replaces a session, keeping the name index in step.
func (s *Sessions) Save(ctx context.Context, session *models.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session.ID == "" || session.Name == "" {
		return fmt.Errorf("session id and name are required")
	}

	now := time.Now()
	return s.store.update(func(txn *badger.Txn) error {
		existing, err := getSession(txn, session.ID)
		switch {
		case err == nil:
			session.CreatedAt = existing.CreatedAt
			if existing.Name != session.Name {
				if err := txn.Delete([]byte(prefixSessionName + existing.Name)); err != nil {
					return err
				}
			}
		case errors.Is(err, ErrNotFound):
			if session.CreatedAt.IsZero() {
				session.CreatedAt = now
			}
		default:
			return err
		}

		if item, err := txn.Get([]byte(prefixSessionName + session.Name)); err == nil {
			owner, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(owner) != session.ID {
				return fmt.Errorf("session name %q already belongs to %s", session.Name, owner)
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		session.UpdatedAt = now
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if err := txn.Set([]byte(prefixSession+session.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixSessionName+session.Name), []byte(session.ID))
	})
}

// Delete removes a session and its name index entry.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.store.update(func(txn *badger.Txn) error {
		existing, err := getSession(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixSessionName + existing.Name)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixSession + id))
	})
}

// List returns every session ordered by name.
func (s *Sessions) List(ctx context.Context) ([]*models.Session, error) {
	return s.list(ctx, func(*models.Session) bool { return true })
}

// ListEnabled returns enabled sessions ordered by name.
func (s *Sessions) ListEnabled(ctx context.Context) ([]*models.Session, error) {
	return s.list(ctx, func(session *models.Session) bool { return session.Enabled })
}

func (s *Sessions) list(ctx context.Context, keep func(*models.Session) bool) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.store.view(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixSession)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var session models.Session
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &session)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("Skipping unreadable session record")
				continue
			}
			if keep(&session) {
				sessions = append(sessions, &session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, nil
}

func getSession(txn *badger.Txn, id string) (*models.Session, error) {
	item, err := txn.Get([]byte(prefixSession + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &session)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal session %q: %w", id, err)
	}
	return &session, nil
}
