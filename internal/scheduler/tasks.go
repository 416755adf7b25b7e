// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package scheduler

import (
	"context"
	"fmt"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/notifier"
)

// SessionLister lists enabled sessions.
type SessionLister interface {
	ListEnabled(ctx context.Context) ([]*models.Session, error)
}

// SessionTasks derives room tasks from enabled sessions whose mirror
// context is live and whose leaderboard webhook has a key.
type SessionTasks struct {
	sessions SessionLister
	activity Activity
}

// NewSessionTasks creates a TaskSource over sessions.
func NewSessionTasks(sessions SessionLister, activity Activity) *SessionTasks {
	return &SessionTasks{sessions: sessions, activity: activity}
}

// RoomTasks returns one task per room, in session then room order.
func (t *SessionTasks) RoomTasks(ctx context.Context) ([]models.RoomTask, error) {
	sessions, err := t.sessions.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("list enabled sessions: %w", err)
	}

	log := logging.Ctx(ctx).With().Str("component", "scheduler").Logger()
	var tasks []models.RoomTask
	for _, s := range sessions {
		if s.LeaderboardWebhookURL == "" {
			continue
		}
		viewID := mirror.Key{Type: models.SessionContextType, Name: s.Name}.ViewID()
		if !t.activity.IsInUse(viewID) {
			continue
		}
		key, err := notifier.ExtractKey(s.LeaderboardWebhookURL)
		if err != nil {
			log.Error().Str("session", s.Name).Str("webhook_url", s.LeaderboardWebhookURL).
				Msg("Leaderboard webhook URL has no key, skipping session")
			continue
		}
		rooms := s.RoomIDs()
		if len(rooms) == 0 {
			log.Info().Str("session", s.Name).Msg("Session has no rooms, skipping")
			continue
		}
		for _, room := range rooms {
			tasks = append(tasks, models.RoomTask{
				SessionID:   s.ID,
				SessionName: s.Name,
				RoomID:      room,
				WebhookKey:  key,
			})
		}
		log.Debug().Str("session", s.Name).Int("rooms", len(rooms)).Msg("Added room tasks")
	}
	return tasks, nil
}
