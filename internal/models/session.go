// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package models

import (
	"strconv"
	"time"
)

// Session is an account configured to join a set of rooms. Records are
// written by the admin tooling; monitoring only reads them. The monitoring
// core identifies a session by Name, not ID.
type Session struct {
	ID                    string      `json:"id" validate:"required"`
	Name                  string      `json:"name" validate:"required,max=128"`
	Remark                string      `json:"remark,omitempty"`
	Data                  SessionData `json:"data"`
	WebhookURL            string      `json:"webhook_url,omitempty" validate:"omitempty,url"`
	LeaderboardWebhookURL string      `json:"leaderboard_webhook_url,omitempty" validate:"omitempty,url"`
	Enabled               bool        `json:"enabled"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// SessionData holds the vendor credentials and the rooms to join.
type SessionData struct {
	Rooms []int64 `json:"rooms" validate:"dive,gt=0"`

	// Account is the vendor chat account, e.g. "wp_20396299".
	Account string `json:"account,omitempty"`

	// Token authenticates both the chat socket and the vendor HTTP API.
	Token string `json:"token,omitempty"`
}

// UserID returns the numeric part of the vendor account ("wp_123" -> "123").
func (d SessionData) UserID() string {
	return StripAccountPrefix(d.Account)
}

// RoomIDs returns the configured rooms as strings, the form used on the wire.
func (s *Session) RoomIDs() []string {
	ids := make([]string, 0, len(s.Data.Rooms))
	for _, r := range s.Data.Rooms {
		ids = append(ids, strconv.FormatInt(r, 10))
	}
	return ids
}

// StripAccountPrefix removes the vendor's "<prefix>_" from an account id.
func StripAccountPrefix(account string) string {
	for i := 0; i < len(account); i++ {
		if account[i] == '_' {
			return account[i+1:]
		}
	}
	return account
}

// RoomTask is one (session, room) pair visited by the leaderboard scheduler.
type RoomTask struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
	RoomID      string `json:"room_id"`
	WebhookKey  string `json:"webhook_key"`
}

// SessionContextType is the mirror-context type hosting a monitoring session.
// A session named n runs in the context with view id "session_n".
const SessionContextType = "session"
