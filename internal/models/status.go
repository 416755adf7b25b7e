// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package models

import "time"

// RoomStatusRecord is the latest connection status of one room under one
// session. There is at most one record per (SessionName, RoomID).
type RoomStatusRecord struct {
	SessionName string    `json:"session_name"`
	RoomID      string    `json:"room_id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MemberArrival is a qualifying member-arrival event, after filtering and
// before deduplication.
type MemberArrival struct {
	SessionName string            `json:"session_name"`
	RoomID      string            `json:"room_id"`
	MemberID    string            `json:"member_id"`
	Nickname    string            `json:"nickname,omitempty"`
	Attrs       map[string]string `json:"attrs,omitempty"`
	At          time.Time         `json:"at"`
}
