// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package room

import (
	"time"

	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/vendor"
)

// Key identifies one room connection of one session.
type Key struct {
	RoomID    string
	SessionID string
}

// String renders the key as room_session.
func (k Key) String() string {
	return k.RoomID + "_" + k.SessionID
}

// Status is the connection state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusAbandoned    Status = "abandoned"
)

// EventKind names an Event variant.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventDisconnected  EventKind = "disconnected"
	EventMemberArrived EventKind = "member_arrived"
)

// Event is emitted by a Manager on its Events channel.
//
//   - Connected: Key
//   - Disconnected: Key, Cause, Err, Status (connecting when a retry is
//     scheduled, disconnected for a duplicate join, abandoned when the
//     retry budget is spent), ReconnectCount
//   - MemberArrived: Key, Arrival
type Event struct {
	Kind           EventKind
	Key            Key
	Status         Status
	Cause          vendor.Cause
	Err            error
	ReconnectCount int
	Arrival        *models.MemberArrival
	At             time.Time
}

// State is a point-in-time view of one connection.
type State struct {
	Key            Key       `json:"key"`
	Status         Status    `json:"status"`
	ReconnectCount int       `json:"reconnect_count"`
	LastError      string    `json:"last_error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
