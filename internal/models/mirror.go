// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package models

// Messages exchanged with mirror contexts over the in-process bus.

// LeaderboardRequest asks a mirror context to fetch a room's leaderboard.
type LeaderboardRequest struct {
	RequestID string `json:"requestId"`
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
}

// LeaderboardResponse is the tagged reply to a LeaderboardRequest.
type LeaderboardResponse struct {
	RequestID string       `json:"requestId"`
	Success   bool         `json:"success"`
	Data      *Leaderboard `json:"data,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ReconnectCommand asks a mirror context to reset and re-join a room.
type ReconnectCommand struct {
	RoomID       string `json:"roomId"`
	SessionID    string `json:"sessionId"`
	ChatroomName string `json:"chatroomName,omitempty"`
}
