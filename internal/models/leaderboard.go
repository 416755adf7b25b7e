// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package models

// RankItem is one entry of a leaderboard snapshot.
type RankItem struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname,omitempty"`
	Name     string `json:"name,omitempty"`
	Score    int64  `json:"score,omitempty"`
}

// DisplayName prefers the nickname and falls back to the account name.
func (i RankItem) DisplayName() string {
	if i.Nickname != "" {
		return i.Nickname
	}
	return i.Name
}

// Leaderboard is a point-in-time snapshot of a room's two rankings.
type Leaderboard struct {
	TopByActivity []RankItem `json:"topByActivity"`
	TopByWealth   []RankItem `json:"topByWealth"`
}

// Empty reports whether neither ranking has entries.
func (l *Leaderboard) Empty() bool {
	return l == nil || (len(l.TopByActivity) == 0 && len(l.TopByWealth) == 0)
}
