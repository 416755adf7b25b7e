// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package scheduler

import (
	"strings"
	"time"

	"github.com/tomtom215/roomwatch/internal/models"
)

// timestampLayout renders the footer time as YYYY/MM/DD HH:mm.
const timestampLayout = "2006/01/02 15:04"

var medals = [...]string{"🥇", "🥈", "🥉"}

// circled[n] is the circled-number glyph for n.
var circled = [...]string{
	"⓪", "①", "②", "③", "④", "⑤", "⑥", "⑦", "⑧", "⑨", "⑩",
	"⑪", "⑫", "⑬", "⑭", "⑮", "⑯", "⑰", "⑱", "⑲", "⑳",
}

// rankGlyph returns the marker for a 1-based rank: medals for the podium,
// circled numbers up to 20, and a fixed overflow glyph beyond that.
func rankGlyph(rank int) string {
	switch {
	case rank >= 1 && rank <= len(medals):
		return medals[rank-1]
	case rank > len(medals) && rank < len(circled):
		return " " + circled[rank] + " "
	default:
		return "㉑"
	}
}

// FormatLeaderboard renders a room's leaderboard as webhook markdown. Items
// without a display name are left out but keep their rank.
func FormatLeaderboard(lb *models.Leaderboard, roomID string, at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}

	var b strings.Builder
	b.WriteString("# \t\t\t 房间 " + roomID + " \t\t\t \n\n")
	b.WriteString("   \n")

	writeSection(&b, "##  魅力榜 💎 \n\n", lb.TopByActivity)
	writeSection(&b, "##  财富榜 💰 \n\n", lb.TopByWealth)

	b.WriteString("**更新时间**: " + at.In(loc).Format(timestampLayout) + "\n\n")
	return b.String()
}

// writeSection writes header and items; empty lists produce only the
// trailing separator.
func writeSection(b *strings.Builder, header string, items []models.RankItem) {
	if len(items) > 0 {
		b.WriteString(header)
		for i, item := range items {
			name := item.DisplayName()
			if name == "" {
				continue
			}
			b.WriteString("> " + rankGlyph(i+1) + "  " + item.UID + " - " + name + " \n")
		}
	}
	b.WriteString(" \n\n")
}
