// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package room

import (
	"strconv"

	"github.com/tomtom215/roomwatch/internal/vendor"
)

// Arrival filter outcomes. Only ArrivalAccepted is forwarded.
const (
	ArrivalAccepted   = "accepted"
	ArrivalNotArrival = "not_arrival"
	ArrivalPrivileged = "privileged"
	ArrivalBot        = "bot"
	ArrivalSelf       = "self"
	ArrivalInvalid    = "invalid"
)

// arrival is a member-arrived notification that passed the filter.
type arrival struct {
	memberID string
	nickname string
	attrs    map[string]string
}

// parseArrival decides whether msg announces a real member entering the
// room. selfID is the connecting account's user id.
func parseArrival(msg vendor.Message, selfID string) (arrival, string) {
	if msg.Type != vendor.MsgTypeNotification || msg.Attach.Type != vendor.AttachUpdateMemberInfo {
		return arrival{}, ArrivalNotArrival
	}

	custom, err := vendor.ParseMemberCustom(msg.FromCustom)
	if err != nil {
		return arrival{}, ArrivalInvalid
	}
	if custom.Privileged() {
		return arrival{}, ArrivalPrivileged
	}
	if custom.Client == vendor.ClientBackend || custom.RoleID != 0 {
		return arrival{}, ArrivalBot
	}

	memberID := msg.Attach.MemberID()
	if memberID == "" {
		return arrival{}, ArrivalInvalid
	}
	if selfID != "" && memberID == selfID {
		return arrival{}, ArrivalSelf
	}

	nick := msg.Attach.FromNick
	if nick == "" {
		nick = custom.Nick
	}
	return arrival{
		memberID: memberID,
		nickname: nick,
		attrs: map[string]string{
			"sex":  strconv.Itoa(custom.Sex),
			"nick": nick,
		},
	}, ArrivalAccepted
}
