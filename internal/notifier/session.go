// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/models"
)

// ErrNoWebhook is returned for sessions without a bound webhook.
var ErrNoWebhook = errors.New("session has no webhook bound")

// SessionLookup finds sessions by id or by name.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	GetByName(ctx context.Context, name string) (*models.Session, error)
}

// ResolveSession looks ref up as an id first and then as a name.
func ResolveSession(ctx context.Context, sessions SessionLookup, ref string) (*models.Session, error) {
	s, err := sessions.Get(ctx, ref)
	if err == nil {
		return s, nil
	}
	s, nerr := sessions.GetByName(ctx, ref)
	if nerr == nil {
		return s, nil
	}
	return nil, fmt.Errorf("resolve session %q: %w", ref, errors.Join(err, nerr))
}

// SendBySession resolves ref and sends content to the session's normal
// webhook.
func SendBySession(ctx context.Context, sessions SessionLookup, sender Sender, ref, msgType, content string) error {
	s, err := ResolveSession(ctx, sessions, ref)
	if err != nil {
		return err
	}
	if s.WebhookURL == "" {
		return fmt.Errorf("%w: %s", ErrNoWebhook, ref)
	}
	key, err := ExtractKey(s.WebhookURL)
	if err != nil {
		return err
	}

	logging.Info().Str("component", "notifier").Str("session", s.Name).Str("msgtype", msgType).
		Msg("Sending webhook message for session")
	if msgType == MsgTypeMarkdown {
		return sender.SendMarkdown(ctx, key, content)
	}
	return sender.SendText(ctx, key, content)
}

// Validation lists sessions that cannot be monitored because a webhook is
// missing or unparsable. Unknown sessions appear in both lists.
type Validation struct {
	UnboundSessions            []string `json:"unboundSessions"`
	UnboundLeaderboardSessions []string `json:"unboundLeaderboardSessions"`
}

// OK reports whether every session has both webhooks bound.
func (v Validation) OK() bool {
	return len(v.UnboundSessions) == 0 && len(v.UnboundLeaderboardSessions) == 0
}

// Unbound reports whether ref is in either list.
func (v Validation) Unbound(ref string) bool {
	for _, s := range v.UnboundSessions {
		if s == ref {
			return true
		}
	}
	for _, s := range v.UnboundLeaderboardSessions {
		if s == ref {
			return true
		}
	}
	return false
}

// ValidateSessions checks that every referenced session has a usable normal
// webhook and leaderboard webhook.
func ValidateSessions(ctx context.Context, sessions SessionLookup, refs []string) Validation {
	log := logging.WithComponent("notifier")
	v := Validation{UnboundSessions: []string{}, UnboundLeaderboardSessions: []string{}}

	for _, ref := range refs {
		s, err := ResolveSession(ctx, sessions, ref)
		if err != nil {
			log.Warn().Str("session", ref).Err(err).Msg("Session not found")
			v.UnboundSessions = append(v.UnboundSessions, ref)
			v.UnboundLeaderboardSessions = append(v.UnboundLeaderboardSessions, ref)
			continue
		}
		if _, err := ExtractKey(s.WebhookURL); err != nil {
			log.Warn().Str("session", ref).Msg("Session has no webhook bound")
			v.UnboundSessions = append(v.UnboundSessions, ref)
		}
		if _, err := ExtractKey(s.LeaderboardWebhookURL); err != nil {
			log.Warn().Str("session", ref).Msg("Session has no leaderboard webhook bound")
			v.UnboundLeaderboardSessions = append(v.UnboundLeaderboardSessions, ref)
		}
	}
	return v
}
