// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package notifier

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidWebhookURL is returned when a webhook URL carries no key.
var ErrInvalidWebhookURL = errors.New("invalid webhook url")

// keyPattern matches the key parameter anywhere in the URL; stored URLs are
// pasted by hand and need not parse.
var keyPattern = regexp.MustCompile(`key=([^&]+)`)

// ExtractKey returns the key parameter of a webhook URL.
func ExtractKey(webhookURL string) (string, error) {
	m := keyPattern.FindStringSubmatch(webhookURL)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidWebhookURL, webhookURL)
	}
	return m[1], nil
}
