// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if err := c.validateDedup(); err != nil {
		return err
	}
	if err := c.validateRoom(); err != nil {
		return err
	}
	if err := c.validateCorrelator(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateNotifier(); err != nil {
		return err
	}
	if err := c.validateVendor(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSessions(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDedup() error {
	if c.Dedup.Window <= 0 {
		return fmt.Errorf("DEDUP_WINDOW must be positive")
	}
	if c.Dedup.SweepInterval < 0 {
		return fmt.Errorf("DEDUP_SWEEP_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateRoom() error {
	if c.Room.MaxReconnect < 0 {
		return fmt.Errorf("ROOM_MAX_RECONNECT must not be negative")
	}
	if c.Room.ConnectConcurrency < 1 {
		return fmt.Errorf("ROOM_CONNECT_CONCURRENCY must be at least 1")
	}
	if c.Room.ConnectDelay < 0 || c.Room.InitialJoinDelay < 0 {
		return fmt.Errorf("room delays must not be negative")
	}
	if c.Room.ReconnectBackoff < 0 || c.Room.MaxReconnectBackoff < c.Room.ReconnectBackoff {
		return fmt.Errorf("ROOM_MAX_BACKOFF must be at least ROOM_RECONNECT_BACKOFF")
	}
	if c.Room.EventBuffer < 1 {
		return fmt.Errorf("ROOM_EVENT_BUFFER must be at least 1")
	}
	return nil
}

func (c *Config) validateCorrelator() error {
	if c.Correlator.Timeout <= 0 {
		return fmt.Errorf("CORRELATOR_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("SCHEDULER_TICK_INTERVAL must be positive")
	}
	if c.Scheduler.GateInterval <= 0 {
		return fmt.Errorf("SCHEDULER_GATE_INTERVAL must be positive")
	}
	if c.Scheduler.LogRetention <= 0 || c.Scheduler.LogCleanupInterval <= 0 {
		return fmt.Errorf("LOG_RETENTION and LOG_CLEANUP_INTERVAL must be positive")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE %q is not a valid time zone: %w", c.Scheduler.Timezone, err)
	}
	return nil
}

func (c *Config) validateNotifier() error {
	if err := validateHTTPURL("NOTIFIER_BASE_URL", c.Notifier.BaseURL); err != nil {
		return err
	}
	if c.Notifier.QueueSize < 1 || c.Notifier.Workers < 1 {
		return fmt.Errorf("NOTIFIER_QUEUE_SIZE and NOTIFIER_WORKERS must be at least 1")
	}
	if c.Notifier.RatePerSecond <= 0 {
		return fmt.Errorf("NOTIFIER_RATE_PER_SECOND must be positive")
	}
	if c.Notifier.Timeout <= 0 {
		return fmt.Errorf("NOTIFIER_TIMEOUT must be positive")
	}
	return nil
}

// validateVendor only checks URLs that are set; an unset vendor means the
// process serves the API but cannot join rooms.
func (c *Config) validateVendor() error {
	if c.Vendor.APIURL != "" {
		if err := validateHTTPURL("VENDOR_API_URL", c.Vendor.APIURL); err != nil {
			return err
		}
	}
	if c.Vendor.ChatURL != "" {
		u, err := url.Parse(c.Vendor.ChatURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("VENDOR_CHAT_URL must be a ws:// or wss:// URL")
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
	}
	if c.Server.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
	}
	return nil
}

func (c *Config) validateSessions() error {
	seen := make(map[string]bool, len(c.Sessions))
	for i, s := range c.Sessions {
		if s.Name == "" {
			return fmt.Errorf("sessions[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("sessions[%d]: duplicate session name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "panic": true, "disabled": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic, disabled")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

func validateHTTPURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
