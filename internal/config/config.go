// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

// Package config loads Roomwatch configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values for every setting
//  2. Config file: optional YAML (CONFIG_PATH, ./config.yaml, /etc/roomwatch/config.yaml)
//  3. Environment variables: override any mapped setting
//
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"time"

	"github.com/tomtom215/roomwatch/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Dedup      DedupConfig      `koanf:"dedup"`
	Room       RoomConfig       `koanf:"room"`
	Correlator CorrelatorConfig `koanf:"correlator"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Notifier   NotifierConfig   `koanf:"notifier"`
	Vendor     VendorConfig     `koanf:"vendor"`
	Store      StoreConfig      `koanf:"store"`
	Server     ServerConfig     `koanf:"server"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Logging    LoggingConfig    `koanf:"logging"`

	// Sessions are upserted into the session store at startup. Optional;
	// the admin tooling normally writes the store directly.
	Sessions []SessionSeed `koanf:"sessions"`
}

// DedupConfig controls the member-arrival dedup window.
type DedupConfig struct {
	// Window is how long a member identity is suppressed after it was
	// forwarded. Earlier deployments used both 10m and 60m.
	Window time.Duration `koanf:"window"`

	// SweepInterval is how often expired entries are purged. Zero means Window.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// RoomConfig controls room connections.
type RoomConfig struct {
	// MaxReconnect is the retry budget per disconnect episode. Earlier
	// deployments used 10, 20 and 30.
	MaxReconnect int `koanf:"max_reconnect"`

	// ConnectDelay is waited inside the connect queue before each attempt.
	ConnectDelay time.Duration `koanf:"connect_delay"`

	// ConnectConcurrency bounds simultaneous connect attempts per process.
	ConnectConcurrency int `koanf:"connect_concurrency"`

	// InitialJoinDelay is waited after a mirror context starts before its
	// rooms are joined.
	InitialJoinDelay time.Duration `koanf:"initial_join_delay"`

	// ReconnectBackoff is the first wait after a retryable disconnect; it
	// doubles per attempt up to MaxReconnectBackoff.
	ReconnectBackoff    time.Duration `koanf:"reconnect_backoff"`
	MaxReconnectBackoff time.Duration `koanf:"max_reconnect_backoff"`

	// EventBuffer is the per-context room event channel size.
	EventBuffer int `koanf:"event_buffer"`
}

// CorrelatorConfig controls mirror request/response matching.
type CorrelatorConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// SchedulerConfig controls the leaderboard scheduler and its gate.
type SchedulerConfig struct {
	TickInterval       time.Duration `koanf:"tick_interval"`
	GateInterval       time.Duration `koanf:"gate_interval"`
	Timezone           string        `koanf:"timezone"`
	LogRetention       time.Duration `koanf:"log_retention"`
	LogCleanupInterval time.Duration `koanf:"log_cleanup_interval"`
}

// NotifierConfig controls outbound webhook delivery.
type NotifierConfig struct {
	BaseURL       string        `koanf:"base_url"`
	QueueSize     int           `koanf:"queue_size"`
	Workers       int           `koanf:"workers"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Timeout       time.Duration `koanf:"timeout"`
}

// VendorConfig points at the chat vendor.
type VendorConfig struct {
	APIURL  string        `koanf:"api_url"`
	ChatURL string        `koanf:"chat_url"`
	AppKey  string        `koanf:"app_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// Enabled reports whether enough vendor settings are present to join rooms.
func (v VendorConfig) Enabled() bool {
	return v.APIURL != "" && v.ChatURL != ""
}

// StoreConfig controls the BadgerDB store.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval is how often the value log is compacted. Zero disables it.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ServerConfig controls the ops HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// SupervisorConfig mirrors suture.Spec tuning.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SessionSeed is a session record declared in the config file.
type SessionSeed struct {
	ID                    string  `koanf:"id"`
	Name                  string  `koanf:"name"`
	Rooms                 []int64 `koanf:"rooms"`
	Account               string  `koanf:"account"`
	Token                 string  `koanf:"token"`
	WebhookURL            string  `koanf:"webhook_url"`
	LeaderboardWebhookURL string  `koanf:"leaderboard_webhook_url"`
	Enabled               bool    `koanf:"enabled"`
}

// Session converts the seed into a store record. ID defaults to Name.
func (s SessionSeed) Session() *models.Session {
	id := s.ID
	if id == "" {
		id = s.Name
	}
	return &models.Session{
		ID:   id,
		Name: s.Name,
		Data: models.SessionData{
			Rooms:   s.Rooms,
			Account: s.Account,
			Token:   s.Token,
		},
		WebhookURL:            s.WebhookURL,
		LeaderboardWebhookURL: s.LeaderboardWebhookURL,
		Enabled:               s.Enabled,
	}
}

// Load reads configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
