// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns the documented defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Dedup.Window != 10*time.Minute {
		t.Errorf("Dedup.Window = %v, want 10m", cfg.Dedup.Window)
	}
	if cfg.Room.MaxReconnect != 10 {
		t.Errorf("Room.MaxReconnect = %d, want 10", cfg.Room.MaxReconnect)
	}
	if cfg.Room.ConnectDelay != 6*time.Second {
		t.Errorf("Room.ConnectDelay = %v, want 6s", cfg.Room.ConnectDelay)
	}
	if cfg.Room.ConnectConcurrency != 1 {
		t.Errorf("Room.ConnectConcurrency = %d, want 1", cfg.Room.ConnectConcurrency)
	}
	if cfg.Correlator.Timeout != 30*time.Second {
		t.Errorf("Correlator.Timeout = %v, want 30s", cfg.Correlator.Timeout)
	}
	if cfg.Scheduler.TickInterval != time.Minute {
		t.Errorf("Scheduler.TickInterval = %v, want 1m", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.GateInterval != 10*time.Second {
		t.Errorf("Scheduler.GateInterval = %v, want 10s", cfg.Scheduler.GateInterval)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Server.Port = %d, want 8090", cfg.Server.Port)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for envName := range envMappings {
		t.Setenv(strings.ToUpper(envName), "")
		os.Unsetenv(strings.ToUpper(envName))
	}
	t.Setenv(ConfigPathEnvVar, "")
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Dedup.SweepInterval != cfg.Dedup.Window {
		t.Errorf("SweepInterval = %v, want it to default to Window %v", cfg.Dedup.SweepInterval, cfg.Dedup.Window)
	}
	if cfg.Vendor.Enabled() {
		t.Error("vendor should be disabled without URLs")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DEDUP_WINDOW", "1h")
	t.Setenv("ROOM_MAX_RECONNECT", "20")
	t.Setenv("CORRELATOR_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VENDOR_API_URL", "https://api.vendor.example")
	t.Setenv("VENDOR_CHAT_URL", "wss://chat.vendor.example/ws")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Dedup.Window != time.Hour {
		t.Errorf("Dedup.Window = %v, want 1h", cfg.Dedup.Window)
	}
	if cfg.Dedup.SweepInterval != time.Hour {
		t.Errorf("Dedup.SweepInterval = %v, want 1h", cfg.Dedup.SweepInterval)
	}
	if cfg.Room.MaxReconnect != 20 {
		t.Errorf("Room.MaxReconnect = %d, want 20", cfg.Room.MaxReconnect)
	}
	if cfg.Correlator.Timeout != 5*time.Second {
		t.Errorf("Correlator.Timeout = %v, want 5s", cfg.Correlator.Timeout)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if !cfg.Vendor.Enabled() {
		t.Error("vendor should be enabled")
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearConfigEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
scheduler:
  tick_interval: 30s
  timezone: UTC
sessions:
  - name: alpha
    rooms: [101, 102]
    webhook_url: https://hooks.example/send?key=abc
    leaderboard_webhook_url: https://hooks.example/send?key=def
    enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SCHEDULER_TIMEZONE", "Asia/Shanghai")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Scheduler.TickInterval != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.Scheduler.TickInterval)
	}
	if cfg.Scheduler.Timezone != "Asia/Shanghai" {
		t.Errorf("env should override file, got timezone %q", cfg.Scheduler.Timezone)
	}
	if len(cfg.Sessions) != 1 {
		t.Fatalf("Sessions = %d, want 1", len(cfg.Sessions))
	}
	s := cfg.Sessions[0].Session()
	if s.ID != "alpha" || len(s.Data.Rooms) != 2 || !s.Enabled {
		t.Errorf("unexpected seeded session: %+v", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero window", func(c *Config) { c.Dedup.Window = 0 }, "DEDUP_WINDOW"},
		{"negative reconnect", func(c *Config) { c.Room.MaxReconnect = -1 }, "ROOM_MAX_RECONNECT"},
		{"zero concurrency", func(c *Config) { c.Room.ConnectConcurrency = 0 }, "ROOM_CONNECT_CONCURRENCY"},
		{"zero timeout", func(c *Config) { c.Correlator.Timeout = 0 }, "CORRELATOR_TIMEOUT"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "SCHEDULER_TIMEZONE"},
		{"bad notifier url", func(c *Config) { c.Notifier.BaseURL = "ftp://x" }, "NOTIFIER_BASE_URL"},
		{"bad chat url", func(c *Config) { c.Vendor.ChatURL = "https://chat" }, "VENDOR_CHAT_URL"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"duplicate session", func(c *Config) {
			c.Sessions = []SessionSeed{{Name: "a"}, {Name: "a"}}
		}, "duplicate session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.applyDerived()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	if got := envTransformFunc("LOG_LEVEL"); got != "logging.level" {
		t.Errorf("envTransformFunc(LOG_LEVEL) = %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped variables should be ignored, got %q", got)
	}
}
