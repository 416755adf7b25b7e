// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/roomwatch/config.yaml",
	"/etc/roomwatch/config.yml",
}

// ConfigPathEnvVar names an explicit config file.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Dedup: DedupConfig{
			Window:        10 * time.Minute,
			SweepInterval: 0,
		},
		Room: RoomConfig{
			MaxReconnect:       10,
			ConnectDelay:       6 * time.Second,
			ConnectConcurrency: 1,
			InitialJoinDelay:   500 * time.Millisecond,

			ReconnectBackoff:    time.Second,
			MaxReconnectBackoff: 32 * time.Second,
			EventBuffer:         64,
		},
		Correlator: CorrelatorConfig{
			Timeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			TickInterval:       60 * time.Second,
			GateInterval:       10 * time.Second,
			Timezone:           "Asia/Shanghai",
			LogRetention:       7 * 24 * time.Hour,
			LogCleanupInterval: 6 * time.Hour,
		},
		Notifier: NotifierConfig{
			BaseURL:       "https://qyapi.weixin.qq.com/cgi-bin/webhook/send",
			QueueSize:     256,
			Workers:       2,
			RatePerSecond: 5,
			Timeout:       10 * time.Second,
		},
		Vendor: VendorConfig{
			Timeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Path:       "/data/roomwatch",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf's layered providers.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyDerived fills settings whose default depends on another setting.
func (c *Config) applyDerived() {
	if c.Dedup.SweepInterval <= 0 {
		c.Dedup.SweepInterval = c.Dedup.Window
	}
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"dedup_window":         "dedup.window",
	"dedup_sweep_interval": "dedup.sweep_interval",

	"room_max_reconnect":       "room.max_reconnect",
	"room_connect_delay":       "room.connect_delay",
	"room_connect_concurrency": "room.connect_concurrency",
	"room_initial_join_delay":  "room.initial_join_delay",
	"room_reconnect_backoff":   "room.reconnect_backoff",
	"room_max_backoff":         "room.max_reconnect_backoff",
	"room_event_buffer":        "room.event_buffer",

	"correlator_timeout": "correlator.timeout",

	"scheduler_tick_interval": "scheduler.tick_interval",
	"scheduler_gate_interval": "scheduler.gate_interval",
	"scheduler_timezone":      "scheduler.timezone",
	"log_retention":           "scheduler.log_retention",
	"log_cleanup_interval":    "scheduler.log_cleanup_interval",

	"notifier_base_url":        "notifier.base_url",
	"notifier_queue_size":      "notifier.queue_size",
	"notifier_workers":         "notifier.workers",
	"notifier_rate_per_second": "notifier.rate_per_second",
	"notifier_timeout":         "notifier.timeout",

	"vendor_api_url":  "vendor.api_url",
	"vendor_chat_url": "vendor.chat_url",
	"vendor_app_key":  "vendor.app_key",
	"vendor_timeout":  "vendor.timeout",

	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_gc_interval": "store.gc_interval",

	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_timeout":        "server.timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
