// Package config loads the Agent's startup configuration: the closed
// option set from spec.md §6, read from a JWCC (JSON-with-comments)
// document via tailscale/hujson, falling back to built-in defaults
// exactly as the teacher's config loader does.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config is the Agent's closed configuration option set (spec.md §6).
type Config struct {
	ControlPort         int    `json:"control_port"`
	BinaryPort          int    `json:"binary_port"`
	EventPort           int    `json:"event_port"`
	Host                string `json:"host"`
	AuthToken           string `json:"auth_token"`
	MaxConnections      int    `json:"max_connections"`
	HeartbeatIntervalMs int    `json:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs  int    `json:"heartbeat_timeout_ms"`

	// PluginDir and DataDir locate the plugin bundle directory scanned
	// on startup and the per-plugin private data area (spec.md §6
	// filesystem footprint), not part of the closed network option set
	// but configured the same way.
	PluginDir string `json:"plugin_dir"`
	DataDir   string `json:"data_dir"`

	RedisAddr string `json:"redis_addr"`
}

// Default returns the built-in defaults from spec.md §6, with
// environment-variable overrides mirroring the teacher's
// `os.Getenv`-backed defaults.
func Default() Config {
	return Config{
		ControlPort:         18900,
		BinaryPort:          18901,
		EventPort:           18902,
		Host:                "0.0.0.0",
		AuthToken:           os.Getenv("AGENT_AUTH_TOKEN"),
		MaxConnections:      5,
		HeartbeatIntervalMs: 5000,
		HeartbeatTimeoutMs:  15000,
		PluginDir:           envOrDefault("AGENT_PLUGIN_DIR", "./plugins"),
		DataDir:             envOrDefault("AGENT_DATA_DIR", "./data"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
	}
}

// Load reads path as a JWCC document and merges it over Default. An
// empty path returns Default unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config failed: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config failed: %w", err)
	}

	return cfg, cfg.Validate()
}

// Validate checks the closed option set's basic constraints.
func (c Config) Validate() error {
	for name, port := range map[string]int{
		"control_port": c.ControlPort,
		"binary_port":  c.BinaryPort,
		"event_port":   c.EventPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}
	if c.ControlPort == c.BinaryPort || c.ControlPort == c.EventPort || c.BinaryPort == c.EventPort {
		return fmt.Errorf("control_port, binary_port, and event_port must be distinct")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive")
	}
	if c.HeartbeatIntervalMs <= 0 || c.HeartbeatTimeoutMs <= 0 {
		return fmt.Errorf("heartbeat_interval_ms and heartbeat_timeout_ms must be positive")
	}
	if c.HeartbeatTimeoutMs <= c.HeartbeatIntervalMs {
		return fmt.Errorf("heartbeat_timeout_ms must exceed heartbeat_interval_ms")
	}
	return nil
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
