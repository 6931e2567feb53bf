package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesClosedOptionSet(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 18900, cfg.ControlPort)
	assert.Equal(t, 18901, cfg.BinaryPort)
	assert.Equal(t, 18902, cfg.EventPort)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 5, cfg.MaxConnections)
	assert.Equal(t, 5000, cfg.HeartbeatIntervalMs)
	assert.Equal(t, 15000, cfg.HeartbeatTimeoutMs)
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesJWCCWithCommentsAndTrailingCommas(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
  // overrides the default control port
  "control_port": 19900,
  "host": "127.0.0.1",
  "auth_token": "secret",
  "max_connections": 10,
}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 19900, cfg.ControlPort)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, 10, cfg.MaxConnections)
	// unspecified fields keep their defaults
	assert.Equal(t, 18901, cfg.BinaryPort)
}

func TestValidateRejectsColldingPorts(t *testing.T) {
	cfg := Default()
	cfg.BinaryPort = cfg.ControlPort
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTimeoutNotExceedingInterval(t *testing.T) {
	cfg := Default()
	cfg.HeartbeatTimeoutMs = cfg.HeartbeatIntervalMs
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.jsonc"))
	assert.Error(t, err)
}
