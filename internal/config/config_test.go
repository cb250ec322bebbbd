// File: internal/config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/berrythewa/clipbridge/internal/types"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvLogLevel, EnvLogFormat, EnvPollInterval, EnvSyncPrimary,
		EnvMaxContentBytes, EnvX11Display, EnvWaylandDisplay,
	} {
		t.Setenv(name, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	origDefaultPath := DefaultPath
	defer func() { DefaultPath = origDefaultPath }()
	DefaultPath = func() (string, error) {
		return filepath.Join(dir, "config.yaml"), nil
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	// nothing is persisted
	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log:
  level: debug
  format: json
x11:
  display: ":1"
  poll_interval: 500ms
sync:
  primary: false
  max_content_bytes: 1024
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, FormatJSON, cfg.Log.Format)
	assert.Equal(t, ":1", cfg.X11.Display)
	assert.Equal(t, 500*time.Millisecond, cfg.X11.PollInterval)
	assert.Equal(t, 1024, cfg.Sync.MaxContentBytes)
	assert.Equal(t, []types.SelectionKind{types.Clipboard}, cfg.Kinds())

	// unset keys keep their defaults
	assert.Equal(t, 2*time.Second, cfg.X11.FetchTimeout)
	assert.True(t, cfg.X11.XFixes)
	assert.Equal(t, 4, cfg.Sync.QueueDepth)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "text")
	t.Setenv(EnvPollInterval, "1s")
	t.Setenv(EnvSyncPrimary, "false")
	t.Setenv(EnvMaxContentBytes, "4096")
	t.Setenv(EnvX11Display, ":2")
	t.Setenv(EnvWaylandDisplay, "wayland-9")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, FormatText, cfg.Log.Format)
	assert.Equal(t, time.Second, cfg.X11.PollInterval)
	assert.False(t, cfg.Sync.Primary)
	assert.Equal(t, 4096, cfg.Sync.MaxContentBytes)
	assert.Equal(t, ":2", cfg.X11.Display)
	assert.Equal(t, "wayland-9", cfg.Wayland.Display)
}

func TestEnvOverrideErrors(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{name: "poll interval", env: EnvPollInterval, value: "soon"},
		{name: "primary", env: EnvSyncPrimary, value: "maybe"},
		{name: "max bytes", env: EnvMaxContentBytes, value: "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)
			err := overrideFromEnv(DefaultConfig())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "zero poll interval", mutate: func(c *Config) { c.X11.PollInterval = 0 }},
		{name: "zero read timeout", mutate: func(c *Config) { c.Wayland.ReadTimeout = 0 }},
		{name: "zero max bytes", mutate: func(c *Config) { c.Sync.MaxContentBytes = 0 }},
		{name: "zero queue", mutate: func(c *Config) { c.Sync.QueueDepth = 0 }},
		{name: "nothing enabled", mutate: func(c *Config) {
			c.Sync.Clipboard = false
			c.Sync.Primary = false
		}},
		{name: "primary only", mutate: func(c *Config) { c.Sync.Clipboard = false }, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestYAMLRoundTripsDurations(t *testing.T) {
	out, err := DefaultConfig().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "poll_interval: 200ms")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, DefaultConfig(), &back)
}
