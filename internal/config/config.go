// File: internal/config/config.go

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/berrythewa/clipbridge/internal/types"
)

// Environment variables that override file settings
const (
	EnvLogLevel        = "CLIPBRIDGE_LOG_LEVEL"
	EnvLogFormat       = "CLIPBRIDGE_LOG_FORMAT"
	EnvPollInterval    = "CLIPBRIDGE_POLL_INTERVAL"
	EnvSyncPrimary     = "CLIPBRIDGE_SYNC_PRIMARY"
	EnvMaxContentBytes = "CLIPBRIDGE_MAX_CONTENT_BYTES"
	EnvX11Display      = "CLIPBRIDGE_X11_DISPLAY"
	EnvWaylandDisplay  = "CLIPBRIDGE_WAYLAND_DISPLAY"
)

// Log formats
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds all application configuration
type Config struct {
	Log     LogConfig     `yaml:"log"`
	X11     X11Config     `yaml:"x11"`
	Wayland WaylandConfig `yaml:"wayland"`
	Sync    SyncConfig    `yaml:"sync"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto, text or json
}

// X11Config holds the X server connection settings
type X11Config struct {
	Display      string        `yaml:"display"` // empty means $DISPLAY
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	XFixes       bool          `yaml:"xfixes"`
}

// WaylandConfig holds the compositor connection settings
type WaylandConfig struct {
	Display      string        `yaml:"display"` // empty means $WAYLAND_DISPLAY
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SyncConfig controls what is bridged
type SyncConfig struct {
	Clipboard       bool `yaml:"clipboard"`
	Primary         bool `yaml:"primary"`
	MaxContentBytes int  `yaml:"max_content_bytes"`
	QueueDepth      int  `yaml:"queue_depth"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: FormatAuto,
		},
		X11: X11Config{
			PollInterval: 200 * time.Millisecond,
			FetchTimeout: 2 * time.Second,
			XFixes:       true,
		},
		Wayland: WaylandConfig{
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
		},
		Sync: SyncConfig{
			Clipboard:       true,
			Primary:         true,
			MaxContentBytes: 16 * 1024 * 1024, // 16MB
			QueueDepth:      4,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/clipbridge/config.yaml
var DefaultPath = func() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "clipbridge", "config.yaml"), nil
}

// Load reads the configuration file and applies environment overrides.
// A missing file yields the defaults; nothing is written back.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if !explicit {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv(config *Config) error {
	if val := os.Getenv(EnvLogLevel); val != "" {
		config.Log.Level = val
	}
	if val := os.Getenv(EnvLogFormat); val != "" {
		config.Log.Format = val
	}
	if val := os.Getenv(EnvPollInterval); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		config.X11.PollInterval = d
	}
	if val := os.Getenv(EnvSyncPrimary); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvSyncPrimary, err)
		}
		config.Sync.Primary = b
	}
	if val := os.Getenv(EnvMaxContentBytes); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxContentBytes, err)
		}
		config.Sync.MaxContentBytes = n
	}
	if val := os.Getenv(EnvX11Display); val != "" {
		config.X11.Display = val
	}
	if val := os.Getenv(EnvWaylandDisplay); val != "" {
		config.Wayland.Display = val
	}
	return nil
}

// Validate checks the configuration for values the bridge cannot run with
func (c *Config) Validate() error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case FormatAuto, FormatText, FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.X11.PollInterval <= 0 {
		return fmt.Errorf("x11.poll_interval must be positive, got %s", c.X11.PollInterval)
	}
	if c.X11.FetchTimeout <= 0 {
		return fmt.Errorf("x11.fetch_timeout must be positive, got %s", c.X11.FetchTimeout)
	}
	if c.Wayland.ReadTimeout <= 0 || c.Wayland.WriteTimeout <= 0 {
		return errors.New("wayland read and write timeouts must be positive")
	}
	if c.Sync.MaxContentBytes <= 0 {
		return fmt.Errorf("sync.max_content_bytes must be positive, got %d", c.Sync.MaxContentBytes)
	}
	if c.Sync.QueueDepth <= 0 {
		return fmt.Errorf("sync.queue_depth must be positive, got %d", c.Sync.QueueDepth)
	}
	if len(c.Kinds()) == 0 {
		return errors.New("nothing to sync: both sync.clipboard and sync.primary are disabled")
	}
	return nil
}

// Kinds returns the selection kinds enabled for syncing
func (c *Config) Kinds() []types.SelectionKind {
	var kinds []types.SelectionKind
	if c.Sync.Clipboard {
		kinds = append(kinds, types.Clipboard)
	}
	if c.Sync.Primary {
		kinds = append(kinds, types.Primary)
	}
	return kinds
}

// YAML renders the effective configuration
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
