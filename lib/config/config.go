// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Backend selects which verification path the daemon drives.
type Backend string

const (
	// BackendRemote drives the system authentication framework over
	// D-Bus, one session per account.
	BackendRemote Backend = "remote"

	// BackendLocal runs a PAM conversation in process.
	BackendLocal Backend = "local"
)

// DefaultSocketPath is where the daemon listens when nothing else is
// configured.
const DefaultSocketPath = "/run/bureau/authbridge.sock"

// Config is the master configuration structure.
type Config struct {
	// Backend is "remote" or "local".
	Backend Backend `yaml:"backend"`

	// SocketPath is the Unix socket the daemon listens on.
	SocketPath string `yaml:"socket_path"`

	// AllowedUIDs restricts which peer UIDs may connect. Empty allows
	// any local caller that can reach the socket.
	AllowedUIDs []uint32 `yaml:"allowed_uids"`

	Local  LocalConfig  `yaml:"local"`
	Remote RemoteConfig `yaml:"remote"`
	Log    LogConfig    `yaml:"log"`
}

// LocalConfig configures the in-process PAM conversation backend.
type LocalConfig struct {
	// DesktopProfile is the marker file whose presence selects
	// DesktopService over SystemService.
	DesktopProfile string `yaml:"desktop_profile"`

	// DesktopService is the PAM service used on desktop installs.
	DesktopService string `yaml:"desktop_service"`

	// SystemService is the PAM service used otherwise.
	SystemService string `yaml:"system_service"`

	// PollInterval is how often a blocked conversation logs that it is
	// still waiting for a credential.
	PollInterval time.Duration `yaml:"poll_interval"`

	// WakeCommand runs after each verification to turn the display on.
	// Empty disables the wake.
	WakeCommand []string `yaml:"wake_command"`

	// WakeTimeout bounds WakeCommand.
	WakeTimeout time.Duration `yaml:"wake_timeout"`
}

// RemoteConfig configures the D-Bus authentication framework backend.
type RemoteConfig struct {
	// Bus is "system" or "session".
	Bus string `yaml:"bus"`

	// Service is the framework's well-known bus name.
	Service string `yaml:"service"`

	// Path is the framework's object path.
	Path string `yaml:"path"`

	// CallTimeout bounds each remote call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// KeyFetchAttempts bounds how many times a session's public key is
	// requested before a token submission fails.
	KeyFetchAttempts int `yaml:"key_fetch_attempts"`

	// KeyFetchBackoff is the delay after the first failed fetch. It
	// doubles up to KeyFetchMaxBackoff.
	KeyFetchBackoff time.Duration `yaml:"key_fetch_backoff"`

	KeyFetchMaxBackoff time.Duration `yaml:"key_fetch_max_backoff"`
}

// LogConfig configures the daemon's slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", l.Level, err)
	}
	return level, nil
}

// environment holds the variables that override file values.
type environment struct {
	ConfigPath string `env:"AUTHBRIDGE_CONFIG"`
	SocketPath string `env:"AUTHBRIDGE_SOCKET"`
	Backend    string `env:"AUTHBRIDGE_BACKEND"`
	Debug      *bool  `env:"AUTHBRIDGE_DEBUG"`
}

// Default returns the default configuration. Every field is filled so
// a file only needs to name what it changes.
func Default() *Config {
	return &Config{
		Backend:    BackendRemote,
		SocketPath: DefaultSocketPath,
		Local: LocalConfig{
			DesktopProfile: "/etc/deepin-version",
			DesktopService: "common-auth",
			SystemService:  "password-auth",
			PollInterval:   time.Second,
			WakeCommand:    []string{"xset", "dpms", "force", "on"},
			WakeTimeout:    5 * time.Second,
		},
		Remote: RemoteConfig{
			Bus:                "system",
			Service:            "com.deepin.daemon.Authenticate",
			Path:               "/com/deepin/daemon/Authenticate",
			CallTimeout:        5 * time.Second,
			KeyFetchAttempts:   5,
			KeyFetchBackoff:    100 * time.Millisecond,
			KeyFetchMaxBackoff: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by AUTHBRIDGE_CONFIG,
// or returns the defaults when it is unset. Environment overrides are
// applied in both cases.
func Load() (*Config, error) {
	var vars environment
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if vars.ConfigPath == "" {
		cfg := Default()
		cfg.apply(vars)
		return cfg, nil
	}
	return LoadFile(vars.ConfigPath)
}

// LoadFile loads configuration from a specific file path, then applies
// environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	var vars environment
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.apply(vars)

	return cfg, nil
}

// loadFile merges a single YAML file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) apply(vars environment) {
	if vars.SocketPath != "" {
		c.SocketPath = vars.SocketPath
	}
	if vars.Backend != "" {
		c.Backend = Backend(strings.ToLower(vars.Backend))
	}
	if vars.Debug != nil && *vars.Debug {
		c.Log.Level = "debug"
	}
}

// Validate checks the configuration for errors. Every problem found is
// reported, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Backend != BackendRemote && c.Backend != BackendLocal {
		errs = append(errs, fmt.Errorf("invalid backend: %q (want %q or %q)", c.Backend, BackendRemote, BackendLocal))
	}

	if c.SocketPath == "" {
		errs = append(errs, fmt.Errorf("socket_path is required"))
	} else if !filepath.IsAbs(c.SocketPath) {
		errs = append(errs, fmt.Errorf("socket_path must be absolute: %s", c.SocketPath))
	}

	if c.Local.DesktopService == "" {
		errs = append(errs, fmt.Errorf("local.desktop_service is required"))
	}
	if c.Local.SystemService == "" {
		errs = append(errs, fmt.Errorf("local.system_service is required"))
	}
	if c.Local.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("local.poll_interval must be positive"))
	}
	if c.Local.WakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("local.wake_timeout must not be negative"))
	}

	if c.Remote.Bus != "system" && c.Remote.Bus != "session" {
		errs = append(errs, fmt.Errorf("remote.bus must be system or session, got %q", c.Remote.Bus))
	}
	if c.Remote.Service == "" {
		errs = append(errs, fmt.Errorf("remote.service is required"))
	}
	if !strings.HasPrefix(c.Remote.Path, "/") {
		errs = append(errs, fmt.Errorf("remote.path must be an object path, got %q", c.Remote.Path))
	}
	if c.Remote.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("remote.call_timeout must be positive"))
	}
	if c.Remote.KeyFetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("remote.key_fetch_attempts must be at least 1"))
	}
	if c.Remote.KeyFetchBackoff <= 0 {
		errs = append(errs, fmt.Errorf("remote.key_fetch_backoff must be positive"))
	}
	if c.Remote.KeyFetchMaxBackoff < c.Remote.KeyFetchBackoff {
		errs = append(errs, fmt.Errorf("remote.key_fetch_max_backoff must not be below key_fetch_backoff"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
