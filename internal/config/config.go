// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// chatsync client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatsync client configuration.
type Config struct {
	// Server settings
	Server ServerConfig `toml:"server"`

	// Sync settings
	Sync SyncConfig `toml:"sync"`

	// Session settings
	Session SessionConfig `toml:"session"`
}

// ServerConfig contains chat backend connection settings.
type ServerConfig struct {
	// BaseURL is the chat backend base URL
	BaseURL string `toml:"base_url"`
	// RequestTimeoutSecs is the per-request timeout in seconds
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// SyncConfig contains message polling settings.
type SyncConfig struct {
	// PollIntervalSecs is the background poll interval in seconds.
	// Valid range is 5-10 seconds; values outside the range are clamped.
	PollIntervalSecs int `toml:"poll_interval_secs"`
}

// SessionConfig contains authentication session settings.
type SessionConfig struct {
	// CredentialsPath is where the saved session lives
	// (empty = default ~/.itshere/credentials.json)
	CredentialsPath string `toml:"credentials_path"`
	// IdleTimeoutSecs logs the session out after this inactivity
	IdleTimeoutSecs int `toml:"idle_timeout_secs"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:            "http://localhost:8000",
			RequestTimeoutSecs: 15,
		},
		Sync: SyncConfig{
			PollIntervalSecs: 5,
		},
		Session: SessionConfig{
			CredentialsPath: "",
			IdleTimeoutSecs: 1800,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the itshere configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".itshere"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CredentialsPath resolves the credentials file location, applying the
// default when the config leaves it empty.
func (c *Config) CredentialsPath() (string, error) {
	if c.Session.CredentialsPath != "" {
		return c.Session.CredentialsPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the config file, falling back to defaults
// when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. A missing file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file with a header
// comment, 0600 so a future authenticated-endpoint URL with embedded
// credentials is not world-readable.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# itshere chat client configuration")
	fmt.Fprintln(file, "# Generated by chatsync - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.BaseURL != "" {
		u, err := url.Parse(c.Server.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ValidationError{
				Field:   "server.base_url",
				Message: fmt.Sprintf("invalid URL %q", c.Server.BaseURL),
			}
		}
	}

	if c.Server.RequestTimeoutSecs < 1 || c.Server.RequestTimeoutSecs > 120 {
		return ValidationError{
			Field:   "server.request_timeout_secs",
			Message: fmt.Sprintf("must be 1-120, got %d", c.Server.RequestTimeoutSecs),
		}
	}

	if c.Session.IdleTimeoutSecs < 0 {
		return ValidationError{
			Field:   "session.idle_timeout_secs",
			Message: "must be non-negative",
		}
	}

	return nil
}

// SetDefaults fills missing or zero-value fields and clamps the poll
// interval into its valid range.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Server.BaseURL == "" {
		c.Server.BaseURL = defaults.Server.BaseURL
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = defaults.Server.RequestTimeoutSecs
	}
	if c.Sync.PollIntervalSecs == 0 {
		c.Sync.PollIntervalSecs = defaults.Sync.PollIntervalSecs
	}
	if c.Session.IdleTimeoutSecs == 0 {
		c.Session.IdleTimeoutSecs = defaults.Session.IdleTimeoutSecs
	}

	// Clamp rather than reject: a typo in the interval should not make the
	// client unusable.
	if c.Sync.PollIntervalSecs < 5 {
		c.Sync.PollIntervalSecs = 5
	}
	if c.Sync.PollIntervalSecs > 10 {
		c.Sync.PollIntervalSecs = 10
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - ITSHERE_SERVER_URL: overrides server.base_url
//   - ITSHERE_POLL_INTERVAL: overrides sync.poll_interval_secs
//   - ITSHERE_CREDENTIALS: overrides session.credentials_path
func (c *Config) ApplyEnvOverrides() {
	if serverURL := os.Getenv("ITSHERE_SERVER_URL"); serverURL != "" {
		c.Server.BaseURL = serverURL
	}

	if interval := os.Getenv("ITSHERE_POLL_INTERVAL"); interval != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(interval)); err == nil && secs > 0 {
			c.Sync.PollIntervalSecs = secs
		}
	}

	if creds := os.Getenv("ITSHERE_CREDENTIALS"); creds != "" {
		c.Session.CredentialsPath = creds
	}
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSecs) * time.Second
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// IdleTimeout returns the session idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutSecs) * time.Second
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			if cfg == nil {
				cfg = Default()
			}
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
