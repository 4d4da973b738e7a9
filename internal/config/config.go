// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lioensky/AIhelpAI-MCP/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete server configuration.
type Config struct {
	API        APIConfig        `toml:"api" json:"api"`
	Session    SessionConfig    `toml:"session" json:"session"`
	Catalog    CatalogConfig    `toml:"catalog" json:"catalog"`
	Transcript TranscriptConfig `toml:"transcript" json:"transcript"`
	Log        LogConfig        `toml:"log" json:"log"`
	Server     ServerConfig     `toml:"server" json:"server"`
}

// APIConfig configures the chat-completion endpoint.
type APIConfig struct {
	// URL is the base URL; /v1/chat/completions is appended.
	URL string `toml:"url" json:"url"`
	// Key is sent as a bearer token. Never logged.
	Key          string `toml:"key" json:"key"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs"`
	RateLimitRPM int    `toml:"rate_limit_rpm" json:"rate_limit_rpm"`
	UserAgent    string `toml:"user_agent" json:"user_agent"`
}

// SessionConfig configures conversation history.
type SessionConfig struct {
	ID               string `toml:"id" json:"id"`
	MaxHistoryRounds int    `toml:"max_history_rounds" json:"max_history_rounds"`
}

// CatalogConfig points at an optional YAML model catalog.
type CatalogConfig struct {
	// File replaces the built-in catalog when set.
	File string `toml:"file" json:"file"`
}

// TranscriptConfig configures the SQLite audit log.
type TranscriptConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
	// Redact masks credentials found in prompts and replies before storing.
	Redact bool `toml:"redact" json:"redact"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// ServerConfig configures the optional WebSocket listener.
type ServerConfig struct {
	// Listen is host:port for WebSocket mode. Empty means stdio.
	Listen    string `toml:"listen" json:"listen"`
	Path      string `toml:"path" json:"path"`
	AuthToken string `toml:"auth_token" json:"auth_token"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default values.
const (
	DefaultTimeoutSecs      = 120
	DefaultSessionID        = "default_session"
	DefaultMaxHistoryRounds = 5
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultServerPath       = "/mcp"
	DefaultTranscriptFile   = "transcript.db"
)

// Default returns a Config with default values.
func Default() *Config {
	transcriptPath := DefaultTranscriptFile
	if dir, err := ConfigDir(); err == nil {
		transcriptPath = filepath.Join(dir, DefaultTranscriptFile)
	}

	return &Config{
		API: APIConfig{
			TimeoutSecs: DefaultTimeoutSecs,
		},
		Session: SessionConfig{
			ID:               DefaultSessionID,
			MaxHistoryRounds: DefaultMaxHistoryRounds,
		},
		Transcript: TranscriptConfig{
			Enabled: false,
			Path:    transcriptPath,
			Redact:  true,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Server: ServerConfig{
			Path: DefaultServerPath,
		},
	}
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// Configured reports whether the endpoint URL and key are both set.
func (c *Config) Configured() bool {
	return strings.TrimSpace(c.API.URL) != "" && strings.TrimSpace(c.API.Key) != ""
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".aihelper"), nil
}

// DefaultPath returns the path to the default TOML config file.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files hold the API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0077 != 0 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD
// =============================================================================

// Load builds the effective configuration: defaults, then the TOML file,
// then environment overrides. The result is validated.
//
// With an empty path the default file is used if it exists. An explicit path
// that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		path = util.ExpandHome(path)
		if _, err := os.Stat(path); err == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, err
			}
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Unknown keys are rejected.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	return nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// Environment variables read by ApplyEnvOverrides.
const (
	EnvAPIURL           = "API_URL"
	EnvAPIKey           = "API_KEY"
	EnvLogLevel         = "AIHELPER_LOG_LEVEL"
	EnvMaxHistoryRounds = "AIHELPER_MAX_HISTORY_ROUNDS"
	EnvCatalogFile      = "AIHELPER_CATALOG_FILE"
	EnvTranscriptPath   = "AIHELPER_TRANSCRIPT_PATH"
	EnvTimeoutSecs      = "AIHELPER_TIMEOUT_SECS"
	EnvListen           = "AIHELPER_LISTEN"
	EnvAuthToken        = "AIHELPER_AUTH_TOKEN"
)

// ApplyEnvOverrides applies environment variable overrides. Environment
// values win over the config file.
//
// Supported environment variables:
//   - API_URL, API_KEY: endpoint and key
//   - AIHELPER_LOG_LEVEL: overrides log.level
//   - AIHELPER_MAX_HISTORY_ROUNDS: overrides session.max_history_rounds
//   - AIHELPER_CATALOG_FILE: overrides catalog.file
//   - AIHELPER_TRANSCRIPT_PATH: sets transcript.path and enables it
//   - AIHELPER_TIMEOUT_SECS: overrides api.timeout_secs
//   - AIHELPER_LISTEN, AIHELPER_AUTH_TOKEN: WebSocket listener
//
// Integer values that do not parse are ignored.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.Key = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvMaxHistoryRounds); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Session.MaxHistoryRounds = n
		}
	}
	if v := os.Getenv(EnvCatalogFile); v != "" {
		c.Catalog.File = v
	}
	if v := os.Getenv(EnvTranscriptPath); v != "" {
		c.Transcript.Path = v
		c.Transcript.Enabled = true
	}
	if v := os.Getenv(EnvTimeoutSecs); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.API.TimeoutSecs = n
		}
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv(EnvAuthToken); v != "" {
		c.Server.AuthToken = v
	}
}

// SetDefaults fills zero values with defaults and normalizes strings.
func (c *Config) SetDefaults() {
	c.API.URL = strings.TrimSpace(c.API.URL)
	c.API.Key = strings.TrimSpace(c.API.Key)
	if c.API.TimeoutSecs == 0 {
		c.API.TimeoutSecs = DefaultTimeoutSecs
	}
	if c.Session.ID == "" {
		c.Session.ID = DefaultSessionID
	}
	if c.Session.MaxHistoryRounds == 0 {
		c.Session.MaxHistoryRounds = DefaultMaxHistoryRounds
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultServerPath
	}
	if c.Transcript.Path == "" {
		c.Transcript.Path = Default().Transcript.Path
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ErrInvalid matches every validation failure via errors.Is.
var ErrInvalid = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrInvalid) true.
func (e ValidateErrors) Is(target error) bool {
	return target == ErrInvalid
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Validate checks the configuration. A missing URL or key is not an error:
// the server still starts and lists tools.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.API.URL != "" {
		u, err := url.Parse(c.API.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "api.url",
				Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port][/path]", c.API.URL),
			})
		}
	}
	if c.API.TimeoutSecs < 1 || c.API.TimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "api.timeout_secs",
			Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.API.TimeoutSecs),
		})
	}
	if c.API.RateLimitRPM < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.rate_limit_rpm",
			Message: "must not be negative",
		})
	}

	if c.Session.MaxHistoryRounds < 1 || c.Session.MaxHistoryRounds > 100 {
		errs = append(errs, ValidationError{
			Field:   "session.max_history_rounds",
			Message: fmt.Sprintf("must be between 1 and 100, got %d", c.Session.MaxHistoryRounds),
		})
	}

	if !validLogLevels[c.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if c.Transcript.Enabled && strings.TrimSpace(c.Transcript.Path) == "" {
		errs = append(errs, ValidationError{
			Field:   "transcript.path",
			Message: "required when transcript is enabled",
		})
	}

	if !strings.HasPrefix(c.Server.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "server.path",
			Message: fmt.Sprintf("must start with '/', got '%s'", c.Server.Path),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVE
// =============================================================================

// SaveTOML writes the configuration to path.
// SECURITY: Written with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ai-helper-mcp configuration file\n")
	buf.WriteString("# Environment variables (API_URL, API_KEY, AIHELPER_*) override these values.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(util.ExpandHome(path), buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

// MaskSecret shows at most the first five characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "[REDACTED]"
	}
	return s[:5] + "..."
}

// Redacted returns a copy with secrets masked.
func (c *Config) Redacted() Config {
	safe := *c
	safe.API.Key = MaskSecret(safe.API.Key)
	safe.Server.AuthToken = MaskSecret(safe.Server.AuthToken)
	return safe
}

// String returns an indented JSON view with secrets masked.
// SECURITY: Safe to log.
func (c *Config) String() string {
	safe := c.Redacted()
	data, _ := json.MarshalIndent(&safe, "", "  ")
	return string(data)
}
