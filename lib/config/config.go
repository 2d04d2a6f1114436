// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is a desktop session run by hand.
	Development Environment = "development"
	// Production is a session started by a display manager.
	Production Environment = "production"
)

// Duration is a time.Duration that reads "250ms" or "5s" from YAML.
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"5s\": %w", value.Line, err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the server configuration.
type Config struct {
	// Environment selects an override section.
	Environment Environment `yaml:"environment"`

	Server  ServerConfig  `yaml:"server"`
	Limits  LimitsConfig  `yaml:"limits"`
	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides are the per-environment sections. Zero fields leave the
// base value alone.
type Overrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Limits  *LimitsConfig  `yaml:"limits,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig configures listeners and the frame clock.
type ServerConfig struct {
	// Socket is the client socket path. Empty picks the first free
	// stardust-N socket in the runtime directory.
	Socket string `yaml:"socket"`

	// TickRate is the frame rate of the dispatch engine in Hz.
	// Default: 90
	TickRate float64 `yaml:"tick_rate"`

	// WebSocketListen is a host:port for the WebSocket listener.
	// Empty disables it.
	WebSocketListen string `yaml:"websocket_listen"`

	// WebSocketPath is the HTTP path upgraded to WebSocket.
	// Default: /stardust
	WebSocketPath string `yaml:"websocket_path"`

	// AdminSocket is the admin socket path. Empty derives it from the
	// client socket as <socket>.admin.
	AdminSocket string `yaml:"admin_socket"`

	// MetricsListen is a host:port serving /metrics. Empty disables
	// it.
	MetricsListen string `yaml:"metrics_listen"`
}

// LimitsConfig bounds per-client resources.
type LimitsConfig struct {
	InboundQueue      int      `yaml:"inbound_queue"`
	OutboundQueue     int      `yaml:"outbound_queue"`
	InboundStall      Duration `yaml:"inbound_stall"`
	MaxPayload        int      `yaml:"max_payload"`
	CompressThreshold int      `yaml:"compress_threshold"`
	HandshakeTimeout  Duration `yaml:"handshake_timeout"`
	WriteTimeout      Duration `yaml:"write_timeout"`
	CloseGrace        Duration `yaml:"close_grace"`
	CallTimeout       Duration `yaml:"call_timeout"`
}

// SessionConfig configures session save and restore.
type SessionConfig struct {
	// StateDir holds saved sessions.
	// Default: ${XDG_STATE_HOME:-${HOME}/.local/state}/stardust
	StateDir string `yaml:"state_dir"`

	// StartupScript runs once the server is ready, unless a session
	// is being restored. A missing script is skipped.
	// Default: ${HOME}/.config/stardust/startup
	StartupScript string `yaml:"startup_script"`

	// SaveTimeout bounds how long a save waits for clients.
	// Default: 5s
	SaveTimeout Duration `yaml:"save_timeout"`
}

// LoggingConfig configures the server's slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info
	Level string `yaml:"level"`

	// Format is json or text. Default: json
	Format string `yaml:"format"`
}

// Default returns the default configuration, the base that a loaded
// file is merged into.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(homeDir, ".local", "state")
	}

	return &Config{
		Environment: Development,
		Server: ServerConfig{
			TickRate:      90,
			WebSocketPath: "/stardust",
		},
		Limits: LimitsConfig{
			InboundQueue:      1024,
			OutboundQueue:     4096,
			InboundStall:      Duration(5 * time.Second),
			MaxPayload:        16 * 1024 * 1024,
			CompressThreshold: 4096,
			HandshakeTimeout:  Duration(10 * time.Second),
			WriteTimeout:      Duration(5 * time.Second),
			CloseGrace:        Duration(time.Second),
			CallTimeout:       Duration(30 * time.Second),
		},
		Session: SessionConfig{
			StateDir:      filepath.Join(stateHome, "stardust"),
			StartupScript: filepath.Join(homeDir, ".config", "stardust", "startup"),
			SaveTimeout:   Duration(5 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// ConfigEnv names the environment variable Load reads.
const ConfigEnv = "STARDUST_CONFIG"

// Load loads configuration from the file named by STARDUST_CONFIG.
// It fails when the variable is unset; callers that can run on
// defaults check the variable first.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigEnv)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your stardust.yaml config file, or use --config flag", ConfigEnv)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the environment
// section and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			// Remote clients are opt-in outside development.
			c.Server.WebSocketListen = ""
		}
	}
	if overrides == nil {
		return
	}

	if o := overrides.Server; o != nil {
		override(&c.Server.Socket, o.Socket)
		override(&c.Server.TickRate, o.TickRate)
		override(&c.Server.WebSocketListen, o.WebSocketListen)
		override(&c.Server.WebSocketPath, o.WebSocketPath)
		override(&c.Server.AdminSocket, o.AdminSocket)
		override(&c.Server.MetricsListen, o.MetricsListen)
	}
	if o := overrides.Limits; o != nil {
		override(&c.Limits.InboundQueue, o.InboundQueue)
		override(&c.Limits.OutboundQueue, o.OutboundQueue)
		override(&c.Limits.InboundStall, o.InboundStall)
		override(&c.Limits.MaxPayload, o.MaxPayload)
		override(&c.Limits.CompressThreshold, o.CompressThreshold)
		override(&c.Limits.HandshakeTimeout, o.HandshakeTimeout)
		override(&c.Limits.WriteTimeout, o.WriteTimeout)
		override(&c.Limits.CloseGrace, o.CloseGrace)
		override(&c.Limits.CallTimeout, o.CallTimeout)
	}
	if o := overrides.Session; o != nil {
		override(&c.Session.StateDir, o.StateDir)
		override(&c.Session.StartupScript, o.StartupScript)
		override(&c.Session.SaveTimeout, o.SaveTimeout)
	}
	if o := overrides.Logging; o != nil {
		override(&c.Logging.Level, o.Level)
		override(&c.Logging.Format, o.Format)
	}
}

// override sets *field to value unless value is the zero value.
func override[T comparable](field *T, value T) {
	var zero T
	if value != zero {
		*field = value
	}
}

// ExpandVariables expands ${VAR} and ${VAR:-default} in path fields.
// LoadFile calls it; cmd/stardust calls it again after applying flags.
func (c *Config) ExpandVariables() {
	for _, field := range []*string{
		&c.Server.Socket,
		&c.Server.AdminSocket,
		&c.Session.StateDir,
		&c.Session.StartupScript,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Server.TickRate <= 0 || c.Server.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("server.tick_rate must be in (0, 1000], got %v", c.Server.TickRate))
	}
	if c.Server.WebSocketListen != "" && (c.Server.WebSocketPath == "" || c.Server.WebSocketPath[0] != '/') {
		errs = append(errs, fmt.Errorf("server.websocket_path must start with /"))
	}

	positive := []struct {
		name  string
		value int
	}{
		{"limits.inbound_queue", c.Limits.InboundQueue},
		{"limits.outbound_queue", c.Limits.OutboundQueue},
		{"limits.max_payload", c.Limits.MaxPayload},
		{"limits.compress_threshold", c.Limits.CompressThreshold},
	}
	for _, field := range positive {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	durations := []struct {
		name  string
		value Duration
	}{
		{"limits.handshake_timeout", c.Limits.HandshakeTimeout},
		{"limits.write_timeout", c.Limits.WriteTimeout},
		{"limits.close_grace", c.Limits.CloseGrace},
		{"limits.call_timeout", c.Limits.CallTimeout},
		{"session.save_timeout", c.Session.SaveTimeout},
	}
	for _, field := range durations {
		if field.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", field.name))
		}
	}
	if c.Limits.InboundStall < 0 {
		errs = append(errs, fmt.Errorf("limits.inbound_stall must not be negative"))
	}

	if c.Session.StateDir == "" {
		errs = append(errs, fmt.Errorf("session.state_dir is required"))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains([]string{"json", "text"}, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// AdminSocketPath returns the configured admin socket, or the one
// derived from the client socket path.
func (c *Config) AdminSocketPath(clientSocket string) string {
	if c.Server.AdminSocket != "" {
		return c.Server.AdminSocket
	}
	return clientSocket + ".admin"
}
