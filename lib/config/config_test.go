// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stardust.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Server.TickRate != 90 {
		t.Errorf("expected tick_rate=90, got %v", cfg.Server.TickRate)
	}
	if cfg.Limits.CallTimeout.Std() != 30*time.Second {
		t.Errorf("expected call_timeout=30s, got %v", cfg.Limits.CallTimeout.Std())
	}
	if !strings.HasSuffix(cfg.Session.StateDir, "stardust") {
		t.Errorf("expected state_dir ending in stardust, got %s", cfg.Session.StateDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadRequiresConfigEnv(t *testing.T) {
	t.Setenv(ConfigEnv, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when STARDUST_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "STARDUST_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadWithConfigEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  tick_rate: 60
  websocket_listen: 127.0.0.1:7000
limits:
  outbound_queue: 128
  write_timeout: 250ms
logging:
  level: debug
`)
	t.Setenv(ConfigEnv, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.TickRate != 60 {
		t.Errorf("tick_rate = %v, want 60", cfg.Server.TickRate)
	}
	if cfg.Server.WebSocketListen != "127.0.0.1:7000" {
		t.Errorf("websocket_listen = %q", cfg.Server.WebSocketListen)
	}
	if cfg.Limits.OutboundQueue != 128 {
		t.Errorf("outbound_queue = %d, want 128", cfg.Limits.OutboundQueue)
	}
	if cfg.Limits.WriteTimeout.Std() != 250*time.Millisecond {
		t.Errorf("write_timeout = %v, want 250ms", cfg.Limits.WriteTimeout.Std())
	}
	// Unset fields keep their defaults.
	if cfg.Limits.InboundQueue != 1024 {
		t.Errorf("inbound_queue = %d, want default 1024", cfg.Limits.InboundQueue)
	}
	if cfg.Server.WebSocketPath != "/stardust" {
		t.Errorf("websocket_path = %q, want default", cfg.Server.WebSocketPath)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		content       string
		wantTickRate  float64
		wantWebSocket string
		wantLevel     string
	}{
		{
			name: "development section applies",
			content: `
environment: development
server:
  websocket_listen: 127.0.0.1:7000
development:
  server:
    tick_rate: 30
  logging:
    level: debug
production:
  server:
    tick_rate: 120
`,
			wantTickRate:  30,
			wantWebSocket: "127.0.0.1:7000",
			wantLevel:     "debug",
		},
		{
			name: "production section applies",
			content: `
environment: production
server:
  websocket_listen: 127.0.0.1:7000
production:
  server:
    tick_rate: 120
`,
			wantTickRate:  120,
			wantWebSocket: "127.0.0.1:7000",
			wantLevel:     "info",
		},
		{
			name: "production without section disables websocket",
			content: `
environment: production
server:
  websocket_listen: 127.0.0.1:7000
`,
			wantTickRate:  90,
			wantWebSocket: "",
			wantLevel:     "info",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := LoadFile(writeConfig(t, test.content))
			if err != nil {
				t.Fatalf("LoadFile: %v", err)
			}
			if cfg.Server.TickRate != test.wantTickRate {
				t.Errorf("tick_rate = %v, want %v", cfg.Server.TickRate, test.wantTickRate)
			}
			if cfg.Server.WebSocketListen != test.wantWebSocket {
				t.Errorf("websocket_listen = %q, want %q", cfg.Server.WebSocketListen, test.wantWebSocket)
			}
			if cfg.Logging.Level != test.wantLevel {
				t.Errorf("logging.level = %q, want %q", cfg.Logging.Level, test.wantLevel)
			}
		})
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("STARDUST_TEST_SET", "/set")
	t.Setenv("STARDUST_TEST_EMPTY", "")

	tests := []struct {
		input string
		want  string
	}{
		{"${STARDUST_TEST_SET}/state", "/set/state"},
		{"${STARDUST_TEST_EMPTY:-/fallback}/state", "/fallback/state"},
		{"${STARDUST_TEST_MISSING}/state", "/state"},
		{"/plain/path", "/plain/path"},
		{"${STARDUST_TEST_SET}-${STARDUST_TEST_MISSING:-x}", "/set-x"},
	}
	for _, test := range tests {
		if got := expandVars(test.input); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestLoadFileExpandsPaths(t *testing.T) {
	t.Setenv("STARDUST_TEST_RUNTIME", "/run/user/1000")

	cfg, err := LoadFile(writeConfig(t, `
server:
  socket: ${STARDUST_TEST_RUNTIME}/stardust-0
session:
  state_dir: ${STARDUST_TEST_UNSET:-/var/lib/stardust}
`))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Socket != "/run/user/1000/stardust-0" {
		t.Errorf("socket = %q", cfg.Server.Socket)
	}
	if cfg.Session.StateDir != "/var/lib/stardust" {
		t.Errorf("state_dir = %q", cfg.Session.StateDir)
	}
	if got := cfg.AdminSocketPath(cfg.Server.Socket); got != "/run/user/1000/stardust-0.admin" {
		t.Errorf("AdminSocketPath = %q", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); !os.IsNotExist(err) {
		t.Errorf("missing file: expected not-exist error, got %v", err)
	}

	_, err := LoadFile(writeConfig(t, "limits:\n  write_timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("bad duration: expected error naming line 2, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		want   []string
	}{
		{
			name:   "bad environment",
			modify: func(c *Config) { c.Environment = "staging" },
			want:   []string{"invalid environment: staging"},
		},
		{
			name:   "zero tick rate",
			modify: func(c *Config) { c.Server.TickRate = 0 },
			want:   []string{"server.tick_rate"},
		},
		{
			name: "websocket path without slash",
			modify: func(c *Config) {
				c.Server.WebSocketListen = ":7000"
				c.Server.WebSocketPath = "stardust"
			},
			want: []string{"server.websocket_path"},
		},
		{
			name: "every bad field is reported",
			modify: func(c *Config) {
				c.Limits.OutboundQueue = 0
				c.Limits.CallTimeout = 0
				c.Logging.Level = "loud"
				c.Logging.Format = "xml"
			},
			want: []string{
				"limits.outbound_queue",
				"limits.call_timeout",
				"logging.level",
				"logging.format",
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, want := range test.want {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}
