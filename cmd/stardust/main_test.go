// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/stardust/lib/config"
	"github.com/bureau-foundation/stardust/lib/process"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	opts, err := parseFlags([]string{"--socket", "/tmp/s", "--tick-rate", "60", "--restore", "latest", "--execute-startup-script=false"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.socket != "/tmp/s" || opts.tickRate != 60 || opts.restore != "latest" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.startupScript {
		t.Error("--execute-startup-script=false was ignored")
	}

	defaults, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags(nil): %v", err)
	}
	if !defaults.startupScript {
		t.Error("startup script should run by default")
	}
}

func TestParseFlagsUsageErrors(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{"--no-such-flag"},
		{"--tick-rate", "fast"},
		{"extra"},
	} {
		_, err := parseFlags(args)
		var usage *process.UsageError
		if !errors.As(err, &usage) {
			t.Errorf("parseFlags(%q) = %v, want a usage error", args, err)
		}
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stardust.yaml")
	content := "server:\n  tick_rate: 30\n  socket: /run/from-file\nlogging:\n  level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.ConfigEnv, path)

	opts, err := parseFlags([]string{"--tick-rate", "120", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Server.TickRate != 120 {
		t.Errorf("tick_rate = %v, want flag value 120", cfg.Server.TickRate)
	}
	if cfg.Server.Socket != "/run/from-file" {
		t.Errorf("socket = %q, want file value", cfg.Server.Socket)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want flag value debug", cfg.Logging.Level)
	}
}

func TestLoadConfigRejectsInvalidFlags(t *testing.T) {
	t.Setenv(config.ConfigEnv, "")

	opts, err := parseFlags([]string{"--tick-rate=-5"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := loadConfig(opts); err == nil {
		t.Fatal("expected a negative tick rate to fail validation")
	}
}
