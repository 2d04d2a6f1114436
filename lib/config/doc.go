// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the stardust
// server.
//
// Configuration comes from a single file named by the STARDUST_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no file discovery: without either, the server
// runs on [Default].
//
// The file may carry environment-specific sections (development,
// production) whose non-zero fields override base values when
// [Config].Environment matches. Production without an explicit section
// disables the WebSocket listener.
//
// Path fields are expanded after loading: ${HOME}, ${XDG_RUNTIME_DIR},
// ${XDG_STATE_HOME} and ${VAR:-default} patterns. Command-line flags
// override the loaded values in cmd/stardust; no other environment
// variables do.
//
// Key exports:
//
//   - [Config] -- Server, Limits, Session and Logging sections
//   - [Default] -- a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Duration] -- a time.Duration written as "5s" in YAML
//
// This package depends on no other stardust packages.
package config
