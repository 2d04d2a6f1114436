// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Stardust is the display server. It owns the node graph, accepts
// clients on a Unix socket (and optionally a WebSocket listener), and
// runs the dispatch engine once per frame.
//
// # Startup
//
// Configuration comes from --config or STARDUST_CONFIG, else defaults.
// Flags override the loaded values. The server then:
//
//  1. builds the built-in aspect registry and the dispatch engine
//  2. listens on the client socket, picking the first free
//     stardust-N in $XDG_RUNTIME_DIR when no socket is configured
//  3. serves the admin socket at <socket>.admin
//  4. optionally serves Prometheus metrics over HTTP
//  5. exports STARDUST_INSTANCE and either restores a saved session
//     (--restore) or runs the startup script
//
// # Shutdown
//
// SIGINT or SIGTERM stops accepting, disconnects every client with
// reason "shutdown", and tears down their nodes on a final tick.
package main
