// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the byte-stream listeners clients connect
// through.
//
// The primary transport is a Unix domain socket ([UnixListener]), by
// default the first free $XDG_RUNTIME_DIR/stardust-N. On Linux it
// reports the peer's PID, UID, command line and working directory from
// SO_PEERCRED, which session saving uses to relaunch clients.
//
// [WebSocketListener] serves the same protocol over WebSocket binary
// messages, adapted to a stream by [WebSocketConn].
//
// Listeners only accept. Framing, handshakes and lifetimes belong to
// lib/server.
package transport
