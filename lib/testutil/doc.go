// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for stardust packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout pattern so tests never hang on a broken
// goroutine. [SocketDir] returns a socket-safe temporary directory.
// [Logger] routes slog output through t.Log. [UniqueID] generates
// distinguishable names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
