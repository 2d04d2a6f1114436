// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session saves and restores the set of running clients.
//
// Saving asks every client that advertised the save_state capability
// for an opaque state blob (see [Collect]) and writes one file per
// client under a new session directory named by a ULID. A "latest"
// symlink points at the most recent session.
//
// Restoring relaunches each saved client's command with a startup
// token in STARDUST_STARTUP_TOKEN. The client redeems the token once
// through interface.restore_state, which the [Store] serves via
// TakeState.
//
// State files are CBOR, zstd-compressed, with a keyed BLAKE3 checksum
// of the uncompressed payload so truncated or edited files are
// rejected rather than handed to a client.
package session
