// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides stardust's CBOR encoding configuration.
//
// Every CBOR byte the server produces goes through a [Mode]: the wire
// protocol (lib/wire) builds one with its tagged value types
// registered, while the admin socket and session files use the
// package-level standard mode through [Marshal] and [Unmarshal].
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
// Same logical data always produces identical bytes, which is what
// makes byte-level round-trip tests of the wire codec meaningful.
//
// The decoder is hardened for untrusted input: nesting depth and
// collection sizes are bounded, duplicate map keys and
// indefinite-length items are rejected.
//
// For buffer-oriented operations (frames, files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (admin sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
