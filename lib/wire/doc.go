// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the stardust client protocol: message
// envelopes, the values they carry, and the byte framing used on every
// client transport.
//
// A frame is a 6-byte header followed by a payload:
//
//	[1 byte kind] [1 byte flags] [4 bytes payload length, big-endian]
//
// The kind byte is one of [KindCall], [KindResponse] or [KindSignal].
// The payload is a CBOR map holding the rest of the [Message]. When
// [FlagCompressed] is set the payload is an LZ4 block prefixed with its
// uncompressed length; compression is only used after the handshake
// negotiated it.
//
// Decoding is total. Every malformed frame yields a [*ProtocolError];
// nothing in this package panics on peer input, and nothing touches
// scene state, so a bad frame can never leave a partial mutation
// behind. For every valid Message m, Decode(Encode(m)) equals m.
//
// Arguments are arbitrary CBOR. Node references, vectors and
// quaternions are CBOR-tagged ([NodeRef], [Vec2], [Vec3], [Quat]) so
// they keep their type when decoded into any.
package wire
