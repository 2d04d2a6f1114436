// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the connection handler: it runs the per-client
// I/O goroutines between a transport connection and the client's
// queues.
//
// Each accepted connection gets a reader and a writer. The reader
// decodes frames, performs the handshake, and pushes every later
// message into the client's inbound queue, blocking while the queue is
// full. The writer waits on the outbound queue and encodes what the
// dispatch engine queued. Neither goroutine touches the node store.
//
// A connection ends when the peer closes, a frame fails to decode, the
// handshake is wrong, or anyone calls [client.Registry.Disconnect]. In
// every case the client moves to Closing, the writer flushes what is
// already queued within the close grace period, and the transport is
// closed. Tearing down the client's nodes is the dispatch engine's job.
package server
