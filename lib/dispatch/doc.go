// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch is the tick-driven core of the server.
//
// [Engine.Tick] is the only code that touches the node store. Each
// tick it drains the inbound queue of every Active client (lowest
// client ID first, each client's messages in arrival order), resolves
// every Call and Signal against the store and the aspect registry,
// invokes the handler, and queues Responses and event Signals on
// outbound queues. It then runs tasks posted by collaborators, tears
// down clients that entered Closing, expires pending calls, and runs
// per-aspect tick hooks. A tick never waits on I/O: queuing a message
// only wakes the client's writer.
//
// Handlers reach back into the engine through [scene.Env], which
// Engine implements. Forwarded calls and server-originated requests
// become pending calls keyed by (callee, sequence number); they resolve
// when the callee answers, when either party disconnects
// (client_disconnected), or when the call timeout passes (timeout).
//
// Ticks are serialized: Tick holds a mutex for its whole duration. Run
// drives Tick from a frame channel, normally a [clock.FrameTicker] or
// an external renderer's frame clock.
package dispatch
