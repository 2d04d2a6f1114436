// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin serves the server's administrative socket and
// provides the client stardustctl uses to talk to it.
//
// The protocol is one CBOR request per connection: the client writes
// a map with an "action" field plus action-specific fields, the server
// answers with a [Response] envelope ({ok, error, data}) and closes
// the connection. Actions that read the scene run on the dispatch
// goroutine through dispatch.Engine.Do, so they observe a consistent
// state between ticks.
//
// Actions:
//
//   - status: version, frame, and client/node/pending-call counts
//   - clients: a client.Snapshot per connected client
//   - nodes: a flat NodeSummary per node
//   - tree: the spatial hierarchy as nested TreeNodes
//   - disconnect {client}: kick a client
//   - save-session: collect client state and write a session
package admin
