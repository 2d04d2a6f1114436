// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package aspects implements the built-in aspects and builds the
// frozen registry the engine runs on.
//
// The interface aspect lives only on node 0 and is how a client creates
// its first nodes. The node aspect is implicit on every other node and
// carries lifecycle and sharing methods. spatial, drawable and
// input_handler feed the renderer; panel wraps compositor surfaces;
// relay lets a client expose methods answered by the node's owner.
//
// Collaborators report back through tasks built here ([Builtins.Input],
// [Builtins.SurfaceCreated] and friends) that the caller posts to the
// engine.
package aspects
