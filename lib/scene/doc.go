// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scene holds the server's object model: the aspect registry,
// the node store, and the call context handlers receive.
//
// An aspect is a named capability described by a [Table]: a method
// table with one uniform handler contract, the events it emits, and an
// optional per-node [Instance] constructor. Tables are registered once
// at startup and the [Registry] is then frozen; nothing registers an
// aspect at runtime. Dispatch resolves (node, aspect, method) by name
// and never knows which concrete aspect it is invoking.
//
// The [Store] is an arena of [Node] values indexed by [wire.NodeID].
// IDs come from a counter and are never reused, so a stale ID can only
// fail to resolve; it can never resolve to an unrelated node. Spatial
// parents are weak: a node stores its parent's ID and every traversal
// looks it up again. A parent that no longer exists is a normal state
// that resolves to "no parent". Children are computed by scanning
// parent references rather than kept as a second list.
//
// The store is not safe for concurrent use. Only the dispatch engine
// touches it, and only during a tick.
package scene
