// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scene

import (
	"log/slog"

	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Env is the dispatch engine as seen from a handler. Every effect that
// leaves the store goes through it: signals are queued to outbound
// queues and forwarded calls become pending calls.
type Env interface {
	// Emit queues an event signal about node to each of its
	// recipients.
	Emit(node *Node, aspect, event string, payload any)

	// Notify queues an event signal about node to a single client.
	Notify(client wire.ClientID, node *Node, aspect, event string, payload any)

	// Forward sends a call to target on behalf of call. When call is a
	// Call, its response is deferred until target answers, disconnects,
	// or times out. When call is a Signal, a signal is forwarded and
	// nothing waits.
	Forward(call *Call, target wire.ClientID, node wire.NodeID, aspect, member string, args any) error

	// Request sends a server-originated call to target. reply runs on
	// the dispatch goroutine with the raw result, or with a *wire.Error
	// when target answers with an error, disconnects, or times out.
	Request(target wire.ClientID, node wire.NodeID, aspect, member string, args any, reply Reply) error

	// Logger returns the engine's logger.
	Logger() *slog.Logger
}

// Reply receives the outcome of Env.Request.
type Reply func(result codec.RawMessage, err error)

// Task is work scheduled onto the dispatch goroutine by code that does
// not own the store, such as renderer input callbacks or the
// compositor. Tasks run during a tick, after client messages.
type Task func(store *Store, env Env)
