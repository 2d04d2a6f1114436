// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/stardust/lib/client"
	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// SaveStateMethod is the interface method a client with the
// save_state capability answers with its state.
const SaveStateMethod = "save_state"

// Poster schedules work onto the dispatch goroutine.
// *dispatch.Engine implements it.
type Poster interface {
	Post(task scene.Task) error
}

type answer struct {
	state ClientState
	err   error
}

// Collect asks every Active client with the save_state capability for
// its state and returns the answers that arrive before ctx is done.
// Clients that fail or do not answer in time are left out.
func Collect(ctx context.Context, engine Poster, clients *client.Registry, logger *slog.Logger) ([]ClientState, error) {
	type round struct {
		answers  <-chan answer
		expected int
	}
	started := make(chan round, 1)
	err := engine.Post(func(store *scene.Store, env scene.Env) {
		var targets []*client.Client
		for _, c := range clients.Active() {
			if c.HasCapability(wire.CapabilitySaveState) {
				targets = append(targets, c)
			}
		}
		answers := make(chan answer, len(targets))
		for _, c := range targets {
			state := ClientState{
				Name:    c.Name(),
				Command: strings.Fields(c.Peer.Command),
				Dir:     c.Peer.Cwd,
			}
			reply := func(result codec.RawMessage, err error) {
				state.Data = result
				answers <- answer{state: state, err: err}
			}
			if err := env.Request(c.ID, wire.InterfaceNode, wire.InterfaceAspect, SaveStateMethod, nil, reply); err != nil {
				answers <- answer{state: state, err: err}
			}
		}
		started <- round{answers: answers, expected: len(targets)}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling session save: %w", err)
	}

	var r round
	select {
	case r = <-started:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var states []ClientState
	for range r.expected {
		select {
		case a := <-r.answers:
			if a.err != nil {
				logger.Warn("client did not save state", "client", a.state.Name, "error", a.err)
				continue
			}
			if len(a.state.Command) == 0 {
				logger.Warn("client state has no command to relaunch", "client", a.state.Name)
			}
			states = append(states, a.state)
		case <-ctx.Done():
			logger.Warn("session save timed out", "answered", len(states), "expected", r.expected)
			return states, nil
		}
	}
	return states, nil
}
