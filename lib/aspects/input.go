// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// EventInput carries an InputEvent to an input handler's recipients.
const EventInput = "input"

// InputEvent is one input sample routed to a node. The core does not
// raycast; the renderer decides which node an event belongs to.
type InputEvent struct {
	// Source names the device, such as "pointer", "hand/left" or
	// "controller/right".
	Source   string         `cbor:"source"`
	Position *wire.Vec3     `cbor:"position,omitempty"`
	Rotation *wire.Quat     `cbor:"rotation,omitempty"`
	Distance float32        `cbor:"distance,omitempty"`
	Data     map[string]any `cbor:"data,omitempty"`
}

func (b *Builtins) inputTable() scene.Table {
	return scene.Table{
		Name:        InputHandler,
		Description: "Marks a node as a target for input events.",
		Requires:    []string{Spatial},
		Events:      []string{EventInput},
		Methods:     map[string]scene.Method{},
	}
}

// Input builds a task delivering event to node's input handler. Events
// for nodes that are gone, disabled or not input handlers are dropped.
func (b *Builtins) Input(node wire.NodeID, event InputEvent) scene.Task {
	return func(store *scene.Store, env scene.Env) {
		target, ok := store.Get(node)
		if !ok || !target.Enabled || !target.Has(InputHandler) {
			return
		}
		env.Emit(target, InputHandler, EventInput, event)
	}
}
