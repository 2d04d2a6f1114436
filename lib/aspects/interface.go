// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"cmp"
	"slices"

	"github.com/bureau-foundation/stardust/lib/clock"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Interface events, delivered to clients subscribed with
// subscribe_frame.
const (
	EventFrame          = "frame"
	EventSurfaceCreated = "surface_created"
)

// CreateNodeArgs are the arguments of interface.create_node.
type CreateNodeArgs struct {
	Parent    *wire.NodeRef   `cbor:"parent,omitempty"`
	Aspects   []string        `cbor:"aspects"`
	Transform *wire.Transform `cbor:"transform,omitempty"`
}

// FrameEvent is the payload of the interface frame event.
type FrameEvent struct {
	Number uint64  `cbor:"number"`
	Delta  float64 `cbor:"delta"`
}

type tokenArgs struct {
	Token string `cbor:"token"`
}

func (b *Builtins) interfaceTable() scene.Table {
	return scene.Table{
		Name:        Interface,
		Description: "Entry point on the interface node: node creation, import, frame events.",
		Events:      []string{EventFrame, EventSurfaceCreated},
		Methods: map[string]scene.Method{
			wire.HandshakeMethod: {
				Handler:     handshakeAgain,
				Description: "Version negotiation. Only valid as the first message of a connection.",
			},
			"create_node": {
				Handler:     b.createNode,
				Description: "Create a node owned by the caller.",
			},
			"import": {
				Handler:     b.importNode,
				Description: "Redeem an export token.",
			},
			"subscribe_frame": {
				Handler:     subscribeInterface,
				Description: "Receive frame and surface events.",
			},
			"unsubscribe_frame": {
				Handler:     unsubscribeInterface,
				Description: "Stop receiving frame and surface events.",
			},
			"restore_state": {
				Handler:     b.restoreState,
				Description: "Fetch the state saved for a startup token.",
			},
			"list_surfaces": {
				Handler:     b.listSurfaces,
				Description: "List panel nodes for live compositor surfaces.",
			},
		},
		Tick: emitFrame,
	}
}

func handshakeAgain(call *scene.Call) (any, error) {
	return nil, wire.Errorf(wire.CodeAspectError, "handshake already completed")
}

func (b *Builtins) createNode(call *scene.Call) (any, error) {
	var args CreateNodeArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	var parent wire.NodeID
	if args.Parent != nil {
		parent = args.Parent.ID()
	}
	node, err := call.CreateNode(parent, args.Aspects)
	if err != nil {
		return nil, err
	}
	if state, ok := spatialOf(node); ok {
		if args.Transform != nil {
			state.setComponents(call.Store(), node, nil, *args.Transform)
		} else {
			state.push(call.Store(), node)
		}
	}
	return wire.Ref(node.ID), nil
}

func subscribeInterface(call *scene.Call) (any, error) {
	call.Node.Subscribe(call.Caller)
	return nil, nil
}

func unsubscribeInterface(call *scene.Call) (any, error) {
	call.Node.Unsubscribe(call.Caller)
	return nil, nil
}

func (b *Builtins) restoreState(call *scene.Call) (any, error) {
	var args tokenArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if b.states == nil {
		return nil, wire.Errorf(wire.CodeAspectError, "no saved session")
	}
	state, ok := b.states.TakeState(args.Token)
	if !ok {
		return nil, wire.Errorf(wire.CodeAspectError, "no saved state for token %q", args.Token)
	}
	return state, nil
}

func (b *Builtins) listSurfaces(call *scene.Call) (any, error) {
	ids := make([]wire.NodeID, 0, len(b.surfaces))
	for _, id := range b.surfaces {
		if _, ok := call.Store().Get(id); ok {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, cmp.Compare[wire.NodeID])
	return refs(ids), nil
}

func emitFrame(store *scene.Store, env scene.Env, frame clock.Frame) {
	node, ok := store.Get(wire.InterfaceNode)
	if !ok {
		return
	}
	env.Emit(node, Interface, EventFrame, FrameEvent{
		Number: frame.Number,
		Delta:  frame.Delta.Seconds(),
	})
}
