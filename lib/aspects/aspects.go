// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"fmt"

	"github.com/bureau-foundation/stardust/lib/codec"
	"github.com/bureau-foundation/stardust/lib/collab"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// Aspect names.
const (
	Interface    = wire.InterfaceAspect
	Node         = "node"
	Spatial      = "spatial"
	Drawable     = "drawable"
	InputHandler = "input_handler"
	Panel        = "panel"
	Relay        = "relay"
)

// StateSource hands out saved client state by startup token. Each
// token is redeemable once.
type StateSource interface {
	TakeState(token string) (codec.RawMessage, bool)
}

// Deps are the collaborators the aspects call into. Nil fields fall
// back to collab.Nop.
type Deps struct {
	Renderer   collab.Renderer
	Compositor collab.Compositor

	// States serves interface.restore_state. Nil means no session was
	// restored.
	States StateSource
}

// Builtins is the built-in aspect set. Its maps are only touched on
// the dispatch goroutine: from handlers and from the tasks it builds.
type Builtins struct {
	Registry *scene.Registry

	renderer   collab.Renderer
	compositor collab.Compositor
	states     StateSource

	exports     map[string]export
	nodeExports map[wire.NodeID]map[string]struct{}
	surfaces    map[collab.SurfaceID]wire.NodeID
}

// New registers every built-in aspect and freezes the registry.
func New(deps Deps) (*Builtins, error) {
	b := &Builtins{
		Registry:    scene.NewRegistry(),
		renderer:    deps.Renderer,
		compositor:  deps.Compositor,
		states:      deps.States,
		exports:     make(map[string]export),
		nodeExports: make(map[wire.NodeID]map[string]struct{}),
		surfaces:    make(map[collab.SurfaceID]wire.NodeID),
	}
	if b.renderer == nil {
		b.renderer = collab.Nop{}
	}
	if b.compositor == nil {
		b.compositor = collab.Nop{}
	}

	// Order matters: Requires must name already-registered aspects.
	for _, table := range []scene.Table{
		b.interfaceTable(),
		b.nodeTable(),
		b.spatialTable(),
		b.drawableTable(),
		b.inputTable(),
		b.panelTable(),
		b.relayTable(),
	} {
		if err := b.Registry.Register(table); err != nil {
			return nil, fmt.Errorf("registering built-in aspects: %w", err)
		}
	}
	b.Registry.Freeze()
	return b, nil
}

// resolveRef looks up a node named by an argument, reporting
// unknown_node for dangling references.
func resolveRef(store *scene.Store, ref wire.NodeRef, role string) (*scene.Node, error) {
	node, ok := store.Get(ref.ID())
	if !ok {
		return nil, wire.Errorf(wire.CodeUnknownNode, "%s %s", role, ref.ID())
	}
	return node, nil
}

// refs converts IDs to references for results.
func refs(ids []wire.NodeID) []wire.NodeRef {
	out := make([]wire.NodeRef, len(ids))
	for i, id := range ids {
		out[i] = wire.Ref(id)
	}
	return out
}
