// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/stardust/lib/collab"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// spatialState is a node's place in space: a local matrix relative to
// its resolved spatial parent, or to the world when it has none.
type spatialState struct {
	renderer collab.Renderer
	local    math32.Matrix4
	zoneable bool
}

var (
	_ scene.Detacher       = (*spatialState)(nil)
	_ scene.ParentObserver = (*spatialState)(nil)
)

func spatialOf(node *scene.Node) (*spatialState, bool) {
	instance, ok := node.Instance(Spatial)
	if !ok {
		return nil, false
	}
	state, ok := instance.(*spatialState)
	return state, ok
}

// spatialParent resolves node's parent if it exists and is spatial.
func spatialParent(store *scene.Store, node *scene.Node) (*scene.Node, *spatialState) {
	parent, ok := store.Parent(node.ID)
	if !ok {
		return nil, nil
	}
	state, ok := spatialOf(parent)
	if !ok {
		return nil, nil
	}
	return parent, state
}

// world returns node's world matrix. A nil node is the world itself.
func world(store *scene.Store, node *scene.Node) math32.Matrix4 {
	if node == nil {
		return identity()
	}
	state, ok := spatialOf(node)
	if !ok {
		return identity()
	}
	parent, _ := spatialParent(store, node)
	return multiply(world(store, parent), state.local)
}

// spaceToSpace maps coordinates in from's space into to's space.
func spaceToSpace(store *scene.Store, from, to *scene.Node) math32.Matrix4 {
	return multiply(inverse(world(store, to)), world(store, from))
}

// push sends the node's current local matrix and parent to the
// renderer.
func (s *spatialState) push(store *scene.Store, node *scene.Node) {
	if node.Handle == nil {
		return
	}
	var parentHandle collab.Handle
	if parent, _ := spatialParent(store, node); parent != nil {
		parentHandle = parent.Handle
	}
	s.renderer.UpdateTransform(node.Handle, parentHandle, s.local)
}

// setComponents replaces the components of the node's transform that
// t specifies, interpreted in reference's space. A nil reference means
// the parent's space.
func (s *spatialState) setComponents(store *scene.Store, node, reference *scene.Node, t wire.Transform) {
	if reference == node {
		s.local = multiply(matrixOf(t), s.local)
		s.push(store, node)
		return
	}
	referenceToParent := identity()
	if reference != nil {
		parent, _ := spatialParent(store, node)
		referenceToParent = spaceToSpace(store, reference, parent)
	}
	inReference := multiply(inverse(referenceToParent), s.local)
	s.local = multiply(referenceToParent, overlay(inReference, t))
	s.push(store, node)
}

// ParentChanged re-parents the renderer transform. A parent that has
// disappeared leaves the node at the world root.
func (s *spatialState) ParentChanged(store *scene.Store, node *scene.Node, env scene.Env) {
	s.push(store, node)
}

// Detach releases the renderer transform.
func (s *spatialState) Detach(node *scene.Node, env scene.Env) {
	if node.Handle != nil {
		s.renderer.Release(node.Handle)
		node.Handle = nil
	}
}

type transformArgs struct {
	Transform wire.Transform `cbor:"transform"`
}

type relativeTransformArgs struct {
	RelativeTo wire.NodeRef   `cbor:"relative_to"`
	Transform  wire.Transform `cbor:"transform"`
}

type parentArgs struct {
	Parent wire.NodeRef `cbor:"parent"`
}

type getTransformArgs struct {
	RelativeTo *wire.NodeRef `cbor:"relative_to,omitempty"`
}

func (b *Builtins) spatialTable() scene.Table {
	return scene.Table{
		Name:        Spatial,
		Description: "Position, rotation and scale relative to a spatial parent.",
		New: func(node *scene.Node) scene.Instance {
			state := &spatialState{renderer: b.renderer, local: identity()}
			node.Handle = b.renderer.CreateTransform(node.ID)
			return state
		},
		Methods: map[string]scene.Method{
			"set_local_transform": {
				Handler:     setLocalTransform,
				Ownership:   true,
				Description: "Set transform components relative to the spatial parent.",
			},
			"set_relative_transform": {
				Handler:     setRelativeTransform,
				Ownership:   true,
				Description: "Set transform components relative to another spatial node.",
			},
			"set_spatial_parent": {
				Handler:     setSpatialParent,
				Ownership:   true,
				Description: "Reparent, keeping the local transform.",
			},
			"set_spatial_parent_in_place": {
				Handler:     setSpatialParentInPlace,
				Ownership:   true,
				Description: "Reparent, keeping the world transform.",
			},
			"get_transform": {
				Handler:     getTransform,
				Description: "Transform relative to another spatial node, or to the world.",
			},
			"get_children": {
				Handler:     getChildren,
				Description: "Nodes whose spatial parent is this node.",
			},
			"set_zoneable": {
				Handler:     setZoneable,
				Ownership:   true,
				Description: "Allow zones to capture this node.",
			},
		},
	}
}

func callSpatial(call *scene.Call) *spatialState {
	state, _ := call.Instance().(*spatialState)
	return state
}

// spatialArgument resolves a node reference that must carry spatial.
func spatialArgument(store *scene.Store, ref wire.NodeRef, role string) (*scene.Node, error) {
	node, err := resolveRef(store, ref, role)
	if err != nil {
		return nil, err
	}
	if !node.Has(Spatial) {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "%s %s is not spatial", role, node.ID)
	}
	return node, nil
}

func setLocalTransform(call *scene.Call) (any, error) {
	var args transformArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	callSpatial(call).setComponents(call.Store(), call.Node, nil, args.Transform)
	return nil, nil
}

func setRelativeTransform(call *scene.Call) (any, error) {
	var args relativeTransformArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	reference, err := spatialArgument(call.Store(), args.RelativeTo, "relative_to")
	if err != nil {
		return nil, err
	}
	callSpatial(call).setComponents(call.Store(), call.Node, reference, args.Transform)
	return nil, nil
}

func setSpatialParent(call *scene.Call) (any, error) {
	var args parentArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	parent, err := spatialArgument(call.Store(), args.Parent, "parent")
	if err != nil {
		return nil, err
	}
	return nil, call.Store().SetParent(call.Node.ID, parent.ID)
}

func setSpatialParentInPlace(call *scene.Call) (any, error) {
	var args parentArgs
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	parent, err := spatialArgument(call.Store(), args.Parent, "parent")
	if err != nil {
		return nil, err
	}
	if call.Node.ID == parent.ID || call.Store().IsAncestor(call.Node.ID, parent.ID) {
		return nil, wire.Errorf(wire.CodeAspectError, "parenting %s to %s would create a loop", call.Node.ID, parent.ID)
	}
	// Keep the world transform: the new local matrix is the node's
	// pose expressed in the new parent's space.
	callSpatial(call).local = spaceToSpace(call.Store(), call.Node, parent)
	return nil, call.Store().SetParent(call.Node.ID, parent.ID)
}

func getTransform(call *scene.Call) (any, error) {
	var args getTransformArgs
	if err := call.DecodeOptional(&args); err != nil {
		return nil, err
	}
	var reference *scene.Node
	if args.RelativeTo != nil {
		var err error
		if reference, err = spatialArgument(call.Store(), *args.RelativeTo, "relative_to"); err != nil {
			return nil, err
		}
	}
	return transformOf(spaceToSpace(call.Store(), call.Node, reference)), nil
}

func getChildren(call *scene.Call) (any, error) {
	return refs(call.Store().ChildrenOf(call.Node.ID)), nil
}

func setZoneable(call *scene.Call) (any, error) {
	var args struct {
		Zoneable bool `cbor:"zoneable"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	callSpatial(call).zoneable = args.Zoneable
	return nil, nil
}
