// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"github.com/bureau-foundation/stardust/lib/collab"
	"github.com/bureau-foundation/stardust/lib/scene"
	"github.com/bureau-foundation/stardust/lib/wire"
)

// EventCommit is emitted on a panel node when its surface presents a
// new buffer.
const EventCommit = "commit"

// SurfaceInfo describes a new compositor surface.
type SurfaceInfo struct {
	Title  string `cbor:"title,omitempty"`
	AppID  string `cbor:"app_id,omitempty"`
	Width  uint32 `cbor:"width"`
	Height uint32 `cbor:"height"`
}

// SurfaceCreatedEvent is the payload of the interface surface_created
// event.
type SurfaceCreatedEvent struct {
	Panel wire.NodeRef `cbor:"panel"`
	Info  SurfaceInfo  `cbor:"info"`
}

// SurfaceCommit is the payload of the panel commit event. Buffer is an
// opaque compositor buffer ID; Damage lists changed rectangles as
// x, y, width, height.
type SurfaceCommit struct {
	Buffer uint64     `cbor:"buffer"`
	Width  uint32     `cbor:"width"`
	Height uint32     `cbor:"height"`
	Damage [][4]int32 `cbor:"damage,omitempty"`
}

type panelState struct {
	builtins *Builtins
	surface  collab.SurfaceID
}

var _ scene.Detacher = (*panelState)(nil)

func (p *panelState) Detach(node *scene.Node, env scene.Env) {
	if p.builtins.surfaces[p.surface] == node.ID {
		delete(p.builtins.surfaces, p.surface)
	}
}

func (b *Builtins) panelTable() scene.Table {
	return scene.Table{
		Name:        Panel,
		Description: "A compositor surface shown in the scene. Created by the server; any client may drive it.",
		Requires:    []string{Spatial},
		Internal:    true,
		Events:      []string{EventCommit},
		New: func(*scene.Node) scene.Instance {
			return &panelState{builtins: b}
		},
		Methods: map[string]scene.Method{
			"set_toplevel_size": {
				Handler:     b.setToplevelSize,
				Description: "Ask the surface to resize.",
			},
			"pointer_motion": {
				Handler:     b.pointerMotion,
				Description: "Move the pointer to surface coordinates.",
			},
			"pointer_button": {
				Handler:     b.pointerButton,
				Description: "Press or release a pointer button.",
			},
			"keyboard_key": {
				Handler:     b.keyboardKey,
				Description: "Press or release a key (evdev keycode).",
			},
			"close": {
				Handler:     b.closeSurface,
				Description: "Ask the surface to close.",
			},
		},
	}
}

func surfaceOf(call *scene.Call) collab.SurfaceID {
	state, _ := call.Instance().(*panelState)
	return state.surface
}

func (b *Builtins) setToplevelSize(call *scene.Call) (any, error) {
	var args struct {
		Width  uint32 `cbor:"width"`
		Height uint32 `cbor:"height"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	if args.Width == 0 || args.Height == 0 {
		return nil, wire.Errorf(wire.CodeInvalidArguments, "surface size %dx%d", args.Width, args.Height)
	}
	b.compositor.Configure(surfaceOf(call), args.Width, args.Height)
	return nil, nil
}

func (b *Builtins) pointerMotion(call *scene.Call) (any, error) {
	var args struct {
		Position wire.Vec2 `cbor:"position"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	b.compositor.PointerMotion(surfaceOf(call), args.Position[0], args.Position[1])
	return nil, nil
}

func (b *Builtins) pointerButton(call *scene.Call) (any, error) {
	var args struct {
		Button  uint32 `cbor:"button"`
		Pressed bool   `cbor:"pressed"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	b.compositor.PointerButton(surfaceOf(call), args.Button, args.Pressed)
	return nil, nil
}

func (b *Builtins) keyboardKey(call *scene.Call) (any, error) {
	var args struct {
		Key     uint32 `cbor:"key"`
		Pressed bool   `cbor:"pressed"`
	}
	if err := call.Decode(&args); err != nil {
		return nil, err
	}
	b.compositor.Key(surfaceOf(call), args.Key, args.Pressed)
	return nil, nil
}

func (b *Builtins) closeSurface(call *scene.Call) (any, error) {
	b.compositor.Close(surfaceOf(call))
	return nil, nil
}

// SurfaceCreated builds a task that gives a new surface a panel node,
// owned by the server, and announces it to interface subscribers.
func (b *Builtins) SurfaceCreated(surface collab.SurfaceID, info SurfaceInfo) scene.Task {
	return func(store *scene.Store, env scene.Env) {
		if _, exists := b.surfaces[surface]; exists {
			env.Logger().Warn("surface created twice", "surface", surface)
			return
		}
		node, err := store.Create(wire.InternalClient, 0, []string{Spatial, Panel})
		if err != nil {
			env.Logger().Error("creating panel node", "surface", surface, "error", err)
			return
		}
		instance, _ := node.Instance(Panel)
		instance.(*panelState).surface = surface
		b.surfaces[surface] = node.ID

		if root, ok := store.Get(wire.InterfaceNode); ok {
			env.Emit(root, Interface, EventSurfaceCreated, SurfaceCreatedEvent{
				Panel: wire.Ref(node.ID),
				Info:  info,
			})
		}
	}
}

// SurfaceCommitted builds a task announcing a new buffer on surface.
func (b *Builtins) SurfaceCommitted(surface collab.SurfaceID, commit SurfaceCommit) scene.Task {
	return func(store *scene.Store, env scene.Env) {
		node, ok := b.surfaceNode(store, surface)
		if !ok {
			return
		}
		env.Emit(node, Panel, EventCommit, commit)
	}
}

// SurfaceDestroyed builds a task that destroys surface's panel node.
func (b *Builtins) SurfaceDestroyed(surface collab.SurfaceID) scene.Task {
	return func(store *scene.Store, env scene.Env) {
		node, ok := b.surfaceNode(store, surface)
		if !ok {
			return
		}
		if _, err := store.Destroy(node.ID); err != nil {
			env.Logger().Error("destroying panel node", "surface", surface, "error", err)
		}
	}
}

func (b *Builtins) surfaceNode(store *scene.Store, surface collab.SurfaceID) (*scene.Node, bool) {
	id, ok := b.surfaces[surface]
	if !ok {
		return nil, false
	}
	return store.Get(id)
}
