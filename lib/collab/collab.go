// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collab defines the narrow interfaces between the server core
// and the subsystems it does not implement: the renderer and XR runtime,
// and the 2D surface compositor.
//
// The core calls into collaborators synchronously from aspect handlers,
// so implementations must not block on network I/O. Collaborators never
// touch the scene; they report back by posting tasks to the dispatch
// engine (see scene.Task), which runs them during the next tick.
package collab

import (
	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/stardust/lib/wire"
)

// Handle is a renderer-side transform handle. The core stores it on the
// node and hands it back; it never looks inside.
type Handle any

// Renderer receives the scene as the core mutates it.
type Renderer interface {
	// CreateTransform allocates a transform for node.
	CreateTransform(node wire.NodeID) Handle

	// UpdateTransform sets handle's local matrix and parent. A nil
	// parent means the handle is a scene root.
	UpdateTransform(handle Handle, parent Handle, local math32.Matrix4)

	// SetEnabled shows or hides handle and its descendants.
	SetEnabled(handle Handle, enabled bool)

	// Submit hands drawable content for handle to the renderer. kind
	// names the drawable ("lines", "model", "text"); content is the
	// decoded argument value.
	Submit(handle Handle, kind string, content any)

	// Release frees handle. It is called once, when the node that
	// created it is destroyed.
	Release(handle Handle)
}

// SurfaceID identifies a compositor surface.
type SurfaceID uint64

// Compositor is the embedded 2D surface compositor. The core forwards
// client requests about a surface; it never interprets buffers.
type Compositor interface {
	Configure(surface SurfaceID, width, height uint32)
	PointerMotion(surface SurfaceID, x, y float32)
	PointerButton(surface SurfaceID, button uint32, pressed bool)
	Key(surface SurfaceID, keymapKey uint32, pressed bool)
	Close(surface SurfaceID)
}

// Nop is a renderer and compositor that discards everything. The
// server uses it when running headless.
type Nop struct{}

var (
	_ Renderer   = Nop{}
	_ Compositor = Nop{}
)

func (Nop) CreateTransform(node wire.NodeID) Handle        { return node }
func (Nop) UpdateTransform(Handle, Handle, math32.Matrix4) {}
func (Nop) SetEnabled(Handle, bool)                        {}
func (Nop) Submit(Handle, string, any)                     {}
func (Nop) Release(Handle)                                 {}
func (Nop) Configure(SurfaceID, uint32, uint32)            {}
func (Nop) PointerMotion(SurfaceID, float32, float32)      {}
func (Nop) PointerButton(SurfaceID, uint32, bool)          {}
func (Nop) Key(SurfaceID, uint32, bool)                    {}
func (Nop) Close(SurfaceID)                                {}
