// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/bureau-foundation/stardust/lib/codec"
)

// NodeID identifies a node for the lifetime of the server process.
// IDs are never reused. Zero is the interface node every client
// addresses during and after the handshake.
type NodeID uint64

// InterfaceNode is the reserved node that carries the interface aspect.
const InterfaceNode NodeID = 0

func (id NodeID) String() string {
	return "node/" + strconv.FormatUint(uint64(id), 10)
}

// ClientID identifies a connected client for the lifetime of the
// server process. Zero is the server's own internal client, which owns
// the interface node and compositor surfaces.
type ClientID uint64

// InternalClient owns nodes created by the server itself.
const InternalClient ClientID = 0

func (id ClientID) String() string {
	return "client/" + strconv.FormatUint(uint64(id), 10)
}

// NodeRef is a node reference carried inside call arguments or
// results. It encodes as CBOR tag 39001 around the node ID.
type NodeRef uint64

// Ref returns a reference to id.
func Ref(id NodeID) NodeRef { return NodeRef(id) }

// ID returns the referenced node ID.
func (r NodeRef) ID() NodeID { return NodeID(r) }

// Vec2 is a two-component vector (tag 39002).
type Vec2 [2]float32

// Vec3 is a three-component vector (tag 39003).
type Vec3 [3]float32

// Quat is a rotation quaternion stored as x, y, z, w (tag 39004).
type Quat [4]float32

// IdentityQuat is the rotation that changes nothing.
var IdentityQuat = Quat{0, 0, 0, 1}

// Transform is a partial spatial transform. Absent components leave
// the corresponding part of the target unchanged.
type Transform struct {
	Translation *Vec3 `cbor:"translation,omitempty"`
	Rotation    *Quat `cbor:"rotation,omitempty"`
	Scale       *Vec3 `cbor:"scale,omitempty"`
}

// CBOR tag numbers for the protocol's typed values.
const (
	TagNodeRef uint64 = 39001
	TagVec2    uint64 = 39002
	TagVec3    uint64 = 39003
	TagQuat    uint64 = 39004
)

var mode *codec.Mode

func init() {
	tags := codec.NewTagSet()
	for _, tag := range []struct {
		value  any
		number uint64
	}{
		{NodeRef(0), TagNodeRef},
		{Vec2{}, TagVec2},
		{Vec3{}, TagVec3},
		{Quat{}, TagQuat},
	} {
		if err := codec.RegisterTag(tags, reflect.TypeOf(tag.value), tag.number); err != nil {
			panic(fmt.Sprintf("wire: registering CBOR tag %d: %v", tag.number, err))
		}
	}
	var err error
	mode, err = codec.NewMode(tags)
	if err != nil {
		panic("wire: CBOR mode initialization failed: " + err.Error())
	}
}

// Marshal encodes an argument or result value with the protocol's
// tagged types. A nil value encodes to an empty RawMessage.
func Marshal(v any) (codec.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(codec.RawMessage); ok {
		return raw, nil
	}
	data, err := mode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return codec.RawMessage(data), nil
}

// Unmarshal decodes an argument or result value into v.
func Unmarshal(raw codec.RawMessage, v any) error {
	return mode.Unmarshal(raw, v)
}
