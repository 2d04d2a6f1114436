// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aspects

import (
	"math"

	"cogentcore.org/core/math32"

	"github.com/bureau-foundation/stardust/lib/wire"
)

// minScale replaces zero scale components, which would make the
// matrix singular.
const minScale = 0.00001

func identity() math32.Matrix4 {
	var m math32.Matrix4
	m.SetIdentity()
	return m
}

// multiply returns a*b.
func multiply(a, b math32.Matrix4) math32.Matrix4 {
	var m math32.Matrix4
	m.MulMatrices(&a, &b)
	return m
}

// inverse returns the inverse of m, or the identity for a singular
// matrix.
func inverse(m math32.Matrix4) math32.Matrix4 {
	inverted, err := m.Inverse()
	if err != nil {
		return identity()
	}
	return *inverted
}

func compose(translation math32.Vector3, rotation math32.Quat, scale math32.Vector3) math32.Matrix4 {
	var m math32.Matrix4
	m.SetTransform(translation, rotation, nonZeroScale(scale))
	return m
}

func nonZeroScale(scale math32.Vector3) math32.Vector3 {
	if scale.X == 0 {
		scale.X = minScale
	}
	if scale.Y == 0 {
		scale.Y = minScale
	}
	if scale.Z == 0 {
		scale.Z = minScale
	}
	return scale
}

// matrixOf builds a matrix from the components present in t, using
// identity values for the rest.
func matrixOf(t wire.Transform) math32.Matrix4 {
	translation := math32.Vec3(0, 0, 0)
	rotation := math32.NewQuat(0, 0, 0, 1)
	scale := math32.Vec3(1, 1, 1)
	if t.Translation != nil {
		translation = vector(*t.Translation)
	}
	if t.Rotation != nil {
		rotation = quat(*t.Rotation)
	}
	if t.Scale != nil {
		scale = vector(*t.Scale)
	}
	return compose(translation, rotation, scale)
}

// overlay replaces the components of m that t specifies.
func overlay(m math32.Matrix4, t wire.Transform) math32.Matrix4 {
	translation, rotation, scale := m.Decompose()
	if t.Translation != nil {
		translation = vector(*t.Translation)
	}
	if t.Rotation != nil {
		rotation = quat(*t.Rotation)
	} else if !usableRotation(rotation) {
		rotation = math32.NewQuat(0, 0, 0, 1)
	}
	if t.Scale != nil {
		scale = vector(*t.Scale)
	}
	return compose(translation, rotation, scale)
}

// transformOf decomposes m into a fully specified Transform.
func transformOf(m math32.Matrix4) wire.Transform {
	translation, rotation, scale := m.Decompose()
	t := wire.Vec3{translation.X, translation.Y, translation.Z}
	r := wire.Quat{rotation.X, rotation.Y, rotation.Z, rotation.W}
	s := wire.Vec3{scale.X, scale.Y, scale.Z}
	return wire.Transform{Translation: &t, Rotation: &r, Scale: &s}
}

// usableRotation rejects the zero and NaN quaternions a degenerate
// matrix decomposes into.
func usableRotation(q math32.Quat) bool {
	for _, c := range [4]float32{q.X, q.Y, q.Z, q.W} {
		if math.IsNaN(float64(c)) {
			return false
		}
	}
	return q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 0
}

func vector(v wire.Vec3) math32.Vector3 { return math32.Vec3(v[0], v[1], v[2]) }

func quat(q wire.Quat) math32.Quat { return math32.NewQuat(q[0], q[1], q[2], q[3]) }
