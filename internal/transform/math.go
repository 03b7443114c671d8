// Package transform composes local node transforms into world transforms.
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/scenesync/internal/protocol"
)

// epsilon below which a scale axis is treated as degenerate.
const epsilon = 1e-12

// Quat converts a wire quaternion (x, y, z, w) to mgl64.
func Quat(q protocol.Quat) mgl64.Quat {
	return mgl64.Quat{W: q[3], V: mgl64.Vec3{q[0], q[1], q[2]}}
}

// WireQuat converts an mgl64 quaternion back to wire order.
func WireQuat(q mgl64.Quat) protocol.Quat {
	return protocol.Quat{q.V[0], q.V[1], q.V[2], q.W}
}

// Matrix returns T·R·S for t.
func Matrix(t protocol.Transform) mgl64.Mat4 {
	tr := mgl64.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	rot := Quat(t.Rotation).Normalize().Mat4()
	sc := mgl64.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return tr.Mul4(rot).Mul4(sc)
}

// Decompose splits an affine matrix back into translation, rotation and
// scale. Shear is discarded. A negative determinant is folded into the x
// scale. When any axis is degenerate the rotation is reported as identity.
func Decompose(m mgl64.Mat4) protocol.Transform {
	out := protocol.IdentityTransform()
	out.Translation = protocol.Vec3(m.Col(3).Vec3())

	cols := [3]mgl64.Vec3{m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()}
	scale := mgl64.Vec3{cols[0].Len(), cols[1].Len(), cols[2].Len()}
	if m.Det() < 0 {
		scale[0] = -scale[0]
	}
	out.Scale = protocol.Vec3(scale)

	for _, s := range scale {
		if math.Abs(s) < epsilon {
			return out
		}
	}

	var rot mgl64.Mat4
	for i := range 3 {
		c := cols[i].Mul(1 / scale[i])
		rot.SetCol(i, c.Vec4(0))
	}
	rot.Set(3, 3, 1)
	out.Rotation = WireQuat(mgl64.Mat4ToQuat(rot).Normalize())
	return out
}

// Compose returns the world transform of a node with local transform local
// under a parent whose world transform is parent: parent · local.
func Compose(parent, local protocol.Transform) protocol.Transform {
	out := Decompose(Matrix(parent).Mul4(Matrix(local)))
	if hasDegenerateAxis(out.Scale) {
		out.Rotation = WireQuat(Quat(parent.Rotation).Mul(Quat(local.Rotation)).Normalize())
	}
	return out
}

// Apply transforms a point by t.
func Apply(t protocol.Transform, p protocol.Vec3) protocol.Vec3 {
	v := Matrix(t).Mul4x1(mgl64.Vec3(p).Vec4(1))
	return protocol.Vec3(v.Vec3())
}

// ApproxEqual compares two transforms component-wise within tol. Quaternions
// q and -q are treated as the same rotation.
func ApproxEqual(a, b protocol.Transform, tol float64) bool {
	for i := range 3 {
		if math.Abs(a.Translation[i]-b.Translation[i]) > tol || math.Abs(a.Scale[i]-b.Scale[i]) > tol {
			return false
		}
	}
	same, flipped := true, true
	for i := range 4 {
		if math.Abs(a.Rotation[i]-b.Rotation[i]) > tol {
			same = false
		}
		if math.Abs(a.Rotation[i]+b.Rotation[i]) > tol {
			flipped = false
		}
	}
	return same || flipped
}

func hasDegenerateAxis(s protocol.Vec3) bool {
	return math.Abs(s[0]) < epsilon || math.Abs(s[1]) < epsilon || math.Abs(s[2]) < epsilon
}

// Yaw returns the rotation of rad radians about the +y axis.
func Yaw(rad float64) protocol.Quat {
	return WireQuat(mgl64.QuatRotate(rad, mgl64.Vec3{0, 1, 0}))
}
