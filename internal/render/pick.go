package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/transform"
)

// Ray is a half-line from Origin along unit Direction.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// CameraRay returns the ray through a pointer position in normalized device
// coordinates (-1..1, +y up) for a perspective camera.
func CameraRay(pointer [2]float64, cam protocol.Camera) Ray {
	pos := mgl64.Vec3(cam.Position)
	forward := mgl64.Vec3(cam.Target).Sub(pos).Normalize()
	up := mgl64.Vec3(cam.Up)
	if up.Len() == 0 {
		up = mgl64.Vec3{0, 1, 0}
	}
	right := forward.Cross(up).Normalize()
	trueUp := right.Cross(forward)

	fov := cam.FovY
	if fov <= 0 {
		fov = mgl64.DegToRad(50)
	}
	aspect := cam.Aspect
	if aspect <= 0 {
		aspect = 1
	}
	halfH := math.Tan(fov / 2)
	halfW := halfH * aspect

	dir := forward.
		Add(right.Mul(pointer[0] * halfW)).
		Add(trueUp.Mul(pointer[1] * halfH)).
		Normalize()
	return Ray{Origin: pos, Direction: dir}
}

const rayEpsilon = 1e-12

// intersectTriangle returns the distance along r to triangle (a, b, c)
// using the Möller–Trumbore test. Both faces are hit.
func intersectTriangle(r Ray, a, b, c mgl64.Vec3) (float64, bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(a)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := e2.Dot(q) * inv
	if t <= rayEpsilon {
		return 0, false
	}
	return t, true
}

// Pick casts a ray through pointer and returns the id of the nearest node
// whose mesh is hit. ok is false when nothing is hit.
func (m *Mirror) Pick(pointer [2]float64, cam protocol.Camera) (string, bool) {
	ray := CameraRay(pointer, cam)
	best := math.Inf(1)
	hit := ""

	for _, id := range m.entityIDs() {
		e := m.entities[id]
		if e.Mesh == "" {
			continue
		}
		mesh, ok := m.meshes[e.Mesh]
		if !ok {
			continue
		}
		world := transform.Matrix(e.World)
		for _, pid := range mesh.Primitives {
			prim, ok := m.primitives[pid]
			if !ok {
				continue
			}
			if t, ok := intersectPrimitive(ray, world, prim); ok && t < best {
				best = t
				hit = id
			}
		}
	}
	return hit, hit != ""
}

// intersectPrimitive tests every triangle of prim after transforming its
// vertices by world. Non-indexed primitives are read as consecutive triples.
func intersectPrimitive(r Ray, world mgl64.Mat4, prim protocol.PrimitiveState) (float64, bool) {
	n := prim.VertexCount()
	vertex := func(i uint32) mgl64.Vec3 {
		p := mgl64.Vec3{prim.Positions[3*i], prim.Positions[3*i+1], prim.Positions[3*i+2]}
		return world.Mul4x1(p.Vec4(1)).Vec3()
	}

	indices := prim.Indices
	if len(indices) == 0 {
		indices = make([]uint32, n)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}

	best := math.Inf(1)
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		if int(a) >= n || int(b) >= n || int(c) >= n {
			continue
		}
		if t, ok := intersectTriangle(r, vertex(a), vertex(b), vertex(c)); ok && t < best {
			best = t
		}
	}
	return best, !math.IsInf(best, 1)
}
