// Package collider turns collider descriptors into physics shapes.
//
// Box, sphere and cylinder shapes are analytic and independent of scale.
// Trimesh shapes concatenate the referenced mesh's primitives and bake the
// node's world scale into the vertices, so a later scale change needs a
// rebuild (see Rescale).
package collider

import (
	"fmt"
	"math"

	"github.com/roach88/scenesync/internal/protocol"
)

// ScaleEpsilon is the per-axis tolerance below which two world scales are
// considered equal.
const ScaleEpsilon = 1e-9

// Shape is an immutable collision shape. Only the fields of Type are set.
type Shape struct {
	Type protocol.ColliderType `json:"type"`

	HalfExtents protocol.Vec3 `json:"half_extents,omitzero"`
	Radius      float64       `json:"radius,omitempty"`
	HalfHeight  float64       `json:"half_height,omitempty"`

	// Vertices are flat xyz triples with world scale applied.
	Vertices []float64 `json:"vertices,omitempty"`
	Indices  []uint32  `json:"indices,omitempty"`
}

// VertexCount returns the number of trimesh vertices.
func (s Shape) VertexCount() int {
	return len(s.Vertices) / 3
}

// ScaleDependent reports whether the shape bakes world scale.
func (s Shape) ScaleDependent() bool {
	return s.Type == protocol.ColliderTrimesh
}

// Source resolves mesh and primitive ids to their current state.
type Source interface {
	Mesh(id string) (protocol.MeshState, bool)
	Primitive(id string) (protocol.PrimitiveState, bool)
}

// Synthesize builds the shape for desc on node nodeID. worldScale is only
// used by trimesh shapes. A trimesh descriptor whose mesh declares a
// procedural shape extra yields that analytic shape instead.
//
// Errors are *protocol.Error with code INVALID_DESCRIPTOR.
func Synthesize(nodeID string, desc protocol.ColliderDescriptor, src Source, worldScale protocol.Vec3) (Shape, error) {
	if err := desc.Validate(); err != nil {
		return Shape{}, protocol.InvalidDescriptor(nodeID, err.Error())
	}

	switch desc.Type {
	case protocol.ColliderBox:
		size := desc.BoxSize()
		return Shape{
			Type:        protocol.ColliderBox,
			HalfExtents: protocol.Vec3{size[0] / 2, size[1] / 2, size[2] / 2},
		}, nil
	case protocol.ColliderSphere:
		return Shape{Type: protocol.ColliderSphere, Radius: desc.SphereRadius()}, nil
	case protocol.ColliderCylinder:
		return Shape{
			Type:       protocol.ColliderCylinder,
			Radius:     desc.SphereRadius(),
			HalfHeight: desc.CylinderHeight() / 2,
		}, nil
	}

	mesh, ok := src.Mesh(desc.Mesh)
	if !ok {
		return Shape{}, protocol.InvalidDescriptor(nodeID, fmt.Sprintf("trimesh references missing mesh %q", desc.Mesh))
	}
	if mesh.Extras.Shape != nil {
		if analytic, ok := mesh.Extras.Shape.Descriptor(); ok {
			return Synthesize(nodeID, analytic, src, worldScale)
		}
	}
	return trimesh(nodeID, mesh, src, worldScale)
}

// trimesh concatenates every primitive of mesh. Each primitive's indices are
// rebased by the number of vertices emitted before it.
func trimesh(nodeID string, mesh protocol.MeshState, src Source, scale protocol.Vec3) (Shape, error) {
	var (
		vertices []float64
		indices  []uint32
	)
	for _, pid := range mesh.Primitives {
		prim, ok := src.Primitive(pid)
		if !ok {
			continue
		}
		offset := uint32(len(vertices) / 3)
		for i := 0; i+2 < len(prim.Positions); i += 3 {
			vertices = append(vertices,
				prim.Positions[i]*scale[0],
				prim.Positions[i+1]*scale[1],
				prim.Positions[i+2]*scale[2])
		}
		for _, idx := range prim.Indices {
			indices = append(indices, idx+offset)
		}
	}
	if len(vertices) == 0 || len(indices) == 0 {
		return Shape{}, protocol.InvalidDescriptor(nodeID,
			fmt.Sprintf("trimesh geometry is degenerate: %d vertices, %d indices", len(vertices)/3, len(indices)))
	}
	return Shape{Type: protocol.ColliderTrimesh, Vertices: vertices, Indices: indices}, nil
}

// Rescale returns a copy of a trimesh shape baked at prev scaled to next:
// every vertex axis is multiplied by next/prev. Indices are shared, not
// copied. ok is false when a prev axis is zero; the caller must synthesize
// again from source geometry.
func Rescale(s Shape, prev, next protocol.Vec3) (Shape, bool) {
	if !s.ScaleDependent() {
		return s, true
	}
	var ratio protocol.Vec3
	for i := range 3 {
		if math.Abs(prev[i]) < ScaleEpsilon {
			return Shape{}, false
		}
		ratio[i] = next[i] / prev[i]
	}
	out := Shape{Type: s.Type, Indices: s.Indices, Vertices: make([]float64, len(s.Vertices))}
	for i := 0; i+2 < len(s.Vertices); i += 3 {
		out.Vertices[i] = s.Vertices[i] * ratio[0]
		out.Vertices[i+1] = s.Vertices[i+1] * ratio[1]
		out.Vertices[i+2] = s.Vertices[i+2] * ratio[2]
	}
	return out, true
}

// ScaleEqual reports whether two scales match within ScaleEpsilon per axis.
func ScaleEqual(a, b protocol.Vec3) bool {
	for i := range 3 {
		if math.Abs(a[i]-b[i]) > ScaleEpsilon {
			return false
		}
	}
	return true
}

// References reports whether desc builds its shape from mesh id.
func References(desc *protocol.ColliderDescriptor, meshID string) bool {
	return desc != nil && desc.Type == protocol.ColliderTrimesh && desc.Mesh == meshID
}
