package compiler

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownMesh      = "E201" // node.mesh references no mesh
	ErrUnknownPrimitive = "E202" // mesh.primitives references no primitive
	ErrUnknownMaterial  = "E203" // primitive.material references no material
	ErrUnknownParent    = "E204" // node.parent references no node
	ErrParentCycle      = "E205" // parent links form a loop
	ErrInvalidCollider  = "E206" // collider descriptor is malformed
	ErrInvalidGeometry  = "E207" // positions/indices/normals are inconsistent
	ErrMultipleDefaults = "E208" // more than one default spawn node
)

// ValidationError represents a world validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks references and structure of a decoded world.
// Returns all errors found (does not fail-fast), in a stable order.
func Validate(w *World) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	for _, id := range slices.Sorted(maps.Keys(w.Primitives)) {
		p := w.Primitives[id]
		field := "primitives." + id
		if err := checkGeometry(p); err != "" {
			add(ErrInvalidGeometry, field, "%s", err)
		}
		if p.Material != "" {
			if _, ok := w.Materials[p.Material]; !ok {
				add(ErrUnknownMaterial, field+".material", "unknown material %q", p.Material)
			}
		}
	}

	for _, id := range slices.Sorted(maps.Keys(w.Meshes)) {
		for i, pid := range w.Meshes[id].Primitives {
			if _, ok := w.Primitives[pid]; !ok {
				add(ErrUnknownPrimitive, fmt.Sprintf("meshes.%s.primitives[%d]", id, i), "unknown primitive %q", pid)
			}
		}
	}

	parents := make(map[string]string, len(w.Nodes))
	var defaults []string
	for _, id := range slices.Sorted(maps.Keys(w.Nodes)) {
		n := w.Nodes[id]
		field := "nodes." + id
		parents[id] = n.Parent

		if n.Parent != "" {
			if _, ok := w.Nodes[n.Parent]; !ok {
				add(ErrUnknownParent, field+".parent", "unknown node %q", n.Parent)
			}
		}
		if n.Mesh != "" {
			if _, ok := w.Meshes[n.Mesh]; !ok {
				add(ErrUnknownMesh, field+".mesh", "unknown mesh %q", n.Mesh)
			}
		}
		if n.Collider != nil {
			if err := n.Collider.Validate(); err != nil {
				add(ErrInvalidCollider, field+".collider", "%v", err)
			} else if n.Collider.Type == protocol.ColliderTrimesh {
				if _, ok := w.Meshes[n.Collider.Mesh]; !ok {
					add(ErrUnknownMesh, field+".collider.mesh", "unknown mesh %q", n.Collider.Mesh)
				}
			}
		}
		if n.Spawn != nil && n.Spawn.Default {
			defaults = append(defaults, id)
		}
	}

	for _, c := range FindParentCycles(parents) {
		add(ErrParentCycle, "nodes."+c.Path[0]+".parent", "%s", c.Message)
	}
	if len(defaults) > 1 {
		add(ErrMultipleDefaults, "nodes", "default spawn set on %v", defaults)
	}

	return errs
}

// checkGeometry returns a description of the first inconsistency in p, or
// "" when it is well formed.
func checkGeometry(p protocol.PrimitiveState) string {
	if len(p.Positions)%3 != 0 {
		return fmt.Sprintf("positions length %d is not a multiple of 3", len(p.Positions))
	}
	if len(p.Normals) > 0 && len(p.Normals) != len(p.Positions) {
		return fmt.Sprintf("normals length %d does not match positions length %d", len(p.Normals), len(p.Positions))
	}
	n := uint32(p.VertexCount())
	for i, idx := range p.Indices {
		if idx >= n {
			return fmt.Sprintf("index %d at %d out of range for %d vertices", idx, i, n)
		}
	}
	return ""
}
