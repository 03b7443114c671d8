package scene

import (
	"fmt"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
)

// CreateMesh adds a mesh. Every listed primitive must already exist.
func (s *Store) CreateMesh(id string, state protocol.MeshState) (string, error) {
	id = s.newID(id)
	if _, ok := s.meshes[id]; ok {
		return "", protocol.AlreadyExists(protocol.KindMesh, id)
	}
	if err := s.checkPrimitives(state.Primitives); err != nil {
		return "", err
	}
	m := NewMesh(id, state)
	s.meshes[id] = m
	s.publish(protocol.CreateMesh{ID: id, State: m.State()})
	return id, nil
}

// ApplyMesh merges a partial update into a mesh.
func (s *Store) ApplyMesh(id string, p protocol.MeshPatch) error {
	m, ok := s.meshes[id]
	if !ok {
		return protocol.NotFound(protocol.KindMesh, id)
	}
	if p.Primitives != nil {
		if err := s.checkPrimitives(*p.Primitives); err != nil {
			return err
		}
	}
	m.Apply(p)
	s.publish(protocol.ChangeMesh{ID: id, Patch: p})
	return nil
}

// DisposeMesh removes a mesh. Every node referencing it loses its mesh
// reference, trimesh colliders built from it are cleared, and the
// primitives it owns are disposed.
func (s *Store) DisposeMesh(id string) error {
	m, ok := s.meshes[id]
	if !ok {
		logBenign("dispose", protocol.KindMesh, id)
		return protocol.NotFound(protocol.KindMesh, id)
	}

	for _, nid := range sortedKeys(s.nodes) {
		n := s.nodes[nid]
		var p protocol.NodePatch
		if n.Mesh.Get() == id {
			p.Mesh = protocol.Clear[string]()
		}
		if c := n.Collider.Get(); c != nil && c.Type == protocol.ColliderTrimesh && c.Mesh == id {
			p.Collider = protocol.Clear[protocol.ColliderDescriptor]()
		}
		if p.Empty() {
			continue
		}
		n.Apply(p)
		s.publish(protocol.ChangeNode{ID: nid, Patch: p})
	}
	delete(s.meshRefs, id)

	delete(s.meshes, id)
	owned := m.Primitives.Get()
	m.Dispose()
	s.publish(protocol.DisposeMesh{ID: id})

	for _, pid := range owned {
		if _, ok := s.primitives[pid]; !ok || s.primitiveShared(pid) {
			continue
		}
		s.disposePrimitive(pid)
	}
	return nil
}

// releaseMesh drops one node reference, visual or trimesh collider, and
// disposes the mesh when the last one goes away.
func (s *Store) releaseMesh(id string) {
	refs, ok := s.meshRefs[id]
	if !ok || refs == 0 {
		return
	}
	refs--
	s.meshRefs[id] = refs
	if refs > 0 {
		return
	}
	if _, ok := s.meshes[id]; ok {
		_ = s.DisposeMesh(id)
	}
}

func (s *Store) primitiveShared(pid string) bool {
	for _, m := range s.meshes {
		if slices.Contains(m.Primitives.Get(), pid) {
			return true
		}
	}
	return false
}

func (s *Store) checkPrimitives(ids []string) error {
	for _, pid := range ids {
		if _, ok := s.primitives[pid]; !ok {
			return protocol.NotFound(protocol.KindPrimitive, pid)
		}
	}
	return nil
}

// CreatePrimitive adds a primitive. Positions must be whole xyz triples and
// every index must address a vertex.
func (s *Store) CreatePrimitive(id string, state protocol.PrimitiveState) (string, error) {
	id = s.newID(id)
	if _, ok := s.primitives[id]; ok {
		return "", protocol.AlreadyExists(protocol.KindPrimitive, id)
	}
	if err := s.checkGeometry(protocol.SubjectCreatePrimitive, state); err != nil {
		return "", err
	}
	p := NewPrimitive(id, state)
	s.primitives[id] = p
	s.publish(protocol.CreatePrimitive{ID: id, State: p.State()})
	return id, nil
}

// ApplyPrimitive replaces the buffers named in the patch.
func (s *Store) ApplyPrimitive(id string, patch protocol.PrimitivePatch) error {
	p, ok := s.primitives[id]
	if !ok {
		return protocol.NotFound(protocol.KindPrimitive, id)
	}
	next := p.State()
	patch.Apply(&next)
	if err := s.checkGeometry(protocol.SubjectChangePrimitive, next); err != nil {
		return err
	}
	p.Apply(patch)
	s.publish(protocol.ChangePrimitive{ID: id, Patch: patch})
	return nil
}

// DisposePrimitive removes a primitive and drops it from every mesh that
// lists it.
func (s *Store) DisposePrimitive(id string) error {
	if _, ok := s.primitives[id]; !ok {
		logBenign("dispose", protocol.KindPrimitive, id)
		return protocol.NotFound(protocol.KindPrimitive, id)
	}
	for _, mid := range sortedKeys(s.meshes) {
		m := s.meshes[mid]
		prims := m.Primitives.Get()
		if !slices.Contains(prims, id) {
			continue
		}
		kept := slices.DeleteFunc(slices.Clone(prims), func(p string) bool { return p == id })
		patch := protocol.MeshPatch{Primitives: &kept}
		m.Apply(patch)
		s.publish(protocol.ChangeMesh{ID: mid, Patch: patch})
	}
	s.disposePrimitive(id)
	return nil
}

func (s *Store) disposePrimitive(id string) {
	p := s.primitives[id]
	delete(s.primitives, id)
	p.Dispose()
	s.publish(protocol.DisposePrimitive{ID: id})
}

func (s *Store) checkGeometry(subject protocol.Subject, state protocol.PrimitiveState) error {
	if len(state.Positions)%3 != 0 {
		return protocol.InvalidMessage(subject, fmt.Errorf("positions length %d is not a multiple of 3", len(state.Positions)))
	}
	if len(state.Normals) > 0 && len(state.Normals) != len(state.Positions) {
		return protocol.InvalidMessage(subject, fmt.Errorf("normals length %d does not match positions", len(state.Normals)))
	}
	count := uint32(state.VertexCount())
	for i, idx := range state.Indices {
		if idx >= count {
			return protocol.InvalidMessage(subject, fmt.Errorf("index %d at %d out of range for %d vertices", idx, i, count))
		}
	}
	if state.Material != "" {
		if _, ok := s.materials[state.Material]; !ok {
			return protocol.NotFound(protocol.KindMaterial, state.Material)
		}
	}
	return nil
}

// CreateMaterial adds a material.
func (s *Store) CreateMaterial(id string, state protocol.MaterialState) (string, error) {
	id = s.newID(id)
	if _, ok := s.materials[id]; ok {
		return "", protocol.AlreadyExists(protocol.KindMaterial, id)
	}
	m := NewMaterial(id, state)
	s.materials[id] = m
	s.publish(protocol.CreateMaterial{ID: id, State: m.State()})
	return id, nil
}

// ApplyMaterial merges a partial update into a material.
func (s *Store) ApplyMaterial(id string, p protocol.MaterialPatch) error {
	m, ok := s.materials[id]
	if !ok {
		return protocol.NotFound(protocol.KindMaterial, id)
	}
	m.Apply(p)
	s.publish(protocol.ChangeMaterial{ID: id, Patch: p})
	return nil
}

// DisposeMaterial removes a material and clears it from every primitive
// that uses it.
func (s *Store) DisposeMaterial(id string) error {
	m, ok := s.materials[id]
	if !ok {
		logBenign("dispose", protocol.KindMaterial, id)
		return protocol.NotFound(protocol.KindMaterial, id)
	}
	for _, pid := range sortedKeys(s.primitives) {
		p := s.primitives[pid]
		if p.Material.Get() != id {
			continue
		}
		patch := protocol.PrimitivePatch{Material: protocol.Clear[string]()}
		p.Apply(patch)
		s.publish(protocol.ChangePrimitive{ID: pid, Patch: patch})
	}
	delete(s.materials, id)
	m.Dispose()
	s.publish(protocol.DisposeMaterial{ID: id})
	return nil
}
