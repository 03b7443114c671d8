package scene

import (
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
)

// CreateNode adds a node and returns its id. An empty id is replaced by a
// generated one. The parent and mesh, when set, must already exist.
func (s *Store) CreateNode(id string, state protocol.NodeState) (string, error) {
	id = s.newID(id)
	if _, ok := s.nodes[id]; ok {
		return "", protocol.AlreadyExists(protocol.KindNode, id)
	}
	if state.Parent != "" {
		if state.Parent == id {
			return "", protocol.TransformInvariant(id, "node cannot parent itself")
		}
		if _, ok := s.nodes[state.Parent]; !ok {
			return "", protocol.NotFound(protocol.KindNode, state.Parent)
		}
	}
	if err := s.checkNodeRefs(id, state.Mesh, state.Collider); err != nil {
		return "", err
	}

	n := NewNode(id, state)
	s.nodes[id] = n
	s.attach(id, state.Parent)
	s.retainMeshes(n)

	updates := s.worlds.Update(id)
	s.publish(protocol.CreateNode{ID: id, State: n.State(), World: updates[0].World})
	return id, nil
}

// ApplyNode merges a partial update into a node. A transform or parent
// change recomputes world transforms for the node's whole subtree; each
// descendant receives a change_node carrying only its new world transform.
func (s *Store) ApplyNode(id string, p protocol.NodePatch) error {
	n, ok := s.nodes[id]
	if !ok {
		return protocol.NotFound(protocol.KindNode, id)
	}
	if p.Parent != nil {
		if err := s.checkReparent(id, *p.Parent); err != nil {
			return err
		}
	}
	var mesh string
	if p.Mesh.Set {
		mesh = p.Mesh.Value
	}
	if err := s.checkNodeRefs(id, mesh, p.Collider.Ptr()); err != nil {
		return err
	}

	oldParent := n.Parent.Get()
	held := meshesOf(n)
	n.Apply(p)
	s.retainMeshes(n)

	reparented := p.Parent != nil && *p.Parent != oldParent
	if reparented {
		s.detach(id, oldParent)
		s.attach(id, *p.Parent)
	}
	if p.TouchesTransform() || reparented {
		updates := s.worlds.Update(id)
		world := updates[0].World
		s.publish(protocol.ChangeNode{ID: id, Patch: p, World: &world})
		for _, u := range updates[1:] {
			w := u.World
			s.publish(protocol.ChangeNode{ID: u.ID, World: &w})
		}
	} else {
		s.publish(protocol.ChangeNode{ID: id, Patch: p})
	}

	for _, mesh := range held {
		s.releaseMesh(mesh)
	}
	return nil
}

// DisposeNode removes a node and its subtree, children first, and detaches
// it from its parent. Disposing a missing node returns a not-found error,
// which callers may ignore.
func (s *Store) DisposeNode(id string) error {
	n, ok := s.nodes[id]
	if !ok {
		logBenign("dispose", protocol.KindNode, id)
		return protocol.NotFound(protocol.KindNode, id)
	}
	s.detach(id, n.Parent.Get())
	s.disposeSubtree(n)
	return nil
}

func (s *Store) disposeSubtree(n *Node) {
	for _, child := range slices.Clone(n.children) {
		if c, ok := s.nodes[child]; ok {
			s.disposeSubtree(c)
		}
	}
	delete(s.nodes, n.ID)
	s.worlds.Forget(n.ID)
	held := meshesOf(n)
	n.Dispose()
	s.publish(protocol.DisposeNode{ID: n.ID})
	for _, mesh := range held {
		s.releaseMesh(mesh)
	}
}

// meshesOf lists the meshes n holds: its visual mesh and the mesh of a
// trimesh collider. A node using one mesh for both holds it twice.
func meshesOf(n *Node) []string {
	var out []string
	if mesh := n.Mesh.Get(); mesh != "" {
		out = append(out, mesh)
	}
	if c := n.Collider.Get(); c != nil && c.Type == protocol.ColliderTrimesh && c.Mesh != "" {
		out = append(out, c.Mesh)
	}
	return out
}

// retainMeshes takes one reference on every mesh n holds. ApplyNode retains
// the new set before releasing the old one so an unchanged reference never
// drops to zero.
func (s *Store) retainMeshes(n *Node) {
	for _, mesh := range meshesOf(n) {
		s.meshRefs[mesh]++
	}
}

// checkReparent rejects parents that are missing, the node itself, or one
// of its descendants.
func (s *Store) checkReparent(id, parent string) error {
	if parent == "" {
		return nil
	}
	if parent == id {
		return protocol.TransformInvariant(id, "node cannot parent itself")
	}
	if _, ok := s.nodes[parent]; !ok {
		return protocol.NotFound(protocol.KindNode, parent)
	}
	for cur := parent; cur != ""; cur = s.nodes[cur].Parent.Get() {
		if cur == id {
			return protocol.TransformInvariant(id, "reparent to "+parent+" would create a cycle")
		}
	}
	return nil
}

func (s *Store) checkNodeRefs(id, mesh string, collider *protocol.ColliderDescriptor) error {
	if mesh != "" {
		if _, ok := s.meshes[mesh]; !ok {
			return protocol.NotFound(protocol.KindMesh, mesh)
		}
	}
	if collider != nil {
		if err := collider.Validate(); err != nil {
			return protocol.InvalidDescriptor(id, err.Error())
		}
		if collider.Type == protocol.ColliderTrimesh {
			if _, ok := s.meshes[collider.Mesh]; !ok {
				return protocol.NotFound(protocol.KindMesh, collider.Mesh)
			}
		}
	}
	return nil
}

func (s *Store) attach(id, parent string) {
	if parent == "" {
		s.roots = append(s.roots, id)
		return
	}
	p := s.nodes[parent]
	p.children = append(p.children, id)
}

func (s *Store) detach(id, parent string) {
	if parent == "" {
		s.roots = slices.DeleteFunc(s.roots, func(c string) bool { return c == id })
		return
	}
	if p, ok := s.nodes[parent]; ok {
		p.children = slices.DeleteFunc(p.children, func(c string) bool { return c == id })
	}
}
