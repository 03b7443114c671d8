package transform

import "github.com/roach88/scenesync/internal/protocol"

// Hierarchy is the read-only view of a node tree the propagator walks.
// Parent returns "" for nodes attached to the scene root.
type Hierarchy interface {
	Local(id string) (protocol.Transform, bool)
	Parent(id string) string
	Children(id string) []string
}

// Update is the recomputed world transform of one node.
type Update struct {
	ID    string
	World protocol.Transform
}

// Propagator caches world transforms and recomputes a node's subtree when
// its local transform or parent changes.
type Propagator struct {
	tree   Hierarchy
	worlds map[string]protocol.Transform
}

// NewPropagator returns a propagator over tree.
func NewPropagator(tree Hierarchy) *Propagator {
	return &Propagator{tree: tree, worlds: make(map[string]protocol.Transform)}
}

// Update recomputes the world transform of id and all of its descendants,
// parents before children. The returned updates are in that same pre-order.
// Unknown ids produce no updates.
func (p *Propagator) Update(id string) []Update {
	var out []Update
	p.walk(id, &out)
	return out
}

func (p *Propagator) walk(id string, out *[]Update) {
	local, ok := p.tree.Local(id)
	if !ok {
		return
	}
	world := Compose(p.parentWorld(id), local)
	p.worlds[id] = world
	*out = append(*out, Update{ID: id, World: world})
	for _, child := range p.tree.Children(id) {
		p.walk(child, out)
	}
}

func (p *Propagator) parentWorld(id string) protocol.Transform {
	parent := p.tree.Parent(id)
	if parent == "" {
		return protocol.IdentityTransform()
	}
	if w, ok := p.worlds[parent]; ok {
		return w
	}
	// Parent not yet computed; derive it from the root down.
	local, ok := p.tree.Local(parent)
	if !ok {
		return protocol.IdentityTransform()
	}
	w := Compose(p.parentWorld(parent), local)
	p.worlds[parent] = w
	return w
}

// World returns the cached world transform of id.
func (p *Propagator) World(id string) (protocol.Transform, bool) {
	w, ok := p.worlds[id]
	return w, ok
}

// Set records a world transform computed elsewhere, e.g. one received from
// the authoring context.
func (p *Propagator) Set(id string, world protocol.Transform) {
	p.worlds[id] = world
}

// Forget drops the cached world transform of id.
func (p *Propagator) Forget(id string) {
	delete(p.worlds, id)
}
