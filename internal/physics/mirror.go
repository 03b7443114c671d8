// Package physics mirrors the authored scene into a world of static rigid
// bodies and colliders.
//
// The Mirror owns its own replicas of nodes, meshes and primitives, built
// only from the messages it receives. It never reads or writes the
// authoring store. Every node carrying a collider descriptor gets one fixed
// body with one collider; trimesh colliders bake the node's world scale and
// are rebuilt onto the same body when that scale changes.
package physics

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/scenesync/internal/collider"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/transform"
)

// Binding ties a node to its body and collider.
type Binding struct {
	Body     BodyHandle
	Collider ColliderHandle
	// Scale is the world scale baked into a trimesh shape.
	Scale protocol.Vec3
	Shape collider.Shape
}

type nodeReplica struct {
	state    protocol.NodeState
	children []string
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithErrorReporter receives errors that do not fail the message, such as
// a collider descriptor with degenerate geometry.
func WithErrorReporter(fn func(error)) Option {
	return func(m *Mirror) { m.report = fn }
}

// WithWorld makes the mirror populate w instead of a fresh world.
func WithWorld(w *World) Option {
	return func(m *Mirror) { m.world = w }
}

// Mirror applies scene messages to a physics world. Not safe for concurrent
// use; it is driven by the physics context's goroutine.
type Mirror struct {
	world      *World
	nodes      map[string]*nodeReplica
	roots      []string
	meshes     map[string]protocol.MeshState
	primitives map[string]protocol.PrimitiveState
	bindings   map[string]*Binding
	worlds     *transform.Propagator
	report     func(error)
}

// NewMirror creates an empty physics mirror.
func NewMirror(opts ...Option) *Mirror {
	m := &Mirror{
		world:      NewWorld(),
		nodes:      make(map[string]*nodeReplica),
		meshes:     make(map[string]protocol.MeshState),
		primitives: make(map[string]protocol.PrimitiveState),
		bindings:   make(map[string]*Binding),
	}
	m.worlds = transform.NewPropagator(replicaTree{m})
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Accepts reports whether the physics context consumes subject. Materials
// and pointer input are render-only.
func Accepts(subject protocol.Subject) bool {
	switch subject {
	case protocol.SubjectCreateMaterial, protocol.SubjectChangeMaterial, protocol.SubjectDisposeMaterial,
		protocol.SubjectPointerDown, protocol.SubjectPointerMove, protocol.SubjectPointerUp,
		protocol.SubjectClickedNode, protocol.SubjectGesture:
		return false
	}
	return true
}

// Apply handles one message. Messages about unknown ids are ignored.
// Returned errors are local to the message.
func (m *Mirror) Apply(msg protocol.Message) error {
	switch v := msg.(type) {
	case protocol.CreateNode:
		return m.createNode(v)
	case protocol.ChangeNode:
		return m.changeNode(v)
	case protocol.DisposeNode:
		m.disposeNode(v.ID)
	case protocol.CreateMesh:
		m.meshes[v.ID] = v.State
	case protocol.ChangeMesh:
		mesh, ok := m.meshes[v.ID]
		if !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		v.Patch.Apply(&mesh)
		m.meshes[v.ID] = mesh
		if v.Patch.Primitives != nil || v.Patch.Extras != nil {
			m.rebuildUsersOf(v.ID)
		}
	case protocol.DisposeMesh:
		if _, ok := m.meshes[v.ID]; !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		for _, id := range m.trimeshUsers(v.ID) {
			m.removeBinding(id)
		}
		delete(m.meshes, v.ID)
	case protocol.CreatePrimitive:
		m.primitives[v.ID] = v.State
	case protocol.ChangePrimitive:
		prim, ok := m.primitives[v.ID]
		if !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		v.Patch.Apply(&prim)
		m.primitives[v.ID] = prim
		if v.Patch.TouchesGeometry() {
			for _, meshID := range m.meshesWith(v.ID) {
				m.rebuildUsersOf(meshID)
			}
		}
	case protocol.DisposePrimitive:
		delete(m.primitives, v.ID)
	default:
		return protocol.InvalidMessage(msg.Subject(), fmt.Errorf("not handled by physics"))
	}
	return nil
}

func (m *Mirror) createNode(msg protocol.CreateNode) error {
	if _, ok := m.nodes[msg.ID]; ok {
		slog.Debug("physics: replacing node on duplicate create", "node", msg.ID)
		m.disposeNode(msg.ID)
	}
	state := msg.State
	state.ApplyDefaults()
	m.nodes[msg.ID] = &nodeReplica{state: state}
	m.attach(msg.ID, state.Parent)
	m.worlds.Set(msg.ID, msg.World)

	if state.Collider != nil {
		m.attachCollider(msg.ID, *state.Collider)
	}
	return nil
}

func (m *Mirror) changeNode(msg protocol.ChangeNode) error {
	n, ok := m.nodes[msg.ID]
	if !ok {
		m.ignore(msg, msg.ID)
		return nil
	}

	oldParent := n.state.Parent
	msg.Patch.Apply(&n.state)
	if msg.Patch.Parent != nil && *msg.Patch.Parent != oldParent {
		m.detach(msg.ID, oldParent)
		m.attach(msg.ID, *msg.Patch.Parent)
	}

	// A supplied world is authoritative for this node only; the authoring
	// side sends one change_node per moved descendant. Without one, the
	// subtree is derived from the local replicas.
	var moved []string
	if msg.World != nil {
		m.worlds.Set(msg.ID, *msg.World)
		moved = []string{msg.ID}
	} else if msg.Patch.TouchesTransform() || msg.Patch.Parent != nil {
		for _, u := range m.worlds.Update(msg.ID) {
			moved = append(moved, u.ID)
		}
	}

	if msg.Patch.Collider.Set {
		// A new descriptor always produces a fresh body/collider pair.
		m.removeBinding(msg.ID)
		if msg.Patch.Collider.Valid {
			m.attachCollider(msg.ID, msg.Patch.Collider.Value)
		}
	}

	for _, id := range moved {
		m.syncBody(id)
	}
	return nil
}

func (m *Mirror) disposeNode(id string) {
	n, ok := m.nodes[id]
	if !ok {
		slog.Debug("physics: dispose of unknown node", "node", id)
		return
	}
	for _, child := range slices.Clone(n.children) {
		m.disposeNode(child)
	}
	m.removeBinding(id)
	m.detach(id, n.state.Parent)
	delete(m.nodes, id)
	m.worlds.Forget(id)
}

// attachCollider synthesizes the shape for desc and creates a fixed body
// carrying it. Synthesis failures are reported and leave the node without
// a body.
func (m *Mirror) attachCollider(id string, desc protocol.ColliderDescriptor) {
	world, _ := m.worlds.World(id)
	shape, err := collider.Synthesize(id, desc, meshSource{m}, world.Scale)
	if err != nil {
		m.fail(id, err)
		return
	}
	body := m.world.CreateFixedBody(world.Translation, world.Rotation)
	ch, err := m.world.CreateCollider(body, shape)
	if err != nil {
		m.world.RemoveBody(body)
		m.fail(id, err)
		return
	}
	m.bindings[id] = &Binding{Body: body, Collider: ch, Scale: world.Scale, Shape: shape}
	slog.Debug("physics: collider attached", "node", id, "type", shape.Type, "body", body, "collider", ch)
}

// syncBody moves a node's body to its world pose, rebuilding a trimesh
// collider first when the world scale changed.
func (m *Mirror) syncBody(id string) {
	b, ok := m.bindings[id]
	if !ok {
		return
	}
	world, _ := m.worlds.World(id)

	if b.Shape.ScaleDependent() && !collider.ScaleEqual(b.Scale, world.Scale) {
		shape, ok := collider.Rescale(b.Shape, b.Scale, world.Scale)
		if !ok {
			n := m.nodes[id]
			if n.state.Collider == nil {
				return
			}
			var err error
			shape, err = collider.Synthesize(id, *n.state.Collider, meshSource{m}, world.Scale)
			if err != nil {
				m.fail(id, err)
				return
			}
		}
		m.swap(id, b, shape, world.Scale)
	}

	if err := m.world.SetPose(b.Body, world.Translation, world.Rotation); err != nil {
		m.fail(id, err)
	}
}

func (m *Mirror) swap(id string, b *Binding, shape collider.Shape, scale protocol.Vec3) {
	ch, err := m.world.SwapCollider(b.Body, shape)
	if err != nil {
		m.fail(id, err)
		return
	}
	slog.Debug("physics: collider rebuilt", "node", id, "body", b.Body, "old", b.Collider, "new", ch)
	b.Collider = ch
	b.Shape = shape
	b.Scale = scale
}

// rebuildUsersOf re-synthesizes every trimesh collider built from meshID,
// keeping each node's body.
func (m *Mirror) rebuildUsersOf(meshID string) {
	for _, id := range m.trimeshUsers(meshID) {
		world, _ := m.worlds.World(id)
		desc := *m.nodes[id].state.Collider
		b, ok := m.bindings[id]
		if !ok {
			m.attachCollider(id, desc)
			continue
		}
		shape, err := collider.Synthesize(id, desc, meshSource{m}, world.Scale)
		if err != nil {
			m.fail(id, err)
			m.removeBinding(id)
			continue
		}
		m.swap(id, b, shape, world.Scale)
	}
}

func (m *Mirror) removeBinding(id string) {
	b, ok := m.bindings[id]
	if !ok {
		return
	}
	m.world.RemoveBody(b.Body)
	delete(m.bindings, id)
}

// trimeshUsers lists nodes whose trimesh descriptor references meshID, in
// id order.
func (m *Mirror) trimeshUsers(meshID string) []string {
	var out []string
	for id, n := range m.nodes {
		if collider.References(n.state.Collider, meshID) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (m *Mirror) meshesWith(primitiveID string) []string {
	var out []string
	for id, mesh := range m.meshes {
		if slices.Contains(mesh.Primitives, primitiveID) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (m *Mirror) attach(id, parent string) {
	if p, ok := m.nodes[parent]; ok && parent != "" {
		p.children = append(p.children, id)
		return
	}
	m.roots = append(m.roots, id)
}

func (m *Mirror) detach(id, parent string) {
	if p, ok := m.nodes[parent]; ok && parent != "" {
		p.children = slices.DeleteFunc(p.children, func(c string) bool { return c == id })
	}
	m.roots = slices.DeleteFunc(m.roots, func(c string) bool { return c == id })
}

func (m *Mirror) fail(id string, err error) {
	slog.Warn("physics: collider skipped", "node", id, "error", err)
	if m.report != nil {
		m.report(err)
	}
}

func (m *Mirror) ignore(msg protocol.Message, id string) {
	slog.Debug("physics: ignoring message for unknown id", "subject", msg.Subject(), "id", id)
}

// World returns the underlying physics world.
func (m *Mirror) World() *World {
	return m.world
}

// Binding returns the body/collider pair of a node.
func (m *Mirror) Binding(id string) (Binding, bool) {
	b, ok := m.bindings[id]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// NodeWorld returns the mirror's world transform for a node.
func (m *Mirror) NodeWorld(id string) (protocol.Transform, bool) {
	if _, ok := m.nodes[id]; !ok {
		return protocol.Transform{}, false
	}
	return m.worlds.World(id)
}

// Counts reports replica and world sizes.
type Counts struct {
	Nodes      int `json:"nodes"`
	Meshes     int `json:"meshes"`
	Primitives int `json:"primitives"`
	Bodies     int `json:"bodies"`
	Colliders  int `json:"colliders"`
}

// Counts returns the current replica and world sizes.
func (m *Mirror) Counts() Counts {
	return Counts{
		Nodes:      len(m.nodes),
		Meshes:     len(m.meshes),
		Primitives: len(m.primitives),
		Bodies:     m.world.NumBodies(),
		Colliders:  m.world.NumColliders(),
	}
}

// Check verifies that every binding's body and collider exist and that the
// world holds nothing unbound.
func (m *Mirror) Check() error {
	if err := m.world.Check(); err != nil {
		return err
	}
	if len(m.bindings) != m.world.NumBodies() {
		return fmt.Errorf("%d bindings for %d bodies", len(m.bindings), m.world.NumBodies())
	}
	for id, b := range m.bindings {
		if _, ok := m.nodes[id]; !ok {
			return fmt.Errorf("binding for disposed node %s", id)
		}
		body, ok := m.world.Body(b.Body)
		if !ok || body.Collider != b.Collider {
			return fmt.Errorf("binding for node %s is stale", id)
		}
	}
	return nil
}

// replicaTree exposes the replicated hierarchy to the propagator.
type replicaTree struct{ m *Mirror }

func (t replicaTree) Local(id string) (protocol.Transform, bool) {
	n, ok := t.m.nodes[id]
	if !ok {
		return protocol.Transform{}, false
	}
	return n.state.Local(), true
}

func (t replicaTree) Parent(id string) string {
	if n, ok := t.m.nodes[id]; ok {
		if _, ok := t.m.nodes[n.state.Parent]; ok {
			return n.state.Parent
		}
	}
	return ""
}

func (t replicaTree) Children(id string) []string {
	if n, ok := t.m.nodes[id]; ok {
		return n.children
	}
	return nil
}

// meshSource resolves geometry from the replicas for collider synthesis.
type meshSource struct{ m *Mirror }

func (s meshSource) Mesh(id string) (protocol.MeshState, bool) {
	mesh, ok := s.m.meshes[id]
	return mesh, ok
}

func (s meshSource) Primitive(id string) (protocol.PrimitiveState, bool) {
	p, ok := s.m.primitives[id]
	return p, ok
}
