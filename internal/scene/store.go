// Package scene holds the authoritative scene graph of the authoring context.
//
// The Store is an arena of nodes, meshes, primitives and materials keyed by
// string id. References between entities are ids, checked on every edit.
// Every successful mutation is published as protocol messages, in the order
// the mirrors must apply them.
//
// A Store is driven by exactly one goroutine. It never blocks on the contexts
// that consume its messages.
package scene

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/transform"
)

// Publisher receives every message the store emits.
type Publisher interface {
	Publish(protocol.Message)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(protocol.Message)

// Publish calls f(m).
func (f PublisherFunc) Publish(m protocol.Message) { f(m) }

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets the message sink. Without one, messages are dropped.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.pub = p }
}

// WithIDGenerator sets the generator used when a create omits the id.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// Store is the authoring scene graph.
type Store struct {
	nodes      map[string]*Node
	meshes     map[string]*Mesh
	primitives map[string]*Primitive
	materials  map[string]*Material

	// meshRefs counts visual and trimesh collider references to each mesh.
	meshRefs map[string]int
	// roots are the parentless nodes, in creation order.
	roots []string

	worlds *transform.Propagator
	pub    Publisher
	ids    IDGenerator
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		nodes:      make(map[string]*Node),
		meshes:     make(map[string]*Mesh),
		primitives: make(map[string]*Primitive),
		materials:  make(map[string]*Material),
		meshRefs:   make(map[string]int),
		ids:        UUIDv7Generator{},
	}
	s.worlds = transform.NewPropagator(hierarchy{s})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) publish(m protocol.Message) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(m)
}

func (s *Store) newID(id string) string {
	if id != "" {
		return id
	}
	return s.ids.Generate()
}

// Node returns the node with id.
func (s *Store) Node(id string) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Mesh returns the mesh with id.
func (s *Store) Mesh(id string) (*Mesh, bool) {
	m, ok := s.meshes[id]
	return m, ok
}

// Primitive returns the primitive with id.
func (s *Store) Primitive(id string) (*Primitive, bool) {
	p, ok := s.primitives[id]
	return p, ok
}

// Material returns the material with id.
func (s *Store) Material(id string) (*Material, bool) {
	m, ok := s.materials[id]
	return m, ok
}

// Roots returns the ids of parentless nodes in creation order.
func (s *Store) Roots() []string {
	return append([]string(nil), s.roots...)
}

// World returns the world transform of a node.
func (s *Store) World(id string) (protocol.Transform, bool) {
	if _, ok := s.nodes[id]; !ok {
		return protocol.Transform{}, false
	}
	return s.worlds.World(id)
}

// MeshRefs returns how many node references, visual or trimesh collider,
// mesh id has.
func (s *Store) MeshRefs(id string) int {
	return s.meshRefs[id]
}

// Snapshot is the full authored state, keyed by id.
type Snapshot struct {
	Nodes      map[string]protocol.NodeState      `json:"nodes"`
	Meshes     map[string]protocol.MeshState      `json:"meshes"`
	Primitives map[string]protocol.PrimitiveState `json:"primitives"`
	Materials  map[string]protocol.MaterialState  `json:"materials"`
}

// Snapshot copies out every entity's state.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Nodes:      make(map[string]protocol.NodeState, len(s.nodes)),
		Meshes:     make(map[string]protocol.MeshState, len(s.meshes)),
		Primitives: make(map[string]protocol.PrimitiveState, len(s.primitives)),
		Materials:  make(map[string]protocol.MaterialState, len(s.materials)),
	}
	for id, n := range s.nodes {
		snap.Nodes[id] = n.State()
	}
	for id, m := range s.meshes {
		snap.Meshes[id] = m.State()
	}
	for id, p := range s.primitives {
		snap.Primitives[id] = p.State()
	}
	for id, m := range s.materials {
		snap.Materials[id] = m.State()
	}
	return snap
}

// Len returns the number of live entities of kind.
func (s *Store) Len(kind protocol.Kind) int {
	switch kind {
	case protocol.KindNode:
		return len(s.nodes)
	case protocol.KindMesh:
		return len(s.meshes)
	case protocol.KindPrimitive:
		return len(s.primitives)
	case protocol.KindMaterial:
		return len(s.materials)
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// hierarchy exposes the node tree to the transform propagator.
type hierarchy struct{ s *Store }

func (h hierarchy) Local(id string) (protocol.Transform, bool) {
	n, ok := h.s.nodes[id]
	if !ok {
		return protocol.Transform{}, false
	}
	return n.Local(), true
}

func (h hierarchy) Parent(id string) string {
	if n, ok := h.s.nodes[id]; ok {
		return n.Parent.Get()
	}
	return ""
}

func (h hierarchy) Children(id string) []string {
	if n, ok := h.s.nodes[id]; ok {
		return n.children
	}
	return nil
}

func logBenign(op string, kind protocol.Kind, id string) {
	slog.Debug("scene: ignoring edit of missing entity", "op", op, "kind", kind, "id", id)
}
