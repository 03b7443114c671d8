// Package render mirrors the authored scene into renderer-side objects:
// one entity per node, one visual mesh per mesh and one visual material per
// material. It also turns pointer input into clicks and picks.
//
// All state is owned by the render context's goroutine and built only from
// received messages. Results flow back to the authoring context through the
// outbox as clicked_node and gesture messages.
package render

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
)

// Entity is the visual counterpart of a node. World is the last world
// transform received for it.
type Entity struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Parent   string             `json:"parent,omitempty"`
	Children []string           `json:"children,omitempty"`
	Mesh     string             `json:"mesh,omitempty"`
	World    protocol.Transform `json:"world"`
}

// VisualMesh is the renderer-side mesh: an ordered list of primitives.
type VisualMesh struct {
	ID         string   `json:"id"`
	Primitives []string `json:"primitives"`
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithOutbox sets where clicked_node and gesture messages are sent.
func WithOutbox(fn func(protocol.Message)) Option {
	return func(m *Mirror) { m.outbox = fn }
}

// WithClickPolicy overrides the click thresholds.
func WithClickPolicy(p ClickPolicy) Option {
	return func(m *Mirror) { m.gesture = NewGesture(p) }
}

// Mirror applies scene messages to renderer-side objects.
type Mirror struct {
	entities   map[string]*Entity
	roots      []string
	meshes     map[string]*VisualMesh
	primitives map[string]protocol.PrimitiveState
	materials  map[string]*scene.Material
	visuals    map[string]*VisualMaterial

	gesture *Gesture
	outbox  func(protocol.Message)
}

// NewMirror creates an empty render mirror.
func NewMirror(opts ...Option) *Mirror {
	m := &Mirror{
		entities:   make(map[string]*Entity),
		meshes:     make(map[string]*VisualMesh),
		primitives: make(map[string]protocol.PrimitiveState),
		materials:  make(map[string]*scene.Material),
		visuals:    make(map[string]*VisualMaterial),
		gesture:    NewGesture(DefaultClickPolicy()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Accepts reports whether the render context consumes subject. Click and
// gesture results flow the other way.
func Accepts(subject protocol.Subject) bool {
	return subject != protocol.SubjectClickedNode && subject != protocol.SubjectGesture
}

// Apply handles one message. Messages about unknown ids are ignored.
func (m *Mirror) Apply(msg protocol.Message) error {
	switch v := msg.(type) {
	case protocol.CreateNode:
		m.createNode(v)
	case protocol.ChangeNode:
		m.changeNode(v)
	case protocol.DisposeNode:
		m.disposeNode(v.ID)

	case protocol.CreateMesh:
		m.meshes[v.ID] = &VisualMesh{ID: v.ID, Primitives: slices.Clone(v.State.Primitives)}
	case protocol.ChangeMesh:
		vm, ok := m.meshes[v.ID]
		if !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		if v.Patch.Primitives != nil {
			vm.Primitives = slices.Clone(*v.Patch.Primitives)
		}
	case protocol.DisposeMesh:
		if _, ok := m.meshes[v.ID]; !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		for _, e := range m.entities {
			if e.Mesh == v.ID {
				e.Mesh = ""
			}
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
	case protocol.DisposePrimitive:
		delete(m.primitives, v.ID)

	case protocol.CreateMaterial:
		m.createMaterial(v)
	case protocol.ChangeMaterial:
		mat, ok := m.materials[v.ID]
		if !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		mat.Apply(v.Patch)
	case protocol.DisposeMaterial:
		mat, ok := m.materials[v.ID]
		if !ok {
			m.ignore(msg, v.ID)
			return nil
		}
		mat.Dispose()

	case protocol.PointerDown:
		m.gesture.Down(v)
	case protocol.PointerMove:
		m.gesture.Move(v)
	case protocol.PointerUp:
		m.pointerUp(v)

	default:
		return protocol.InvalidMessage(msg.Subject(), fmt.Errorf("not handled by render"))
	}
	return nil
}

func (m *Mirror) createNode(msg protocol.CreateNode) {
	if _, ok := m.entities[msg.ID]; ok {
		slog.Debug("render: replacing entity on duplicate create", "node", msg.ID)
		m.disposeNode(msg.ID)
	}
	e := &Entity{
		ID:     msg.ID,
		Name:   msg.State.Name,
		Parent: msg.State.Parent,
		Mesh:   msg.State.Mesh,
		World:  msg.World,
	}
	m.entities[msg.ID] = e
	m.attach(e)
}

func (m *Mirror) changeNode(msg protocol.ChangeNode) {
	e, ok := m.entities[msg.ID]
	if !ok {
		m.ignore(msg, msg.ID)
		return
	}
	p := msg.Patch
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Parent != nil && *p.Parent != e.Parent {
		m.detach(e)
		e.Parent = *p.Parent
		m.attach(e)
	}
	if p.Mesh.Set {
		e.Mesh = p.Mesh.Value
	}
	if msg.World != nil {
		e.World = *msg.World
	}
}

func (m *Mirror) disposeNode(id string) {
	e, ok := m.entities[id]
	if !ok {
		slog.Debug("render: dispose of unknown entity", "node", id)
		return
	}
	for _, child := range slices.Clone(e.Children) {
		m.disposeNode(child)
	}
	m.detach(e)
	delete(m.entities, id)
}

func (m *Mirror) attach(e *Entity) {
	if p, ok := m.entities[e.Parent]; ok && e.Parent != "" {
		p.Children = append(p.Children, e.ID)
		return
	}
	m.roots = append(m.roots, e.ID)
}

func (m *Mirror) detach(e *Entity) {
	if p, ok := m.entities[e.Parent]; ok && e.Parent != "" {
		p.Children = slices.DeleteFunc(p.Children, func(c string) bool { return c == e.ID })
	}
	m.roots = slices.DeleteFunc(m.roots, func(c string) bool { return c == e.ID })
}

func (m *Mirror) createMaterial(msg protocol.CreateMaterial) {
	if old, ok := m.materials[msg.ID]; ok {
		old.Dispose()
	}
	mat := scene.NewMaterial(msg.ID, msg.State)
	visual := bindMaterial(mat)
	m.materials[msg.ID] = mat
	m.visuals[msg.ID] = visual

	// Completion of the replica removes the visual material.
	mat.OnDispose(func() {
		visual.release()
		if m.materials[msg.ID] == mat {
			delete(m.materials, msg.ID)
			delete(m.visuals, msg.ID)
		}
	})
}

func (m *Mirror) pointerUp(e protocol.PointerUp) {
	g := m.gesture.Up(e)
	m.send(g)
	if g.Kind != protocol.GestureClick {
		return
	}
	var clicked protocol.ClickedNode
	if id, ok := m.Pick(e.Pointer, e.Camera); ok {
		clicked.NodeID = &id
	}
	m.send(clicked)
}

func (m *Mirror) send(msg protocol.Message) {
	if m.outbox == nil {
		return
	}
	m.outbox(msg)
}

func (m *Mirror) ignore(msg protocol.Message, id string) {
	slog.Debug("render: ignoring message for unknown id", "subject", msg.Subject(), "id", id)
}

func (m *Mirror) entityIDs() []string {
	return slices.Sorted(maps.Keys(m.entities))
}

// Entity returns a copy of an entity.
func (m *Mirror) Entity(id string) (Entity, bool) {
	e, ok := m.entities[id]
	if !ok {
		return Entity{}, false
	}
	out := *e
	out.Children = slices.Clone(e.Children)
	return out, true
}

// VisualMaterial returns the live visual material for id.
func (m *Mirror) VisualMaterial(id string) (*VisualMaterial, bool) {
	v, ok := m.visuals[id]
	return v, ok
}

// Roots returns the ids of entities attached to the scene root.
func (m *Mirror) Roots() []string {
	return slices.Clone(m.roots)
}

// Counts reports mirror sizes.
type Counts struct {
	Entities        int `json:"entities"`
	Meshes          int `json:"meshes"`
	Primitives      int `json:"primitives"`
	Materials       int `json:"materials"`
	VisualMaterials int `json:"visual_materials"`
}

// Counts returns the current mirror sizes.
func (m *Mirror) Counts() Counts {
	return Counts{
		Entities:        len(m.entities),
		Meshes:          len(m.meshes),
		Primitives:      len(m.primitives),
		Materials:       len(m.materials),
		VisualMaterials: len(m.visuals),
	}
}

// Check verifies that no entity points at a missing mesh or entity and that
// every visual material has a live replica.
func (m *Mirror) Check() error {
	for id, e := range m.entities {
		if e.Mesh != "" {
			if _, ok := m.meshes[e.Mesh]; !ok {
				return fmt.Errorf("entity %s references missing mesh %s", id, e.Mesh)
			}
		}
		for _, c := range e.Children {
			child, ok := m.entities[c]
			if !ok || child.Parent != id {
				return fmt.Errorf("entity %s has dangling child %s", id, c)
			}
		}
	}
	for id := range m.visuals {
		if _, ok := m.materials[id]; !ok {
			return fmt.Errorf("visual material %s has no replica", id)
		}
	}
	return nil
}
