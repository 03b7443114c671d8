package scene

import (
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/reactive"
)

// Node is the authored state of one node. Every field is its own stream, so
// consumers can subscribe to exactly the fields they render or simulate.
type Node struct {
	ID          string
	Name        *reactive.Property[string]
	Parent      *reactive.Property[string]
	Translation *reactive.Property[protocol.Vec3]
	Rotation    *reactive.Property[protocol.Quat]
	Scale       *reactive.Property[protocol.Vec3]
	Mesh        *reactive.Property[string]
	Collider    *reactive.Property[*protocol.ColliderDescriptor]
	Spawn       *reactive.Property[*protocol.SpawnPoint]
	Player      *reactive.Property[*protocol.PlayerInfo]

	children []string
	group    *reactive.Group
}

// NewNode builds a node from a full state. Zero rotation and scale are
// replaced by identity values.
func NewNode(id string, s protocol.NodeState) *Node {
	s.ApplyDefaults()
	n := &Node{
		ID:          id,
		Name:        reactive.NewProperty(s.Name),
		Parent:      reactive.NewProperty(s.Parent),
		Translation: reactive.NewProperty(s.Translation),
		Rotation:    reactive.NewProperty(s.Rotation),
		Scale:       reactive.NewProperty(s.Scale),
		Mesh:        reactive.NewProperty(s.Mesh),
		Collider:    reactive.NewProperty(s.Collider),
		Spawn:       reactive.NewProperty(s.Spawn),
		Player:      reactive.NewProperty(s.Player),
		group:       reactive.NewGroup(),
	}
	n.group.Add(n.Name, n.Parent, n.Translation, n.Rotation, n.Scale, n.Mesh, n.Collider, n.Spawn, n.Player)
	return n
}

// Apply sets only the fields present in p.
func (n *Node) Apply(p protocol.NodePatch) {
	if p.Name != nil {
		n.Name.Set(*p.Name)
	}
	if p.Parent != nil {
		n.Parent.Set(*p.Parent)
	}
	if p.Translation != nil {
		n.Translation.Set(*p.Translation)
	}
	if p.Rotation != nil {
		n.Rotation.Set(*p.Rotation)
	}
	if p.Scale != nil {
		n.Scale.Set(*p.Scale)
	}
	if p.Mesh.Set {
		n.Mesh.Set(p.Mesh.Value)
	}
	if p.Collider.Set {
		n.Collider.Set(p.Collider.Ptr())
	}
	if p.Spawn.Set {
		n.Spawn.Set(p.Spawn.Ptr())
	}
	if p.Player.Set {
		n.Player.Set(p.Player.Ptr())
	}
}

// State returns a snapshot of the node's fields.
func (n *Node) State() protocol.NodeState {
	return protocol.NodeState{
		Name:        n.Name.Get(),
		Parent:      n.Parent.Get(),
		Translation: n.Translation.Get(),
		Rotation:    n.Rotation.Get(),
		Scale:       n.Scale.Get(),
		Mesh:        n.Mesh.Get(),
		Collider:    n.Collider.Get(),
		Spawn:       n.Spawn.Get(),
		Player:      n.Player.Get(),
	}
}

// Local returns the node's local transform.
func (n *Node) Local() protocol.Transform {
	return protocol.Transform{
		Translation: n.Translation.Get(),
		Rotation:    n.Rotation.Get(),
		Scale:       n.Scale.Get(),
	}
}

// Children returns a copy of the ordered child ids.
func (n *Node) Children() []string {
	return append([]string(nil), n.children...)
}

// OnDispose registers fn to run when the node is disposed.
func (n *Node) OnDispose(fn func()) { n.group.OnDispose(fn) }

// Dispose completes every field stream.
func (n *Node) Dispose() { n.group.Dispose() }

// Mesh is the authored state of a mesh.
type Mesh struct {
	ID         string
	Name       *reactive.Property[string]
	Primitives *reactive.Property[[]string]
	Extras     *reactive.Property[protocol.MeshExtras]

	group *reactive.Group
}

// NewMesh builds a mesh from a full state.
func NewMesh(id string, s protocol.MeshState) *Mesh {
	m := &Mesh{
		ID:         id,
		Name:       reactive.NewProperty(s.Name),
		Primitives: reactive.NewProperty(append([]string(nil), s.Primitives...)),
		Extras:     reactive.NewProperty(s.Extras),
		group:      reactive.NewGroup(),
	}
	m.group.Add(m.Name, m.Primitives, m.Extras)
	return m
}

// Apply sets only the fields present in p.
func (m *Mesh) Apply(p protocol.MeshPatch) {
	if p.Name != nil {
		m.Name.Set(*p.Name)
	}
	if p.Primitives != nil {
		m.Primitives.Set(append([]string(nil), (*p.Primitives)...))
	}
	if p.Extras != nil {
		m.Extras.Set(*p.Extras)
	}
}

// State returns a snapshot of the mesh's fields.
func (m *Mesh) State() protocol.MeshState {
	return protocol.MeshState{
		Name:       m.Name.Get(),
		Primitives: append([]string(nil), m.Primitives.Get()...),
		Extras:     m.Extras.Get(),
	}
}

// OnDispose registers fn to run when the mesh is disposed.
func (m *Mesh) OnDispose(fn func()) { m.group.OnDispose(fn) }

// Dispose completes every field stream.
func (m *Mesh) Dispose() { m.group.Dispose() }

// Primitive holds geometry buffers. Buffers are replaced wholesale, never
// mutated in place.
type Primitive struct {
	ID        string
	Positions *reactive.Property[[]float64]
	Indices   *reactive.Property[[]uint32]
	Normals   *reactive.Property[[]float64]
	Material  *reactive.Property[string]

	group *reactive.Group
}

// NewPrimitive builds a primitive from a full state.
func NewPrimitive(id string, s protocol.PrimitiveState) *Primitive {
	p := &Primitive{
		ID:        id,
		Positions: reactive.NewProperty(s.Positions),
		Indices:   reactive.NewProperty(s.Indices),
		Normals:   reactive.NewProperty(s.Normals),
		Material:  reactive.NewProperty(s.Material),
		group:     reactive.NewGroup(),
	}
	p.group.Add(p.Positions, p.Indices, p.Normals, p.Material)
	return p
}

// Apply replaces the buffers present in patch.
func (p *Primitive) Apply(patch protocol.PrimitivePatch) {
	if patch.Positions != nil {
		p.Positions.Set(*patch.Positions)
	}
	if patch.Indices.Set {
		p.Indices.Set(patch.Indices.Value)
	}
	if patch.Normals.Set {
		p.Normals.Set(patch.Normals.Value)
	}
	if patch.Material.Set {
		p.Material.Set(patch.Material.Value)
	}
}

// State returns a snapshot of the primitive's buffers.
func (p *Primitive) State() protocol.PrimitiveState {
	return protocol.PrimitiveState{
		Positions: p.Positions.Get(),
		Indices:   p.Indices.Get(),
		Normals:   p.Normals.Get(),
		Material:  p.Material.Get(),
	}
}

// OnDispose registers fn to run when the primitive is disposed.
func (p *Primitive) OnDispose(fn func()) { p.group.OnDispose(fn) }

// Dispose completes every buffer stream.
func (p *Primitive) Dispose() { p.group.Dispose() }

// Material is the authored state of a material. Each property is an
// independent stream; a visual material subscribes to each one separately.
type Material struct {
	ID                       string
	Name                     *reactive.Property[string]
	Color                    *reactive.Property[protocol.Vec3]
	Alpha                    *reactive.Property[float64]
	AlphaMode                *reactive.Property[protocol.AlphaMode]
	AlphaCutoff              *reactive.Property[float64]
	DoubleSided              *reactive.Property[bool]
	Roughness                *reactive.Property[float64]
	Metalness                *reactive.Property[float64]
	Emissive                 *reactive.Property[protocol.Vec3]
	ColorTexture             *reactive.Property[string]
	NormalTexture            *reactive.Property[string]
	OcclusionTexture         *reactive.Property[string]
	EmissiveTexture          *reactive.Property[string]
	MetallicRoughnessTexture *reactive.Property[string]
	NormalScale              *reactive.Property[float64]
	OcclusionStrength        *reactive.Property[float64]

	group *reactive.Group
}

// NewMaterial builds a material from a full state.
func NewMaterial(id string, s protocol.MaterialState) *Material {
	m := &Material{
		ID:                       id,
		Name:                     reactive.NewProperty(s.Name),
		Color:                    reactive.NewProperty(s.Color),
		Alpha:                    reactive.NewProperty(s.Alpha),
		AlphaMode:                reactive.NewProperty(s.AlphaMode),
		AlphaCutoff:              reactive.NewProperty(s.AlphaCutoff),
		DoubleSided:              reactive.NewProperty(s.DoubleSided),
		Roughness:                reactive.NewProperty(s.Roughness),
		Metalness:                reactive.NewProperty(s.Metalness),
		Emissive:                 reactive.NewProperty(s.Emissive),
		ColorTexture:             reactive.NewProperty(s.ColorTexture),
		NormalTexture:            reactive.NewProperty(s.NormalTexture),
		OcclusionTexture:         reactive.NewProperty(s.OcclusionTexture),
		EmissiveTexture:          reactive.NewProperty(s.EmissiveTexture),
		MetallicRoughnessTexture: reactive.NewProperty(s.MetallicRoughnessTexture),
		NormalScale:              reactive.NewProperty(s.NormalScale),
		OcclusionStrength:        reactive.NewProperty(s.OcclusionStrength),
		group:                    reactive.NewGroup(),
	}
	m.group.Add(m.Name, m.Color, m.Alpha, m.AlphaMode, m.AlphaCutoff, m.DoubleSided,
		m.Roughness, m.Metalness, m.Emissive, m.ColorTexture, m.NormalTexture,
		m.OcclusionTexture, m.EmissiveTexture, m.MetallicRoughnessTexture,
		m.NormalScale, m.OcclusionStrength)
	return m
}

// Apply sets only the fields present in p; untouched streams do not fire.
func (m *Material) Apply(p protocol.MaterialPatch) {
	setIf(m.Name, p.Name)
	setIf(m.Color, p.Color)
	setIf(m.Alpha, p.Alpha)
	setIf(m.AlphaMode, p.AlphaMode)
	setIf(m.AlphaCutoff, p.AlphaCutoff)
	setIf(m.DoubleSided, p.DoubleSided)
	setIf(m.Roughness, p.Roughness)
	setIf(m.Metalness, p.Metalness)
	setIf(m.Emissive, p.Emissive)
	setIf(m.NormalScale, p.NormalScale)
	setIf(m.OcclusionStrength, p.OcclusionStrength)
	setOpt(m.ColorTexture, p.ColorTexture)
	setOpt(m.NormalTexture, p.NormalTexture)
	setOpt(m.OcclusionTexture, p.OcclusionTexture)
	setOpt(m.EmissiveTexture, p.EmissiveTexture)
	setOpt(m.MetallicRoughnessTexture, p.MetallicRoughnessTexture)
}

// State returns a snapshot of the material's fields.
func (m *Material) State() protocol.MaterialState {
	return protocol.MaterialState{
		Name:                     m.Name.Get(),
		Color:                    m.Color.Get(),
		Alpha:                    m.Alpha.Get(),
		AlphaMode:                m.AlphaMode.Get(),
		AlphaCutoff:              m.AlphaCutoff.Get(),
		DoubleSided:              m.DoubleSided.Get(),
		Roughness:                m.Roughness.Get(),
		Metalness:                m.Metalness.Get(),
		Emissive:                 m.Emissive.Get(),
		ColorTexture:             m.ColorTexture.Get(),
		NormalTexture:            m.NormalTexture.Get(),
		OcclusionTexture:         m.OcclusionTexture.Get(),
		EmissiveTexture:          m.EmissiveTexture.Get(),
		MetallicRoughnessTexture: m.MetallicRoughnessTexture.Get(),
		NormalScale:              m.NormalScale.Get(),
		OcclusionStrength:        m.OcclusionStrength.Get(),
	}
}

// OnDispose registers fn to run when the material is disposed.
func (m *Material) OnDispose(fn func()) { m.group.OnDispose(fn) }

// Dispose completes every field stream.
func (m *Material) Dispose() { m.group.Dispose() }

func setIf[T any](p *reactive.Property[T], v *T) {
	if v != nil {
		p.Set(*v)
	}
}

func setOpt[T any](p *reactive.Property[T], o protocol.Opt[T]) {
	if o.Set {
		p.Set(o.Value)
	}
}
