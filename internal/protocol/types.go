package protocol

import "fmt"

// Kind identifies an authored entity kind.
type Kind string

const (
	KindNode      Kind = "node"
	KindMesh      Kind = "mesh"
	KindPrimitive Kind = "primitive"
	KindMaterial  Kind = "material"
)

// ValidKinds defines the authored entity kinds.
var ValidKinds = map[Kind]bool{
	KindNode:      true,
	KindMesh:      true,
	KindPrimitive: true,
	KindMaterial:  true,
}

// Vec3 is an x, y, z triple.
type Vec3 = [3]float64

// Quat is a rotation quaternion ordered x, y, z, w.
type Quat = [4]float64

// Identity values for transforms.
var (
	IdentityRotation = Quat{0, 0, 0, 1}
	UnitScale        = Vec3{1, 1, 1}
)

// Transform is the wire form of a translation/rotation/scale triple.
type Transform struct {
	Translation Vec3 `json:"translation"`
	Rotation    Quat `json:"rotation"`
	Scale       Vec3 `json:"scale"`
}

// IdentityTransform returns the identity transform.
func IdentityTransform() Transform {
	return Transform{Rotation: IdentityRotation, Scale: UnitScale}
}

// NodeState is the full authored state of a node.
type NodeState struct {
	Name        string              `json:"name,omitempty"`
	Parent      string              `json:"parent,omitempty"` // "" = scene root
	Translation Vec3                `json:"translation"`
	Rotation    Quat                `json:"rotation"`
	Scale       Vec3                `json:"scale"`
	Mesh        string              `json:"mesh,omitempty"`
	Collider    *ColliderDescriptor `json:"collider,omitempty"`
	Spawn       *SpawnPoint         `json:"spawn,omitempty"`
	Player      *PlayerInfo         `json:"player,omitempty"`
}

// ApplyDefaults fills an all-zero rotation with identity and an all-zero
// scale with unit scale. A decoded state that omitted those fields becomes a
// valid local transform.
func (s *NodeState) ApplyDefaults() {
	if s.Rotation == (Quat{}) {
		s.Rotation = IdentityRotation
	}
	if s.Scale == (Vec3{}) {
		s.Scale = UnitScale
	}
}

// Local returns the node's local transform.
func (s NodeState) Local() Transform {
	return Transform{Translation: s.Translation, Rotation: s.Rotation, Scale: s.Scale}
}

// NodePatch replaces only the fields that are present.
type NodePatch struct {
	Name        *string                 `json:"name,omitempty"`
	Parent      *string                 `json:"parent,omitempty"`
	Translation *Vec3                   `json:"translation,omitempty"`
	Rotation    *Quat                   `json:"rotation,omitempty"`
	Scale       *Vec3                   `json:"scale,omitempty"`
	Mesh        Opt[string]             `json:"mesh,omitzero"`
	Collider    Opt[ColliderDescriptor] `json:"collider,omitzero"`
	Spawn       Opt[SpawnPoint]         `json:"spawn,omitzero"`
	Player      Opt[PlayerInfo]         `json:"player,omitzero"`
}

// TouchesTransform reports whether the patch changes the local transform.
func (p NodePatch) TouchesTransform() bool {
	return p.Translation != nil || p.Rotation != nil || p.Scale != nil
}

// Empty reports whether the patch carries no fields.
func (p NodePatch) Empty() bool {
	return p.Name == nil && p.Parent == nil && !p.TouchesTransform() &&
		!p.Mesh.Set && !p.Collider.Set && !p.Spawn.Set && !p.Player.Set
}

// Apply merges the patch into s.
func (p NodePatch) Apply(s *NodeState) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Parent != nil {
		s.Parent = *p.Parent
	}
	if p.Translation != nil {
		s.Translation = *p.Translation
	}
	if p.Rotation != nil {
		s.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		s.Scale = *p.Scale
	}
	if p.Mesh.Set {
		s.Mesh = p.Mesh.Value
	}
	if p.Collider.Set {
		s.Collider = p.Collider.Ptr()
	}
	if p.Spawn.Set {
		s.Spawn = p.Spawn.Ptr()
	}
	if p.Player.Set {
		s.Player = p.Player.Ptr()
	}
}

// SpawnPoint marks a node as a place where players enter the world.
type SpawnPoint struct {
	Title   string `json:"title,omitempty"`
	Default bool   `json:"default,omitempty"`
}

// PlayerInfo is attached to nodes that stand in for remote players.
type PlayerInfo struct {
	PlayerID int    `json:"player_id"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Address  string `json:"address,omitempty"`
	Grounded bool   `json:"grounded,omitempty"`
}

// ColliderType tags the collider descriptor variant.
type ColliderType string

const (
	ColliderBox      ColliderType = "box"
	ColliderSphere   ColliderType = "sphere"
	ColliderCylinder ColliderType = "cylinder"
	ColliderTrimesh  ColliderType = "trimesh"
)

// Defaults applied when a descriptor omits a dimension.
const (
	DefaultColliderRadius = 0.5
	DefaultColliderHeight = 1.0
)

// DefaultColliderSize is the box size used when a box descriptor omits it.
var DefaultColliderSize = Vec3{1, 1, 1}

// ColliderDescriptor is the authored intent for a physics collision shape.
//
// Only the fields of the tagged variant are meaningful:
//
//	{"type":"box","size":[x,y,z]}
//	{"type":"sphere","radius":r}
//	{"type":"cylinder","height":h,"radius":r}
//	{"type":"trimesh","mesh":"mesh-id"}
type ColliderDescriptor struct {
	Type   ColliderType `json:"type"`
	Size   *Vec3        `json:"size,omitempty"`
	Radius *float64     `json:"radius,omitempty"`
	Height *float64     `json:"height,omitempty"`
	Mesh   string       `json:"mesh,omitempty"`
}

// BoxCollider returns a box descriptor.
func BoxCollider(size Vec3) ColliderDescriptor {
	return ColliderDescriptor{Type: ColliderBox, Size: &size}
}

// SphereCollider returns a sphere descriptor.
func SphereCollider(radius float64) ColliderDescriptor {
	return ColliderDescriptor{Type: ColliderSphere, Radius: &radius}
}

// CylinderCollider returns a cylinder descriptor.
func CylinderCollider(height, radius float64) ColliderDescriptor {
	return ColliderDescriptor{Type: ColliderCylinder, Height: &height, Radius: &radius}
}

// TrimeshCollider returns a trimesh descriptor referencing meshID.
func TrimeshCollider(meshID string) ColliderDescriptor {
	return ColliderDescriptor{Type: ColliderTrimesh, Mesh: meshID}
}

// BoxSize returns the box size, defaulting to a unit cube.
func (d ColliderDescriptor) BoxSize() Vec3 {
	if d.Size == nil {
		return DefaultColliderSize
	}
	return *d.Size
}

// SphereRadius returns the radius, defaulting to DefaultColliderRadius.
func (d ColliderDescriptor) SphereRadius() float64 {
	if d.Radius == nil {
		return DefaultColliderRadius
	}
	return *d.Radius
}

// CylinderHeight returns the height, defaulting to DefaultColliderHeight.
func (d ColliderDescriptor) CylinderHeight() float64 {
	if d.Height == nil {
		return DefaultColliderHeight
	}
	return *d.Height
}

// Validate checks the variant tag and its required fields.
func (d ColliderDescriptor) Validate() error {
	switch d.Type {
	case ColliderBox:
		s := d.BoxSize()
		if s[0] < 0 || s[1] < 0 || s[2] < 0 {
			return fmt.Errorf("box size must be non-negative, got %v", s)
		}
	case ColliderSphere:
		if d.SphereRadius() < 0 {
			return fmt.Errorf("sphere radius must be non-negative")
		}
	case ColliderCylinder:
		if d.SphereRadius() < 0 || d.CylinderHeight() < 0 {
			return fmt.Errorf("cylinder dimensions must be non-negative")
		}
	case ColliderTrimesh:
		if d.Mesh == "" {
			return fmt.Errorf("trimesh collider requires a mesh reference")
		}
	default:
		return fmt.Errorf("unknown collider type %q", d.Type)
	}
	return nil
}

// MeshState is the full authored state of a mesh.
type MeshState struct {
	Name       string     `json:"name,omitempty"`
	Primitives []string   `json:"primitives"`
	Extras     MeshExtras `json:"extras,omitzero"`
}

// MeshExtras carries free-form mesh metadata. Shape marks a procedural mesh
// that collider synthesis can map onto an analytic shape.
type MeshExtras struct {
	Shape  *ShapeExtras   `json:"shape,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
}

// IsZero reports whether no extras are present.
func (e MeshExtras) IsZero() bool {
	return e.Shape == nil && len(e.Custom) == 0
}

// ShapeExtras describes a procedural box, sphere or cylinder mesh.
type ShapeExtras struct {
	Type   ColliderType `json:"type"`
	Size   *Vec3        `json:"size,omitempty"`
	Radius *float64     `json:"radius,omitempty"`
	Height *float64     `json:"height,omitempty"`
}

// Descriptor converts the procedural shape into the equivalent collider
// descriptor. ok is false for shapes that have no analytic equivalent.
func (s ShapeExtras) Descriptor() (ColliderDescriptor, bool) {
	switch s.Type {
	case ColliderBox, ColliderSphere, ColliderCylinder:
		return ColliderDescriptor{Type: s.Type, Size: s.Size, Radius: s.Radius, Height: s.Height}, true
	default:
		return ColliderDescriptor{}, false
	}
}

// MeshPatch replaces only the fields that are present.
type MeshPatch struct {
	Name       *string     `json:"name,omitempty"`
	Primitives *[]string   `json:"primitives,omitempty"`
	Extras     *MeshExtras `json:"extras,omitempty"`
}

// Apply merges the patch into s.
func (p MeshPatch) Apply(s *MeshState) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Primitives != nil {
		s.Primitives = append([]string(nil), (*p.Primitives)...)
	}
	if p.Extras != nil {
		s.Extras = *p.Extras
	}
}

// PrimitiveState holds vertex attribute buffers and a material reference.
// Positions are flat x, y, z triples.
type PrimitiveState struct {
	Positions []float64 `json:"positions"`
	Indices   []uint32  `json:"indices,omitempty"`
	Normals   []float64 `json:"normals,omitempty"`
	Material  string    `json:"material,omitempty"`
}

// VertexCount returns the number of xyz triples.
func (s PrimitiveState) VertexCount() int {
	return len(s.Positions) / 3
}

// PrimitivePatch replaces named buffers wholesale.
type PrimitivePatch struct {
	Positions *[]float64     `json:"positions,omitempty"`
	Indices   Opt[[]uint32]  `json:"indices,omitzero"`
	Normals   Opt[[]float64] `json:"normals,omitzero"`
	Material  Opt[string]    `json:"material,omitzero"`
}

// TouchesGeometry reports whether positions or indices are replaced.
func (p PrimitivePatch) TouchesGeometry() bool {
	return p.Positions != nil || p.Indices.Set
}

// Apply merges the patch into s.
func (p PrimitivePatch) Apply(s *PrimitiveState) {
	if p.Positions != nil {
		s.Positions = append([]float64(nil), (*p.Positions)...)
	}
	if p.Indices.Set {
		s.Indices = append([]uint32(nil), p.Indices.Value...)
	}
	if p.Normals.Set {
		s.Normals = append([]float64(nil), p.Normals.Value...)
	}
	if p.Material.Set {
		s.Material = p.Material.Value
	}
}

// AlphaMode follows the glTF alpha modes.
type AlphaMode string

const (
	AlphaOpaque AlphaMode = "OPAQUE"
	AlphaMask   AlphaMode = "MASK"
	AlphaBlend  AlphaMode = "BLEND"
)

// MaterialState is the full authored state of a material. Texture slots hold
// an image uri, or "" when empty.
type MaterialState struct {
	Name                     string    `json:"name,omitempty"`
	Color                    Vec3      `json:"color"`
	Alpha                    float64   `json:"alpha"`
	AlphaMode                AlphaMode `json:"alpha_mode"`
	AlphaCutoff              float64   `json:"alpha_cutoff"`
	DoubleSided              bool      `json:"double_sided"`
	Roughness                float64   `json:"roughness"`
	Metalness                float64   `json:"metalness"`
	Emissive                 Vec3      `json:"emissive"`
	ColorTexture             string    `json:"color_texture,omitempty"`
	NormalTexture            string    `json:"normal_texture,omitempty"`
	OcclusionTexture         string    `json:"occlusion_texture,omitempty"`
	EmissiveTexture          string    `json:"emissive_texture,omitempty"`
	MetallicRoughnessTexture string    `json:"metallic_roughness_texture,omitempty"`
	// NormalScale scales the normal map on both tangent axes.
	NormalScale float64 `json:"normal_scale"`
	// OcclusionStrength is the occlusion map intensity in [0, 1].
	OcclusionStrength float64 `json:"occlusion_strength"`
}

// NewMaterialState returns a material with the glTF default factors.
func NewMaterialState() MaterialState {
	return MaterialState{
		Color:       Vec3{1, 1, 1},
		Alpha:       1,
		AlphaMode:   AlphaOpaque,
		AlphaCutoff: 0.5,
		Roughness:   1,
		Metalness:   1,

		NormalScale:       1,
		OcclusionStrength: 1,
	}
}

// MaterialPatch replaces only the fields that are present.
type MaterialPatch struct {
	Name                     *string     `json:"name,omitempty"`
	Color                    *Vec3       `json:"color,omitempty"`
	Alpha                    *float64    `json:"alpha,omitempty"`
	AlphaMode                *AlphaMode  `json:"alpha_mode,omitempty"`
	AlphaCutoff              *float64    `json:"alpha_cutoff,omitempty"`
	DoubleSided              *bool       `json:"double_sided,omitempty"`
	Roughness                *float64    `json:"roughness,omitempty"`
	Metalness                *float64    `json:"metalness,omitempty"`
	Emissive                 *Vec3       `json:"emissive,omitempty"`
	ColorTexture             Opt[string] `json:"color_texture,omitzero"`
	NormalTexture            Opt[string] `json:"normal_texture,omitzero"`
	OcclusionTexture         Opt[string] `json:"occlusion_texture,omitzero"`
	EmissiveTexture          Opt[string] `json:"emissive_texture,omitzero"`
	MetallicRoughnessTexture Opt[string] `json:"metallic_roughness_texture,omitzero"`
	NormalScale              *float64    `json:"normal_scale,omitempty"`
	OcclusionStrength        *float64    `json:"occlusion_strength,omitempty"`
}

// Apply merges the patch into s.
func (p MaterialPatch) Apply(s *MaterialState) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Color != nil {
		s.Color = *p.Color
	}
	if p.Alpha != nil {
		s.Alpha = *p.Alpha
	}
	if p.AlphaMode != nil {
		s.AlphaMode = *p.AlphaMode
	}
	if p.AlphaCutoff != nil {
		s.AlphaCutoff = *p.AlphaCutoff
	}
	if p.DoubleSided != nil {
		s.DoubleSided = *p.DoubleSided
	}
	if p.Roughness != nil {
		s.Roughness = *p.Roughness
	}
	if p.Metalness != nil {
		s.Metalness = *p.Metalness
	}
	if p.Emissive != nil {
		s.Emissive = *p.Emissive
	}
	if p.NormalScale != nil {
		s.NormalScale = *p.NormalScale
	}
	if p.OcclusionStrength != nil {
		s.OcclusionStrength = *p.OcclusionStrength
	}
	applyTexture(p.ColorTexture, &s.ColorTexture)
	applyTexture(p.NormalTexture, &s.NormalTexture)
	applyTexture(p.OcclusionTexture, &s.OcclusionTexture)
	applyTexture(p.EmissiveTexture, &s.EmissiveTexture)
	applyTexture(p.MetallicRoughnessTexture, &s.MetallicRoughnessTexture)
}

func applyTexture(o Opt[string], dst *string) {
	if o.Set {
		*dst = o.Value
	}
}
