package gltfimport

import (
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/transform"
)

func importTriangle(t *testing.T, opts ...Option) (*scene.Store, Result) {
	t.Helper()
	s := scene.New()
	res, err := ImportFile(s, filepath.Join("testdata", "triangle.gltf"), opts...)
	require.NoError(t, err)
	return s, res
}

func TestImportFile_Counts(t *testing.T) {
	_, res := importTriangle(t)

	// The LINES primitive is skipped and the orphan node is not in the scene.
	assert.Equal(t, Result{Materials: 1, Primitives: 1, Meshes: 1, Nodes: 4, Skipped: 1}, res)
}

func TestImportFile_Geometry(t *testing.T) {
	s, _ := importTriangle(t)

	p, ok := s.Primitive("triangle/primitive/0.0")
	require.True(t, ok)
	st := p.State()
	assert.Equal(t, []float64{-1, -1, 0, 1, -1, 0, 0, 1, 0}, st.Positions)
	assert.Equal(t, []uint32{0, 1, 2}, st.Indices)
	assert.Equal(t, []float64{0, 0, 1, 0, 0, 1, 0, 0, 1}, st.Normals)
	assert.Equal(t, "triangle/material/0", st.Material)

	m, ok := s.Mesh("triangle/mesh/0")
	require.True(t, ok)
	assert.Equal(t, "triangle", m.State().Name)
	assert.Equal(t, []string{"triangle/primitive/0.0"}, m.State().Primitives)
}

func TestImportFile_Material(t *testing.T) {
	s, _ := importTriangle(t)

	m, ok := s.Material("triangle/material/0")
	require.True(t, ok)
	st := m.State()
	assert.Equal(t, "glass", st.Name)
	assert.Equal(t, protocol.Vec3{1, 0, 0}, st.Color)
	assert.Equal(t, 0.5, st.Alpha)
	assert.Equal(t, protocol.AlphaBlend, st.AlphaMode)
	assert.True(t, st.DoubleSided)
	assert.Equal(t, 0.0, st.Metalness)
	assert.Equal(t, 0.5, st.Roughness)
	assert.Equal(t, protocol.Vec3{0, 0, 1}, st.Emissive)
}

func TestMaterialState_Factors(t *testing.T) {
	f := func(v float32) *float32 { return &v }
	idx := func(v uint32) *uint32 { return &v }
	tests := []struct {
		name      string
		material  gltf.Material
		color     protocol.Vec3
		alpha     float64
		normal    float64
		occlusion float64
		normalTex string
		occTex    string
	}{
		{
			name:      "defaults",
			material:  gltf.Material{},
			color:     protocol.Vec3{1, 1, 1},
			alpha:     1,
			normal:    1,
			occlusion: 1,
		},
		{
			name: "base color factor",
			material: gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float32{0.25, 0.5, 0.75, 0.5},
			}},
			color:     protocol.Vec3{0.25, 0.5, 0.75},
			alpha:     0.5,
			normal:    1,
			occlusion: 1,
		},
		{
			name: "normal and occlusion maps",
			material: gltf.Material{
				NormalTexture:    &gltf.NormalTexture{Index: idx(2), Scale: f(0.5)},
				OcclusionTexture: &gltf.OcclusionTexture{Index: idx(3), Strength: f(0.25)},
			},
			color:     protocol.Vec3{1, 1, 1},
			alpha:     1,
			normal:    0.5,
			occlusion: 0.25,
			normalTex: "texture/2",
			occTex:    "texture/3",
		},
		{
			name: "maps without factors",
			material: gltf.Material{
				NormalTexture:    &gltf.NormalTexture{Index: idx(0)},
				OcclusionTexture: &gltf.OcclusionTexture{Index: idx(1)},
			},
			color:     protocol.Vec3{1, 1, 1},
			alpha:     1,
			normal:    1,
			occlusion: 1,
			normalTex: "texture/0",
			occTex:    "texture/1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := materialState(&tt.material)
			assert.Equal(t, tt.color, st.Color)
			assert.Equal(t, tt.alpha, st.Alpha)
			assert.Equal(t, tt.normal, st.NormalScale)
			assert.Equal(t, tt.occlusion, st.OcclusionStrength)
			assert.Equal(t, tt.normalTex, st.NormalTexture)
			assert.Equal(t, tt.occTex, st.OcclusionTexture)
		})
	}
}

func TestImportFile_Hierarchy(t *testing.T) {
	s, _ := importTriangle(t)

	tri, ok := s.Node("triangle/node/1")
	require.True(t, ok)
	assert.Equal(t, "triangle/node/0", tri.State().Parent)
	assert.Equal(t, "triangle/mesh/0", tri.State().Mesh)
	assert.Nil(t, tri.State().Collider)

	world, ok := s.World("triangle/node/1")
	require.True(t, ok)
	assert.True(t, transform.ApproxEqual(protocol.Transform{
		Translation: protocol.Vec3{0, 1, 0},
		Rotation:    protocol.IdentityRotation,
		Scale:       protocol.Vec3{2, 2, 2},
	}, world, 1e-9))

	moved, ok := s.Node("triangle/node/2")
	require.True(t, ok)
	assert.True(t, transform.ApproxEqual(protocol.Transform{
		Translation: protocol.Vec3{3, 0, 0},
		Rotation:    protocol.IdentityRotation,
		Scale:       protocol.UnitScale,
	}, moved.Local(), 1e-9))

	assert.ElementsMatch(t, []string{"triangle/node/0", "triangle/node/3"}, s.Roots())
	_, ok = s.Node("triangle/node/4")
	assert.False(t, ok)
}

func TestImportFile_Options(t *testing.T) {
	s := scene.New()
	_, err := s.CreateNode("stage", protocol.NodeState{
		Rotation: protocol.IdentityRotation,
		Scale:    protocol.UnitScale,
	})
	require.NoError(t, err)

	_, err = ImportFile(s, filepath.Join("testdata", "triangle.gltf"),
		WithPrefix("tri"), WithParent("stage"), WithTrimeshColliders())
	require.NoError(t, err)

	root, ok := s.Node("tri/node/0")
	require.True(t, ok)
	assert.Equal(t, "stage", root.State().Parent)

	n, ok := s.Node("tri/node/1")
	require.True(t, ok)
	require.NotNil(t, n.State().Collider)
	assert.Equal(t, protocol.TrimeshCollider("tri/mesh/0"), *n.State().Collider)

	lamp, ok := s.Node("tri/node/3")
	require.True(t, ok)
	assert.Nil(t, lamp.State().Collider)
}

func TestImportFile_TwiceConflicts(t *testing.T) {
	s, _ := importTriangle(t)

	_, err := ImportFile(s, filepath.Join("testdata", "triangle.gltf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrAlreadyExists)
}

func TestImportFile_Missing(t *testing.T) {
	_, err := ImportFile(scene.New(), filepath.Join(t.TempDir(), "none.gltf"))
	require.Error(t, err)
}

func TestImport_BadAccessorSkipsPrimitive(t *testing.T) {
	doc := &gltf.Document{
		Meshes: []*gltf.Mesh{{
			Name: "broken",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]uint32{"POSITION": 9},
			}},
		}},
	}
	s := scene.New()

	res, err := Import(s, doc, WithPrefix("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Meshes)

	m, ok := s.Mesh("b/mesh/0")
	require.True(t, ok)
	assert.Empty(t, m.State().Primitives)
}
