package render

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/protocol"
)

func apply(t *testing.T, m *Mirror, msgs ...protocol.Message) {
	t.Helper()
	for _, msg := range msgs {
		require.NoError(t, m.Apply(msg), "apply %s", msg.Subject())
	}
}

func node(id, parent, mesh string, at protocol.Vec3) protocol.CreateNode {
	s := protocol.NodeState{Parent: parent, Mesh: mesh}
	s.ApplyDefaults()
	w := protocol.IdentityTransform()
	w.Translation = at
	return protocol.CreateNode{ID: id, State: s, World: w}
}

func triangleMesh() []protocol.Message {
	return []protocol.Message{
		protocol.CreatePrimitive{ID: "p1", State: protocol.PrimitiveState{
			Positions: []float64{-1, -1, 0, 1, -1, 0, 0, 1, 0},
			Indices:   []uint32{0, 1, 2},
		}},
		protocol.CreateMesh{ID: "m1", State: protocol.MeshState{Primitives: []string{"p1"}}},
	}
}

func camera() protocol.Camera {
	return protocol.Camera{
		Position: protocol.Vec3{0, 0, 5},
		Target:   protocol.Vec3{0, 0, 0},
		Up:       protocol.Vec3{0, 1, 0},
		FovY:     math.Pi / 3,
		Aspect:   1,
	}
}

func TestMirror_EntityHierarchy(t *testing.T) {
	m := NewMirror()
	apply(t, m, node("a", "", "", protocol.Vec3{}), node("b", "a", "", protocol.Vec3{}), node("c", "b", "", protocol.Vec3{}))

	a, _ := m.Entity("a")
	assert.Equal(t, []string{"b"}, a.Children)

	parent := ""
	apply(t, m, protocol.ChangeNode{ID: "c", Patch: protocol.NodePatch{Parent: &parent}})
	b, _ := m.Entity("b")
	assert.Empty(t, b.Children)
	assert.Equal(t, []string{"a", "c"}, m.Roots())

	apply(t, m, protocol.DisposeNode{ID: "a"})
	assert.Equal(t, 1, m.Counts().Entities, "subtree of a removed")
	require.NoError(t, m.Check())
}

func TestMirror_CachesWorldTransform(t *testing.T) {
	m := NewMirror()
	apply(t, m, node("a", "", "", protocol.Vec3{1, 0, 0}))

	w := protocol.IdentityTransform()
	w.Translation = protocol.Vec3{4, 5, 6}
	apply(t, m, protocol.ChangeNode{ID: "a", World: &w})

	e, _ := m.Entity("a")
	assert.Equal(t, protocol.Vec3{4, 5, 6}, e.World.Translation)
}

func TestMirror_UnknownIDsIgnored(t *testing.T) {
	m := NewMirror()
	name := "x"
	apply(t, m,
		protocol.ChangeNode{ID: "ghost", Patch: protocol.NodePatch{Name: &name}},
		protocol.DisposeNode{ID: "ghost"},
		protocol.ChangeMaterial{ID: "ghost"},
		protocol.DisposeMesh{ID: "ghost"},
	)
	assert.Equal(t, Counts{}, m.Counts())
}

func TestMirror_MeshDisposeLeavesNoDanglingRefs(t *testing.T) {
	m := NewMirror()
	apply(t, m, triangleMesh()...)
	apply(t, m, node("a", "", "m1", protocol.Vec3{}))

	apply(t, m, protocol.DisposeMesh{ID: "m1"}, protocol.DisposePrimitive{ID: "p1"})

	e, _ := m.Entity("a")
	assert.Empty(t, e.Mesh)
	require.NoError(t, m.Check())
}

func TestMirror_MaterialSelectiveUpdate(t *testing.T) {
	m := NewMirror()
	apply(t, m, protocol.CreateMaterial{ID: "mat", State: protocol.NewMaterialState()})

	red := protocol.Vec3{1, 0, 0}
	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{Color: &red}})

	v, ok := m.VisualMaterial("mat")
	require.True(t, ok)
	assert.Equal(t, red, v.Color)
	assert.Equal(t, map[string]int{"color": 1}, v.Updates)
}

func TestMirror_MaterialMapFactors(t *testing.T) {
	scale, strength := 0.5, 0.25
	tests := []struct {
		name    string
		patch   protocol.MaterialPatch
		normal  [2]float64
		ao      float64
		updates map[string]int
	}{
		{
			name:    "normal scale",
			patch:   protocol.MaterialPatch{NormalScale: &scale},
			normal:  [2]float64{0.5, 0.5},
			ao:      1,
			updates: map[string]int{"normal_scale": 1},
		},
		{
			name:    "occlusion strength",
			patch:   protocol.MaterialPatch{OcclusionStrength: &strength},
			normal:  [2]float64{1, 1},
			ao:      0.25,
			updates: map[string]int{"ao_map_intensity": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMirror()
			apply(t, m, protocol.CreateMaterial{ID: "mat", State: protocol.NewMaterialState()})
			v, ok := m.VisualMaterial("mat")
			require.True(t, ok)
			assert.Equal(t, [2]float64{1, 1}, v.NormalScale)
			assert.Equal(t, 1.0, v.AOMapIntensity)

			apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: tt.patch})
			assert.Equal(t, tt.normal, v.NormalScale)
			assert.Equal(t, tt.ao, v.AOMapIntensity)
			assert.Equal(t, tt.updates, v.Updates)
		})
	}
}

func TestMirror_MaterialAlphaModes(t *testing.T) {
	m := NewMirror()
	state := protocol.NewMaterialState()
	state.AlphaCutoff = 0.3
	apply(t, m, protocol.CreateMaterial{ID: "mat", State: state})
	v, _ := m.VisualMaterial("mat")
	assert.False(t, v.Transparent)
	assert.True(t, v.DepthWrite)
	assert.Zero(t, v.AlphaTest)

	blend := protocol.AlphaBlend
	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{AlphaMode: &blend}})
	assert.True(t, v.Transparent)
	assert.False(t, v.DepthWrite)

	mask := protocol.AlphaMask
	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{AlphaMode: &mask}})
	assert.False(t, v.Transparent)
	assert.Equal(t, 0.3, v.AlphaTest)

	cutoff := 0.7
	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{AlphaCutoff: &cutoff}})
	assert.Equal(t, 0.7, v.AlphaTest)
}

func TestMirror_MaterialTextures(t *testing.T) {
	m := NewMirror()
	apply(t, m, protocol.CreateMaterial{ID: "mat", State: protocol.NewMaterialState()})
	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{
		ColorTexture: protocol.Some("albedo.png"),
	}})
	v, _ := m.VisualMaterial("mat")
	assert.Equal(t, "albedo.png", v.Maps.Color)

	apply(t, m, protocol.ChangeMaterial{ID: "mat", Patch: protocol.MaterialPatch{
		ColorTexture: protocol.Clear[string](),
	}})
	assert.Empty(t, v.Maps.Color)
	assert.Equal(t, 2, v.Updates["map"])
}

func TestMirror_MaterialDisposeReleasesVisual(t *testing.T) {
	m := NewMirror()
	apply(t, m, protocol.CreateMaterial{ID: "mat", State: protocol.NewMaterialState()})
	v, _ := m.VisualMaterial("mat")

	apply(t, m, protocol.DisposeMaterial{ID: "mat"})

	_, ok := m.VisualMaterial("mat")
	assert.False(t, ok)
	assert.Empty(t, v.unsubs)
	assert.Equal(t, Counts{}, m.Counts())
}

func TestPick_NearestHit(t *testing.T) {
	m := NewMirror()
	apply(t, m, triangleMesh()...)
	apply(t, m, node("far", "", "m1", protocol.Vec3{0, 0, 0}), node("near", "", "m1", protocol.Vec3{0, 0, 2}))

	id, ok := m.Pick([2]float64{0, 0}, camera())
	require.True(t, ok)
	assert.Equal(t, "near", id)

	_, ok = m.Pick([2]float64{0.9, 0.9}, camera())
	assert.False(t, ok)
}

func TestPick_UsesEntityWorldTransform(t *testing.T) {
	m := NewMirror()
	apply(t, m, triangleMesh()...)
	apply(t, m, node("a", "", "m1", protocol.Vec3{50, 0, 0}))

	_, ok := m.Pick([2]float64{0, 0}, camera())
	assert.False(t, ok, "triangle moved out of view")
}

func TestCameraRay_Center(t *testing.T) {
	r := CameraRay([2]float64{0, 0}, camera())
	assert.InDelta(t, -1, r.Direction[2], 1e-12)
	assert.InDelta(t, 0, r.Direction[0], 1e-12)
}

func TestMirror_ClickSendsPickResult(t *testing.T) {
	var out []protocol.Message
	m := NewMirror(WithOutbox(func(msg protocol.Message) { out = append(out, msg) }))
	apply(t, m, triangleMesh()...)
	apply(t, m, node("a", "", "m1", protocol.Vec3{}))

	apply(t, m,
		protocol.PointerDown{AtMillis: 0},
		protocol.PointerMove{AtMillis: 100},
		protocol.PointerMove{AtMillis: 200},
		protocol.PointerMove{AtMillis: 300},
		protocol.PointerUp{AtMillis: 400, Camera: camera()},
	)

	require.Len(t, out, 2)
	assert.Equal(t, protocol.GestureClick, out[0].(protocol.Gesture).Kind)
	clicked := out[1].(protocol.ClickedNode)
	require.NotNil(t, clicked.NodeID)
	assert.Equal(t, "a", *clicked.NodeID)
}

func TestMirror_ClickOnNothing(t *testing.T) {
	var out []protocol.Message
	m := NewMirror(WithOutbox(func(msg protocol.Message) { out = append(out, msg) }))

	apply(t, m, protocol.PointerDown{}, protocol.PointerUp{AtMillis: 10, Camera: camera()})

	require.Len(t, out, 2)
	assert.Nil(t, out[1].(protocol.ClickedNode).NodeID)
}

func TestMirror_DragDoesNotPick(t *testing.T) {
	var out []protocol.Message
	m := NewMirror(WithOutbox(func(msg protocol.Message) { out = append(out, msg) }))
	apply(t, m, triangleMesh()...)
	apply(t, m, node("a", "", "m1", protocol.Vec3{}))

	apply(t, m, protocol.PointerDown{})
	for i := 0; i < 10; i++ {
		apply(t, m, protocol.PointerMove{AtMillis: int64(i)})
	}
	apply(t, m, protocol.PointerUp{AtMillis: 100, Camera: camera()})

	require.Len(t, out, 1)
	assert.Equal(t, protocol.GestureDrag, out[0].(protocol.Gesture).Kind)
}
