// Package gltfimport loads glTF 2.0 documents into a scene store.
//
// Materials, primitives and meshes are created first, then the node
// hierarchy of the default scene parent-first. Entity ids are derived from
// a prefix and the glTF index ("<prefix>/node/3"), so importing the same file
// twice under different prefixes yields disjoint entities.
package gltfimport

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/transform"
)

// Result counts the entities an import created.
type Result struct {
	Materials  int `json:"materials" yaml:"materials"`
	Primitives int `json:"primitives" yaml:"primitives"`
	Meshes     int `json:"meshes" yaml:"meshes"`
	Nodes      int `json:"nodes" yaml:"nodes"`
	Skipped    int `json:"skipped" yaml:"skipped"`
}

// Option configures an import.
type Option func(*importer)

// WithPrefix sets the id prefix. The default is the file name without its
// extension.
func WithPrefix(prefix string) Option {
	return func(im *importer) { im.prefix = prefix }
}

// WithParent places the imported root nodes under an existing node.
func WithParent(id string) Option {
	return func(im *importer) { im.parent = id }
}

// WithTrimeshColliders gives every node that carries a mesh a trimesh
// collider over that mesh.
func WithTrimeshColliders() Option {
	return func(im *importer) { im.colliders = true }
}

type importer struct {
	doc       *gltf.Document
	store     *scene.Store
	prefix    string
	parent    string
	colliders bool
	result    Result

	// meshes holds the ids of meshes that were created.
	meshes map[uint32]string
	// visited guards against nodes listed under two parents.
	visited map[uint32]bool
}

// ImportFile opens a .gltf or .glb file and imports it into s.
func ImportFile(s *scene.Store, path string, opts ...Option) (Result, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open gltf: %w", err)
	}
	base := filepath.Base(path)
	opts = append([]Option{WithPrefix(strings.TrimSuffix(base, filepath.Ext(base)))}, opts...)
	return Import(s, doc, opts...)
}

// Import creates the entities of doc in s. The first store error stops the
// import; entities created before it remain.
func Import(s *scene.Store, doc *gltf.Document, opts ...Option) (Result, error) {
	im := &importer{
		doc:     doc,
		store:   s,
		prefix:  "gltf",
		meshes:  make(map[uint32]string),
		visited: make(map[uint32]bool),
	}
	for _, opt := range opts {
		opt(im)
	}

	for i, m := range doc.Materials {
		if _, err := s.CreateMaterial(im.id("material", uint32(i)), materialState(m)); err != nil {
			return im.result, fmt.Errorf("material %d: %w", i, err)
		}
		im.result.Materials++
	}
	for i, m := range doc.Meshes {
		if err := im.importMesh(uint32(i), m); err != nil {
			return im.result, err
		}
	}
	for _, root := range im.sceneRoots() {
		if err := im.importNode(root, im.parent); err != nil {
			return im.result, err
		}
	}

	slog.Info("gltf imported",
		"prefix", im.prefix,
		"materials", im.result.Materials,
		"primitives", im.result.Primitives,
		"meshes", im.result.Meshes,
		"nodes", im.result.Nodes,
		"skipped", im.result.Skipped,
	)
	return im.result, nil
}

func (im *importer) id(kind string, i uint32) string {
	return fmt.Sprintf("%s/%s/%d", im.prefix, kind, i)
}

func (im *importer) importMesh(i uint32, m *gltf.Mesh) error {
	var prims []string
	for j, p := range m.Primitives {
		if p.Mode != gltf.PrimitiveTriangles {
			slog.Warn("skipping non-triangle primitive", "mesh", i, "primitive", j, "mode", p.Mode)
			im.result.Skipped++
			continue
		}
		st, err := im.primitiveState(p)
		if err != nil {
			slog.Warn("skipping primitive", "mesh", i, "primitive", j, "error", err)
			im.result.Skipped++
			continue
		}
		pid := fmt.Sprintf("%s/primitive/%d.%d", im.prefix, i, j)
		if _, err := im.store.CreatePrimitive(pid, st); err != nil {
			return fmt.Errorf("primitive %d.%d: %w", i, j, err)
		}
		im.result.Primitives++
		prims = append(prims, pid)
	}

	id := im.id("mesh", i)
	if _, err := im.store.CreateMesh(id, protocol.MeshState{Name: m.Name, Primitives: prims}); err != nil {
		return fmt.Errorf("mesh %d: %w", i, err)
	}
	im.result.Meshes++
	im.meshes[i] = id
	return nil
}

func (im *importer) primitiveState(p *gltf.Primitive) (protocol.PrimitiveState, error) {
	var st protocol.PrimitiveState
	pos, ok := p.Attributes["POSITION"]
	if !ok {
		return st, fmt.Errorf("no POSITION attribute")
	}
	positions, err := readVec3(im.doc, pos)
	if err != nil {
		return st, fmt.Errorf("POSITION: %w", err)
	}
	st.Positions = positions

	if n, ok := p.Attributes["NORMAL"]; ok {
		normals, err := readVec3(im.doc, n)
		if err != nil {
			return st, fmt.Errorf("NORMAL: %w", err)
		}
		st.Normals = normals
	}
	if p.Indices != nil {
		indices, err := readIndices(im.doc, *p.Indices)
		if err != nil {
			return st, fmt.Errorf("indices: %w", err)
		}
		st.Indices = indices
	}
	if p.Material != nil {
		st.Material = im.id("material", *p.Material)
	}
	return st, nil
}

// sceneRoots returns the root nodes of the default scene, or of the first
// scene when none is marked default. A document without scenes imports
// every node that is nobody's child.
func (im *importer) sceneRoots() []uint32 {
	doc := im.doc
	if len(doc.Scenes) > 0 {
		i := uint32(0)
		if doc.Scene != nil {
			i = *doc.Scene
		}
		if int(i) < len(doc.Scenes) {
			return doc.Scenes[i].Nodes
		}
	}

	child := make(map[uint32]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !child[uint32(i)] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

func (im *importer) importNode(i uint32, parent string) error {
	if int(i) >= len(im.doc.Nodes) {
		return fmt.Errorf("node %d: index out of range", i)
	}
	if im.visited[i] {
		slog.Warn("node listed twice, keeping first parent", "node", i)
		return nil
	}
	im.visited[i] = true

	n := im.doc.Nodes[i]
	local := nodeTransform(n)
	st := protocol.NodeState{
		Name:        n.Name,
		Parent:      parent,
		Translation: local.Translation,
		Rotation:    local.Rotation,
		Scale:       local.Scale,
	}
	if n.Mesh != nil {
		if mid, ok := im.meshes[*n.Mesh]; ok {
			st.Mesh = mid
			if im.colliders {
				c := protocol.TrimeshCollider(mid)
				st.Collider = &c
			}
		}
	}

	id := im.id("node", i)
	if _, err := im.store.CreateNode(id, st); err != nil {
		return fmt.Errorf("node %d: %w", i, err)
	}
	im.result.Nodes++

	for _, c := range n.Children {
		if err := im.importNode(c, id); err != nil {
			return err
		}
	}
	return nil
}

// nodeTransform returns the local transform of n. A non-identity matrix
// takes precedence over TRS properties.
func nodeTransform(n *gltf.Node) protocol.Transform {
	var m mgl64.Mat4
	for i := range 16 {
		m[i] = float64(n.Matrix[i])
	}
	if m != mgl64.Ident4() && m != (mgl64.Mat4{}) {
		return transform.Decompose(m)
	}

	t := protocol.IdentityTransform()
	for i := range 3 {
		t.Translation[i] = float64(n.Translation[i])
		t.Scale[i] = float64(n.Scale[i])
	}
	for i := range 4 {
		t.Rotation[i] = float64(n.Rotation[i])
	}
	if t.Rotation == (protocol.Quat{}) {
		t.Rotation = protocol.IdentityRotation
	}
	if t.Scale == (protocol.Vec3{}) {
		t.Scale = protocol.UnitScale
	}
	return t
}
