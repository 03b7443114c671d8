package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/transform"
)

// SpawnNodeID is the id of the node created for a world-level spawn.
const SpawnNodeID = "spawn"

// Applied counts the entities a world created.
type Applied struct {
	Materials  int `json:"materials" yaml:"materials"`
	Primitives int `json:"primitives" yaml:"primitives"`
	Meshes     int `json:"meshes" yaml:"meshes"`
	Nodes      int `json:"nodes" yaml:"nodes"`
}

// Apply validates w and creates its entities in s in causal order:
// materials, primitives, meshes, then nodes parent-first. A world-level
// spawn becomes a node named SpawnNodeID unless a node already carries a
// default spawn. The first store error stops the apply.
func Apply(s *scene.Store, w *World) (Applied, error) {
	var out Applied
	if errs := Validate(w); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return out, fmt.Errorf("world %q is invalid: %w", w.Name, errors.Join(joined...))
	}

	for _, id := range slices.Sorted(maps.Keys(w.Materials)) {
		if _, err := s.Create(protocol.KindMaterial, id, w.Materials[id]); err != nil {
			return out, fmt.Errorf("material %s: %w", id, err)
		}
		out.Materials++
	}
	for _, id := range slices.Sorted(maps.Keys(w.Primitives)) {
		if _, err := s.Create(protocol.KindPrimitive, id, w.Primitives[id]); err != nil {
			return out, fmt.Errorf("primitive %s: %w", id, err)
		}
		out.Primitives++
	}
	for _, id := range slices.Sorted(maps.Keys(w.Meshes)) {
		if _, err := s.Create(protocol.KindMesh, id, w.Meshes[id]); err != nil {
			return out, fmt.Errorf("mesh %s: %w", id, err)
		}
		out.Meshes++
	}

	parents := make(map[string]string, len(w.Nodes))
	hasDefault := false
	for id, n := range w.Nodes {
		parents[id] = n.Parent
		if n.Spawn != nil && n.Spawn.Default {
			hasDefault = true
		}
	}
	for _, id := range parentFirst(parents) {
		if _, err := s.Create(protocol.KindNode, id, w.Nodes[id]); err != nil {
			return out, fmt.Errorf("node %s: %w", id, err)
		}
		out.Nodes++
	}

	if w.Spawn != nil && !hasDefault {
		if _, err := s.CreateNode(SpawnNodeID, SpawnState(w)); err != nil {
			return out, fmt.Errorf("spawn: %w", err)
		}
		out.Nodes++
	}

	slog.Info("world applied",
		"world", w.Name,
		"materials", out.Materials,
		"primitives", out.Primitives,
		"meshes", out.Meshes,
		"nodes", out.Nodes,
	)
	return out, nil
}

// SpawnState returns the node state for the world-level spawn point.
func SpawnState(w *World) protocol.NodeState {
	return protocol.NodeState{
		Name:        w.Name + " spawn",
		Translation: w.Spawn.Position,
		Rotation:    transform.Yaw(w.Spawn.Yaw),
		Scale:       protocol.UnitScale,
		Spawn:       &protocol.SpawnPoint{Title: w.Name, Default: true},
	}
}
