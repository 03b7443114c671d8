// Package compiler turns CUE world definitions into scene store operations.
//
// A world file is unified with the embedded #World schema, which supplies
// defaults (identity transforms, glTF material factors) and rejects unknown
// fields. The decoded World is then checked for dangling references and
// parent cycles before anything is applied.
package compiler

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/scenesync/internal/protocol"
)

//go:embed schema.cue
var schemaCUE string

// World is a decoded world definition. Entity maps are keyed by id.
type World struct {
	Name       string                             `json:"name"`
	Spawn      *Spawn                             `json:"spawn,omitempty"`
	Materials  map[string]protocol.MaterialState  `json:"materials"`
	Primitives map[string]protocol.PrimitiveState `json:"primitives"`
	Meshes     map[string]protocol.MeshState      `json:"meshes"`
	Nodes      map[string]protocol.NodeState      `json:"nodes"`
}

// Spawn is where players enter the world. Yaw is in radians about +y.
type Spawn struct {
	Position protocol.Vec3 `json:"position"`
	Yaw      float64       `json:"yaw"`
}

// CompileFile reads and compiles a world file.
func CompileFile(path string) (*World, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world: %w", err)
	}
	return Compile(path, src)
}

// Compile parses CUE source containing a top-level `world` field.
func Compile(filename string, src []byte) (*World, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileValue(v)
}

// CompileValue decodes the `world` field of v against the #World schema.
// Uses the CUE Go API directly (not a CLI subprocess).
func CompileValue(v cue.Value) (*World, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	worldVal := v.LookupPath(cue.ParsePath("world"))
	if !worldVal.Exists() {
		return nil, &CompileError{
			Field:   "world",
			Message: "world is required",
			Pos:     v.Pos(),
		}
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("world schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#World"))

	unified := def.Unify(worldVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := unified.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var w World
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &CompileError{Field: "world", Message: err.Error(), Pos: worldVal.Pos()}
	}
	return &w, nil
}
