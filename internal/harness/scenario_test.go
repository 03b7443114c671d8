package harness

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/remote"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: test_scenario
description: "Test scenario for validation"
camera:
  position: [0, 2, 10]
  fov_y: 90
click_policy:
  max_moves: 2
  max_duration_ms: 250
setup:
  - op: create
    kind: node
    id: a
    data:
      translation: [1, 2, 3]
flow:
  - op: click
    pointer: [0.5, -0.5]
    moves: 1
  - op: dispose
    kind: node
    id: missing
    expect:
      case: NOT_FOUND
assertions:
  - type: trace_contains
    subject: create_node
    id: a
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.Len(t, scenario.Setup, 1)
	assert.Equal(t, []any{1, 2, 3}, scenario.Setup[0].Data["translation"])
	require.Len(t, scenario.Flow, 2)
	assert.Equal(t, [2]float64{0.5, -0.5}, scenario.Flow[0].Pointer)
	require.NotNil(t, scenario.Flow[0].Moves)
	assert.Equal(t, 1, *scenario.Flow[0].Moves)
	assert.Nil(t, scenario.Flow[0].Expect)
	assert.Equal(t, "NOT_FOUND", scenario.Flow[1].Expect.Case)
	assert.Equal(t, &ClickPolicySpec{MaxMoves: 2, MaxDurationMs: 250}, scenario.ClickPolicy)

	cam := scenario.Camera.Camera()
	assert.Equal(t, protocol.Vec3{0, 2, 10}, cam.Position)
	assert.Equal(t, protocol.Vec3{0, 1, 0}, cam.Up)
	assert.InDelta(t, math.Pi/2, cam.FovY, 1e-12)
	assert.Equal(t, 1.0, cam.Aspect)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
flow: [{op: click}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
flow: [{op: click}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "description is required",
		},
		{
			name: "empty flow",
			content: `
name: x
description: "x"
flow: []
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "no assertions",
			content: `
name: x
description: "x"
flow: [{op: click}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown field",
			content: `
name: x
description: "x"
flow: [{op: click, invoke: Cart.addItem}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown op",
			content: `
name: x
description: "x"
flow: [{op: teleport}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: `flow[0]: unknown op "teleport"`,
		},
		{
			name: "unknown kind",
			content: `
name: x
description: "x"
setup: [{op: create, kind: light, id: l}]
flow: [{op: click}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: `setup[0]: create: unknown kind "light"`,
		},
		{
			name: "change without id",
			content: `
name: x
description: "x"
flow: [{op: change, kind: node}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "change: id is required",
		},
		{
			name: "host without event",
			content: `
name: x
description: "x"
flow: [{op: host}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "host: event is required",
		},
		{
			name: "empty expect case",
			content: `
name: x
description: "x"
flow: [{op: click, expect: {case: ""}}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`,
			wantErr: "flow[0].expect: case is required",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: "x"
flow: [{op: click}]
assertions: [{type: vibes}]
`,
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name: "final_state without expect",
			content: `
name: x
description: "x"
flow: [{op: click}]
assertions: [{type: final_state, kind: node, id: a}]
`,
			wantErr: "expect or absent is required",
		},
		{
			name: "journal_row without table",
			content: `
name: x
description: "x"
flow: [{op: click}]
assertions: [{type: journal_row, expect: {kind: node}}]
`,
			wantErr: "table is required",
		},
		{
			name: "error_count without code",
			content: `
name: x
description: "x"
flow: [{op: click}]
assertions: [{type: error_count, count: 1}]
`,
			wantErr: "code is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_WorldResolvedRelativeToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "worlds"), 0755))
	worldPath := filepath.Join(dir, "worlds", "empty.cue")
	require.NoError(t, os.WriteFile(worldPath, []byte(`world: name: "empty"`), 0644))

	path := writeScenario(t, dir, `
name: x
description: "x"
world: worlds/empty.cue
flow: [{op: click}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, worldPath, scenario.World)
}

func TestLoadScenario_WorldNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, `
name: lost
description: "x"
world: worlds/missing.cue
flow: [{op: click}]
assertions: [{type: trace_count, subject: pointerup, count: 1}]
`)

	_, err := LoadScenario(path)
	require.Error(t, err)

	var notFound *WorldNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "lost", notFound.Scenario)
	assert.Equal(t, "worlds/missing.cue", notFound.WorldPath)
	assert.Equal(t, filepath.Join(dir, "worlds", "missing.cue"), notFound.ResolvedPath)
}

func TestCameraSpec_Defaults(t *testing.T) {
	cam := CameraSpec{Position: [3]float64{0, 0, 5}}.Camera()
	assert.Equal(t, DefaultCamera(), cam)
}

func TestHostEvent(t *testing.T) {
	ev, err := hostEvent(Step{Op: OpHost, Event: "player_location", Data: map[string]any{
		"playerId": 4,
		"position": []any{1, 2, 3},
		"rotation": 0.5,
	}})
	require.NoError(t, err)
	assert.Equal(t, remote.PlayerLocation{PlayerID: 4, Position: protocol.Vec3{1, 2, 3}, Yaw: 0.5}, ev)

	_, err = hostEvent(Step{Op: OpHost, Event: "player_teleported"})
	require.Error(t, err)
	assert.Equal(t, string(protocol.ErrCodeInvalidMessage), caseOf(err))
}
