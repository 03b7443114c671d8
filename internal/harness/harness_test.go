package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/protocol"
)

func triangleSetup() []Step {
	return []Step{
		{Op: OpCreate, Kind: "primitive", ID: "p1", Data: map[string]any{
			"positions": []any{-1, -1, 0, 1, -1, 0, 0, 1, 0},
			"indices":   []any{0, 1, 2},
		}},
		{Op: OpCreate, Kind: "mesh", ID: "m1", Data: map[string]any{"primitives": []any{"p1"}}},
		{Op: OpCreate, Kind: "node", ID: "n1", Data: map[string]any{
			"mesh":     "m1",
			"collider": map[string]any{"type": "trimesh", "mesh": "m1"},
		}},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Flow: []FlowStep{
			{Step: Step{Op: OpCreate, Kind: "node", ID: "a"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Subject: "create_node", ID: "a"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, "node", result.Trace[0].Kind)
	assert.Equal(t, int64(1), result.Summary.Seq)
	assert.Contains(t, result.State.Nodes, "a")
}

func TestRun_GeneratedIDs(t *testing.T) {
	scenario := &Scenario{
		Name:        "generated",
		Description: "Entities created without an id get sequential ids",
		Flow: []FlowStep{
			{Step: Step{Op: OpCreate, Kind: "node"}},
			{Step: Step{Op: OpCreate, Kind: "node"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceOrder, Subjects: []string{"create_node/gen-1", "create_node/gen-2"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ExpectedErrorCase(t *testing.T) {
	scenario := &Scenario{
		Name:        "expected_error",
		Description: "A dispose of a missing node is expected to fail",
		Flow: []FlowStep{
			{Step: Step{Op: OpDispose, Kind: "node", ID: "ghost"}, Expect: &ExpectClause{Case: "NOT_FOUND"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Subject: "dispose_node", Count: 0},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_UnexpectedCaseFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected",
		Description: "Steps without expect must succeed",
		Flow: []FlowStep{
			{Step: Step{Op: OpDispose, Kind: "node", ID: "ghost"}},
			{Step: Step{Op: OpCreate, Kind: "node", ID: "a"}, Expect: &ExpectClause{Case: "ALREADY_EXISTS"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Subject: "create_node", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected case ok, got NOT_FOUND")
	assert.Contains(t, result.Errors[1], "expected case ALREADY_EXISTS, got ok")
}

func TestRun_SetupFailureAborts(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_setup",
		Description: "Setup steps must succeed",
		Setup: []Step{
			{Op: OpCreate, Kind: "node", ID: "child", Data: map[string]any{"parent": "missing"}},
		},
		Flow:       []FlowStep{{Step: Step{Op: OpClick}}},
		Assertions: []Assertion{{Type: AssertTraceCount, Subject: "pointerup", Count: 1}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0 (create)")
	assert.True(t, protocol.IsNotFound(err))
}

func TestRun_AssertionFailureRecorded(t *testing.T) {
	scenario := &Scenario{
		Name:        "failing_assertion",
		Description: "A failed assertion marks the result",
		Flow:        []FlowStep{{Step: Step{Op: OpCreate, Kind: "node", ID: "a"}}},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Subject: "dispose_node"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: trace_contains")
}

func TestRun_ClickPicksNode(t *testing.T) {
	scenario := &Scenario{
		Name:        "click",
		Description: "A click over a mesh reports the node",
		Setup:       triangleSetup(),
		Flow: []FlowStep{
			{Step: Step{Op: OpClick, Pointer: [2]float64{0, 0}}},
			{Step: Step{Op: OpDrag, Pointer: [2]float64{0, 0}}},
		},
		Assertions: []Assertion{
			{Type: AssertOutputContains, Subject: "clicked_node", Data: map[string]any{"node_id": "n1"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Outputs, 3)
	assert.Equal(t, OutputEvent{Step: 0, Subject: "gesture", Data: map[string]any{"kind": "click", "moves": 0.0, "held_ms": 100.0}}, result.Outputs[0])
	assert.Equal(t, 0, result.Outputs[1].Step)
	assert.Equal(t, "clicked_node", result.Outputs[1].Subject)
	assert.Equal(t, OutputEvent{Step: 1, Subject: "gesture", Data: map[string]any{"kind": "drag", "moves": 7.0, "held_ms": 100.0}}, result.Outputs[2])
}

func TestRun_ClickPolicyOverride(t *testing.T) {
	scenario := &Scenario{
		Name:        "policy",
		Description: "A tighter policy turns a slow press into a drag",
		ClickPolicy: &ClickPolicySpec{MaxMoves: 6, MaxDurationMs: 50},
		Setup:       triangleSetup(),
		Flow:        []FlowStep{{Step: Step{Op: OpClick}}},
		Assertions: []Assertion{
			{Type: AssertOutputContains, Subject: "gesture", Data: map[string]any{"kind": "drag", "held_ms": 100}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Len(t, result.Outputs, 1, "a drag sends no clicked_node")
}

func TestRun_RawPointerEvents(t *testing.T) {
	moves := 0
	scenario := &Scenario{
		Name:        "raw_pointer",
		Description: "Raw pointer steps share the scenario clock",
		Setup:       triangleSetup(),
		Flow: []FlowStep{
			{Step: Step{Op: OpPointerDown}},
			{Step: Step{Op: OpPointerMove, WaitMs: 10}},
			{Step: Step{Op: OpPointerUp, WaitMs: 20}},
			{Step: Step{Op: OpClick, Moves: &moves, HoldMs: 5}},
		},
		Assertions: []Assertion{
			{Type: AssertOutputContains, Subject: "gesture", Data: map[string]any{"kind": "click", "moves": 1, "held_ms": 30}},
			{Type: AssertOutputContains, Subject: "gesture", Data: map[string]any{"kind": "click", "moves": 0, "held_ms": 5}},
			{Type: AssertTraceCount, Subject: "pointerup", Count: 2},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_TrimeshRescaleAndMirrorCounts(t *testing.T) {
	scenario := &Scenario{
		Name:        "rescale",
		Description: "Rescale rebuilds the trimesh",
		Setup:       triangleSetup(),
		Flow: []FlowStep{
			{Step: Step{Op: OpChange, Kind: "node", ID: "n1", Data: map[string]any{"scale": []any{3, 3, 3}}}},
		},
		Assertions: []Assertion{
			{Type: AssertSummary, Expect: map[string]any{
				"physics": map[string]any{"nodes": 1, "bodies": 1, "colliders": 1},
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, protocol.Vec3{3, 3, 3}, result.State.Nodes["n1"].Scale)
}

func TestRun_HostEvents(t *testing.T) {
	scenario := &Scenario{
		Name:        "host",
		Description: "Host events drive player nodes",
		Flow: []FlowStep{
			{Step: Step{Op: OpHost, Event: "player_joined", Data: map[string]any{"playerId": 1, "name": "ada"}}},
			{Step: Step{Op: OpHost, Event: "player_grounded", Data: map[string]any{"playerId": 1, "grounded": true}}},
			{Step: Step{Op: OpHost, Event: "player_left", Data: map[string]any{"playerId": 1}}},
			{Step: Step{Op: OpHost, Event: "player_left", Data: map[string]any{"playerId": 1}}, Expect: &ExpectClause{Case: "NOT_FOUND"}},
			{Step: Step{Op: OpHost, Event: "player_joined", Data: map[string]any{"playerId": 900}}, Expect: &ExpectClause{Case: "INVALID_MESSAGE"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Subject: "change_node", ID: "player-1", Data: map[string]any{
				"patch": map[string]any{"player": map[string]any{"grounded": true}},
			}},
			{Type: AssertFinalState, Kind: "node", ID: "player-1", Absent: true},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WorldFile(t *testing.T) {
	dir := t.TempDir()
	world := filepath.Join(dir, "box.cue")
	require.NoError(t, os.WriteFile(world, []byte(`
world: {
	name: "box"
	nodes: crate: collider: {type: "box", size: [1, 1, 1]}
}
`), 0644))

	scenario := &Scenario{
		Name:        "world",
		Description: "The world file is applied before the flow",
		World:       world,
		Flow: []FlowStep{
			{Step: Step{Op: OpChange, Kind: "node", ID: "crate", Data: map[string]any{"translation": []any{0, 2, 0}}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceOrder, Subjects: []string{"create_node/crate", "change_node/crate"}},
			{Type: AssertJournalRow, Table: "messages", Where: map[string]any{"subject": "change_node"}, Expect: map[string]any{"entity_id": "crate"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WorldCompileError(t *testing.T) {
	dir := t.TempDir()
	world := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(world, []byte(`world: { name: "" }`), 0644))

	scenario := &Scenario{
		Name:        "bad_world",
		Description: "An invalid world aborts the run",
		World:       world,
		Flow:        []FlowStep{{Step: Step{Op: OpClick}}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Subject: "pointerup", Count: 1}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to compile world")
}

func TestRunContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err := RunContext(ctx, lifecycleScenario())
	require.Error(t, err)
}

func TestCaseOf(t *testing.T) {
	assert.Equal(t, CaseOK, caseOf(nil))
	assert.Equal(t, "NOT_FOUND", caseOf(protocol.NotFound(protocol.KindNode, "a")))
	assert.Equal(t, CaseError, caseOf(os.ErrNotExist))
}
