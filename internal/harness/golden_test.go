package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lifecycleScenario() *Scenario {
	return &Scenario{
		Name:        "node_lifecycle",
		Description: "A node is created, moved and disposed, then an empty click",
		Flow: []FlowStep{
			{Step: Step{Op: OpCreate, Kind: "node", ID: "n1", Data: map[string]any{}}},
			{Step: Step{Op: OpChange, Kind: "node", ID: "n1", Data: map[string]any{"translation": []any{1, 0, 0}}}},
			{Step: Step{Op: OpDispose, Kind: "node", ID: "n1"}},
			{Step: Step{Op: OpClick, Pointer: [2]float64{0, 0}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Subject: "create_node", Count: 1},
		},
	}
}

func TestRunWithGolden_NodeLifecycle(t *testing.T) {
	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_NodeLifecycle -update
	err := RunWithGolden(t, lifecycleScenario())
	require.NoError(t, err)
}

func TestAssertGolden_FromResult(t *testing.T) {
	result, err := Run(lifecycleScenario())
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	err = AssertGolden(t, "node_lifecycle", result)
	require.NoError(t, err)
}

func TestSnapshotJSON_Deterministic(t *testing.T) {
	// Multiple runs of the same scenario produce identical bytes.
	first, err := Run(lifecycleScenario())
	require.NoError(t, err)
	second, err := Run(lifecycleScenario())
	require.NoError(t, err)

	a, err := SnapshotJSON("node_lifecycle", first)
	require.NoError(t, err)
	b, err := SnapshotJSON("node_lifecycle", second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshotJSON_OmitsPayloadsAndEmptyEntity(t *testing.T) {
	result := NewResult()
	result.Trace = []TraceEvent{
		{Seq: 1, Subject: "create_node", Kind: "node", ID: "a", Data: map[string]any{"id": "a"}},
		{Seq: 2, Subject: "pointerdown", Data: map[string]any{"button": 0}},
	}

	got, err := SnapshotJSON("s", result)
	require.NoError(t, err)

	want := `{"outputs":[],"scenario_name":"s",` +
		`"summary":{"physics":{"bodies":0,"colliders":0,"meshes":0,"nodes":0,"primitives":0},` +
		`"render":{"entities":0,"materials":0,"meshes":0,"primitives":0,"visual_materials":0},"seq":0},` +
		`"trace":[{"id":"a","kind":"node","seq":1,"subject":"create_node"},{"seq":2,"subject":"pointerdown"}]}`
	assert.Equal(t, want, string(got))
}
