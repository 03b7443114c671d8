package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/physics"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Subject: "create_node", Kind: "node", ID: "a", Data: map[string]any{
			"id":    "a",
			"state": map[string]any{"translation": []any{1.0, 0.0, 0.0}, "name": "crate"},
		}},
		{Seq: 2, Subject: "create_node", Kind: "node", ID: "b", Data: map[string]any{"id": "b"}},
		{Seq: 3, Subject: "change_node", Kind: "node", ID: "a", Data: map[string]any{"id": "a"}},
		{Seq: 4, Subject: "pointerdown", Data: map[string]any{"button": 0.0}},
	}
}

func TestAssertTraceContains(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"subject only", Assertion{Subject: "change_node"}, false},
		{"subject and id", Assertion{Subject: "create_node", ID: "b"}, false},
		{"nested subset", Assertion{Subject: "create_node", Data: map[string]any{
			"state": map[string]any{"translation": []any{1, 0, 0}},
		}}, false},
		{"wrong id", Assertion{Subject: "change_node", ID: "b"}, true},
		{"wrong value", Assertion{Subject: "create_node", Data: map[string]any{
			"state": map[string]any{"name": "barrel"},
		}}, true},
		{"missing subject", Assertion{Subject: "dispose_node"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertTraceContains
			err := assertTraceContains(sampleTrace(), tt.assertion)
			if tt.wantErr {
				require.Error(t, err)
				var aerr *AssertionError
				require.ErrorAs(t, err, &aerr)
				assert.Len(t, aerr.Trace, 4)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	tests := []struct {
		name     string
		subjects []string
		wantErr  string
	}{
		{"in order", []string{"create_node/a", "create_node/b", "pointerdown"}, ""},
		{"non-consecutive", []string{"create_node", "pointerdown"}, ""},
		{"reversed", []string{"change_node/a", "create_node/b"}, "should be before"},
		{"missing", []string{"create_node", "dispose_node"}, "missing entry: dispose_node"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceOrder(sampleTrace(), Assertion{Type: AssertTraceOrder, Subjects: tt.subjects})
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertTraceCount(t *testing.T) {
	require.NoError(t, assertTraceCount(sampleTrace(), Assertion{Subject: "create_node", Count: 2}))
	require.NoError(t, assertTraceCount(sampleTrace(), Assertion{Subject: "create_node", ID: "a", Count: 1}))
	require.NoError(t, assertTraceCount(sampleTrace(), Assertion{Subject: "dispose_node", Count: 0}))

	err := assertTraceCount(sampleTrace(), Assertion{Type: AssertTraceCount, Subject: "create_node", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences")
}

func sampleResult() *Result {
	r := NewResult()
	r.Trace = sampleTrace()
	r.State = scene.Snapshot{
		Nodes: map[string]protocol.NodeState{
			"a": {
				Name:        "crate",
				Translation: protocol.Vec3{1, 0, 0},
				Rotation:    protocol.IdentityRotation,
				Scale:       protocol.UnitScale,
			},
		},
		Materials: map[string]protocol.MaterialState{"m": protocol.NewMaterialState()},
	}
	r.Summary = engine.Summary{
		Seq:     4,
		Physics: physics.Counts{Nodes: 2, Bodies: 1, Colliders: 1},
		Errors:  map[protocol.ErrorCode]int{protocol.ErrCodeInvalidDescriptor: 2},
	}
	r.Outputs = []OutputEvent{
		{Step: 0, Subject: "gesture", Data: map[string]any{"kind": "click", "moves": 0.0, "held_ms": 100.0}},
		{Step: 0, Subject: "clicked_node", Data: map[string]any{"node_id": nil}},
	}
	return r
}

func TestAssertFinalState(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"match", Assertion{Kind: "node", ID: "a", Expect: map[string]any{"name": "crate", "scale": []any{1, 1, 1}}}, ""},
		{"material defaults", Assertion{Kind: "material", ID: "m", Expect: map[string]any{"alpha_mode": "OPAQUE", "alpha": 1}}, ""},
		{"absent", Assertion{Kind: "node", ID: "zz", Absent: true}, ""},
		{"present but should be absent", Assertion{Kind: "node", ID: "a", Absent: true}, "to be disposed"},
		{"missing", Assertion{Kind: "mesh", ID: "a", Expect: map[string]any{"name": "x"}}, "entity not found"},
		{"mismatch", Assertion{Kind: "node", ID: "a", Expect: map[string]any{"translation": []any{2, 0, 0}}}, `field "translation"`},
		{"missing field", Assertion{Kind: "node", ID: "a", Expect: map[string]any{"mesh": "m1"}}, `field "mesh"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertFinalState
			err := assertFinalState(sampleResult(), tt.assertion)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertSummary(t *testing.T) {
	r := sampleResult()
	require.NoError(t, assertSummary(r, Assertion{Expect: map[string]any{
		"seq":     4,
		"physics": map[string]any{"bodies": 1},
		"errors":  map[string]any{"INVALID_DESCRIPTOR": 2},
	}}))

	err := assertSummary(r, Assertion{Type: AssertSummary, Expect: map[string]any{"physics": map[string]any{"bodies": 2}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "physics")
}

func TestAssertOutputContains(t *testing.T) {
	r := sampleResult()
	require.NoError(t, assertOutputContains(r.Outputs, Assertion{Subject: "gesture", Data: map[string]any{"kind": "click", "moves": 0}}))
	require.NoError(t, assertOutputContains(r.Outputs, Assertion{Subject: "clicked_node", Data: map[string]any{"node_id": nil}}))

	err := assertOutputContains(r.Outputs, Assertion{Type: AssertOutputContains, Subject: "clicked_node", Data: map[string]any{"node_id": "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clicked_node")
}

func TestAssertErrorCount(t *testing.T) {
	r := sampleResult()
	require.NoError(t, assertErrorCount(r, Assertion{Code: "INVALID_DESCRIPTOR", Count: 2}))
	require.NoError(t, assertErrorCount(r, Assertion{Code: "NOT_FOUND", Count: 0}))

	err := assertErrorCount(r, Assertion{Type: AssertErrorCount, Code: "INVALID_DESCRIPTOR", Count: 1})
	require.Error(t, err)
}

func setupJournal(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Append(ctx, 1, protocol.CreateMesh{ID: "m1", State: protocol.MeshState{Primitives: []string{}}}))
	require.NoError(t, st.Append(ctx, 2, protocol.DisposeMesh{ID: "m1"}))
	require.NoError(t, st.Append(ctx, 3, protocol.DisposeNode{ID: "n1"}))
	return st
}

func TestAssertJournalRow(t *testing.T) {
	st := setupJournal(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name: "match",
			assertion: Assertion{Table: "messages", Where: map[string]any{"subject": "dispose_mesh"},
				Expect: map[string]any{"kind": "mesh", "entity_id": "m1", "seq": 2}},
		},
		{
			name: "not found",
			assertion: Assertion{Table: "messages", Where: map[string]any{"subject": "dispose_primitive"},
				Expect: map[string]any{"kind": "primitive"}},
			wantErr: "row not found",
		},
		{
			name: "ambiguous",
			assertion: Assertion{Table: "messages", Where: map[string]any{"entity_id": "m1"},
				Expect: map[string]any{"kind": "mesh"}},
			wantErr: "multiple rows matched",
		},
		{
			name: "wrong value",
			assertion: Assertion{Table: "messages", Where: map[string]any{"seq": 3},
				Expect: map[string]any{"kind": "mesh"}},
			wantErr: `field "kind" = mesh`,
		},
		{
			name: "unknown column",
			assertion: Assertion{Table: "messages", Where: map[string]any{"seq": 3},
				Expect: map[string]any{"flavor": "x"}},
			wantErr: `field "flavor" not present`,
		},
		{
			name:      "invalid table",
			assertion: Assertion{Table: "messages; DROP TABLE runs", Expect: map[string]any{"kind": "x"}},
			wantErr:   "invalid table name",
		},
		{
			name:      "invalid column",
			assertion: Assertion{Table: "messages", Where: map[string]any{"seq = 1 OR 1": 1}, Expect: map[string]any{"kind": "x"}},
			wantErr:   "invalid column name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assertion.Type = AssertJournalRow
			err := assertJournalRow(ctx, st, tt.assertion)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"subject": "x", "kind": "node"})
	require.NoError(t, err)
	assert.Equal(t, "kind = ? AND subject = ?", sql)
	assert.Equal(t, []any{"node", "x"}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"string", "a", "a", true},
		{"bytes", "a", []byte("a"), true},
		{"int vs int64", 3, int64(3), true},
		{"int mismatch", 3, int64(4), false},
		{"bool from int", true, int64(1), true},
		{"bool false", false, int64(0), true},
		{"nil both", nil, nil, true},
		{"nil one", nil, "a", false},
		{"type mismatch", "3", int64(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertTraceCount, Subject: "create_node", Count: 2},
		{Type: AssertTraceCount, Subject: "create_node", Count: 5},
		{Type: AssertJournalRow, Table: "messages", Expect: map[string]any{"kind": "node"}},
		{Type: "vibes"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "trace_count")
	assert.Contains(t, errs[1], "journal_row requires a journal")
	assert.Contains(t, errs[2], `unknown assertion type "vibes"`)
}
