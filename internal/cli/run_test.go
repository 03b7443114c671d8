package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/store"
)

func TestRunMissingDatabaseFlag(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), courtyardWorld)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestRunRejectsBadInputs(t *testing.T) {
	dir := t.TempDir()
	broken := writeFile(t, dir, "broken.cue", brokenWorld)
	badConfig := writeFile(t, dir, "bad.yaml", "nope: 1\n")

	tests := []struct {
		name    string
		args    []string
		message string
	}{
		{"unsupported", []string{"notes.txt"}, "unsupported input"},
		{"invalid_world", []string{broken}, "invalid world"},
		{"missing_world", []string{filepath.Join(dir, "gone.cue")}, "invalid world"},
		{"missing_events", []string{"--events", filepath.Join(dir, "none.jsonl")}, "failed to open events"},
		{"bad_config", []string{"--config", badConfig}, "failed to load config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", filepath.Join(dir, tt.name+".db")}, tt.args...)
			_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRunCourtyardSession(t *testing.T) {
	db, result := runCourtyard(t)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "courtyard", result.Label)
	require.Len(t, result.Loaded, 1)
	assert.Equal(t, LoadedInput{Path: courtyardWorld, Materials: 2, Primitives: 2, Meshes: 3, Nodes: 6}, result.Loaded[0])
	assert.Equal(t, EventStats{Lines: 5, Scene: 2, Input: 2, Host: 1}, result.Events)
	assert.Equal(t, []int{3}, result.Players)

	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "gesture", result.Outputs[0].Subject)
	assert.Equal(t, "click", result.Outputs[0].Data["kind"])
	assert.Equal(t, "clicked_node", result.Outputs[1].Subject)

	// courtyard nodes + spawn + lamp + player
	assert.Equal(t, 8, result.Summary.Render.Entities)
	assert.Equal(t, 3, result.Summary.Render.Meshes)
	assert.Equal(t, 8, result.Summary.Physics.Nodes)
	assert.Equal(t, 4, result.Summary.Physics.Bodies)
	assert.Empty(t, result.Summary.Errors)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	last, err := st.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Summary.Seq, last, "every published message is journaled")

	runs, err := st.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, "courtyard", runs[0].Label)
	assert.Zero(t, runs[0].StartedSeq)
}

func TestRunTextOutput(t *testing.T) {
	dir := t.TempDir()
	events := writeFile(t, dir, "events.jsonl", courtyardEvents)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}),
		"--db", filepath.Join(dir, "scene.db"), "--events", events, courtyardWorld)
	require.NoError(t, err)

	assert.Contains(t, out, "Run ")
	assert.Contains(t, out, "loaded "+courtyardWorld+": 6 nodes, 3 meshes, 2 primitives, 2 materials")
	assert.Contains(t, out, "events: 5 lines (2 scene, 2 input, 1 host, 0 rejected)")
	assert.Contains(t, out, "players online: 3")
	assert.Contains(t, out, "gesture click moves=0 held=50ms")
	assert.Contains(t, out, "physics: 8 nodes")
}

func TestRunRefusesUsedJournal(t *testing.T) {
	db, _ := runCourtyard(t)

	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--db", db, courtyardWorld)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already holds")
}

func TestRunRejectedEventsFail(t *testing.T) {
	dir := t.TempDir()
	events := writeFile(t, dir, "events.jsonl", `{"subject":"player_left","data":{"playerId":9}}
{"subject":"create_node","data":{"id":"a"}}
`)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}),
		"--db", filepath.Join(dir, "scene.db"), "--events", events)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result runJSON
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status, "the report is still written")
	assert.Equal(t, EventStats{Lines: 2, Scene: 1, Failed: 1}, result.Events)
	assert.Equal(t, 1, result.Summary.Physics.Nodes)
}

func TestRunEventsFromStdin(t *testing.T) {
	dir := t.TempDir()
	cmd := newRunCommand(&RunOptions{
		RootOptions: &RootOptions{Format: "json"},
		Stdin: strings.NewReader(`{"subject":"create_node","data":{"state":{"name":"first"}}}
{"subject":"create_node","data":{"state":{"name":"second","parent":"gen-1"}}}
`),
		IDGenerator: &scene.SequenceGenerator{Prefix: "gen"},
	})

	db := filepath.Join(dir, "scene.db")
	out, err := execute(t, cmd, "--db", db, "--events", "-")
	require.NoError(t, err, "output: %s", out)

	var result runJSON
	decodeResponse(t, out, &result)
	assert.Equal(t, 2, result.Events.Scene)
	assert.Equal(t, 2, result.Summary.Render.Entities)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	history, err := st.EntityHistory(context.Background(), "node", "gen-2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "create_node", string(history[0].Subject))
}

func TestRunConfigLabelAndPolicy(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "run.yaml", "label: from-config\nclick_policy:\n  max_moves: 1\n")
	// One move is already too many for this policy.
	events := writeFile(t, dir, "events.jsonl", `{"subject":"pointerdown","data":{"button":0,"pointer":[0,0],"at_ms":0}}
{"subject":"pointermove","data":{"pointer":[0.1,0],"at_ms":10}}
{"subject":"pointerup","data":{"button":0,"pointer":[0.1,0],"at_ms":20}}
`)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}),
		"--db", filepath.Join(dir, "scene.db"), "--config", cfg, "--events", events)
	require.NoError(t, err, "output: %s", out)

	var result runJSON
	decodeResponse(t, out, &result)
	assert.Equal(t, "from-config", result.Label)
	require.Len(t, result.Outputs, 1, "a drag sends no clicked_node")
	assert.Equal(t, "drag", result.Outputs[0].Data["kind"])
}

func TestRunImportsModel(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}),
		"--db", filepath.Join(dir, "scene.db"), "--trimesh", triangleModel)
	require.NoError(t, err, "output: %s", out)

	var result runJSON
	decodeResponse(t, out, &result)
	require.Len(t, result.Loaded, 1)
	assert.Equal(t, LoadedInput{Path: triangleModel, Materials: 1, Primitives: 1, Meshes: 1, Nodes: 4, Skipped: 1}, result.Loaded[0])
	assert.Equal(t, 4, result.Summary.Physics.Nodes)
	assert.Positive(t, result.Summary.Physics.Colliders)
}
