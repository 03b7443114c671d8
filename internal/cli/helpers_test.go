package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scenesync/internal/engine"
)

const (
	courtyardWorld = "../../testdata/worlds/courtyard.cue"
	triangleModel  = "../gltfimport/testdata/triangle.gltf"
	scenariosDir   = "../../testdata/scenarios"
)

// jsonResponse is CLIResponse with the payload left undecoded.
type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// decodedMessage is an output or trace entry with its payload as a map.
type decodedMessage struct {
	Seq     int64          `json:"seq"`
	Subject string         `json:"subject"`
	Kind    string         `json:"kind"`
	ID      string         `json:"id"`
	Data    map[string]any `json:"data"`
}

// runJSON mirrors RunResult for decoding.
type runJSON struct {
	RunID   string           `json:"run_id"`
	Label   string           `json:"label"`
	Loaded  []LoadedInput    `json:"loaded"`
	Events  EventStats       `json:"events"`
	Players []int            `json:"players"`
	Outputs []decodedMessage `json:"outputs"`
	Summary engine.Summary   `json:"summary"`
}

// execute runs cmd with args and returns everything written to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON response and decodes its data into data.
func decodeResponse(t *testing.T, out string, data any) jsonResponse {
	t.Helper()
	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// courtyardEvents joins a player, adds and renames a node and clicks.
const courtyardEvents = `# courtyard session
{"subject":"player_joined","data":{"playerId":3,"name":"ada"}}
{"subject":"create_node","data":{"id":"lamp","state":{"parent":"courtyard","translation":[1,2,0]}}}
{"subject":"change_node","data":{"id":"lamp","patch":{"name":"Lamp"}}}

{"subject":"pointerdown","data":{"button":0,"pointer":[0.9,0.9],"at_ms":1000}}
{"subject":"pointerup","data":{"button":0,"pointer":[0.9,0.9],"at_ms":1050}}
`

// runCourtyard journals a courtyard session into a new database and returns
// its path and the run result.
func runCourtyard(t *testing.T) (string, runJSON) {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "scene.db")
	events := writeFile(t, dir, "events.jsonl", courtyardEvents)

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}),
		"--db", db, "--events", events, "--label", "courtyard", courtyardWorld)
	require.NoError(t, err, "output: %s", out)

	var result runJSON
	resp := decodeResponse(t, out, &result)
	require.Equal(t, "ok", resp.Status)
	return db, result
}
