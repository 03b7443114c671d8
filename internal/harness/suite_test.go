package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: passing
description: "creates a node"
flow:
  - op: create
    kind: node
    id: a
assertions:
  - type: trace_count
    subject: create_node
    count: 1
`

const failingScenario = `
name: failing
description: "asserts a message that never happens"
flow:
  - op: create
    kind: node
    id: a
assertions:
  - type: trace_contains
    subject: dispose_node
`

func TestFindScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	paths, err := FindScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, paths)
}

func TestRunDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_pass.yaml"), []byte(passingScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2_fail.yaml"), []byte(failingScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "3_broken.yaml"), []byte("name: [unclosed"), 0644))

	result, err := RunDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, "failing", result.Failures[0].Scenario)
	assert.Contains(t, result.Failures[0].Error, "trace_contains")
	assert.Empty(t, result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Error, "failed to load scenario")
}

func TestRunDir_MissingDirectory(t *testing.T) {
	_, err := RunDir(context.Background(), "/nonexistent/scenarios")
	require.Error(t, err)
}
