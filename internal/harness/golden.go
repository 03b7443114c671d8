package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/scenesync/internal/protocol"
)

// TraceSnapshot captures the observable outcome of a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []TraceEvent   `json:"trace"`
	Outputs      []OutputEvent  `json:"outputs"`
	Summary      map[string]any `json:"summary"`
}

// toCanonicalMap converts a TraceSnapshot to a map for canonical JSON.
// Trace payloads are left out: they repeat full entity state and the
// journal already hashes them.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":     event.Seq,
			"subject": event.Subject,
		}
		if event.Kind != "" {
			eventMap["kind"] = event.Kind
		}
		if event.ID != "" {
			eventMap["id"] = event.ID
		}
		traceList[i] = eventMap
	}

	outputList := make([]any, len(s.Outputs))
	for i, out := range s.Outputs {
		outputList[i] = map[string]any{
			"step":    out.Step,
			"subject": out.Subject,
			"data":    out.Data,
		}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
		"outputs":       outputList,
		"summary":       s.Summary,
	}
}

// SnapshotJSON renders the golden snapshot of result as canonical JSON.
func SnapshotJSON(name string, result *Result) ([]byte, error) {
	summary, err := toMap(result.Summary)
	if err != nil {
		return nil, err
	}
	snapshot := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Outputs:      result.Outputs,
		Summary:      summary,
	}
	return protocol.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace, outputs and
// summary against a golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
