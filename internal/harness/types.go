package harness

import (
	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/scene"
)

// TraceEvent is one journaled message.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Subject string         `json:"subject"`
	Kind    string         `json:"kind,omitempty"`
	ID      string         `json:"id,omitempty"`
	Data    map[string]any `json:"data"`
}

// OutputEvent is a message the render context sent to the authoring side.
type OutputEvent struct {
	Step    int            `json:"step"`
	Subject string         `json:"subject"`
	Data    map[string]any `json:"data"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every message published to the mirrors, in seq order.
	Trace []TraceEvent `json:"trace"`

	// Outputs holds clicked_node and gesture messages, in arrival order.
	Outputs []OutputEvent `json:"outputs"`

	// Errors contains failure descriptions. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Summary is the runtime summary after the last step.
	Summary engine.Summary `json:"summary"`

	// State is the final store snapshot.
	State scene.Snapshot `json:"state"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Outputs: []OutputEvent{},
		Errors:  []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
