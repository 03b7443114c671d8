package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/remote"
)

// Scenario defines a scene test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// World is an optional CUE world file applied before setup. Relative
	// paths are resolved against the scenario file's directory.
	World string `yaml:"world,omitempty"`

	// Camera is used for every pointerup, click and drag. Defaults to
	// DefaultCamera.
	Camera *CameraSpec `yaml:"camera,omitempty"`

	// ClickPolicy overrides the render mirror's click thresholds.
	ClickPolicy *ClickPolicySpec `yaml:"click_policy,omitempty"`

	// Setup steps establish initial state and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace, state and outputs.
	Assertions []Assertion `yaml:"assertions"`
}

// CameraSpec is the YAML form of protocol.Camera. FovY is in degrees.
type CameraSpec struct {
	Position [3]float64 `yaml:"position"`
	Target   [3]float64 `yaml:"target"`
	Up       [3]float64 `yaml:"up"`
	FovY     float64    `yaml:"fov_y"`
	Aspect   float64    `yaml:"aspect"`
}

// Camera converts c to a protocol camera, filling zero fields from DefaultCamera.
func (c CameraSpec) Camera() protocol.Camera {
	cam := DefaultCamera()
	cam.Position = c.Position
	cam.Target = c.Target
	if c.Up != ([3]float64{}) {
		cam.Up = c.Up
	}
	if c.FovY != 0 {
		cam.FovY = c.FovY * math.Pi / 180
	}
	if c.Aspect != 0 {
		cam.Aspect = c.Aspect
	}
	return cam
}

// DefaultCamera looks down -z from (0, 0, 5) with a 60 degree field of view.
func DefaultCamera() protocol.Camera {
	return protocol.Camera{
		Position: protocol.Vec3{0, 0, 5},
		Up:       protocol.Vec3{0, 1, 0},
		FovY:     math.Pi / 3,
		Aspect:   1,
	}
}

// ClickPolicySpec overrides click thresholds. MaxDurationMs is in
// milliseconds.
type ClickPolicySpec struct {
	MaxMoves      int   `yaml:"max_moves"`
	MaxDurationMs int64 `yaml:"max_duration_ms"`
}

// Step is one operation.
type Step struct {
	// Op is the operation; see the Op constants.
	Op string `yaml:"op"`

	// Kind and ID address an entity for create, change and dispose. An empty
	// ID on create lets the store generate one.
	Kind string `yaml:"kind,omitempty"`
	ID   string `yaml:"id,omitempty"`

	// Data is the state (create), patch (change) or event payload (host).
	Data map[string]any `yaml:"data,omitempty"`

	// Event names the host event for op host.
	Event string `yaml:"event,omitempty"`

	// Pointer is the pointer position in normalized device coordinates.
	Pointer [2]float64 `yaml:"pointer,omitempty"`

	// Button is the pointer button; 0 is primary.
	Button int `yaml:"button,omitempty"`

	// Moves is the number of move samples for click and drag.
	Moves *int `yaml:"moves,omitempty"`

	// HoldMs is the time between down and up for click and drag.
	HoldMs int64 `yaml:"hold_ms,omitempty"`

	// WaitMs advances the pointer clock before the step.
	WaitMs int64 `yaml:"wait_ms,omitempty"`
}

// FlowStep is a step with an optional expected outcome.
type FlowStep struct {
	Step `yaml:",inline"`

	// Expect specifies the outcome. If nil, the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies a step's outcome.
type ExpectClause struct {
	// Case is CaseOK or a protocol error code such as NOT_FOUND.
	Case string `yaml:"case"`
}

// CaseOK is the expected case of a successful step.
const CaseOK = "ok"

// Operations.
const (
	OpCreate      = "create"
	OpChange      = "change"
	OpDispose     = "dispose"
	OpPointerDown = "pointerdown"
	OpPointerMove = "pointermove"
	OpPointerUp   = "pointerup"
	OpClick       = "click"
	OpDrag        = "drag"
	OpHost        = "host"
)

// Assertion validates trace, state or outputs.
type Assertion struct {
	// Type specifies the assertion type; see the Assert constants.
	Type string `yaml:"type"`

	// Subject, Kind and ID select journaled messages, outputs or entities.
	Subject string `yaml:"subject,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	ID      string `yaml:"id,omitempty"`

	// Data is a subset the selected message payload must contain.
	Data map[string]any `yaml:"data,omitempty"`

	// Subjects is the expected order for trace_order. Entries are "subject"
	// or "subject/id".
	Subjects []string `yaml:"subjects,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// Code is the error code counted by error_count.
	Code string `yaml:"code,omitempty"`

	// Absent requires final_state to find no entity.
	Absent bool `yaml:"absent,omitempty"`

	// Table and Where select a journal row for journal_row.
	Table string         `yaml:"table,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect is a subset of the entity state, journal row or summary.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertTraceCount     = "trace_count"
	AssertFinalState     = "final_state"
	AssertJournalRow     = "journal_row"
	AssertSummary        = "summary"
	AssertOutputContains = "output_contains"
	AssertErrorCount     = "error_count"
)

// WorldNotFoundError is returned when a scenario references a world file
// that doesn't exist.
type WorldNotFoundError struct {
	Scenario     string
	WorldPath    string
	ResolvedPath string
}

// Error implements the error interface.
func (e *WorldNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references world file %q which does not exist (resolved to: %s)",
		e.Scenario, e.WorldPath, e.ResolvedPath)
}

// LoadScenario reads and parses a scenario YAML file. The world path is
// resolved relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the world path relative to basePath. Unknown fields are
// rejected.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.World != "" && !filepath.IsAbs(scenario.World) && basePath != "" {
		resolved := filepath.Join(basePath, scenario.World)
		if _, err := os.Stat(resolved); os.IsNotExist(err) {
			return nil, &WorldNotFoundError{Scenario: scenario.Name, WorldPath: scenario.World, ResolvedPath: resolved}
		}
		scenario.World = resolved
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step.Step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Op {
	case OpCreate, OpChange, OpDispose:
		if !protocol.ValidKinds[protocol.Kind(step.Kind)] {
			return fmt.Errorf("%s: unknown kind %q", step.Op, step.Kind)
		}
		if step.Op != OpCreate && step.ID == "" {
			return fmt.Errorf("%s: id is required", step.Op)
		}
	case OpPointerDown, OpPointerMove, OpPointerUp, OpClick, OpDrag:
	case OpHost:
		if step.Event == "" {
			return fmt.Errorf("host: event is required")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Moves != nil && *step.Moves < 0 {
		return fmt.Errorf("%s: moves must be non-negative", step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertOutputContains:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Subjects) == 0 {
			return fmt.Errorf("assertions[%d]: subjects list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Subject == "" {
			return fmt.Errorf("assertions[%d]: subject is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if !protocol.ValidKinds[protocol.Kind(a.Kind)] || a.ID == "" {
			return fmt.Errorf("assertions[%d]: kind and id are required for final_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	case AssertJournalRow:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for journal_row", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for journal_row", index)
		}
	case AssertSummary:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for summary", index)
		}
	case AssertErrorCount:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// hostEvent builds the host wire form of a host step and decodes it.
func hostEvent(step Step) (remote.Event, error) {
	env := map[string]any{"subject": step.Event, "data": step.Data}
	if step.Data == nil {
		env["data"] = map[string]any{}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return remote.Decode(b)
}
