package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/scenesync/internal/compiler"
	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/remote"
	"github.com/roach88/scenesync/internal/render"
	"github.com/roach88/scenesync/internal/scene"
	"github.com/roach88/scenesync/internal/store"
	"github.com/roach88/scenesync/internal/testutil"
)

// DefaultTimeout bounds how long a step may wait for the mirrors.
const DefaultTimeout = 10 * time.Second

// PointerStart is the pointer clock reading when a scenario starts.
const PointerStart = 1000

// CaseError is the case of a failed step whose error carries no code.
const CaseError = "ERROR"

// Harness drives one scenario against a live runtime.
type Harness struct {
	runtime *engine.Runtime
	store   *scene.Store
	journal *store.Store
	players *remote.Players
	clock   *testutil.PointerClock
	camera  protocol.Camera
	policy  render.ClickPolicy
	logger  *slog.Logger
	result  *Result

	// step is the flow index outputs are attributed to; -1 during world
	// and setup.
	step int
}

// Run executes a scenario in a fresh runtime with an in-memory journal and
// returns the result.
//
// Execution flow:
//  1. Open an in-memory journal and start the runtime
//  2. Apply the world file, if any
//  3. Execute setup steps, which must all succeed
//  4. Execute flow steps, checking expect clauses
//  5. Stop the runtime and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	return RunContext(ctx, scenario)
}

// RunContext is Run with a caller supplied deadline.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	journal, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer journal.Close()

	h := newHarness(scenario, journal)

	done := make(chan error, 1)
	go func() { done <- h.runtime.Run(ctx) }()

	stepErr := h.execute(ctx, scenario)

	h.runtime.Stop()
	runErr := <-done
	if stepErr != nil {
		return nil, stepErr
	}
	if runErr != nil {
		return nil, fmt.Errorf("runtime: %w", runErr)
	}

	if err := h.collect(ctx); err != nil {
		return nil, err
	}

	actx := &AssertionContext{Journal: journal, Ctx: ctx}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func newHarness(scenario *Scenario, journal *store.Store) *Harness {
	policy := render.DefaultClickPolicy()
	if p := scenario.ClickPolicy; p != nil {
		policy = render.ClickPolicy{MaxMoves: p.MaxMoves, MaxDuration: time.Duration(p.MaxDurationMs) * time.Millisecond}
	}
	camera := DefaultCamera()
	if scenario.Camera != nil {
		camera = scenario.Camera.Camera()
	}

	rt := engine.New(
		engine.WithJournal(journal),
		engine.WithClickPolicy(policy),
		engine.WithIDGenerator(&scene.SequenceGenerator{Prefix: "gen"}),
	)
	return &Harness{
		runtime: rt,
		store:   rt.Store(),
		journal: journal,
		players: remote.NewPlayers(rt.Store()),
		clock:   testutil.NewPointerClock(PointerStart),
		camera:  camera,
		policy:  policy,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		result:  NewResult(),
		step:    -1,
	}
}

// execute applies the world, setup and flow. A returned error aborts the
// scenario; expect mismatches are recorded on the result instead.
func (h *Harness) execute(ctx context.Context, scenario *Scenario) error {
	if scenario.World != "" {
		w, err := compiler.CompileFile(scenario.World)
		if err != nil {
			return fmt.Errorf("failed to compile world: %w", err)
		}
		if _, err := compiler.Apply(h.store, w); err != nil {
			return fmt.Errorf("failed to apply world: %w", err)
		}
		if err := h.settle(ctx); err != nil {
			return err
		}
	}

	for i, step := range scenario.Setup {
		if err := h.apply(step); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		if err := h.settle(ctx); err != nil {
			return err
		}
		h.logger.Info("setup step completed", "step", i, "op", step.Op, "kind", step.Kind, "id", step.ID)
	}

	for i, step := range scenario.Flow {
		h.step = i
		err := h.apply(step.Step)
		if settleErr := h.settle(ctx); settleErr != nil {
			return settleErr
		}

		want := CaseOK
		if step.Expect != nil {
			want = step.Expect.Case
		}
		if got := caseOf(err); got != want {
			msg := fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Op, want, got)
			if err != nil {
				msg += ": " + err.Error()
			}
			h.result.AddError(msg)
		}
		h.logger.Info("flow step completed", "step", i, "op", step.Op, "kind", step.Kind, "id", step.ID, "error", err)
	}
	return nil
}

// apply performs one step from the authoring side.
func (h *Harness) apply(step Step) error {
	h.clock.Advance(step.WaitMs)
	kind := protocol.Kind(step.Kind)
	button := protocol.PointerButton(step.Button)

	switch step.Op {
	case OpCreate:
		_, err := h.store.Create(kind, step.ID, step.Data)
		return err
	case OpChange:
		return h.store.ApplyPartial(kind, step.ID, step.Data)
	case OpDispose:
		return h.store.Dispose(kind, step.ID)
	case OpPointerDown:
		h.runtime.Send(protocol.PointerDown{Button: button, Pointer: step.Pointer, AtMillis: h.clock.Now()})
	case OpPointerMove:
		h.runtime.Send(protocol.PointerMove{Pointer: step.Pointer, AtMillis: h.clock.Now()})
	case OpPointerUp:
		h.runtime.Send(protocol.PointerUp{Button: button, Pointer: step.Pointer, AtMillis: h.clock.Now(), Camera: h.camera})
	case OpClick:
		h.gesture(step, 0)
	case OpDrag:
		h.gesture(step, h.policy.MaxMoves+1)
	case OpHost:
		ev, err := hostEvent(step)
		if err != nil {
			return err
		}
		return h.players.Apply(ev)
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// gesture sends a whole press at step.Pointer. defaultMoves is used when the
// step does not set moves.
func (h *Harness) gesture(step Step, defaultMoves int) {
	moves := defaultMoves
	if step.Moves != nil {
		moves = *step.Moves
	}
	hold := step.HoldMs
	if hold == 0 {
		hold = 100
	}
	button := protocol.PointerButton(step.Button)

	h.runtime.Send(protocol.PointerDown{Button: button, Pointer: step.Pointer, AtMillis: h.clock.Now()})
	for range moves {
		h.runtime.Send(protocol.PointerMove{Pointer: step.Pointer, AtMillis: h.clock.Now()})
	}
	at := h.clock.Advance(hold)
	h.runtime.Send(protocol.PointerUp{Button: button, Pointer: step.Pointer, AtMillis: at, Camera: h.camera})
}

// settle waits for both mirrors and moves render output into the result.
func (h *Harness) settle(ctx context.Context) error {
	if err := h.runtime.Flush(ctx); err != nil {
		return err
	}
	for _, m := range h.runtime.Drain() {
		data, err := toMap(m)
		if err != nil {
			return fmt.Errorf("output %s: %w", m.Subject(), err)
		}
		h.result.Outputs = append(h.result.Outputs, OutputEvent{Step: h.step, Subject: string(m.Subject()), Data: data})
	}
	return nil
}

// collect reads the journal into the trace and snapshots the final state.
func (h *Harness) collect(ctx context.Context) error {
	records, err := h.journal.Records(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	for _, r := range records {
		data, err := toMap(r.Msg)
		if err != nil {
			return fmt.Errorf("trace seq %d: %w", r.Seq, err)
		}
		h.result.Trace = append(h.result.Trace, TraceEvent{
			Seq:     r.Seq,
			Subject: string(r.Subject),
			Kind:    string(r.Kind),
			ID:      r.ID,
			Data:    data,
		})
	}

	if err := h.runtime.Check(); err != nil {
		h.result.AddError(fmt.Sprintf("mirror consistency: %v", err))
	}
	h.result.Summary = h.runtime.Summary()
	h.result.State = h.store.Snapshot()
	return nil
}

// caseOf maps a step error onto an expect case.
func caseOf(err error) string {
	if err == nil {
		return CaseOK
	}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return string(perr.Code)
	}
	return CaseError
}

// toMap converts a value to its generic JSON object form.
func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
