package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/compiler"
	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/gltfimport"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/remote"
	"github.com/roach88/scenesync/internal/scene"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string
	Events   string
	Label    string
	Trimesh  bool

	// IDGenerator allows overriding how unnamed entities are named (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator scene.IDGenerator

	// Stdin is read when --events is "-". Defaults to os.Stdin.
	Stdin io.Reader
}

// RunResult is the output of the run command.
type RunResult struct {
	RunID   string          `json:"run_id"`
	Label   string          `json:"label,omitempty"`
	Loaded  []LoadedInput   `json:"loaded"`
	Events  EventStats      `json:"events"`
	Players []int           `json:"players,omitempty"`
	Outputs []OutputMessage `json:"outputs,omitempty"`
	Summary engine.Summary  `json:"summary"`
}

// LoadedInput reports one world or model applied before the event stream.
type LoadedInput struct {
	Path       string `json:"path"`
	Materials  int    `json:"materials"`
	Primitives int    `json:"primitives"`
	Meshes     int    `json:"meshes"`
	Nodes      int    `json:"nodes"`
	Skipped    int    `json:"skipped,omitempty"`
}

// OutputMessage is a render context message returned to the authoring side.
type OutputMessage struct {
	Subject protocol.Subject `json:"subject"`
	Data    protocol.Message `json:"data"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [world.cue|model.gltf]...",
		Short: "Run the engine over worlds, models and an event stream",
		Long: `Start the runtime with an empty scene, apply each world or model in
order, then feed an optional JSONL event stream through it. Every message is
journaled to the SQLite database given by --db, which must be new or empty.

Event lines are {"subject": ..., "data": {...}}. Scene subjects (create_node,
change_mesh, ...) edit the store, pointer subjects go to the render mirror and
anything else is decoded as a host player event.

Example:
  scenesync run --db ./scene.db worlds/courtyard.cue
  scenesync run --db ./scene.db --events input.jsonl --config run.yaml model.glb
  cat input.jsonl | scenesync run --db ./scene.db --events - --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML run configuration")
	cmd.Flags().StringVar(&opts.Events, "events", "", `JSONL event file, or "-" for stdin`)
	cmd.Flags().StringVar(&opts.Label, "label", "", "label recorded for this run (overrides config)")
	cmd.Flags().BoolVar(&opts.Trimesh, "trimesh", false, "give imported model nodes trimesh colliders")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runEngine(opts *RunOptions, inputs []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	label := cfg.Label
	if opts.Label != "" {
		label = opts.Label
	}

	for _, in := range inputs {
		if !IsWorldFile(in) && !IsModelFile(in) {
			return NewExitError(ExitCommandError, fmt.Sprintf("unsupported input %s: want .cue, .gltf or .glb", in))
		}
	}

	events, closeEvents, err := openEvents(opts)
	if err != nil {
		return err
	}
	defer closeEvents()

	ctx, cancel := signalContext(cmd)
	defer cancel()

	engineOpts := []engine.Option{engine.WithClickPolicy(cfg.ClickPolicy)}
	if opts.IDGenerator != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDGenerator))
	}
	sess, err := openSession(ctx, opts.Database, label, engineOpts...)
	if err != nil {
		return err
	}
	defer sess.close()

	result := &RunResult{RunID: sess.rt.ID(), Label: label, Loaded: []LoadedInput{}}
	for _, in := range inputs {
		loaded, err := loadInput(sess.rt.Store(), in, opts.Trimesh)
		if err != nil {
			return err
		}
		slog.Info("input applied", "path", in, "nodes", loaded.Nodes, "meshes", loaded.Meshes)
		result.Loaded = append(result.Loaded, loaded)
	}

	var playerOpts []remote.Option
	if spawn, ok := cfg.SpawnTransform(); ok {
		playerOpts = append(playerOpts, remote.WithSpawn(spawn))
	}
	if cfg.ChatHistory > 0 {
		playerOpts = append(playerOpts, remote.WithChatHistory(cfg.ChatHistory))
	}
	players := remote.NewPlayers(sess.rt.Store(), playerOpts...)
	driver := newEventDriver(sess.rt, players, cfg.Camera())

	if events != nil {
		if err := driver.Drive(ctx, events); err != nil && ctx.Err() == nil {
			return WrapExitError(ExitCommandError, "failed to read events", err)
		}
	}

	// Stop lets both mirrors finish everything queued.
	if err := sess.stop(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	result.Events = driver.Stats()
	result.Players = players.Online()
	for _, m := range sess.rt.Drain() {
		result.Outputs = append(result.Outputs, OutputMessage{Subject: m.Subject(), Data: m})
	}
	result.Summary = sess.rt.Summary()
	slog.Info("run complete", "run", result.RunID, "seq", result.Summary.Seq, "failed_events", result.Events.Failed)

	if err := writeRunResult(formatter, result); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return WrapExitError(ExitFailure, "run interrupted", context.Cause(ctx))
	}
	if result.Events.Failed > 0 || len(result.Summary.Errors) > 0 {
		return NewExitError(ExitFailure, "some messages were rejected")
	}
	return nil
}

// openEvents returns the configured event stream, or nil when none was given.
func openEvents(opts *RunOptions) (io.Reader, func(), error) {
	switch opts.Events {
	case "":
		return nil, func() {}, nil
	case "-":
		if opts.Stdin != nil {
			return opts.Stdin, func() {}, nil
		}
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(opts.Events)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open events", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// loadInput applies one world or model file to the store.
func loadInput(s *scene.Store, path string, trimesh bool) (LoadedInput, error) {
	out := LoadedInput{Path: path}
	if IsWorldFile(path) {
		w, errs := LoadWorld(path)
		if len(errs) > 0 {
			return out, WrapExitError(ExitCommandError, fmt.Sprintf("invalid world %s", path), errs[0])
		}
		applied, err := compiler.Apply(s, w)
		if err != nil {
			return out, WrapExitError(ExitFailure, fmt.Sprintf("failed to apply world %s", path), err)
		}
		out.Materials, out.Primitives, out.Meshes, out.Nodes = applied.Materials, applied.Primitives, applied.Meshes, applied.Nodes
		return out, nil
	}

	var importOpts []gltfimport.Option
	if trimesh {
		importOpts = append(importOpts, gltfimport.WithTrimeshColliders())
	}
	res, err := gltfimport.ImportFile(s, path, importOpts...)
	if err != nil {
		return out, WrapExitError(ExitFailure, fmt.Sprintf("failed to import %s", path), err)
	}
	out.Materials, out.Primitives, out.Meshes, out.Nodes = res.Materials, res.Primitives, res.Meshes, res.Nodes
	out.Skipped = res.Skipped
	return out, nil
}

func writeRunResult(f *OutputFormatter, r *RunResult) error {
	if f.Format == "json" {
		return f.Success(r)
	}

	w := f.Writer
	fmt.Fprintf(w, "Run %s", r.RunID)
	if r.Label != "" {
		fmt.Fprintf(w, " (%s)", r.Label)
	}
	fmt.Fprintln(w)
	for _, l := range r.Loaded {
		fmt.Fprintf(w, "  loaded %s: %d nodes, %d meshes, %d primitives, %d materials\n",
			l.Path, l.Nodes, l.Meshes, l.Primitives, l.Materials)
	}
	if r.Events.Lines > 0 {
		fmt.Fprintf(w, "  events: %d lines (%d scene, %d input, %d host, %d rejected)\n",
			r.Events.Lines, r.Events.Scene, r.Events.Input, r.Events.Host, r.Events.Failed)
	}
	if len(r.Players) > 0 {
		ids := make([]string, len(r.Players))
		for i, id := range r.Players {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(w, "  players online: %s\n", strings.Join(ids, ", "))
	}
	for _, o := range r.Outputs {
		fmt.Fprintf(w, "  %s %s\n", o.Subject, describeOutput(o.Data))
	}
	writeSummary(w, r.Summary)
	return nil
}

func describeOutput(m protocol.Message) string {
	switch m := m.(type) {
	case protocol.ClickedNode:
		if m.NodeID == nil {
			return "(nothing)"
		}
		return *m.NodeID
	case protocol.Gesture:
		return fmt.Sprintf("%s moves=%d held=%dms", m.Kind, m.Moves, m.HeldMillis)
	}
	return ""
}

// writeSummary prints mirror counts in text form.
func writeSummary(w io.Writer, s engine.Summary) {
	fmt.Fprintf(w, "  seq: %d\n", s.Seq)
	fmt.Fprintf(w, "  render: %d entities, %d meshes, %d primitives, %d materials, %d visual materials\n",
		s.Render.Entities, s.Render.Meshes, s.Render.Primitives, s.Render.Materials, s.Render.VisualMaterials)
	fmt.Fprintf(w, "  physics: %d nodes, %d meshes, %d primitives, %d bodies, %d colliders\n",
		s.Physics.Nodes, s.Physics.Meshes, s.Physics.Primitives, s.Physics.Bodies, s.Physics.Colliders)
	for _, code := range slices.Sorted(maps.Keys(s.Errors)) {
		fmt.Fprintf(w, "  errors %s: %d\n", code, s.Errors[code])
	}
}
