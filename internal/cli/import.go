package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/gltfimport"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Database string
	World    string
	Prefix   string
	Parent   string
	Trimesh  bool
}

// ImportResult is the output of the import command.
type ImportResult struct {
	RunID   string            `json:"run_id"`
	World   *LoadedInput      `json:"world,omitempty"`
	Model   gltfimport.Result `json:"model"`
	Summary engine.Summary    `json:"summary"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <model.gltf|model.glb>",
		Short: "Import a glTF model into a new journal",
		Long: `Import a glTF 2.0 model as scene entities, optionally on top of a world,
and journal the resulting messages. Entity ids are derived from the glTF
indices and --prefix, so importing the same model twice yields the same ids.

Example:
  scenesync import --db ./scene.db props/crate.glb
  scenesync import --db ./scene.db --world worlds/courtyard.cue --parent spawn --prefix crate/ crate.glb`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.World, "world", "", "world file applied before the model")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "prefix for imported entity ids")
	cmd.Flags().StringVar(&opts.Parent, "parent", "", "node the model's root nodes are attached to")
	cmd.Flags().BoolVar(&opts.Trimesh, "trimesh", false, "give mesh nodes trimesh colliders")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runImport(opts *ImportOptions, model string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if !IsModelFile(model) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unsupported model %s: want .gltf or .glb", model))
	}
	if opts.World != "" && !IsWorldFile(opts.World) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unsupported world %s: want .cue", opts.World))
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	sess, err := openSession(ctx, opts.Database, "import "+model)
	if err != nil {
		return err
	}
	defer sess.close()

	result := &ImportResult{RunID: sess.rt.ID()}
	if opts.World != "" {
		loaded, err := loadInput(sess.rt.Store(), opts.World, false)
		if err != nil {
			return err
		}
		result.World = &loaded
	}

	var importOpts []gltfimport.Option
	if opts.Prefix != "" {
		importOpts = append(importOpts, gltfimport.WithPrefix(opts.Prefix))
	}
	if opts.Parent != "" {
		importOpts = append(importOpts, gltfimport.WithParent(opts.Parent))
	}
	if opts.Trimesh {
		importOpts = append(importOpts, gltfimport.WithTrimeshColliders())
	}
	res, err := gltfimport.ImportFile(sess.rt.Store(), model, importOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("failed to import %s", model), err)
	}
	result.Model = res
	formatter.VerboseLog("imported %d nodes, %d meshes, %d primitives, %d materials (%d skipped)",
		res.Nodes, res.Meshes, res.Primitives, res.Materials, res.Skipped)

	if err := sess.stop(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	result.Summary = sess.rt.Summary()
	slog.Info("import complete", "model", model, "seq", result.Summary.Seq)

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "Imported %s (run %s)\n", model, result.RunID)
		if result.World != nil {
			fmt.Fprintf(w, "  world %s: %d nodes, %d meshes\n", result.World.Path, result.World.Nodes, result.World.Meshes)
		}
		fmt.Fprintf(w, "  model: %d nodes, %d meshes, %d primitives, %d materials, %d skipped\n",
			res.Nodes, res.Meshes, res.Primitives, res.Materials, res.Skipped)
		writeSummary(w, result.Summary)
	}

	if len(result.Summary.Errors) > 0 {
		return NewExitError(ExitFailure, "some messages were rejected")
	}
	return nil
}
