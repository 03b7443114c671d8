package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Messages   int              `json:"messages"`
	Runs       []store.Run      `json:"runs"`
	Mismatches []store.Mismatch `json:"mismatches"`
	Summary    engine.Summary   `json:"summary"`
	RenderOK   bool             `json:"render_consistent"`
	PhysicsOK  bool             `json:"physics_consistent"`
	Problems   []string         `json:"problems,omitempty"`
}

// Verified reports whether the journal is intact and both mirrors rebuilt
// consistently.
func (r ReplayResult) Verified() bool {
	return len(r.Mismatches) == 0 && r.RenderOK && r.PhysicsOK
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild both mirrors from a journal and verify it",
		Long: `Re-read every journaled message in order, check each stored content hash,
and rebuild the render and physics mirrors through the same apply path a live
run uses. Reports the rebuilt mirror sizes and any errors the replay hit.

Exit codes:
  0 - Journal intact and mirrors consistent
  1 - Hash mismatch or inconsistent mirror
  2 - Command error (database not found, etc.)

Examples:
  scenesync replay --db ./scene.db
  scenesync replay --db ./scene.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	result := ReplayResult{}
	if result.Runs, err = st.Runs(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}
	if result.Mismatches, err = st.Verify(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to verify journal", err)
	}

	replayed, err := engine.Replay(ctx, st)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}
	result.Messages = replayed.Applied
	result.Summary = replayed.Summary()

	result.RenderOK, result.PhysicsOK = true, true
	if err := replayed.Render.Check(); err != nil {
		result.RenderOK = false
		result.Problems = append(result.Problems, fmt.Sprintf("render: %v", err))
	}
	if err := replayed.Physics.Check(); err != nil {
		result.PhysicsOK = false
		result.Problems = append(result.Problems, fmt.Sprintf("physics: %v", err))
	}
	for _, m := range result.Mismatches {
		result.Problems = append(result.Problems, fmt.Sprintf("seq %d: stored hash %s, payload hashes to %s", m.Seq, m.Stored, m.Actual))
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// openExisting opens a journal that must already exist. store.Open would
// otherwise create an empty one.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	if result.Mismatches == nil {
		result.Mismatches = []store.Mismatch{}
	}
	if result.Runs == nil {
		result.Runs = []store.Run{}
	}
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Verified() {
		response.Status = "error"
		code := ErrCodeMirror
		if len(result.Mismatches) > 0 {
			code = ErrCodeJournal
		}
		response.Error = &CLIError{
			Code:    code,
			Message: "journal verification failed",
			Details: result.Problems,
		}
	}

	f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	if err := f.JSON(response); err != nil {
		return err
	}

	if !result.Verified() {
		return NewExitError(ExitFailure, "journal verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d message(s) in %d run(s)\n", result.Messages, len(result.Runs))
	if verbose {
		for _, r := range result.Runs {
			fmt.Fprintf(w, "  run %s started after seq %d", r.ID, r.StartedSeq)
			if r.Label != "" {
				fmt.Fprintf(w, " (%s)", r.Label)
			}
			fmt.Fprintln(w)
		}
	}
	writeSummary(w, result.Summary)
	fmt.Fprintln(w)

	for _, p := range result.Problems {
		fmt.Fprintf(w, "✗ %s\n", p)
	}

	if result.Verified() {
		fmt.Fprintln(w, "✓ Journal verified")
		return nil
	}

	fmt.Fprintln(w, "✗ Journal verification failed")
	return NewExitError(ExitFailure, "journal verification failed")
}
