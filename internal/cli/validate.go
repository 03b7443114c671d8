package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/compiler"
)

// ValidationResult holds validation results for every file.
type ValidationResult struct {
	Valid bool         `json:"valid"`
	Files []FileResult `json:"files"`
}

// FileResult holds validation results for one world file.
type FileResult struct {
	Path   string            `json:"path"`
	World  string            `json:"world,omitempty"`
	Valid  bool              `json:"valid"`
	Counts *compiler.Applied `json:"counts,omitempty"`
	Errors []FileError       `json:"errors,omitempty"`
}

// FileError is one problem found in a world file.
type FileError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <world.cue>...",
		Short: "Validate world files without running them",
		Long: `Validate CUE world definitions without starting a runtime.

Checks each file against the world schema, then checks references (meshes,
primitives, materials, parents), parent cycles, collider descriptors and
primitive geometry. All problems in a file are reported, not just the first.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true, Files: make([]FileResult, 0, len(paths))}
	missing := 0
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		fr := validateFile(path)
		if !fr.Valid {
			result.Valid = false
			if len(fr.Errors) == 1 && fr.Errors[0].Code == ErrCodeNotFound {
				missing++
			}
		}
		result.Files = append(result.Files, fr)
	}

	if err := outputValidation(formatter, result); err != nil {
		return err
	}
	if missing > 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("%d world file(s) not found", missing))
	}
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func validateFile(path string) FileResult {
	fr := FileResult{Path: path}
	w, errs := LoadWorld(path)
	for _, err := range errs {
		fe := FileError{Code: ErrCodeGeneric, Message: err.Error()}
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			fe.Code = loadErr.Code
			fe.Message = loadErr.Message
			if loadErr.Pos.IsValid() {
				fe.Line = loadErr.Pos.Line()
				fe.Column = loadErr.Pos.Column()
			}
		}
		fr.Errors = append(fr.Errors, fe)
	}
	if w != nil {
		fr.World = w.Name
		fr.Counts = &compiler.Applied{
			Materials:  len(w.Materials),
			Primitives: len(w.Primitives),
			Meshes:     len(w.Meshes),
			Nodes:      len(w.Nodes),
		}
	}
	fr.Valid = len(fr.Errors) == 0
	return fr
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	if f.Format == "json" {
		if result.Valid {
			return f.Success(result)
		}
		return f.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    firstErrorCode(result),
				Message: "validation failed",
			},
		})
	}

	w := f.Writer
	for _, fr := range result.Files {
		if fr.Valid {
			fmt.Fprintf(w, "✓ %s", fr.Path)
			if fr.Counts != nil {
				fmt.Fprintf(w, " (%s: %d nodes, %d meshes, %d primitives, %d materials)",
					fr.World, fr.Counts.Nodes, fr.Counts.Meshes, fr.Counts.Primitives, fr.Counts.Materials)
			}
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", fr.Path)
		for _, e := range fr.Errors {
			if e.Line > 0 {
				fmt.Fprintf(w, "  [%s] line %d: %s\n", e.Code, e.Line, e.Message)
			} else {
				fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Message)
			}
		}
	}
	return nil
}

func firstErrorCode(result ValidationResult) string {
	for _, fr := range result.Files {
		if len(fr.Errors) > 0 {
			return fr.Errors[0].Code
		}
	}
	return ErrCodeGeneric
}
