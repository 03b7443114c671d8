package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Kind     string // with ID - one entity's history
	ID       string
	Subject  string // optional - every message with this subject
	After    int64
}

// TraceEvent represents a single journaled message in the trace timeline.
type TraceEvent struct {
	Seq     int64            `json:"seq"`
	Subject protocol.Subject `json:"subject"`
	Kind    protocol.Kind    `json:"kind,omitempty"`
	ID      string           `json:"id,omitempty"`
	RunID   string           `json:"run_id,omitempty"`
	Data    protocol.Message `json:"data"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Query    string       `json:"query"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int                      `json:"total_events"`
	BySubject   map[protocol.Subject]int `json:"by_subject"`
	Runs        int                      `json:"runs"`
	Disposed    bool                     `json:"disposed,omitempty"` // entity traces only
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled history of an entity or subject",
		Long: `Query the message journal.

With --kind and --id, shows every message about one entity in seq order,
which is the order both mirrors applied them. With --subject, shows every
message of that subject. With neither, shows the whole journal.

Examples:
  scenesync trace --db ./scene.db --kind node --id crate
  scenesync trace --db ./scene.db --subject clicked_node
  scenesync trace --db ./scene.db --after 120 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "entity kind (node|mesh|primitive|material)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "entity id")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "filter to one subject")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only messages after this seq")
	cmd.MarkFlagsRequiredTogether("kind", "id")
	cmd.MarkFlagsMutuallyExclusive("kind", "subject")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Kind != "" && !protocol.ValidKinds[protocol.Kind(opts.Kind)] {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown kind %q", opts.Kind))
	}

	st, err := openExisting(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	query, records, err := queryRecords(ctx, st, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	result := TraceResult{
		Query:    query,
		Timeline: buildTimeline(records, opts.After),
	}
	result.Stats = traceStats(result.Timeline, opts.Kind != "")

	// Output results
	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}

	return outputTraceText(cmd, result, opts.Verbose)
}

// queryRecords picks the journal read matching the flags and describes it.
func queryRecords(ctx context.Context, st *store.Store, opts *TraceOptions) (string, []store.Record, error) {
	switch {
	case opts.Kind != "":
		records, err := st.EntityHistory(ctx, protocol.Kind(opts.Kind), opts.ID)
		return fmt.Sprintf("%s %s", opts.Kind, opts.ID), records, err
	case opts.Subject != "":
		records, err := st.BySubject(ctx, protocol.Subject(opts.Subject))
		return "subject " + opts.Subject, records, err
	default:
		records, err := st.Records(ctx, opts.After)
		return "all", records, err
	}
}

// buildTimeline converts journal records to trace events, dropping those at
// or before after.
func buildTimeline(records []store.Record, after int64) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(records))
	for _, r := range records {
		if r.Seq <= after {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:     r.Seq,
			Subject: r.Subject,
			Kind:    r.Kind,
			ID:      r.ID,
			RunID:   r.RunID,
			Data:    r.Msg,
		})
	}
	return timeline
}

func traceStats(timeline []TraceEvent, entity bool) TraceStats {
	stats := TraceStats{
		TotalEvents: len(timeline),
		BySubject:   make(map[protocol.Subject]int),
	}
	runs := make(map[string]bool)
	for _, e := range timeline {
		stats.BySubject[e.Subject]++
		runs[e.RunID] = true
	}
	stats.Runs = len(runs)
	if entity && len(timeline) > 0 {
		switch timeline[len(timeline)-1].Subject {
		case protocol.SubjectDisposeNode, protocol.SubjectDisposeMesh,
			protocol.SubjectDisposePrimitive, protocol.SubjectDisposeMaterial:
			stats.Disposed = true
		}
	}
	return stats
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return f.Success(result)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Trace: %s\n", result.Query)
	fmt.Fprintln(w)

	// Timeline section
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no messages)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Messages: %d\n", result.Stats.TotalEvents)
	for _, s := range slices.Sorted(maps.Keys(result.Stats.BySubject)) {
		fmt.Fprintf(w, "  %-18s %d\n", string(s)+":", result.Stats.BySubject[s])
	}
	fmt.Fprintf(w, "  Runs: %d\n", result.Stats.Runs)
	if result.Stats.Disposed {
		fmt.Fprintln(w, "  Disposed: yes")
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s", event.Seq, event.Subject)
	if event.ID != "" {
		fmt.Fprintf(w, " %s/%s", event.Kind, event.ID)
	}
	fmt.Fprintln(w)
	if !verbose {
		return
	}
	if data, err := protocol.MarshalCanonical(event.Data); err == nil {
		fmt.Fprintf(w, "       Data: %s\n", data)
	}
	if event.RunID != "" {
		fmt.Fprintf(w, "       Run: %s\n", truncateID(event.RunID))
	}
}

// truncateID shortens a UUID for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
