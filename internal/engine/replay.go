package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/scenesync/internal/physics"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/render"
	"github.com/roach88/scenesync/internal/store"
)

// RecordSource reads journaled messages in seq order.
type RecordSource interface {
	Records(ctx context.Context, after int64) ([]store.Record, error)
}

// Replayed holds mirrors rebuilt from a journal.
type Replayed struct {
	Render  *render.Mirror
	Physics *physics.Mirror
	Sink    *Sink
	LastSeq int64
	Applied int
}

// Replay rebuilds both mirrors from src on the calling goroutine.
//
// Replay uses the same Apply path and the same subject filters as a live
// run, so a journal replays to the state the live mirrors reached. Failures
// are logged and counted, exactly as in Context.Run.
func Replay(ctx context.Context, src RecordSource) (*Replayed, error) {
	records, err := src.Records(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	sink := NewSink()
	out := &Replayed{
		Render:  render.NewMirror(),
		Physics: physics.NewMirror(physics.WithErrorReporter(sink.Report)),
		Sink:    sink,
	}
	targets := []struct {
		name    string
		handler Handler
		accepts func(protocol.Subject) bool
	}{
		{RenderContext, out.Render, render.Accepts},
		{PhysicsContext, out.Physics, physics.Accepts},
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay interrupted at seq %d: %w", r.Seq, err)
		}
		for _, t := range targets {
			if !t.accepts(r.Subject) {
				continue
			}
			if err := t.handler.Apply(r.Msg); err != nil {
				slog.Error("replay apply failed",
					"context", t.name,
					"seq", r.Seq,
					"subject", r.Subject,
					"error", err,
				)
				sink.Report(&ApplyError{Context: t.name, Seq: r.Seq, Subject: r.Subject, Err: err})
			}
		}
		out.Applied++
		out.LastSeq = r.Seq
	}

	slog.Info("replay complete", "messages", out.Applied, "last_seq", out.LastSeq, "errors", sink.Total())
	return out, nil
}

// Summary returns the state reached by the replay.
func (r *Replayed) Summary() Summary {
	return summarize(r.LastSeq, r.Render, r.Physics, r.Sink)
}
