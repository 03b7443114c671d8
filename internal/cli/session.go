package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/scenesync/internal/channel"
	"github.com/roach88/scenesync/internal/engine"
	"github.com/roach88/scenesync/internal/store"
)

// session is a journaled runtime started by run and import.
type session struct {
	journal *store.Store
	rt      *engine.Runtime
	done    chan error
	stopped bool
}

// openSession opens the journal at path and starts a runtime writing to it.
// The journal must be empty: a runtime cannot rebuild its authoring store
// from earlier messages.
func openSession(ctx context.Context, path, label string, opts ...engine.Option) (*session, error) {
	slog.Info("opening database", "path", path)
	journal, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	count, err := journal.Count(ctx)
	if err != nil {
		_ = journal.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	if count > 0 {
		_ = journal.Close()
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("journal %s already holds %d messages; use a new --db", path, count))
	}

	opts = append([]engine.Option{
		engine.WithJournal(journal),
		engine.WithClock(channel.NewClock()),
	}, opts...)
	rt := engine.New(opts...)

	if err := journal.BeginRun(ctx, rt.ID(), label, 0); err != nil {
		_ = journal.Close()
		return nil, WrapExitError(ExitCommandError, "failed to record run", err)
	}

	s := &session{journal: journal, rt: rt, done: make(chan error, 1)}
	go func() { s.done <- rt.Run(ctx) }()
	slog.Info("runtime started", "run", rt.ID(), "label", label)
	return s, nil
}

// stop drains both mirrors and waits for the runtime to exit.
func (s *session) stop() error {
	if s.stopped {
		return nil
	}
	s.stopped = true
	s.rt.Stop()
	err := <-s.done
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("runtime: %w", err)
	}
	return nil
}

// close stops the runtime if needed and closes the journal.
func (s *session) close() {
	_ = s.stop()
	if err := s.journal.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's context ends.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}
