package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/scenesync/internal/channel"
	"github.com/roach88/scenesync/internal/physics"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/render"
	"github.com/roach88/scenesync/internal/scene"
)

// Context names.
const (
	RenderContext  = "render"
	PhysicsContext = "physics"
)

// Runtime owns the scene store, the bus and both mirror contexts.
//
// The store is driven from the caller's goroutine (the authoring context).
// Run starts one goroutine per mirror.
type Runtime struct {
	id      string
	store   *scene.Store
	bus     *channel.Bus
	render  *render.Mirror
	physics *physics.Mirror
	inbox   *channel.Queue[protocol.Message]
	sink    *Sink

	contexts []*Context

	// Options, consumed by New.
	policy  render.ClickPolicy
	journal channel.Journal
	clock   *channel.Clock
	ids     scene.IDGenerator
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClickPolicy sets the render mirror's click thresholds.
func WithClickPolicy(p render.ClickPolicy) Option {
	return func(r *Runtime) { r.policy = p }
}

// WithJournal records every published message.
func WithJournal(j channel.Journal) Option {
	return func(r *Runtime) { r.journal = j }
}

// WithSink collects per-message failures from both mirrors.
func WithSink(s *Sink) Option {
	return func(r *Runtime) { r.sink = s }
}

// WithClock resumes sequence numbering, e.g. after a replay.
func WithClock(c *channel.Clock) Option {
	return func(r *Runtime) { r.clock = c }
}

// WithIDGenerator sets how the store names entities created without an id.
func WithIDGenerator(g scene.IDGenerator) Option {
	return func(r *Runtime) { r.ids = g }
}

// New builds a runtime. Nothing runs until Run is called, but the store
// may be used immediately: messages queue up for the mirrors.
func New(opts ...Option) *Runtime {
	r := &Runtime{
		id:     uuid.Must(uuid.NewV7()).String(),
		policy: render.DefaultClickPolicy(),
		sink:   NewSink(),
		inbox:  channel.NewQueue[protocol.Message](),
	}
	for _, opt := range opts {
		opt(r)
	}

	var busOpts []channel.BusOption
	if r.journal != nil {
		busOpts = append(busOpts, channel.WithJournal(r.journal))
	}
	if r.clock != nil {
		busOpts = append(busOpts, channel.WithClock(r.clock))
	}
	r.bus = channel.NewBus(busOpts...)

	storeOpts := []scene.Option{scene.WithPublisher(r.bus)}
	if r.ids != nil {
		storeOpts = append(storeOpts, scene.WithIDGenerator(r.ids))
	}
	r.store = scene.New(storeOpts...)

	r.render = render.NewMirror(
		render.WithClickPolicy(r.policy),
		render.WithOutbox(func(m protocol.Message) { r.inbox.Enqueue(m) }),
	)
	r.physics = physics.NewMirror(physics.WithErrorReporter(r.sink.Report))

	r.contexts = []*Context{
		NewContext(RenderContext, r.bus.Subscribe(RenderContext, render.Accepts), r.render, r.sink),
		NewContext(PhysicsContext, r.bus.Subscribe(PhysicsContext, physics.Accepts), r.physics, r.sink),
	}
	return r
}

// Run starts every mirror context and blocks until all have stopped. It
// returns nil after Stop, or ctx.Err() after cancellation.
func (r *Runtime) Run(ctx context.Context) error {
	slog.Info("runtime starting", "run", r.id, "contexts", len(r.contexts))

	var wg sync.WaitGroup
	errs := make([]error, len(r.contexts))
	for i, c := range r.contexts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Run(ctx)
		}()
	}
	wg.Wait()

	r.inbox.Close()
	slog.Info("runtime stopped", "run", r.id, "seq", r.bus.Seq(), "errors", r.sink.Total())
	return errors.Join(errs...)
}

// Stop closes the mirror queues. Contexts finish what is queued, then Run
// returns.
func (r *Runtime) Stop() {
	r.bus.Close()
}

// Flush waits until both mirrors have applied everything published before
// the call.
func (r *Runtime) Flush(ctx context.Context) error {
	for _, fence := range r.bus.Fence() {
		select {
		case <-fence:
		case <-ctx.Done():
			return fmt.Errorf("flush: %w", ctx.Err())
		}
	}
	return nil
}

// Send publishes an input message, such as pointer events, to the mirrors.
func (r *Runtime) Send(m protocol.Message) int64 {
	return r.bus.PublishSeq(m)
}

// ID returns the run id.
func (r *Runtime) ID() string { return r.id }

// Store returns the authoritative scene store.
func (r *Runtime) Store() *scene.Store { return r.store }

// Bus returns the message bus.
func (r *Runtime) Bus() *channel.Bus { return r.bus }

// Render returns the render mirror. Read it only after Flush or Run returns.
func (r *Runtime) Render() *render.Mirror { return r.render }

// Physics returns the physics mirror. Read it only after Flush or Run returns.
func (r *Runtime) Physics() *physics.Mirror { return r.physics }

// Inbox returns the authoring inbox holding clicked_node and gesture
// messages from the render context.
func (r *Runtime) Inbox() *channel.Queue[protocol.Message] { return r.inbox }

// Sink returns the error sink.
func (r *Runtime) Sink() *Sink { return r.sink }

// Contexts returns the mirror contexts.
func (r *Runtime) Contexts() []*Context { return r.contexts }

// Drain removes every message currently in the inbox.
func (r *Runtime) Drain() []protocol.Message {
	var out []protocol.Message
	for {
		m, ok := r.inbox.TryDequeue()
		if !ok {
			return out
		}
		out = append(out, m)
	}
}

// Check verifies both mirrors are internally consistent.
func (r *Runtime) Check() error {
	if err := r.render.Check(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := r.physics.Check(); err != nil {
		return fmt.Errorf("physics: %w", err)
	}
	return nil
}
