package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/scenesync/internal/channel"
	"github.com/roach88/scenesync/internal/protocol"
)

// Handler applies one message inside a context. Both mirrors implement it.
type Handler interface {
	Apply(protocol.Message) error
}

// Context is one execution context: a queue drained by a single goroutine
// into a Handler.
//
// Thread-safety model:
//   - the queue may be fed from any goroutine
//   - Run must be called from exactly one goroutine
//   - the handler is only touched by Run
type Context struct {
	name    string
	queue   *channel.Queue[channel.Delivery]
	handler Handler
	sink    *Sink

	applied atomic.Int64
	lastSeq atomic.Int64
}

// NewContext creates a context named name draining queue into h. Failures
// are reported to sink when it is non-nil.
func NewContext(name string, queue *channel.Queue[channel.Delivery], h Handler, sink *Sink) *Context {
	return &Context{name: name, queue: queue, handler: h, sink: sink}
}

// Name returns the context name.
func (c *Context) Name() string {
	return c.name
}

// Applied returns the number of messages handled so far, failed ones
// included.
func (c *Context) Applied() int64 {
	return c.applied.Load()
}

// LastSeq returns the seq of the last message handled.
func (c *Context) LastSeq() int64 {
	return c.lastSeq.Load()
}

// Run drains the queue until ctx is cancelled or the queue is closed and
// empty.
//
// ERROR HANDLING: a message that fails to apply is logged with its full
// context, reported to the sink, and the loop moves on. Retrying would
// reorder messages for the same entity.
func (c *Context) Run(ctx context.Context) error {
	slog.Info("context starting", "context", c.name)

	for {
		d, ok := c.queue.TryDequeue()
		if ok {
			c.process(d)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("context stopping: context cancelled", "context", c.name)
			c.queue.Close()
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed with the queue, so this fires
			// immediately once closed.
			if c.queue.Closed() && c.queue.Len() == 0 {
				slog.Info("context stopping: queue closed", "context", c.name)
				return nil
			}
		}
	}
}

func (c *Context) process(d channel.Delivery) {
	if d.IsFence() {
		d.Release()
		return
	}
	c.applied.Add(1)
	c.lastSeq.Store(d.Seq)

	if err := c.handler.Apply(d.Msg); err != nil {
		logApplyError(c.name, d, err)
		if c.sink != nil {
			c.sink.Report(&ApplyError{Context: c.name, Seq: d.Seq, Subject: d.Msg.Subject(), Err: err})
		}
		return
	}
	slog.Debug("message applied",
		"context", c.name,
		"seq", d.Seq,
		"subject", d.Msg.Subject(),
	)
}
