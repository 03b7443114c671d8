package channel

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/roach88/scenesync/internal/protocol"
)

// Delivery is one item on a context queue: a stamped message, or a fence
// that the consumer releases once everything before it has been applied.
type Delivery struct {
	Seq int64
	Msg protocol.Message

	fence chan struct{}
}

// IsFence reports whether the delivery is a fence rather than a message.
func (d Delivery) IsFence() bool {
	return d.fence != nil
}

// Release signals the fence's waiter. It is a no-op for messages.
func (d Delivery) Release() {
	if d.fence != nil {
		close(d.fence)
	}
}

// Journal durably records published messages.
type Journal interface {
	Append(ctx context.Context, seq int64, m protocol.Message) error
}

// Filter selects the subjects a subscriber receives. A nil Filter accepts
// everything.
type Filter func(protocol.Subject) bool

type subscriber struct {
	name   string
	queue  *Queue[Delivery]
	filter Filter
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithJournal records every published message in j before fan-out.
// Journal failures are logged; delivery continues.
func WithJournal(j Journal) BusOption {
	return func(b *Bus) { b.journal = j }
}

// WithClock sets the sequence clock, e.g. one resumed after a replay.
func WithClock(c *Clock) BusOption {
	return func(b *Bus) { b.clock = c }
}

// Bus fans published messages out to every subscribed context.
type Bus struct {
	mu      sync.Mutex
	clock   *Clock
	subs    []*subscriber
	journal Journal
}

// NewBus creates a bus with no subscribers.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{clock: NewClock()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a context queue under name. Only messages whose
// subject passes filter are delivered to it.
func (b *Bus) Subscribe(name string, filter Filter) *Queue[Delivery] {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := NewQueue[Delivery]()
	b.subs = append(b.subs, &subscriber{name: name, queue: q, filter: filter})
	return q
}

// Publish stamps m with the next sequence number, journals it, and enqueues
// an independent copy for every matching subscriber. It implements
// scene.Publisher.
func (b *Bus) Publish(m protocol.Message) {
	b.PublishSeq(m)
}

// PublishSeq is Publish returning the assigned sequence number.
func (b *Bus) PublishSeq(m protocol.Message) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	seq := b.clock.Next()
	if b.journal != nil {
		if err := b.journal.Append(context.Background(), seq, m); err != nil {
			slog.Error("journal append failed",
				"seq", seq,
				"subject", m.Subject(),
				"error", err,
			)
		}
	}

	for _, s := range b.subs {
		if s.filter != nil && !s.filter(m.Subject()) {
			continue
		}
		c, err := Clone(m)
		if err != nil {
			slog.Error("dropping message: copy failed",
				"seq", seq,
				"subject", m.Subject(),
				"subscriber", s.name,
				"error", err,
			)
			continue
		}
		if !s.queue.Enqueue(Delivery{Seq: seq, Msg: c}) {
			slog.Debug("subscriber closed, message dropped",
				"seq", seq,
				"subject", m.Subject(),
				"subscriber", s.name,
			)
		}
	}
	return seq
}

// Fence enqueues a fence on every subscriber queue and returns one channel
// per queue, closed when that consumer reaches the fence.
func (b *Bus) Fence() []<-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []<-chan struct{}
	for _, s := range b.subs {
		ch := make(chan struct{})
		if s.queue.Enqueue(Delivery{fence: ch}) {
			out = append(out, ch)
		}
	}
	return out
}

// Seq returns the last sequence number assigned.
func (b *Bus) Seq() int64 {
	return b.clock.Current()
}

// Close closes every subscriber queue.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.queue.Close()
	}
}

// Clone returns a deep copy of m with the same concrete type. Receivers may
// keep or mutate the copy without affecting any other context.
func Clone(m protocol.Message) (protocol.Message, error) {
	if m == nil {
		return nil, fmt.Errorf("clone: nil message")
	}
	dst := reflect.New(reflect.TypeOf(m))
	if err := copier.CopyWithOption(dst.Interface(), m, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("clone %s: %w", m.Subject(), err)
	}
	out, ok := dst.Elem().Interface().(protocol.Message)
	if !ok {
		return nil, fmt.Errorf("clone %s: unexpected type %T", m.Subject(), dst.Elem().Interface())
	}
	return out, nil
}
