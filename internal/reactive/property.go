// Package reactive provides per-field observable values.
//
// A Property is owned by exactly one goroutine (the context that created it).
// Nothing here is safe for concurrent use; cross-context delivery goes through
// the message channel, never through shared properties.
package reactive

// Property is a single observable value. Subscribers are notified on every
// Set, in subscription order, until the property completes.
type Property[T any] struct {
	value      T
	subs       []subscription[T]
	nextID     int
	done       bool
	onComplete []func()
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// NewProperty returns a property holding v.
func NewProperty[T any](v T) *Property[T] {
	return &Property[T]{value: v}
}

// Get returns the current value.
func (p *Property[T]) Get() T {
	return p.value
}

// Set replaces the value and notifies subscribers. Set on a completed
// property is ignored.
func (p *Property[T]) Set(v T) {
	if p.done {
		return
	}
	p.value = v
	// Copy so subscribers may unsubscribe while being notified.
	subs := append([]subscription[T](nil), p.subs...)
	for _, s := range subs {
		s.fn(v)
	}
}

// Subscribe registers fn for future values and returns a function that
// removes it. fn is not called with the current value.
func (p *Property[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	if p.done {
		return func() {}
	}
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription[T]{id: id, fn: fn})
	return func() {
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (p *Property[T]) Subscribers() int {
	return len(p.subs)
}

// OnComplete registers fn to run when the property completes. If it already
// has, fn runs immediately.
func (p *Property[T]) OnComplete(fn func()) {
	if p.done {
		fn()
		return
	}
	p.onComplete = append(p.onComplete, fn)
}

// Complete ends the stream: completion callbacks run once, subscriptions
// are dropped and further Sets are ignored.
func (p *Property[T]) Complete() {
	if p.done {
		return
	}
	p.done = true
	p.subs = nil
	fns := p.onComplete
	p.onComplete = nil
	for _, fn := range fns {
		fn()
	}
}

// Completed reports whether Complete has been called.
func (p *Property[T]) Completed() bool {
	return p.done
}
