package reactive

// Completer is anything that can be completed as part of a Group.
type Completer interface {
	Complete()
}

// Group completes a set of properties together, for entities whose fields
// are each their own stream. The group's own OnDispose callbacks run after
// every member has completed.
type Group struct {
	members  []Completer
	disposed *Property[struct{}]
}

// NewGroup returns an empty group.
func NewGroup() *Group {
	return &Group{disposed: NewProperty(struct{}{})}
}

// Add registers members to be completed with the group.
func (g *Group) Add(members ...Completer) {
	g.members = append(g.members, members...)
}

// OnDispose registers fn to run when the group is disposed.
func (g *Group) OnDispose(fn func()) {
	g.disposed.OnComplete(fn)
}

// Dispose completes every member, then fires the OnDispose callbacks.
func (g *Group) Dispose() {
	if g.disposed.Completed() {
		return
	}
	for _, m := range g.members {
		m.Complete()
	}
	g.disposed.Complete()
}

// Disposed reports whether Dispose has been called.
func (g *Group) Disposed() bool {
	return g.disposed.Completed()
}
