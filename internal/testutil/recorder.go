package testutil

import (
	"sync"

	"github.com/roach88/scenesync/internal/protocol"
)

// Recorder is a scene publisher that keeps every message it is given.
type Recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

// Publish records m.
func (r *Recorder) Publish(m protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

// Messages returns a copy of the recorded messages in publish order.
func (r *Recorder) Messages() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

// Subjects returns the subject of each recorded message.
func (r *Recorder) Subjects() []protocol.Subject {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Subject, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Subject()
	}
	return out
}

// Created returns the ids of entities of kind announced by create messages,
// in order.
func (r *Recorder) Created(kind protocol.Kind) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, m := range r.msgs {
		em, ok := m.(protocol.EntityMessage)
		if !ok {
			continue
		}
		k, id := em.Entity()
		if k == kind && isCreate(m.Subject()) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

func isCreate(s protocol.Subject) bool {
	switch s {
	case protocol.SubjectCreateNode, protocol.SubjectCreateMesh,
		protocol.SubjectCreatePrimitive, protocol.SubjectCreateMaterial:
		return true
	}
	return false
}
