package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/scenesync/internal/channel"
	"github.com/roach88/scenesync/internal/protocol"
)

// ApplyError is a failure to apply one delivered message in a context.
type ApplyError struct {
	Context string
	Seq     int64
	Subject protocol.Subject
	Err     error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: apply %s (seq=%d): %v", e.Context, e.Subject, e.Seq, e.Err)
}

// Unwrap exposes the handler error to errors.Is and errors.As.
func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Code returns the protocol error code of the cause, or "INTERNAL" when
// the cause is not a *protocol.Error.
func (e *ApplyError) Code() protocol.ErrorCode {
	var pe *protocol.Error
	if errors.As(e.Err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

// CodeInternal classifies failures that carry no protocol error code.
const CodeInternal protocol.ErrorCode = "INTERNAL"

// Sink collects per-message failures from every context. Safe for
// concurrent use.
type Sink struct {
	mu     sync.Mutex
	counts map[protocol.ErrorCode]int
	recent []error
	limit  int
}

// DefaultSinkHistory is how many recent errors a Sink keeps.
const DefaultSinkHistory = 64

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{counts: make(map[protocol.ErrorCode]int), limit: DefaultSinkHistory}
}

// Report records err under its protocol code.
func (s *Sink) Report(err error) {
	if err == nil {
		return
	}
	code := CodeInternal
	var ae *ApplyError
	var pe *protocol.Error
	switch {
	case errors.As(err, &ae):
		code = ae.Code()
	case errors.As(err, &pe):
		code = pe.Code
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[code]++
	s.recent = append(s.recent, err)
	if len(s.recent) > s.limit {
		s.recent = s.recent[len(s.recent)-s.limit:]
	}
}

// Count returns how many errors were reported under code.
func (s *Sink) Count(code protocol.ErrorCode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[code]
}

// Total returns the number of reported errors.
func (s *Sink) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// Counts returns a copy of the per-code counters.
func (s *Sink) Counts() map[protocol.ErrorCode]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[protocol.ErrorCode]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Recent returns the most recently reported errors, oldest first.
func (s *Sink) Recent() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.recent...)
}

// logApplyError logs a failed delivery with its message context.
func logApplyError(name string, d channel.Delivery, err error) {
	attrs := []any{
		"context", name,
		"seq", d.Seq,
		"subject", d.Msg.Subject(),
		"error", err,
	}
	if em, ok := d.Msg.(protocol.EntityMessage); ok {
		kind, id := em.Entity()
		attrs = append(attrs, "kind", kind, "id", id)
	}
	slog.Error("message apply failed", attrs...)
}
