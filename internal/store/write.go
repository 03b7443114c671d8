package store

import (
	"context"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// BeginRun records a runtime session. Later appends are tagged with id.
// startedSeq is the last seq already in the journal when the run starts.
func (s *Store) BeginRun(ctx context.Context, id, label string, startedSeq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, started_seq)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, label, startedSeq)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}

	s.mu.Lock()
	s.run = id
	s.mu.Unlock()
	return nil
}

// Append inserts a message at seq. It implements channel.Journal.
// Uses ON CONFLICT(seq) DO NOTHING so a re-delivered seq is ignored.
//
// The payload is stored as canonical JSON together with its content hash.
func (s *Store) Append(ctx context.Context, seq int64, m protocol.Message) error {
	data, err := marshalMessage(m)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", seq, err)
	}
	hash, err := protocol.MessageHash(seq, m)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", seq, err)
	}
	kind, id := entityOf(m)

	s.mu.Lock()
	run := s.run
	s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages
		(seq, run_id, subject, kind, entity_id, data, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		seq,
		run,
		string(m.Subject()),
		string(kind),
		id,
		data,
		hash,
	)
	if err != nil {
		return fmt.Errorf("append seq %d: %w", seq, err)
	}

	return nil
}
