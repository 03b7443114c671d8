package store

import (
	"context"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// LastSeq returns the highest seq in the journal, or 0 when empty.
// Used to resume the bus clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM messages
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// Count returns the number of journaled messages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// Mismatch is a journaled message whose stored hash does not match its
// payload.
type Mismatch struct {
	Seq    int64  `json:"seq"`
	Stored string `json:"stored"`
	Actual string `json:"actual"`
}

// Verify recomputes the content hash of every message. A non-empty result
// means the journal was modified after it was written.
func (s *Store) Verify(ctx context.Context) ([]Mismatch, error) {
	records, err := s.Records(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, r := range records {
		actual, err := protocol.MessageHash(r.Seq, r.Msg)
		if err != nil {
			return nil, fmt.Errorf("verify seq %d: %w", r.Seq, err)
		}
		if actual != r.Hash {
			out = append(out, Mismatch{Seq: r.Seq, Stored: r.Hash, Actual: actual})
		}
	}
	return out, nil
}
