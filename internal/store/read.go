package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/scenesync/internal/protocol"
)

// Record is one journaled message.
type Record struct {
	Seq     int64            `json:"seq"`
	RunID   string           `json:"run_id,omitempty"`
	Subject protocol.Subject `json:"subject"`
	Kind    protocol.Kind    `json:"kind,omitempty"`
	ID      string           `json:"id,omitempty"`
	Hash    string           `json:"hash"`
	Msg     protocol.Message `json:"data"`
}

// Run is one recorded runtime session.
type Run struct {
	ID         string `json:"id"`
	Label      string `json:"label,omitempty"`
	StartedSeq int64  `json:"started_seq"`
}

const recordColumns = `seq, run_id, subject, kind, entity_id, hash, data`

// Records returns every message with seq > after, in seq order.
//
// Returns an empty slice (not nil) when there is nothing to read.
func (s *Store) Records(ctx context.Context, after int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM messages
		WHERE seq > ?
		ORDER BY seq ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// EntityHistory returns every message about one entity, in seq order.
func (s *Store) EntityHistory(ctx context.Context, kind protocol.Kind, id string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM messages
		WHERE kind = ? AND entity_id = ?
		ORDER BY seq ASC
	`, string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("query entity history: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// BySubject returns every message with the given subject, in seq order.
func (s *Store) BySubject(ctx context.Context, subject protocol.Subject) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM messages
		WHERE subject = ?
		ORDER BY seq ASC
	`, string(subject))
	if err != nil {
		return nil, fmt.Errorf("query subject: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ReadRecord returns the message at seq.
func (s *Store) ReadRecord(ctx context.Context, seq int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM messages
		WHERE seq = ?
	`, seq)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record seq %d: %w", seq, protocol.ErrNotFound)
	}
	return r, err
}

// Runs returns every recorded run in start order.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, started_seq
		FROM runs
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.StartedSeq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var r Record
	var subject, kind, hash, data string
	if err := row.Scan(&r.Seq, &r.RunID, &subject, &kind, &r.ID, &hash, &data); err != nil {
		return Record{}, err
	}
	msg, err := unmarshalMessage(subject, data)
	if err != nil {
		return Record{}, fmt.Errorf("record seq %d: %w", r.Seq, err)
	}
	r.Subject = protocol.Subject(subject)
	r.Kind = protocol.Kind(kind)
	r.Hash = hash
	r.Msg = msg
	return r, nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return records, nil
}
