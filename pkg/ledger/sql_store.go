package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/yesselate/mandate/pkg/contracts"
)

// SQLStore implements Store using database/sql. It works against both
// Postgres (lib/pq) and SQLite (modernc.org/sqlite) with the same
// statements: one entries table plus a heads table carrying the
// compare-and-set tip per delegation.
//
// Actor and timestamp round-trip losslessly: the actor is one JSON
// column and the timestamp is the RFC 3339 nano string, so rereading an
// entry reproduces the exact bytes its hash covers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS delegation_events (
	id TEXT PRIMARY KEY,
	delegation_id TEXT NOT NULL,
	sequence INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	actor TEXT NOT NULL,
	summary TEXT NOT NULL,
	details TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	event_hash TEXT NOT NULL,
	UNIQUE (delegation_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_delegation_events_delegation
	ON delegation_events (delegation_id, sequence);
CREATE TABLE IF NOT EXISTS delegation_heads (
	delegation_id TEXT PRIMARY KEY,
	head_hash TEXT NOT NULL,
	sequence INTEGER NOT NULL
);
`

// Init creates the tables and index.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// isUniqueViolation reports whether err is a unique or primary key
// constraint failure, across lib/pq and modernc.org/sqlite.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func (s *SQLStore) Append(ctx context.Context, entry contracts.LedgerEntry, expectedHead string) error {
	actor, err := json.Marshal(entry.Actor)
	if err != nil {
		return fmt.Errorf("ledger: encode actor: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Compare-and-set on the head row. A fresh chain inserts the row; a
	// racing first append trips the primary key, a racing later append
	// updates zero rows. Either way the loser observes ErrConcurrentAppend.
	if expectedHead == "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO delegation_heads (delegation_id, head_hash, sequence) VALUES ($1, $2, $3)`,
			entry.DelegationID, entry.EventHash, entry.Sequence,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConcurrentAppend
			}
			return fmt.Errorf("ledger: insert head: %w", err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`UPDATE delegation_heads SET head_hash = $1, sequence = $2 WHERE delegation_id = $3 AND head_hash = $4`,
			entry.EventHash, entry.Sequence, entry.DelegationID, expectedHead,
		)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("ledger: rows affected: %w", err)
		}
		if rows == 0 {
			return ErrConcurrentAppend
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO delegation_events
			(id, delegation_id, sequence, event_type, actor, summary, details, timestamp, prev_hash, event_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.DelegationID, entry.Sequence, string(entry.EventType),
		string(actor), entry.Summary, string(entry.Details),
		entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.PrevHash, entry.EventHash,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) ReadAll(ctx context.Context, delegationID string) ([]contracts.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delegation_id, sequence, event_type, actor, summary, details, timestamp, prev_hash, event_hash
		FROM delegation_events
		WHERE delegation_id = $1
		ORDER BY sequence ASC`, delegationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]contracts.LedgerEntry, 0)
	for rows.Next() {
		var (
			e                  contracts.LedgerEntry
			et, actor, details string
			ts                 string
		)
		if err := rows.Scan(&e.ID, &e.DelegationID, &e.Sequence, &et,
			&actor, &e.Summary, &details, &ts, &e.PrevHash, &e.EventHash); err != nil {
			return nil, err
		}
		e.EventType = contracts.EventType(et)
		if err := json.Unmarshal([]byte(actor), &e.Actor); err != nil {
			return nil, fmt.Errorf("ledger: decode actor: %w", err)
		}
		e.Details = []byte(details)
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("ledger: parse timestamp: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) ReadHead(ctx context.Context, delegationID string) (Head, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT head_hash, sequence FROM delegation_heads WHERE delegation_id = $1`, delegationID)

	var h Head
	if err := row.Scan(&h.Hash, &h.Sequence); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Head{}, nil
		}
		return Head{}, err
	}
	return h, nil
}
