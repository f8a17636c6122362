package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/yesselate/mandate/pkg/contracts"
)

// Store persists multi-level requests. Save commits only if the stored
// request's UpdatedAt still equals expectedVersion (the zero time for a
// new request), returning ErrConflict otherwise. The engine serializes
// per-request mutations, so conflicts only arise across processes.
type Store interface {
	Get(ctx context.Context, id string) (*contracts.MultiLevelRequest, error)
	Save(ctx context.Context, req *contracts.MultiLevelRequest, expectedVersion time.Time) error
}

// MemoryStore is the in-memory reference Store.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*contracts.MultiLevelRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*contracts.MultiLevelRequest)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*contracts.MultiLevelRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	cp.Levels = append([]contracts.ValidationLevel(nil), req.Levels...)
	return &cp, nil
}

func (m *MemoryStore) Save(ctx context.Context, req *contracts.MultiLevelRequest, expectedVersion time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.requests[req.ID]; ok {
		if !existing.UpdatedAt.Equal(expectedVersion) {
			return ErrConflict
		}
	} else if !expectedVersion.IsZero() {
		return ErrConflict
	}

	cp := *req
	cp.Levels = append([]contracts.ValidationLevel(nil), req.Levels...)
	m.requests[req.ID] = &cp
	return nil
}

// SQLStore persists requests as one row each, levels and facts as JSON,
// versioned by updated_at. Works against Postgres and SQLite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS validation_requests (
	id TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	levels TEXT NOT NULL,
	current_level INTEGER NOT NULL,
	overall_status TEXT NOT NULL,
	facts TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Get(ctx context.Context, id string) (*contracts.MultiLevelRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, levels, current_level, overall_status, facts, created_at, updated_at
		FROM validation_requests WHERE id = $1`, id)

	var (
		req           contracts.MultiLevelRequest
		levels, facts string
		status        string
	)
	err := row.Scan(&req.ID, &req.SubjectID, &levels, &req.CurrentLevel, &status, &facts, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	req.OverallStatus = contracts.OverallStatus(status)
	if err := json.Unmarshal([]byte(levels), &req.Levels); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(facts), &req.Facts); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *SQLStore) Save(ctx context.Context, req *contracts.MultiLevelRequest, expectedVersion time.Time) error {
	levels, err := json.Marshal(req.Levels)
	if err != nil {
		return err
	}
	facts, err := json.Marshal(req.Facts)
	if err != nil {
		return err
	}

	if expectedVersion.IsZero() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO validation_requests (id, subject_id, levels, current_level, overall_status, facts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			req.ID, req.SubjectID, string(levels), req.CurrentLevel, string(req.OverallStatus),
			string(facts), req.CreatedAt, req.UpdatedAt,
		)
		if err != nil {
			return ErrConflict
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE validation_requests
		SET levels = $1, current_level = $2, overall_status = $3, updated_at = $4
		WHERE id = $5 AND updated_at = $6`,
		string(levels), req.CurrentLevel, string(req.OverallStatus), req.UpdatedAt,
		req.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}
