package taskmanager

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// Record is the durable shape of a background task, independent of the
// in-memory backgroundTask representation.
type Record struct {
	ID         string
	Kind       Kind
	Command    string
	Status     Status
	Stdout     string
	Stderr     string
	ExitCode   *int
	StartedAt  time.Time
	EndedAt    time.Time
	SubAgentID string
}

func toRecord(bt *backgroundTask) Record {
	r := Record{
		ID: bt.id, Kind: bt.kind, Command: bt.command, Status: bt.status,
		ExitCode: bt.exitCode, StartedAt: bt.startedAt, EndedAt: bt.endedAt,
		SubAgentID: bt.subAgentID,
	}
	if bt.stdout != nil {
		r.Stdout = bt.stdout.String()
	}
	if bt.stderr != nil {
		r.Stderr = bt.stderr.String()
	}
	return r
}

// Store persists task records so a background task survives an engine
// restart and can be queried by TaskGet/TaskOutput after the process
// that spawned it is gone. It is optional — Manager works with store
// equal to nil, tracking everything in memory only, the same way the
// teacher's process registry does for ephemeral shell sessions.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, id string) (Record, bool, error)
	List(ctx context.Context) ([]Record, error)
}

// MemoryStore is the zero-dependency default: a mutex-guarded map.
// Manager already holds live background tasks in memory, so MemoryStore
// mainly exists to give callers a uniform Store even when they haven't
// configured CockroachStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

// CockroachStore persists task records to a CockroachDB (or any
// wire-compatible Postgres) cluster via lib/pq, grounded on the
// teacher's internal/jobs job store — the same upsert-by-id,
// read-back-by-id shape, narrowed to the Task Manager's own schema.
type CockroachStore struct {
	db *sql.DB
}

// NewCockroachStore opens db and ensures the backing table exists.
func NewCockroachStore(ctx context.Context, db *sql.DB) (*CockroachStore, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS wave_tasks (
	id           STRING PRIMARY KEY,
	kind         STRING NOT NULL,
	command      STRING NOT NULL,
	status       STRING NOT NULL,
	stdout       STRING NOT NULL,
	stderr       STRING NOT NULL,
	exit_code    INT,
	sub_agent_id STRING,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, err
	}
	return &CockroachStore{db: db}, nil
}

func (s *CockroachStore) Save(ctx context.Context, rec Record) error {
	const stmt = `
UPSERT INTO wave_tasks (id, kind, command, status, stdout, stderr, exit_code, sub_agent_id, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	var endedAt *time.Time
	if !rec.EndedAt.IsZero() {
		endedAt = &rec.EndedAt
	}
	_, err := s.db.ExecContext(ctx, stmt,
		rec.ID, rec.Kind, rec.Command, rec.Status, rec.Stdout, rec.Stderr,
		rec.ExitCode, rec.SubAgentID, rec.StartedAt, endedAt)
	return err
}

func (s *CockroachStore) Load(ctx context.Context, id string) (Record, bool, error) {
	const q = `
SELECT id, kind, command, status, stdout, stderr, exit_code, sub_agent_id, started_at, ended_at
FROM wave_tasks WHERE id = $1`
	row := s.db.QueryRowContext(ctx, q, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *CockroachStore) List(ctx context.Context) ([]Record, error) {
	const q = `
SELECT id, kind, command, status, stdout, stderr, exit_code, sub_agent_id, started_at, ended_at
FROM wave_tasks ORDER BY started_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var endedAt sql.NullTime
	var exitCode sql.NullInt64
	var subAgentID sql.NullString
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Command, &rec.Status, &rec.Stdout, &rec.Stderr,
		&exitCode, &subAgentID, &rec.StartedAt, &endedAt); err != nil {
		return Record{}, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	rec.SubAgentID = subAgentID.String
	rec.EndedAt = endedAt.Time
	return rec, nil
}
