// Package store provides a SQLite-backed run store. Completed and
// in-flight run snapshots are persisted across server restarts, and the
// store doubles as the pipeline's audit sink so every stage invocation
// leaves a queryable record.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/reqpilot-go/internal/pipeline"
	"github.com/54b3r/reqpilot-go/internal/state"
)

// ErrNotFound is returned when a run ID does not exist in the store.
var ErrNotFound = errors.New("store: run not found")

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`
	// Requirement is the run's requirement text.
	Requirement string `json:"requirement"`
	// Status is the run's final (or current) lifecycle status.
	Status state.Status `json:"status"`
	// CurrentStage is the stage most recently entered.
	CurrentStage string `json:"current_stage"`
	// CreatedAt is when the run was created.
	CreatedAt time.Time `json:"created_at"`
}

// StageRecord is one audited stage invocation.
type StageRecord struct {
	// Stage is the invoked stage name.
	Stage string `json:"stage"`
	// DurationMS is the wall-clock stage duration in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// Fields lists the state fields the stage's update touched.
	Fields []string `json:"fields,omitempty"`
	// At is when the invocation was recorded.
	At time.Time `json:"at"`
}

// RunStore persists and retrieves run snapshots. Implementations must be
// safe for concurrent use.
type RunStore interface {
	// SaveRun upserts the full snapshot for a run.
	SaveRun(ctx context.Context, s state.RunState) error
	// GetRun returns the snapshot for the given run ID, or ErrNotFound.
	GetRun(ctx context.Context, runID string) (state.RunState, error)
	// RecentRuns returns summaries of the most recent n runs, newest first.
	RecentRuns(ctx context.Context, n int) ([]RunSummary, error)
	// StageRecords returns the audited stage invocations for a run in
	// invocation order.
	StageRecords(ctx context.Context, runID string) ([]StageRecord, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database. It also
// implements pipeline.AuditSink so stage invocations land in the same
// database as the snapshots they produced.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the run database. It
// resolves to ~/.reqpilot/runs.db, creating the directory if needed.
// Override with REQPILOT_RUNS_DB.
func DefaultDBPath() (string, error) {
	if v := os.Getenv("REQPILOT_RUNS_DB"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".reqpilot")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "runs.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist. The full
// snapshot is stored as a JSON blob alongside the columns the listing
// queries need, so the snapshot shape can evolve without migrations.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT    PRIMARY KEY,
    requirement   TEXT    NOT NULL,
    status        TEXT    NOT NULL,
    current_stage TEXT    NOT NULL DEFAULT '',
    created_at    INTEGER NOT NULL,  -- Unix timestamp (seconds)
    snapshot      TEXT    NOT NULL   -- full RunState as JSON
);
CREATE INDEX IF NOT EXISTS idx_runs_created
    ON runs (created_at DESC);

CREATE TABLE IF NOT EXISTS stage_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT    NOT NULL,
    stage       TEXT    NOT NULL,
    duration_ms INTEGER NOT NULL,
    fields      TEXT    NOT NULL DEFAULT '',  -- comma-separated touched field names
    at          INTEGER NOT NULL   -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_stage_events_run
    ON stage_events (run_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveRun upserts the full snapshot for a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run state.RunState) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	const q = `
INSERT INTO runs (run_id, requirement, status, current_stage, created_at, snapshot)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
    status        = excluded.status,
    current_stage = excluded.current_stage,
    snapshot      = excluded.snapshot`
	if _, err := s.db.ExecContext(ctx, q,
		run.RunID, run.Requirement, string(run.Status), run.CurrentStage,
		run.CreatedAt.Unix(), string(snapshot),
	); err != nil {
		return fmt.Errorf("store: save run: %w", err)
	}
	return nil
}

// GetRun returns the snapshot for the given run ID, or ErrNotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (state.RunState, error) {
	const q = `SELECT snapshot FROM runs WHERE run_id = ?`
	var snapshot string
	err := s.db.QueryRowContext(ctx, q, runID).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return state.RunState{}, ErrNotFound
	}
	if err != nil {
		return state.RunState{}, fmt.Errorf("store: get run: %w", err)
	}
	var run state.RunState
	if err := json.Unmarshal([]byte(snapshot), &run); err != nil {
		return state.RunState{}, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}
	return run, nil
}

// RecentRuns returns summaries of the most recent n runs, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, n int) ([]RunSummary, error) {
	const q = `
SELECT run_id, requirement, status, current_stage, created_at
FROM   runs
ORDER  BY created_at DESC, run_id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var sum RunSummary
		var status string
		var ts int64
		if err := rows.Scan(&sum.RunID, &sum.Requirement, &status, &sum.CurrentStage, &ts); err != nil {
			return nil, fmt.Errorf("store: recent runs scan: %w", err)
		}
		sum.Status = state.Status(status)
		sum.CreatedAt = time.Unix(ts, 0)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent runs rows: %w", err)
	}
	return summaries, nil
}

// StageRecords returns the audited stage invocations for a run in
// invocation order.
func (s *SQLiteStore) StageRecords(ctx context.Context, runID string) ([]StageRecord, error) {
	const q = `
SELECT stage, duration_ms, fields, at
FROM   stage_events
WHERE  run_id = ?
ORDER  BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("store: stage records: %w", err)
	}
	defer rows.Close()

	var records []StageRecord
	for rows.Next() {
		var rec StageRecord
		var fields string
		var ts int64
		if err := rows.Scan(&rec.Stage, &rec.DurationMS, &fields, &ts); err != nil {
			return nil, fmt.Errorf("store: stage records scan: %w", err)
		}
		if fields != "" {
			rec.Fields = strings.Split(fields, ",")
		}
		rec.At = time.Unix(ts, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: stage records rows: %w", err)
	}
	return records, nil
}

// RecordStage implements pipeline.AuditSink. Only the touched field
// names are recorded, never their contents — requirement text and
// generated artifacts stay out of the audit trail.
func (s *SQLiteStore) RecordStage(ctx context.Context, runID string, stage pipeline.Name, duration time.Duration, update state.Update) error {
	const q = `INSERT INTO stage_events (run_id, stage, duration_ms, fields, at) VALUES (?, ?, ?, ?, ?)`
	fields := strings.Join(update.Touched(), ",")
	if _, err := s.db.ExecContext(ctx, q,
		runID, string(stage), duration.Milliseconds(), fields, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("store: record stage: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
