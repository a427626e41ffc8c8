package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3"
	_ "modernc.org/sqlite"          // driver "sqlite", no cgo

	"missionflow/internal/llm"
	"missionflow/internal/logging"
	"missionflow/internal/pipeline"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	mission TEXT NOT NULL,
	status TEXT NOT NULL,
	role_ids TEXT NOT NULL,
	config_json TEXT NOT NULL,
	steps_json TEXT NOT NULL,
	failure_json TEXT,
	started_at INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status);

CREATE TABLE IF NOT EXISTS generation_traces (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	step_position INTEGER NOT NULL,
	role_id TEXT NOT NULL,
	attempt INTEGER NOT NULL,
	system_prompt TEXT NOT NULL,
	user_prompt TEXT NOT NULL,
	response TEXT NOT NULL,
	model TEXT,
	prompt_tokens INTEGER,
	completion_tokens INTEGER,
	duration_ms INTEGER,
	success BOOLEAN NOT NULL,
	error_message TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_traces_run ON generation_traces(run_id, step_position, attempt);
`

// SQLiteStore keeps runs in a SQLite file. Both the cgo driver ("sqlite3")
// and the pure Go driver ("sqlite") are supported.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	driver string
	path   string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(driver, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	logging.StoreDebug("Opening %s store at %s", driver, path)
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logging.Store("Run store ready: driver=%s path=%s", driver, path)
	return &SQLiteStore{db: db, driver: driver, path: path}, nil
}

// SaveRun inserts or replaces a run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *pipeline.PipelineRun) error {
	defer logging.StartTimer(logging.CategoryStore, "SaveRun "+run.ID).StopWithThreshold(slowWriteThreshold)

	row, err := encodeRun(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, mission, status, role_ids, config_json, steps_json, failure_json, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			mission = excluded.mission,
			status = excluded.status,
			role_ids = excluded.role_ids,
			config_json = excluded.config_json,
			steps_json = excluded.steps_json,
			failure_json = excluded.failure_json,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at`,
		row.ID, row.Mission, row.Status, row.RoleIDs, row.ConfigJSON, row.StepsJSON,
		nullString(row.FailureJSON), row.StartedAt, row.CompletedAt, row.UpdatedAt)
	if err != nil {
		logging.StoreError("Failed to save run %s: %v", run.ID, err)
		return fmt.Errorf("failed to save run: %w", err)
	}
	logging.StoreDebug("Saved run %s status=%s", run.ID, run.Status)
	return nil
}

const sqliteRunColumns = `id, mission, status, role_ids, config_json, steps_json, COALESCE(failure_json, ''), started_at, completed_at, updated_at`

// GetRun loads a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*pipeline.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row runRow
	err := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM pipeline_runs WHERE id = ?`, id).Scan(
		&row.ID, &row.Mission, &row.Status, &row.RoleIDs, &row.ConfigJSON, &row.StepsJSON,
		&row.FailureJSON, &row.StartedAt, &row.CompletedAt, &row.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return decodeRun(row)
}

// ListRuns returns the most recently started runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteRunColumns+` FROM pipeline_runs ORDER BY started_at DESC, updated_at DESC LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*pipeline.PipelineRun
	for rows.Next() {
		var row runRow
		if err := rows.Scan(&row.ID, &row.Mission, &row.Status, &row.RoleIDs, &row.ConfigJSON, &row.StepsJSON,
			&row.FailureJSON, &row.StartedAt, &row.CompletedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := decodeRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// StoreTrace implements llm.TraceSink.
func (s *SQLiteStore) StoreTrace(ctx context.Context, t *llm.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generation_traces (id, run_id, step_position, role_id, attempt, system_prompt, user_prompt, response,
			model, prompt_tokens, completion_tokens, duration_ms, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RunID, t.StepPosition, t.RoleID, t.Attempt, t.SystemPrompt, t.UserPrompt, t.Response,
		t.Model, t.PromptTokens, t.CompletionTokens, t.DurationMs, t.Success, nullString(t.ErrorMessage), unixNano(t.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to store trace: %w", err)
	}
	return nil
}

// ListTraces returns the traces of a run in step and attempt order.
func (s *SQLiteStore) ListTraces(ctx context.Context, runID string) ([]*llm.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, step_position, role_id, attempt, system_prompt, user_prompt, response,
			COALESCE(model, ''), COALESCE(prompt_tokens, 0), COALESCE(completion_tokens, 0), COALESCE(duration_ms, 0),
			success, COALESCE(error_message, ''), created_at
		FROM generation_traces WHERE run_id = ?
		ORDER BY step_position, attempt, created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var traces []*llm.Trace
	for rows.Next() {
		var t llm.Trace
		var created int64
		if err := rows.Scan(&t.ID, &t.RunID, &t.StepPosition, &t.RoleID, &t.Attempt, &t.SystemPrompt, &t.UserPrompt, &t.Response,
			&t.Model, &t.PromptTokens, &t.CompletionTokens, &t.DurationMs, &t.Success, &t.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		t.Timestamp = fromUnixNano(created)
		traces = append(traces, &t)
	}
	return traces, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
