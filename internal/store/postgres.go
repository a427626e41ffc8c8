package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"missionflow/internal/llm"
	"missionflow/internal/logging"
	"missionflow/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps runs in PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool and applies pending migrations. An
// empty dsn falls back to DATABASE_URL.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	s := &PostgresStore{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	logging.Store("Run store ready: driver=postgres host=%s", cfg.ConnConfig.Host)
	return s, nil
}

// Migrate applies the embedded migrations not yet recorded in
// schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at BIGINT NOT NULL)`); err != nil {
		return err
	}

	applied := make(map[int]bool)
	rows, err := s.Pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	type migration struct {
		version int
		name    string
		sql     string
	}
	var pending []migration
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(strings.TrimSuffix(f.Name(), ".sql"), "_", 2)[0])
		if err != nil || applied[v] {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		pending = append(pending, migration{v, f.Name(), string(body)})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		logging.StoreDebug("Applying migration %s", m.name)
		if _, err := s.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := s.Pool.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, m.version, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun inserts or replaces a run.
func (s *PostgresStore) SaveRun(ctx context.Context, run *pipeline.PipelineRun) error {
	defer logging.StartTimer(logging.CategoryStore, "SaveRun "+run.ID).StopWithThreshold(slowWriteThreshold)

	row, err := encodeRun(run)
	if err != nil {
		return err
	}
	var failure any
	if row.FailureJSON != "" {
		failure = row.FailureJSON
	}
	_, err = s.Pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, mission, status, role_ids, config_json, steps_json, failure_json, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			mission = EXCLUDED.mission,
			status = EXCLUDED.status,
			role_ids = EXCLUDED.role_ids,
			config_json = EXCLUDED.config_json,
			steps_json = EXCLUDED.steps_json,
			failure_json = EXCLUDED.failure_json,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			updated_at = EXCLUDED.updated_at`,
		row.ID, row.Mission, row.Status, row.RoleIDs, row.ConfigJSON, row.StepsJSON,
		failure, row.StartedAt, row.CompletedAt, row.UpdatedAt)
	if err != nil {
		logging.StoreError("Failed to save run %s: %v", run.ID, err)
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

const postgresRunColumns = `id, mission, status, role_ids, config_json::text, steps_json::text, COALESCE(failure_json::text, ''), started_at, completed_at, updated_at`

func scanRun(row pgx.Row) (runRow, error) {
	var r runRow
	err := row.Scan(&r.ID, &r.Mission, &r.Status, &r.RoleIDs, &r.ConfigJSON, &r.StepsJSON,
		&r.FailureJSON, &r.StartedAt, &r.CompletedAt, &r.UpdatedAt)
	return r, err
}

// GetRun loads a run by id.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*pipeline.PipelineRun, error) {
	row, err := scanRun(s.Pool.QueryRow(ctx, `SELECT `+postgresRunColumns+` FROM pipeline_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return decodeRun(row)
}

// ListRuns returns the most recently started runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+postgresRunColumns+` FROM pipeline_runs ORDER BY started_at DESC, updated_at DESC LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*pipeline.PipelineRun
	for rows.Next() {
		row, err := scanRun(rows)
		if err != nil {
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
func (s *PostgresStore) StoreTrace(ctx context.Context, t *llm.Trace) error {
	var errMsg any
	if t.ErrorMessage != "" {
		errMsg = t.ErrorMessage
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO generation_traces (id, run_id, step_position, role_id, attempt, system_prompt, user_prompt, response,
			model, prompt_tokens, completion_tokens, duration_ms, success, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.RunID, t.StepPosition, t.RoleID, t.Attempt, t.SystemPrompt, t.UserPrompt, t.Response,
		t.Model, t.PromptTokens, t.CompletionTokens, t.DurationMs, t.Success, errMsg, unixNano(t.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to store trace: %w", err)
	}
	return nil
}

// ListTraces returns the traces of a run in step and attempt order.
func (s *PostgresStore) ListTraces(ctx context.Context, runID string) ([]*llm.Trace, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, run_id, step_position, role_id, attempt, system_prompt, user_prompt, response,
			COALESCE(model, ''), COALESCE(prompt_tokens, 0), COALESCE(completion_tokens, 0), COALESCE(duration_ms, 0),
			success, COALESCE(error_message, ''), created_at
		FROM generation_traces WHERE run_id = $1
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

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}
