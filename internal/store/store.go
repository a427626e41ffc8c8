package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"missionflow/internal/config"
	"missionflow/internal/llm"
	"missionflow/internal/pipeline"
	"missionflow/internal/prompt"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("not found")

// Store persists finished pipeline runs and generation traces. It also
// serves as the llm.TraceSink of the tracing generator.
type Store interface {
	SaveRun(ctx context.Context, run *pipeline.PipelineRun) error
	GetRun(ctx context.Context, id string) (*pipeline.PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]*pipeline.PipelineRun, error)
	StoreTrace(ctx context.Context, trace *llm.Trace) error
	ListTraces(ctx context.Context, runID string) ([]*llm.Trace, error)
	Close() error
}

// DefaultListLimit caps ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 50

// slowWriteThreshold is the SaveRun duration above which a warning is logged.
const slowWriteThreshold = time.Second

// Open opens the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite3", "sqlite", "":
		driver := cfg.Driver
		if driver == "" {
			driver = "sqlite3"
		}
		s, err := OpenSQLite(driver, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %q", cfg.Driver)
	}
}

// runRow is the column form of a PipelineRun shared by both backends.
type runRow struct {
	ID          string
	Mission     string
	Status      string
	RoleIDs     string
	ConfigJSON  string
	StepsJSON   string
	FailureJSON string
	StartedAt   int64
	CompletedAt int64
	UpdatedAt   int64
}

func encodeRun(run *pipeline.PipelineRun) (runRow, error) {
	if run == nil || run.ID == "" {
		return runRow{}, errors.New("run has no id")
	}
	cfgJSON, err := json.Marshal(run.Config)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal config: %w", err)
	}
	stepsJSON, err := json.Marshal(run.Steps)
	if err != nil {
		return runRow{}, fmt.Errorf("failed to marshal steps: %w", err)
	}
	failureJSON := ""
	if run.Failure != nil {
		b, err := json.Marshal(run.Failure)
		if err != nil {
			return runRow{}, fmt.Errorf("failed to marshal failure: %w", err)
		}
		failureJSON = string(b)
	}
	return runRow{
		ID:          run.ID,
		Mission:     run.Mission,
		Status:      string(run.Status),
		RoleIDs:     strings.Join(run.RoleIDs(), ","),
		ConfigJSON:  string(cfgJSON),
		StepsJSON:   string(stepsJSON),
		FailureJSON: failureJSON,
		StartedAt:   unixNano(run.StartedAt),
		CompletedAt: unixNano(run.CompletedAt),
		UpdatedAt:   time.Now().UnixNano(),
	}, nil
}

func decodeRun(row runRow) (*pipeline.PipelineRun, error) {
	run := &pipeline.PipelineRun{
		ID:          row.ID,
		Mission:     row.Mission,
		Status:      pipeline.RunStatus(row.Status),
		StartedAt:   fromUnixNano(row.StartedAt),
		CompletedAt: fromUnixNano(row.CompletedAt),
	}
	var cfg prompt.ExecutionConfig
	if err := json.Unmarshal([]byte(row.ConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("run %s: failed to decode config: %w", row.ID, err)
	}
	run.Config = cfg
	if err := json.Unmarshal([]byte(row.StepsJSON), &run.Steps); err != nil {
		return nil, fmt.Errorf("run %s: failed to decode steps: %w", row.ID, err)
	}
	if row.FailureJSON != "" {
		run.Failure = &pipeline.Failure{}
		if err := json.Unmarshal([]byte(row.FailureJSON), run.Failure); err != nil {
			return nil, fmt.Errorf("run %s: failed to decode failure: %w", row.ID, err)
		}
	}
	return run, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
