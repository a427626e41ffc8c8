package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionflow/internal/config"
	"missionflow/internal/llm"
	"missionflow/internal/pipeline"
	"missionflow/internal/prompt"
	"missionflow/internal/roles"
)

func sampleRun(id string, started time.Time, failed bool) *pipeline.PipelineRun {
	run := &pipeline.PipelineRun{
		ID:      id,
		Mission: "Generate 50 leads/month for a Montréal bistro",
		Config: prompt.ExecutionConfig{
			BusinessProfile: &prompt.BusinessProfile{Name: "Chez Lucie", Location: "Montréal"},
			RoleOverrides:   map[string]string{"writer": "Sign as Lucie."},
		},
		Status:      pipeline.RunCompleted,
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
		Steps: []*pipeline.PipelineStep{
			{
				Position:    0,
				Role:        roles.AgentRole{ID: "scraper", DisplayName: "Lead Scraper", BaseInstructions: "Find leads."},
				Status:      pipeline.StepCompleted,
				Attempts:    1,
				Output:      "1. Café Olimpico",
				StartedAt:   started,
				CompletedAt: started.Add(time.Second),
				Prompt:      "## YOUR ROLE\nFind leads.",
				History:     []pipeline.Attempt{{Number: 1, StartedAt: started, Duration: time.Second}},
			},
			{
				Position: 1,
				Role:     roles.AgentRole{ID: "writer", DisplayName: "Copywriter", BaseInstructions: "Write."},
				Status:   pipeline.StepCompleted,
				Attempts: 1,
				Output:   "Bonjour Café Olimpico!",
			},
		},
	}
	if failed {
		run.Status = pipeline.RunFailed
		run.Steps[1].Status = pipeline.StepFailed
		run.Steps[1].Output = ""
		run.Steps[1].Attempts = 3
		run.Steps[1].Error = "generation retries exhausted"
		run.Steps[1].ErrorKind = pipeline.KindTransient
		run.Failure = &pipeline.Failure{Position: 1, RoleID: "writer", Attempts: 3, Kind: pipeline.KindTransient, Message: "generation retries exhausted"}
	}
	return run
}

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{}
	for _, driver := range []string{"sqlite3", "sqlite"} {
		s, err := Open(context.Background(), config.StoreConfig{
			Driver: driver,
			Path:   filepath.Join(t.TempDir(), "nested", "runs.db"),
		})
		require.NoError(t, err, driver)
		t.Cleanup(func() { _ = s.Close() })
		stores[driver] = s
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		s, err := OpenPostgres(context.Background(), dsn)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		stores["postgres"] = s
	}
	return stores
}

func TestSaveAndGetRun(t *testing.T) {
	started := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id := "run-save-" + name + time.Now().Format("150405.000000")
			want := sampleRun(id, started, true)
			require.NoError(t, s.SaveRun(ctx, want))

			got, err := s.GetRun(ctx, id)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}

			// Saving again replaces the row.
			want.Mission = "updated"
			require.NoError(t, s.SaveRun(ctx, want))
			got, err = s.GetRun(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, "updated", got.Mission)
		})
	}
}

func TestGetRunNotFound(t *testing.T) {
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetRun(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSaveRunRejectsMissingID(t *testing.T) {
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.SaveRun(context.Background(), &pipeline.PipelineRun{}))
		})
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	base := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	s, err := OpenSQLite("sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour), false)))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTracesRoundTrip(t *testing.T) {
	ts := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	for name, s := range openTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			runID := "run-trace-" + name + time.Now().Format("150405.000000")
			second := &llm.Trace{ID: runID + "-2", RunID: runID, StepPosition: 0, RoleID: "scraper", Attempt: 2,
				SystemPrompt: "sys", UserPrompt: "Begin your work.", Response: "Lead list ready",
				Model: "m", PromptTokens: 10, CompletionTokens: 3, DurationMs: 42, Success: true, Timestamp: ts.Add(time.Second)}
			first := &llm.Trace{ID: runID + "-1", RunID: runID, StepPosition: 0, RoleID: "scraper", Attempt: 1,
				SystemPrompt: "sys", UserPrompt: "Begin your work.", DurationMs: 7, ErrorMessage: "upstream 503", Timestamp: ts}
			require.NoError(t, s.StoreTrace(ctx, second))
			require.NoError(t, s.StoreTrace(ctx, first))

			got, err := s.ListTraces(ctx, runID)
			require.NoError(t, err)
			if diff := cmp.Diff([]*llm.Trace{first, second}, got); diff != "" {
				t.Errorf("traces mismatch (-want +got):\n%s", diff)
			}

			none, err := s.ListTraces(ctx, "no-such-run")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestTracingGeneratorWritesToStore(t *testing.T) {
	s, err := OpenSQLite("sqlite3", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	gen := llm.NewTracingGenerator(llm.NewStubClient("stub"), s)
	exec, err := pipeline.NewExecutor(pipeline.Config{Generator: gen, Catalog: roles.Default(), BackoffBase: time.Millisecond})
	require.NoError(t, err)

	run, err := exec.Run(context.Background(), "bistro", []string{"scraper", "writer"}, prompt.ExecutionConfig{})
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(context.Background(), run))

	traces, err := s.ListTraces(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, "scraper", traces[0].RoleID)
	assert.Equal(t, "writer", traces[1].RoleID)
	assert.Equal(t, run.Step(1).Prompt, traces[1].SystemPrompt)
}

func TestOpenUnknownDriver(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "mongodb"})
	assert.Error(t, err)
	assert.Nil(t, s)

	_, err = OpenSQLite("sqlite3", "")
	assert.Error(t, err)
}
