package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionflow/internal/llm"
	"missionflow/internal/pipeline"
	"missionflow/internal/prompt"
	"missionflow/internal/roles"
)

func failedRun() *pipeline.PipelineRun {
	start := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	return &pipeline.PipelineRun{
		ID:          "run-7",
		Mission:     "Generate 50 leads/month for a Montréal bistro",
		Status:      pipeline.RunFailed,
		StartedAt:   start,
		CompletedAt: start.Add(4 * time.Second),
		Steps: []*pipeline.PipelineStep{
			{
				Position: 0, Role: roles.AgentRole{ID: "scraper", DisplayName: "Lead Scraper"},
				Status: pipeline.StepCompleted, Attempts: 1, Output: "1. Café Olimpico\n2. Joe Beef",
				StartedAt: start, CompletedAt: start.Add(time.Second),
			},
			{
				Position: 1, Role: roles.AgentRole{ID: "writer", DisplayName: "Copywriter"},
				Status: pipeline.StepFailed, Attempts: 3,
				History: []pipeline.Attempt{
					{Number: 1, Kind: pipeline.KindTransient, Error: "upstream 503"},
					{Number: 2, Kind: pipeline.KindValidation, Error: "output validation failed: empty output"},
					{Number: 3, Kind: pipeline.KindTransient, Error: "upstream 503"},
				},
			},
			{Position: 2, Role: roles.AgentRole{ID: "publisher"}, Status: pipeline.StepPending},
		},
		Failure: &pipeline.Failure{Position: 1, RoleID: "writer", Attempts: 3, Kind: pipeline.KindTransient, Message: "generation retries exhausted"},
	}
}

func TestRunTrace(t *testing.T) {
	r, err := NewPlain(80)
	require.NoError(t, err)

	out := r.RunTrace(failedRun())
	for _, want := range []string{
		"Generate 50 leads/month for a Montréal bistro",
		"run-7",
		"1. Lead Scraper (scraper)",
		"attempts 1/3",
		"Café Olimpico",
		"2. Copywriter (writer)",
		"attempt 2 [validation]",
		"3. publisher (publisher)",
		"○ pending",
		"Halted at step 2 (writer) after 3 attempt(s) [transient]",
	} {
		assert.Contains(t, out, want)
	}
}

func TestFinal(t *testing.T) {
	r, err := NewPlain(80)
	require.NoError(t, err)

	run := failedRun()
	out, err := r.Final(run)
	require.NoError(t, err)
	assert.Empty(t, out)

	run.Status = pipeline.RunCompleted
	run.Steps[2].Status = pipeline.StepCompleted
	run.Steps[2].Output = "# Posting plan\n\n- **Tuesday** 9am"
	out, err = r.Final(run)
	require.NoError(t, err)
	assert.Contains(t, out, "Posting plan")
	assert.Contains(t, out, "Tuesday")
}

func TestRunList(t *testing.T) {
	r, err := NewPlain(80)
	require.NoError(t, err)

	assert.Contains(t, r.RunList(nil), "No runs recorded.")
	out := r.RunList([]*pipeline.PipelineRun{failedRun()})
	assert.Contains(t, out, "run-7")
	assert.Contains(t, out, "1/3")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestPromptAndTraces(t *testing.T) {
	r, err := New(80, true)
	require.NoError(t, err)

	out := r.Prompt([]prompt.Section{{Title: prompt.TitleRole, Body: "Find leads."}})
	assert.Contains(t, out, "YOUR ROLE")
	assert.Contains(t, out, "Find leads.")

	assert.Contains(t, r.Traces(nil), "No generation traces")
	traces := r.Traces([]*llm.Trace{{StepPosition: 0, RoleID: "scraper", Attempt: 1, Success: false, ErrorMessage: "upstream 503", DurationMs: 12}})
	assert.Contains(t, traces, "upstream 503")
	assert.Contains(t, traces, "12ms")
}

func TestTruncateAndExcerpt(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "a\nb\n… 2 more lines", excerpt("a\nb\nc\nd", 2, 10))
}

func TestDetectDark(t *testing.T) {
	t.Setenv("MISSIONFLOW_DARK_MODE", "1")
	assert.True(t, DetectDark())
	t.Setenv("MISSIONFLOW_DARK_MODE", "")
	t.Setenv("COLORFGBG", "15;0")
	assert.True(t, DetectDark())
	t.Setenv("COLORFGBG", "0;15")
	assert.False(t, DetectDark())
}
