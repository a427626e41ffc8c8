package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, enabled map[string]bool) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	UseLogger(zap.New(core), enabled)
	t.Cleanup(func() { _ = Close() })
	return logs
}

func TestCategoryLoggerTagsEntries(t *testing.T) {
	logs := observe(t, nil)

	Pipeline("step %d started", 2)
	APIWarn("rate limited: %s", "429")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "step 2 started", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "api", entries[1].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestDisabledCategoryIsSilent(t *testing.T) {
	logs := observe(t, map[string]bool{"store": false})

	Store("saved run %s", "r1")
	Catalog("loaded %d roles", 6)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "catalog", entries[0].LoggerName)
	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategoryPipeline), "unlisted categories default to enabled")
}

func TestWithAddsFields(t *testing.T) {
	logs := observe(t, nil)

	Get(CategoryPipeline).With("run_id", "abc").Info("halted")

	entries := logs.FilterField(zap.String("run_id", "abc")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "halted", entries[0].Message)
}

func TestUninitializedLoggingIsNoop(t *testing.T) {
	require.NoError(t, Close())
	// Must not panic without Initialize.
	Pipeline("nothing to see")
	Get(CategoryAPI).Error("still nothing")
}

func TestInitializeWritesToDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Options{Level: "debug", Format: "json", Dir: dir}))
	PipelineDebug("debug line %s", "visible")
	_ = Close()

	matches, err := filepath.Glob(filepath.Join(dir, "*_missionflow.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "debug line visible"))
}

func TestTimerStopWithThreshold(t *testing.T) {
	logs := observe(t, nil)

	timer := StartTimer(CategoryStore, "SaveRun")
	elapsed := timer.StopWithThreshold(time.Hour)
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))

	entries := logs.FilterLevelExact(zapcore.DebugLevel).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "SaveRun completed in")
}
