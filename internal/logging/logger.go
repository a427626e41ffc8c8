// Package logging provides config-driven categorized logging for missionflow.
// Every category writes through a shared zap logger tagged with its category.
// Logging is silent until Initialize is called, and disabled categories stay silent.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryPipeline Category = "pipeline" // Pipeline executor, step transitions, retries
	CategoryPrompt   Category = "prompt"   // Prompt composition
	CategoryAPI      Category = "api"      // LLM provider calls
	CategoryStore    Category = "store"    // Run and trace persistence
	CategoryCatalog  Category = "catalog"  // Role catalog loading and reloads
	CategoryArchive  Category = "archive"  // Object storage uploads
	CategoryCLI      Category = "cli"      // Command handlers
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	Dir        string          // empty = stderr
	Categories map[string]bool // nil = all enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
	closer     func() error
)

// Initialize builds the shared zap logger. Calling it again replaces the
// previous logger and closes its file.
func Initialize(opts Options) error {
	level := zap.NewAtomicLevelAt(parseLevel(opts.Level))

	var cfg zap.Config
	if strings.EqualFold(opts.Format, "console") || strings.EqualFold(opts.Format, "text") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
		name := fmt.Sprintf("%s_missionflow.log", time.Now().Format("2006-01-02"))
		path := filepath.Join(opts.Dir, name)
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	} else {
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	built, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mu.Lock()
	prevCloser := closer
	closer = built.Sync
	mu.Unlock()
	UseLogger(built, opts.Categories)

	if prevCloser != nil {
		_ = prevCloser()
	}

	Boot("logging initialized: level=%s format=%s dir=%q", level.String(), opts.Format, opts.Dir)
	return nil
}

// UseLogger installs l as the shared logger. Tests pass an observer core.
func UseLogger(l *zap.Logger, enabled map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = enabled
	loggers = make(map[Category]*Logger)
}

// Close flushes and closes the log output. Logging returns to no-op mode.
func Close() error {
	mu.Lock()
	c := closer
	closer = nil
	base = zap.NewNop()
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	if c != nil {
		return c()
	}
	return nil
}

// L returns the shared zap logger for structured logging.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying extra key-value fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Pipeline(format string, args ...interface{})      { Get(CategoryPipeline).Info(format, args...) }
func PipelineDebug(format string, args ...interface{}) { Get(CategoryPipeline).Debug(format, args...) }
func PipelineWarn(format string, args ...interface{})  { Get(CategoryPipeline).Warn(format, args...) }
func PipelineError(format string, args ...interface{}) { Get(CategoryPipeline).Error(format, args...) }

func PromptDebug(format string, args ...interface{}) { Get(CategoryPrompt).Debug(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Catalog(format string, args ...interface{})     { Get(CategoryCatalog).Info(format, args...) }
func CatalogWarn(format string, args ...interface{}) { Get(CategoryCatalog).Warn(format, args...) }

func Archive(format string, args ...interface{})      { Get(CategoryArchive).Info(format, args...) }
func ArchiveError(format string, args ...interface{}) { Get(CategoryArchive).Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
