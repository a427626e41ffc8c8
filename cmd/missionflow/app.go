package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"missionflow/internal/archive"
	"missionflow/internal/config"
	"missionflow/internal/llm"
	"missionflow/internal/logging"
	"missionflow/internal/pipeline"
	"missionflow/internal/roles"
	"missionflow/internal/store"
)

// app holds the collaborators shared by the run-executing commands.
type app struct {
	cfg       *config.Config
	generator llm.Generator
	catalog   roles.Catalog
	watcher   *roles.Watcher
	store     store.Store
	archiver  *archive.Archiver
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	a.store = st

	gen, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.generator = llm.NewTracingGenerator(gen, st)

	if err := a.openCatalog(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Archive.Enabled {
		arch, err := archive.New(archive.FromSettings(cfg.Archive))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid archive configuration: %w", err)
		}
		if err := arch.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, err
		}
		a.archiver = arch
	}
	return a, nil
}

func (a *app) openCatalog(ctx context.Context) error {
	if a.cfg.Catalog.Watch && a.cfg.Catalog.Path == "" {
		logging.BootWarn("catalog.watch is set without catalog.path; using the built-in roles")
	}
	if a.cfg.Catalog.Watch && a.cfg.Catalog.Path != "" {
		w, err := roles.NewWatcher(a.cfg.Catalog.Path)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		a.watcher = w
		a.catalog = w
		return nil
	}
	reg, err := roles.Load(a.cfg.Catalog.Path)
	if err != nil {
		return err
	}
	a.catalog = reg
	return nil
}

// Close releases the watcher and the store.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close run store", zap.Error(err))
		}
	}
}

func (a *app) executor(events chan<- pipeline.Event) (*pipeline.Executor, error) {
	return pipeline.NewExecutor(pipeline.Config{
		Generator:       a.generator,
		Catalog:         a.catalog,
		BackoffBase:     a.cfg.GetBackoffBase(),
		AttemptTimeout:  a.cfg.GetAttemptTimeout(),
		MinOutputLength: a.cfg.Pipeline.MinOutputLength,
		KickoffMessage:  a.cfg.Pipeline.KickoffMessage,
		Events:          events,
	})
}

// execute runs a job, then persists and archives whatever run came out of
// it. Progress lines go to progress when it is non-nil.
func (a *app) execute(ctx context.Context, job *Job, progress io.Writer) (*pipeline.PipelineRun, error) {
	var events chan pipeline.Event
	var done chan struct{}
	if progress != nil {
		events = make(chan pipeline.Event, 64)
		done = make(chan struct{})
		go func() {
			defer close(done)
			printEvents(progress, events)
		}()
	}

	exec, err := a.executor(events)
	if err != nil {
		return nil, err
	}
	run, runErr := exec.Run(ctx, job.Mission, job.Agents, job.Config)
	if events != nil {
		close(events)
		<-done
	}
	if run == nil {
		return nil, runErr
	}

	// Persist even when the caller cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err := a.store.SaveRun(persistCtx, run); err != nil {
		logger.Error("Failed to save run", zap.String("run_id", run.ID), zap.Error(err))
		runErr = errors.Join(runErr, err)
	}
	if a.archiver != nil {
		if keys, err := a.archiver.ArchiveRun(persistCtx, run); err != nil {
			logger.Error("Failed to archive run", zap.String("run_id", run.ID), zap.Error(err))
		} else {
			logger.Debug("Run archived", zap.String("run_id", run.ID), zap.Strings("keys", keys))
		}
	}

	logger.Info("Run finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("steps", len(run.Steps)),
		zap.Duration("duration", run.Duration()))
	return run, runErr
}

func printEvents(w io.Writer, events <-chan pipeline.Event) {
	for ev := range events {
		switch ev.Type {
		case pipeline.EventStepStarted:
			fmt.Fprintf(w, "→ step %d %s started\n", ev.Position+1, ev.RoleID)
		case pipeline.EventAttemptFailed:
			fmt.Fprintf(w, "  attempt %d failed: %s\n", ev.Attempt, ev.Message)
		case pipeline.EventStepBackoff:
			fmt.Fprintf(w, "  retrying in %v\n", ev.Wait)
		case pipeline.EventStepCompleted:
			fmt.Fprintf(w, "✓ step %d %s completed\n", ev.Position+1, ev.RoleID)
		case pipeline.EventStepFailed:
			fmt.Fprintf(w, "✗ step %d %s failed\n", ev.Position+1, ev.RoleID)
		}
	}
}
