package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"missionflow/internal/pipeline"
)

const (
	inboxDoneDir   = "done"
	inboxFailedDir = "failed"
)

var inboxCmd = &cobra.Command{
	Use:   "inbox DIR",
	Short: "Watch a directory and execute job files dropped into it",
	Long: `Execute every *.yaml job already in DIR, then keep watching for new ones.
Finished jobs are moved to DIR/done or DIR/failed. Stop with Ctrl+C.

Write job files elsewhere and rename them into DIR so a half-written file
is never picked up.`,
	Args: cobra.ExactArgs(1),
	RunE: runInbox,
}

func runInbox(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	in, err := newInbox(dir, a)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s for job files\n", dir)
	return in.serve(ctx, cfg.Pipeline.MaxConcurrentRuns)
}

// inbox turns job files appearing in a directory into runs.
type inbox struct {
	dir      string
	app      *app
	inflight sync.Map // path -> struct{}
}

func newInbox(dir string, a *app) (*inbox, error) {
	for _, sub := range []string{inboxDoneDir, inboxFailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}
	return &inbox{dir: dir, app: a}, nil
}

// serve processes the files already present, then watches until ctx is done.
// It waits for in-flight runs before returning.
func (in *inbox) serve(ctx context.Context, limit int) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", in.dir, err)
	}

	if limit < 1 {
		limit = 1
	}
	// Slots are taken inside the worker so a full inbox never blocks the
	// event loop.
	slots := semaphore.NewWeighted(int64(limit))
	var g errgroup.Group
	submit := func(path string) {
		if !isJobFile(path) {
			return
		}
		if _, busy := in.inflight.LoadOrStore(path, struct{}{}); busy {
			return
		}
		g.Go(func() error {
			defer in.inflight.Delete(path)
			if err := slots.Acquire(ctx, 1); err != nil {
				return nil
			}
			defer slots.Release(1)
			in.process(ctx, path)
			return nil
		})
	}

	existing, err := in.pending()
	if err != nil {
		return err
	}
	for _, path := range existing {
		submit(path)
	}

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				_ = g.Wait()
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				submit(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				_ = g.Wait()
				return nil
			}
			logger.Warn("Inbox watcher error", zap.Error(err))
		}
	}
}

// pending lists job files currently in the inbox, sorted by name.
func (in *inbox) pending() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !isJobFile(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(in.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// process runs one job file and files it under done/ or failed/.
func (in *inbox) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		// Already moved by an earlier event for the same file.
		return
	}

	dest := inboxFailedDir
	job, err := loadJob(path)
	if err == nil {
		var run *pipeline.PipelineRun
		run, err = in.app.execute(ctx, job, nil)
		if run != nil {
			logger.Info("Inbox job finished", zap.String("job", path), zap.String("summary", run.Summary()))
		}
	}
	switch {
	case err == nil:
		dest = inboxDoneDir
	case errors.Is(err, pipeline.ErrCancelled):
		// Left in the inbox for the next start.
		logger.Info("Inbox job interrupted", zap.String("job", path))
		return
	default:
		logger.Warn("Inbox job failed", zap.String("job", path), zap.Error(err))
	}

	target := filepath.Join(in.dir, dest, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		logger.Error("Failed to move job file", zap.String("job", path), zap.Error(err))
	}
}
