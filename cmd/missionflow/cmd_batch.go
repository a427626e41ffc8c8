package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"missionflow/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch JOB...",
	Short: "Execute several job files concurrently",
	Long: `Execute each job file as an independent run. Up to
pipeline.max_concurrent_runs runs execute at once; a failing run does not
stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

// batchResult is the outcome of one job in a batch.
type batchResult struct {
	path string
	run  *pipeline.PipelineRun
	err  error
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results := runJobs(ctx, a, args, cfg.Pipeline.MaxConcurrentRuns)

	out := cmd.OutOrStdout()
	failed := 0
	for _, res := range results {
		switch {
		case res.run != nil:
			fmt.Fprintf(out, "%s: %s\n", res.path, res.run.Summary())
		default:
			fmt.Fprintf(out, "%s: %v\n", res.path, res.err)
		}
		if res.err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(results))
	}
	return nil
}

// runJobs executes every job file with at most limit runs in flight. Results
// keep the order of paths.
func runJobs(ctx context.Context, a *app, paths []string, limit int) []batchResult {
	results := make([]batchResult, len(paths))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	var mu sync.Mutex
	for i, path := range paths {
		g.Go(func() error {
			res := batchResult{path: path}
			job, err := loadJob(path)
			if err != nil {
				res.err = err
			} else {
				res.run, res.err = a.execute(ctx, job, nil)
			}
			if res.err != nil {
				logger.Warn("Batch job failed", zap.String("job", path), zap.Error(res.err))
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}
