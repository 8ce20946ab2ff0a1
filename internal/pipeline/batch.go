package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/levelcrawl/internal/model"
)

// defaultConcurrency is the number of seeds crawled at once.
const defaultConcurrency = 4

// BatchProcessor crawls several seeds concurrently.
type BatchProcessor struct {
	// pipelineFactory creates the pipeline of each job.
	pipelineFactory func() *Pipeline

	// newRun creates the run record of a seed: depth, budgets and
	// exclusion filters.
	newRun func(seed string) *model.CrawlRun

	// concurrency is the maximum number of concurrent jobs.
	concurrency int

	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent jobs.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, newRun func(seed string) *model.CrawlRun, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		newRun:          newRun,
		concurrency:     defaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls every seed and returns the runs in seed order.
//
// A failed job does not stop the others; its error is recorded in its run.
// Seeds not started before ctx was cancelled have no run. The returned
// error is ctx's error in that case.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlRun, error) {
	results := make([]*model.CrawlRun, len(seeds))

	err := bp.ProcessBatchWithCallback(ctx, seeds, func(run *model.CrawlRun, index int) {
		// Each index is written by exactly one goroutine.
		results[index] = run
	})

	runs := make([]*model.CrawlRun, 0, len(results))
	for _, run := range results {
		if run != nil {
			runs = append(runs, run)
		}
	}
	return runs, err
}

// ProcessBatchWithCallback crawls every seed and calls callback with each
// finished run and the index of its seed. callback is called from the
// goroutine that ran the job, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(run *model.CrawlRun, index int),
) error {
	bp.logger.Info("starting batch",
		"seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			run := bp.newRun(seed)
			if err := bp.pipelineFactory().Execute(gctx, run); err != nil {
				// Recorded in the run; the other seeds go on.
				bp.logger.Warn("crawl failed", "seed", seed, "error", err)
			}
			callback(run, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch complete",
		"seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)
	if err != nil {
		return err
	}
	return ctx.Err()
}
