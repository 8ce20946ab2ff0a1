package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/levelcrawl/internal/crawler"
	"github.com/nao1215/levelcrawl/internal/model"
)

// Step is one stage of a crawl job.
type Step interface {
	// Do executes the step on run. Failures that concern a single address
	// belong in the run; the returned error is for failures of the step
	// itself.
	Do(ctx context.Context, run *model.CrawlRun) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline executes steps in order.
type Pipeline struct {
	// steps run in order until one fails or the context is cancelled.
	steps []Step

	// cleanup steps run after steps no matter how they ended, with a
	// context that is not cancelled.
	cleanup []Step

	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is still returned.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddSteps appends steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// AddCleanupSteps appends steps that run even when an earlier step failed
// or the context was cancelled.
func (p *Pipeline) AddCleanupSteps(steps ...Step) {
	p.cleanup = append(p.cleanup, steps...)
}

// Execute runs the steps on run, then the cleanup steps.
//
// It returns the first error encountered. Errors are also recorded in
// run.Error, and cancellation sets run.Interrupted.
func (p *Pipeline) Execute(ctx context.Context, run *model.CrawlRun) error {
	var firstErr error

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"seed", run.Seed,
				"reason", err,
			)
			recordError(run, err)
			firstErr = err
			break
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"seed", run.Seed,
		)

		if err := step.Do(ctx, run); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", run.Seed,
				"error", err,
			)
			recordError(run, err)
			if firstErr == nil {
				firstErr = err
			}
			if !p.continueOnError {
				break
			}
		}
	}

	cleanupCtx := context.WithoutCancel(ctx)
	for _, step := range p.cleanup {
		if err := step.Do(cleanupCtx, run); err != nil {
			p.logger.Error("cleanup step failed",
				"step", step.Name(),
				"seed", run.Seed,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// StepNames returns the names of all steps in execution order, cleanup
// steps last.
func (p *Pipeline) StepNames() []string {
	names := make([]string, 0, len(p.steps)+len(p.cleanup))
	for _, step := range p.steps {
		names = append(names, step.Name())
	}
	for _, step := range p.cleanup {
		names = append(names, step.Name())
	}
	return names
}

// recordError stores err in run. The first error wins.
func recordError(run *model.CrawlRun, err error) {
	if isInterruption(err) {
		run.Interrupted = true
	}
	if run.Error == "" {
		run.Error = err.Error()
	}
}

func isInterruption(err error) bool {
	return errors.Is(err, crawler.ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
