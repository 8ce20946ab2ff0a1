package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/levelcrawl/internal/crawler"
	"github.com/nao1215/levelcrawl/internal/model"
)

// Traverser runs one traversal. *crawler.Crawler implements it.
type Traverser interface {
	Traverse(ctx context.Context, seed string, depth int, excludes []string) (*crawler.Result, error)
}

// TraverseStep crawls run.Seed and records the visited and failed
// addresses in the run.
type TraverseStep struct {
	traverser Traverser
	logger    *slog.Logger
}

// NewTraverseStep creates a TraverseStep. A nil logger means slog.Default().
func NewTraverseStep(traverser Traverser, logger *slog.Logger) *TraverseStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &TraverseStep{traverser: traverser, logger: logger}
}

// Name returns the step name.
func (s *TraverseStep) Name() string {
	return "traverse"
}

// Do runs the traversal. A partial result of an interrupted traversal is
// recorded before the error is returned.
func (s *TraverseStep) Do(ctx context.Context, run *model.CrawlRun) error {
	run.StartedAt = time.Now()
	result, err := s.traverser.Traverse(ctx, run.Seed, run.Depth, run.Excludes)
	run.Duration = time.Since(run.StartedAt)

	if result != nil {
		RecordResult(run, result)
	}
	if err != nil {
		return fmt.Errorf("traverse %s: %w", run.Seed, err)
	}

	s.logger.Info("crawl finished",
		"seed", run.Seed,
		"visited", len(run.Visited),
		"failed", len(run.Failures),
		"elapsed", run.Duration,
	)
	return nil
}

// RecordResult copies the visited addresses and failures of result into run.
// Failures are sorted by address.
func RecordResult(run *model.CrawlRun, result *crawler.Result) {
	run.Visited = append([]string(nil), result.Downloaded...)
	if run.Visited == nil {
		run.Visited = []string{}
	}

	run.Failures = make([]model.CrawlFailure, 0, len(result.Errors))
	for _, address := range result.FailedAddresses() {
		err := result.Errors[address]
		failure := model.CrawlFailure{Address: address, Op: "unknown", Message: err.Error()}

		var addrErr *crawler.AddressError
		if errors.As(err, &addrErr) {
			failure.Op = addrErr.Op
			if addrErr.Err != nil {
				failure.Message = addrErr.Err.Error()
			}
		}
		run.Failures = append(run.Failures, failure)
	}
}

// RunStore saves finished runs. *database.CrawlDB implements it.
type RunStore interface {
	SaveRun(ctx context.Context, run *model.CrawlRun) (int64, error)
}

// persistTimeout bounds saving a run. Persist runs with a context that is
// never cancelled, so it needs its own deadline.
const persistTimeout = 10 * time.Second

// PersistStep saves the run to a RunStore.
type PersistStep struct {
	store  RunStore
	logger *slog.Logger
}

// NewPersistStep creates a PersistStep. A nil logger means slog.Default().
func NewPersistStep(store RunStore, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves run and sets run.ID.
func (s *PersistStep) Do(ctx context.Context, run *model.CrawlRun) error {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	id, err := s.store.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("save run for %s: %w", run.Seed, err)
	}
	run.ID = id

	s.logger.Debug("crawl run saved", "seed", run.Seed, "id", id)
	return nil
}

// JobConfig holds what NewJob needs to build a crawl job pipeline.
type JobConfig struct {
	// Traverser crawls the seed. Required.
	Traverser Traverser

	// Store saves the finished run. Nil skips persistence.
	Store RunStore

	Logger *slog.Logger
}

// NewJob returns a pipeline that traverses and, when cfg.Store is set,
// persists the run.
func NewJob(cfg JobConfig) *Pipeline {
	p := New(WithLogger(cfg.Logger))
	p.AddSteps(NewTraverseStep(cfg.Traverser, cfg.Logger))
	if cfg.Store != nil {
		p.AddCleanupSteps(NewPersistStep(cfg.Store, cfg.Logger))
	}
	return p
}
