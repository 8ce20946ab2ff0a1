package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// queueDepthPerWorker sizes the task queue of a Pool.
// Submission blocks once the queue is full; extraction tasks never submit
// further work, so a full queue always drains.
const queueDepthPerWorker = 64

// Task is a unit of work run by a Pool worker.
// Tasks observe cancellation through the context they captured.
type Task func()

// Pool runs submitted tasks on a fixed number of worker goroutines.
// A Pool is owned by a Crawler and reused by every traversal.
type Pool struct {
	// name identifies the pool in logs and errors ("fetch" or "extract").
	name string

	// workers is the number of worker goroutines.
	workers int

	tasks chan Task

	// ctx is cancelled by Close and stops the workers.
	ctx    context.Context
	cancel context.CancelFunc

	// group joins the worker goroutines on Close.
	group errgroup.Group

	// mu orders Submit against Close: Submit holds it shared while it
	// enqueues, Close holds it exclusively while flipping closed.
	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	logger    *slog.Logger
}

// NewPool starts a pool with the given number of workers.
func NewPool(name string, workers int, logger *slog.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%s pool: %w", name, ErrInvalidPoolSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		name:    name,
		workers: workers,
		tasks:   make(chan Task, workers*queueDepthPerWorker),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("pool", name),
	}

	for id := range workers {
		p.group.Go(func() error {
			p.work(id)
			return nil
		})
	}

	p.logger.Debug("pool started", "workers", workers)
	return p, nil
}

// work is the loop of one worker goroutine.
func (p *Pool) work(id int) {
	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("worker stopped", "worker", id)
			return
		case task := <-p.tasks:
			p.run(task)
		}
	}
}

// run executes task. A panic is logged and dropped so that one broken task
// cannot take the worker down; callers that need to see faults wrap their
// tasks themselves.
func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("task fault", "error", fmt.Errorf("%s pool: %w: %v", p.name, ErrTaskPanic, r))
		}
	}()
	task()
}

// Submit enqueues task. It blocks while the queue is full and gives up when
// ctx is done or the pool is closed. A task is either accepted, and will
// run exactly once, or rejected with an error.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Close stops accepting tasks, stops the workers and runs whatever was still
// queued on the calling goroutine. Queued tasks are expected to notice that
// their context is cancelled and return at once; running them keeps every
// accepted task's cleanup (barrier arrival, gate release) intact.
// Close is idempotent.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		_ = p.group.Wait() //nolint:errcheck // workers always return nil

		drained := 0
		for {
			select {
			case task := <-p.tasks:
				p.run(task)
				drained++
			default:
				p.logger.Debug("pool closed", "drained", drained)
				return
			}
		}
	})
}
