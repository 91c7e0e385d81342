package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/billforge/billforge/pkg/observability"
)

// ErrQueueFull is returned when the runner's task queue is at capacity
var ErrQueueFull = errors.New("job queue full")

// ErrRunnerStopped is returned when submitting to a stopped runner
var ErrRunnerStopped = errors.New("job runner stopped")

// Task is a unit of background work submitted to the Runner
type Task func(ctx context.Context) error

type queuedTask struct {
	name string
	fn   Task
}

// Runner executes triggered jobs on a bounded queue. A trigger handler that
// gets a nil error from Submit has an accepted job, not a completed one; the
// job-run ledger is the source of truth for actual completion.
type Runner struct {
	logger       *observability.Logger
	taskTimeout  time.Duration
	workCh       chan queuedTask
	doneCh       chan struct{}
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewRunner creates a runner with the given queue capacity and worker count
func NewRunner(ctx context.Context, workers, queueSize int, taskTimeout time.Duration, logger *observability.Logger) *Runner {
	ctx, cancel := context.WithCancel(ctx)

	r := &Runner{
		logger:      logger,
		taskTimeout: taskTimeout,
		workCh:      make(chan queuedTask, queueSize),
		doneCh:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				r.worker(id)
			}(i)
		}
		wg.Wait()
		close(r.doneCh)
	}()

	return r
}

// Submit queues a task for execution. Returns ErrQueueFull when the queue is
// at capacity rather than blocking the caller.
func (r *Runner) Submit(name string, fn Task) (err error) {
	// A Submit racing Shutdown can send on the closed queue channel.
	defer func() {
		if recover() != nil {
			err = ErrRunnerStopped
		}
	}()

	select {
	case <-r.doneCh:
		return ErrRunnerStopped
	default:
	}

	select {
	case r.workCh <- queuedTask{name: name, fn: fn}:
		return nil
	case <-r.doneCh:
		return ErrRunnerStopped
	default:
		return ErrQueueFull
	}
}

// Shutdown drains queued tasks and waits up to timeout for workers to finish
func (r *Runner) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	r.shutdownOnce.Do(func() {
		close(r.workCh)

		select {
		case <-r.doneCh:
			r.cancel()
		case <-time.After(timeout):
			r.cancel()
			shutdownErr = fmt.Errorf("job runner shutdown timed out after %v", timeout)
		}
	})

	return shutdownErr
}

func (r *Runner) worker(id int) {
	for {
		select {
		case <-r.ctx.Done():
			return

		case task, ok := <-r.workCh:
			if !ok {
				return
			}
			r.runOne(task)
		}
	}
}

func (r *Runner) runOne(task queuedTask) {
	ctx, cancel := context.WithTimeout(r.ctx, r.taskTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(map[string]interface{}{
				"job":   task.name,
				"panic": fmt.Sprintf("%v", rec),
				"stack": string(debug.Stack()),
			}).Error("panic in background job")
		}
	}()

	if err := task.fn(ctx); err != nil {
		r.logger.WithField("job", task.name).WithError(err).Error("background job failed")
	}
}
