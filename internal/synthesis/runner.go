package synthesis

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by Submit when every queue slot is taken
	ErrQueueFull = errors.New("synthesis queue is full")
	// ErrRunnerStopped is returned by Submit after Stop
	ErrRunnerStopped = errors.New("synthesis runner is stopped")
)

// JobFunc processes one job. ctx is cancelled when the runner stops.
type JobFunc func(ctx context.Context, jobID string)

// Runner is a fixed pool of workers consuming a bounded job queue
type Runner struct {
	fn      JobFunc
	queue   chan string
	workers int
	logger  *zap.Logger

	mu       sync.RWMutex
	started  bool
	stopped  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// NewRunner creates a runner with the given pool and queue sizes
func NewRunner(workers, queueSize int, fn JobFunc, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		fn:      fn,
		queue:   make(chan string, queueSize),
		workers: workers,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Calling it twice has no effect.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.work(ctx, i)
	}
	r.logger.Info("synthesis runner started", zap.Int("workers", r.workers), zap.Int("queue_size", cap(r.queue)))
}

func (r *Runner) work(ctx context.Context, worker int) {
	defer r.wg.Done()
	for jobID := range r.queue {
		// Jobs left in the queue at shutdown stay queued in storage and are
		// picked up again on the next start.
		if ctx.Err() != nil {
			continue
		}
		r.logger.Debug("synthesis job picked up", zap.Int("worker", worker), zap.String("job_id", jobID))
		r.fn(ctx, jobID)
	}
}

// Submit enqueues a job without blocking
func (r *Runner) Submit(jobID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRunnerStopped
	}

	select {
	case r.queue <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Enqueue blocks until the job is queued, ctx is done or the runner stops
func (r *Runner) Enqueue(ctx context.Context, jobID string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRunnerStopped
	}

	select {
	case r.queue <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrRunnerStopped
	}
}

// Pending returns the number of queued, not yet started jobs
func (r *Runner) Pending() int {
	return len(r.queue)
}

// Stop cancels running jobs, drains the queue and waits for the workers
func (r *Runner) Stop() {
	// release blocked Enqueue callers before taking the write lock
	r.stopOnce.Do(func() { close(r.done) })

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.queue)
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.logger.Info("synthesis runner stopped")
}
