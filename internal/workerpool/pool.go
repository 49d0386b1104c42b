// Package workerpool runs tasks on a fixed number of goroutines.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work.
type Task struct {
	ID      string
	Fn      func(context.Context) error
	Context context.Context
}

// Pool runs submitted tasks on a bounded set of workers. Accepted tasks always
// run, even when Stop is called while they are still queued.
type Pool struct {
	name      string
	workers   int
	queueSize int
	queue     chan Task
	logger    *zap.Logger

	mu      sync.RWMutex
	stopped bool

	workersWG sync.WaitGroup
	pending   sync.WaitGroup
	stopOnce  sync.Once

	active    atomic.Int32
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// Config holds pool configuration.
type Config struct {
	Name      string
	Workers   int
	QueueSize int
	Logger    *zap.Logger
}

// New starts a pool.
func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		name:      cfg.Name,
		workers:   cfg.Workers,
		queueSize: cfg.QueueSize,
		queue:     make(chan Task, cfg.QueueSize),
		logger:    cfg.Logger,
	}

	for i := 0; i < p.workers; i++ {
		p.workersWG.Add(1)
		go p.worker(i)
	}

	p.logger.Debug("worker pool started",
		zap.String("name", p.name),
		zap.Int("workers", p.workers),
		zap.Int("queue_size", p.queueSize))

	return p
}

func (p *Pool) worker(id int) {
	defer p.workersWG.Done()
	for task := range p.queue {
		p.run(id, task)
	}
}

func (p *Pool) run(workerID int, task Task) {
	defer p.pending.Done()
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	err := p.safeRun(task)
	duration := time.Since(start)

	if err != nil {
		p.failed.Add(1)
		p.logger.Error("task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	p.completed.Add(1)
	p.logger.Debug("task completed",
		zap.String("pool", p.name),
		zap.String("task_id", task.ID),
		zap.Duration("duration", duration))
}

func (p *Pool) safeRun(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	ctx := task.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return task.Fn(ctx)
}

// enqueue holds the read lock so Stop cannot close the queue mid-send.
func (p *Pool) enqueue(ctx context.Context, task Task, block bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		p.rejected.Add(1)
		return fmt.Errorf("worker pool '%s' is stopped", p.name)
	}

	p.pending.Add(1)
	if block {
		select {
		case p.queue <- task:
			p.submitted.Add(1)
			return nil
		case <-ctx.Done():
			p.pending.Done()
			p.rejected.Add(1)
			return ctx.Err()
		}
	}

	select {
	case p.queue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.pending.Done()
		p.rejected.Add(1)
		return fmt.Errorf("worker pool '%s' queue is full", p.name)
	}
}

// Submit queues a task without blocking. It fails when the queue is full or
// the pool is stopped.
func (p *Pool) Submit(task Task) error {
	return p.enqueue(context.Background(), task, false)
}

// SubmitWithContext blocks until the task is queued or ctx is done.
func (p *Pool) SubmitWithContext(ctx context.Context, task Task) error {
	return p.enqueue(ctx, task, true)
}

// Wait blocks until every accepted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop rejects new tasks, lets queued ones finish and waits up to timeout
// for the workers to exit.
func (p *Pool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()

		done := make(chan struct{})
		go func() {
			p.workersWG.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Debug("worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("worker pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

// Stats returns a snapshot of pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Name:           p.name,
		Workers:        p.workers,
		ActiveWorkers:  int(p.active.Load()),
		QueueSize:      p.queueSize,
		QueuedTasks:    len(p.queue),
		SubmittedTasks: p.submitted.Load(),
		CompletedTasks: p.completed.Load(),
		FailedTasks:    p.failed.Load(),
		RejectedTasks:  p.rejected.Load(),
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Name           string `json:"name"`
	Workers        int    `json:"workers"`
	ActiveWorkers  int    `json:"active_workers"`
	QueueSize      int    `json:"queue_size"`
	QueuedTasks    int    `json:"queued_tasks"`
	SubmittedTasks uint64 `json:"submitted_tasks"`
	CompletedTasks uint64 `json:"completed_tasks"`
	FailedTasks    uint64 `json:"failed_tasks"`
	RejectedTasks  uint64 `json:"rejected_tasks"`
}

// SuccessRate is the percentage of submitted tasks that completed without error.
func (s Stats) SuccessRate() float64 {
	if s.SubmittedTasks == 0 {
		return 100.0
	}
	return float64(s.CompletedTasks) / float64(s.SubmittedTasks) * 100.0
}
