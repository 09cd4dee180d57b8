package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/glimage/pkg/ports"
	"go.uber.org/zap"
)

// ErrPoolStopped is returned by Do once the pool is shut down
var ErrPoolStopped = errors.New("inference worker is stopped")

// Task is executed by the worker. ctx is the pool's context, not the caller's,
// so a caller disconnecting does not interrupt a running task.
type Task func(ctx context.Context)

// Pool owns the single inference worker
type Pool struct {
	metrics ports.MetricsCollector
	logger  *zap.Logger
	health  *HealthMonitor

	jobs    chan *job
	waiting atomic.Int64
	worker  *worker
	started atomic.Bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// job is a task handed to the worker
type job struct {
	id      string
	task    Task
	caller  context.Context
	skipped bool
	done    chan struct{}
}

// worker represents the worker goroutine
type worker struct {
	id      string
	pool    *Pool
	status  WorkerStatus
	mu      sync.RWMutex
	lastJob time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new single-worker pool
func NewPool(metrics ports.MetricsCollector, logger *zap.Logger, healthCheckInterval time.Duration) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		metrics: metrics,
		logger:  logger,
		jobs:    make(chan *job),
		ctx:     ctx,
		cancel:  cancel,
	}
	pool.worker = &worker{
		id:     "inference-worker",
		pool:   pool,
		status: WorkerStatusStopped,
	}

	pool.health = NewHealthMonitor(pool, healthCheckInterval, logger)

	return pool
}

// Start starts the worker and the health monitor
func (p *Pool) Start() error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker pool already started")
	}

	p.worker.setStatus(WorkerStatusIdle)
	p.worker.lastJob = time.Now()

	p.wg.Add(1)
	go p.worker.run(p.ctx)

	p.health.Start()

	p.logger.Info("inference worker started", zap.String("worker_id", p.worker.id))
	return nil
}

// Shutdown stops accepting tasks and waits for the running task to finish
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down inference worker")

	p.health.Stop()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("inference worker shut down complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout")
	}
}

// Do hands task to the worker and blocks until it has run.
// It returns ctx.Err() if ctx ends before the worker starts the task, and
// ErrPoolStopped if the pool shuts down first.
func (p *Pool) Do(ctx context.Context, id string, task Task) error {
	j := &job{
		id:     id,
		task:   task,
		caller: ctx,
		done:   make(chan struct{}),
	}

	p.metrics.SetQueueDepth(int(p.waiting.Add(1)))
	defer func() {
		p.metrics.SetQueueDepth(int(p.waiting.Add(-1)))
	}()

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolStopped
	}

	<-j.done
	if j.skipped {
		return ctx.Err()
	}
	return nil
}

// QueueDepth returns the number of callers waiting on or running in the worker
func (p *Pool) QueueDepth() int {
	return int(p.waiting.Load())
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	return map[string]WorkerStatus{
		p.worker.id: p.worker.getStatus(),
	}
}

// Health returns the pool's health monitor
func (p *Pool) Health() *HealthMonitor {
	return p.health
}

// run is the main worker loop
func (w *worker) run(ctx context.Context) {
	defer w.pool.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.setStatus(WorkerStatusStopped)
			w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
			return
		case j := <-w.pool.jobs:
			w.execute(ctx, j)
		}
	}
}

// execute runs a single job
func (w *worker) execute(ctx context.Context, j *job) {
	defer close(j.done)

	if j.caller.Err() != nil {
		j.skipped = true
		w.pool.logger.Info("skipping generation, caller went away",
			zap.String("worker_id", w.id),
			zap.String("generation_id", j.id))
		return
	}

	w.mu.Lock()
	w.status = WorkerStatusBusy
	w.lastJob = time.Now()
	w.mu.Unlock()

	defer w.setStatus(WorkerStatusIdle)
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error("generation task panicked",
				zap.String("worker_id", w.id),
				zap.String("generation_id", j.id),
				zap.Any("panic", r))
		}
	}()

	j.task(ctx)
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.mu.Unlock()
}

func (w *worker) getStatus() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}
