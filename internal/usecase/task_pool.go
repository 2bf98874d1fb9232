package usecase

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"aegis/internal/domain"
	"aegis/internal/infrastructure"
)

// Task is one unit of on-demand work; ctx is cancelled when the pool stops
type Task func(ctx context.Context)

// TaskPool runs submitted tasks on a fixed number of workers behind a
// bounded queue
type TaskPool struct {
	workers int
	tasks   chan Task
	metrics *infrastructure.Metrics

	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// NewTaskPool creates a pool with the given worker count and queue size
func NewTaskPool(workers, queueSize int, metrics *infrastructure.Metrics) *TaskPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &TaskPool{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		metrics: metrics,
	}
}

// Start launches the workers; tasks queued earlier run once they are up
func (p *TaskPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Submit queues a task without blocking
func (p *TaskPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return domain.ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		p.metrics.AddScanTasks(1)
		return nil
	default:
		return domain.ErrPoolSaturated
	}
}

// Stop rejects new tasks, cancels running ones and waits for the workers.
// Tasks still queued are handed a cancelled context.
func (p *TaskPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if !started {
		for range p.tasks {
			p.metrics.AddScanTasks(-1)
		}
		return
	}
	p.wg.Wait()
}

// Pending returns the number of queued tasks
func (p *TaskPool) Pending() int {
	return len(p.tasks)
}

func (p *TaskPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(ctx, id, task)
	}
}

func (p *TaskPool) run(ctx context.Context, id int, task Task) {
	defer p.metrics.AddScanTasks(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Interface("panic", r).Msg("scan task panicked")
		}
	}()
	task(ctx)
}
