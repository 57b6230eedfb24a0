package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// PoolConfig holds configuration options for the local pool
type PoolConfig struct {
	// WorkerCount defaults to 1 when not positive
	WorkerCount int
	// QueueSize defaults to 256 when not positive
	QueueSize int
}

// Pool is the in-process dispatch queue. Scheduled work lives only in
// memory and is lost on restart.
type Pool struct {
	runner      Runner
	tasks       chan string
	workerCount int

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewPool(runner Runner, cfg PoolConfig, log zerolog.Logger) *Pool {
	log = log.With().Str("component", "worker_pool").Logger()
	workers := cfg.WorkerCount
	if workers <= 0 {
		log.Warn().Int("specified_count", cfg.WorkerCount).Msg("invalid worker count, using 1")
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		runner:      runner,
		tasks:       make(chan string, size),
		workerCount: workers,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	p.log.Info().Int("workers", p.workerCount).Msg("starting worker pool")
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
}

// Schedule queues a task id without blocking.
func (p *Pool) Schedule(_ context.Context, taskID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.tasks <- taskID:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(p.tasks))
	}
}

// Stop refuses new work, lets workers drain what is queued and waits.
// Running dispatches see a cancelled context.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for taskID := range p.tasks {
		if err := p.runner.Dispatch(p.ctx, taskID); err != nil {
			p.log.Error().Err(err).Int("worker", id).Str("task_id", taskID).Msg("dispatch failed")
		}
	}
}
