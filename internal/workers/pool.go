package workers

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/depthrig/internal/logging"
)

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("workers: pool closed")

// Task is a unit of work.
type Task func()

// Pool runs submitted tasks on a fixed set of goroutines.
type Pool interface {
	// Submit enqueues a task. It never blocks.
	Submit(task Task) error

	// Running returns the number of tasks currently executing.
	Running() int

	// Queued returns the number of tasks waiting for a worker.
	Queued() int

	// Size returns the number of workers.
	Size() int

	// Wait blocks until every submitted task has finished.
	Wait()

	// Close stops accepting tasks, finishes the queued ones and stops the
	// workers.
	Close()
}

// pool implements the Pool interface.
type pool struct {
	size    int
	logger  logging.Logger
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	running int
	closed  bool
	idle    *sync.Cond
	wg      sync.WaitGroup
}

// NewPool creates and starts a pool.
func NewPool(opts *PoolOptions) Pool {
	size := 1
	var logger logging.Logger = slog.Default()
	if opts != nil {
		if opts.Workers > 1 {
			size = opts.Workers
		}
		if opts.Logger != nil {
			logger = opts.Logger
		}
	}

	p := &pool{size: size, logger: logger}
	p.cond = sync.NewCond(&p.mu)
	p.idle = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	logger.Debug("Worker pool started", "workers", size)
	return p
}

// Submit enqueues a task.
func (p *pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Running returns the number of executing tasks.
func (p *pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queued returns the number of waiting tasks.
func (p *pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Size returns the number of workers.
func (p *pool) Size() int { return p.size }

// Wait blocks until the queue is empty and no task is running.
func (p *pool) Wait() {
	p.mu.Lock()
	for len(p.queue) > 0 || p.running > 0 {
		p.idle.Wait()
	}
	p.mu.Unlock()
}

// Close drains the queue and stops the workers. It is safe to call more
// than once.
func (p *pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Worker pool stopped", "workers", p.size)
}

func (p *pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.mu.Unlock()

		p.run(id, task)

		p.mu.Lock()
		p.running--
		if p.running == 0 && len(p.queue) == 0 {
			p.idle.Broadcast()
		}
		p.mu.Unlock()
	}
}

func (p *pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", "worker", id, "panic", fmt.Sprint(r))
		}
	}()
	task()
}
