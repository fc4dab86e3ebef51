// Package workers provides a bounded worker pool for concurrent operations
// in quickscope. It supports blocking job submission, intake rate limiting
// and graceful shutdown, and logs through the structured logging package.
package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/quickscope/internal/logging"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to the Job interface.
type JobFunc func(ctx context.Context) error

// Execute implements the Job interface.
func (f JobFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// RateLimit is the maximum number of submissions per second (0 = no limit).
	RateLimit int
	// ShutdownTimeout is how long Close waits before logging that workers
	// are still busy. Close always waits for workers to exit.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            1024,
		QueueSize:       1024,
		RateLimit:       0,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
}

// Pool manages a fixed set of worker goroutines draining a shared queue.
type Pool struct {
	config      Config
	jobs        chan Job
	wg          sync.WaitGroup
	done        chan struct{}
	rateLimiter *time.Ticker
	logger      *logging.Logger
	startOnce   sync.Once
	closeOnce   sync.Once
	closing     chan struct{}
	mu          sync.RWMutex

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a new worker pool with the given configuration. Non-positive
// sizes fall back to the defaults.
func New(config Config) *Pool {
	defaults := DefaultConfig()
	if config.Size <= 0 {
		config.Size = defaults.Size
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Size
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	pool := &Pool{
		config:  config,
		jobs:    make(chan Job, config.QueueSize),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
		logger:  logging.Default().WithComponent("workers"),
	}

	// Set up rate limiter if configured
	if config.RateLimit > 0 {
		interval := time.Second / time.Duration(config.RateLimit)
		if interval <= 0 {
			interval = time.Nanosecond
		}
		pool.rateLimiter = time.NewTicker(interval)
	}

	return pool
}

// Config returns the effective pool configuration.
func (p *Pool) Config() Config {
	return p.config
}

// Start launches the workers. Jobs receive ctx; the pool does not cancel it.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.logger.Debug("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize,
			"rate_limit", p.config.RateLimit)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}

		go func() {
			p.wg.Wait()
			close(p.done)
		}()
	})
}

// Submit queues a job, blocking while the queue is full. It returns ctx's
// error if ctx ends first and ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := p.wait(ctx); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.closing:
		return ErrPoolClosed
	default:
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return ErrPoolClosed
	}
}

// wait applies the rate limit, if any.
func (p *Pool) wait(ctx context.Context) error {
	if p.rateLimiter == nil {
		return nil
	}
	select {
	case <-p.rateLimiter.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closing:
		return ErrPoolClosed
	}
}

// Close stops accepting jobs, lets the workers drain what is queued and
// waits for them to exit.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closing)

		// Wait out any Submit holding the read lock before closing the queue.
		p.mu.Lock()
		close(p.jobs)
		p.mu.Unlock()

		if p.rateLimiter != nil {
			p.rateLimiter.Stop()
		}
	})

	// A pool that was never started has nothing to wait for.
	p.startOnce.Do(func() { close(p.done) })

	select {
	case <-p.done:
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker pool shutdown is taking longer than expected",
			"timeout", p.config.ShutdownTimeout)
		<-p.done
	}
	p.logger.Debug("Worker pool shutdown completed")
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		if err := job.Execute(ctx); err != nil {
			p.failed.Add(1)
			p.logger.Debug("Job failed", "worker_id", id, "error", err)
			continue
		}
		p.completed.Add(1)
	}
}
