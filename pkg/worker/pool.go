// Package worker provides the serial execution queues behind the coordinator.
//
// A Pool runs submitted jobs on a fixed number of goroutines. With a single
// worker the pool is a strictly ordered queue, which is how the root context
// serializes store-bound saves and how each non-root context orders its
// asynchronous saves.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/graphstack/pkg/logger"
)

var (
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
)

// ErrClosed is returned when submitting to a pool that has been closed.
var ErrClosed = errors.New("worker pool is closed")

// Job is a unit of work for the worker pool to execute.
type Job func()

// Config is the configuration options for the worker pool.
type Config struct {
	// Name identifies the pool in log output.
	Name string

	// NumWorkers is the number of background workers in the pool (defaults to
	// 1, a serial queue).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes jobs asynchronously via a worker pool.
type Pool struct {
	name   string
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed against concurrent submits during Close.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	wp := &Pool{
		name:   c.Name,
		queue:  make(chan Job, c.QueueSize),
		logger: log.With("pool", c.Name),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Submit queues a job, blocking while the queue is full. It returns ctx's
// error if ctx is done first, or ErrClosed once the pool is closed.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues a job without blocking.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) TrySubmit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Error("job not queued, pool closed, job dropped")
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued")
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped")
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Calling Close more than once is safe.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.run(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// run executes one job. A panicking job is logged and does not take the
// worker down with it.
func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "panic", r)
		}
	}()
	job()
}
