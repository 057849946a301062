// Package pool provides the worker pool that bounds batch conversion
// concurrency and a buffer pool for mesh export scratch space.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned for submissions after Close.
var ErrPoolClosed = errors.New("pool is closed")

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context) error

// GoroutinePoolConfig sizes the worker pool.
type GoroutinePoolConfig struct {
	// MaxWorkers bounds concurrently running tasks.
	MaxWorkers int `json:"max_workers"`
	// QueueSize bounds tasks waiting for a worker.
	QueueSize int `json:"queue_size"`
	// IdleTimeout retires surplus workers between bursts. One worker is
	// always kept.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// PanicHandler observes recovered task panics.
	PanicHandler func(any) `json:"-"`
}

// DefaultGoroutinePoolConfig returns sizing suited to conversion work:
// a handful of CPU and memory heavy jobs at a time, with room to queue
// a batch behind them.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  8,
		QueueSize:   64,
		IdleTimeout: 60 * time.Second,
	}
}

// GoroutinePool runs submitted tasks on a bounded set of workers.
// Workers are spawned on demand up to MaxWorkers and retire after
// IdleTimeout without work.
type GoroutinePool struct {
	maxWorkers   int
	idleTimeout  time.Duration
	panicHandler func(any)

	mu     sync.RWMutex
	queue  chan submission
	closed bool

	workerCount atomic.Int32
	activeCount atomic.Int32
	wg          sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// submission carries one task to a worker. done receives the task error
// exactly once.
type submission struct {
	task Task
	ctx  context.Context
	done chan error
}

// NewGoroutinePool creates a stopped-state pool; workers appear with the
// first submission.
func NewGoroutinePool(config GoroutinePoolConfig) *GoroutinePool {
	def := DefaultGoroutinePoolConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = def.MaxWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = def.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}

	return &GoroutinePool{
		maxWorkers:   config.MaxWorkers,
		idleTimeout:  config.IdleTimeout,
		panicHandler: config.PanicHandler,
		queue:        make(chan submission, config.QueueSize),
	}
}

// SubmitWait runs task on a pool worker and blocks until it finishes or
// ctx is cancelled. A cancelled wait does not stop a task that already
// started.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	sub := submission{
		task: task,
		ctx:  ctx,
		done: make(chan error, 1),
	}

	if err := p.enqueue(ctx, sub); err != nil {
		return err
	}

	select {
	case err := <-sub.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue places the submission on the queue. The read lock keeps Close
// from closing the queue mid-send.
func (p *GoroutinePool) enqueue(ctx context.Context, sub submission) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.rejected.Add(1)
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	p.spawnIfNeeded()

	select {
	case p.queue <- sub:
		return nil
	case <-ctx.Done():
		p.rejected.Add(1)
		return ctx.Err()
	}
}

// spawnIfNeeded starts another worker unless the pool is at MaxWorkers.
func (p *GoroutinePool) spawnIfNeeded() {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case sub, ok := <-p.queue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.run(sub)
			p.activeCount.Add(-1)

			sub.done <- err
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.idleTimeout)

		case <-idle.C:
			// Retire this worker, keeping at least one alive for the
			// next burst.
			if p.workerCount.Load() > 1 {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

// run executes one task, converting a panic into an error.
func (p *GoroutinePool) run(sub submission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return sub.task(sub.ctx)
}

// Close rejects further submissions and waits for queued and running
// tasks to finish.
func (p *GoroutinePool) Close() {
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

// Stats returns a snapshot of pool counters.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats is a point-in-time view of pool activity.
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
