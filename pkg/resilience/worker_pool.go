package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrWorkerPoolClosed = errors.New("worker pool is closed")
	ErrWorkerPoolFull   = errors.New("worker pool queue is full")
)

// WorkerPool runs jobs on a fixed set of goroutines fed by a bounded queue.
type WorkerPool struct {
	jobs     chan func()
	mu       sync.RWMutex
	closed   bool
	once     sync.Once
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &WorkerPool{
		jobs: make(chan func(), queueSize),
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}

	return p
}

func (p *WorkerPool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.inFlight.Add(1)
		job()
		p.inFlight.Add(-1)
	}
}

// Submit blocks until the job is queued, ctx is done or the pool closes.
func (p *WorkerPool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// TrySubmit queues job only if there is room right now.
func (p *WorkerPool) TrySubmit(job func()) error {
	if job == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrWorkerPoolClosed
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrWorkerPoolFull
	}
}

// Queued returns the number of jobs waiting for a worker.
func (p *WorkerPool) Queued() int {
	return len(p.jobs)
}

// InFlight returns the number of jobs currently running.
func (p *WorkerPool) InFlight() int {
	return int(p.inFlight.Load())
}

// Close stops accepting jobs. Queued jobs still run.
func (p *WorkerPool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})
}

// Shutdown closes the pool and waits for queued jobs until ctx is done.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
