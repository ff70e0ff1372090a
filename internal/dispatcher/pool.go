package dispatcher

import (
	"context"
	"errors"
	"sync"
)

var ErrPoolStopped = errors.New("worker_pool_stopped")

// Pool is a fixed-size worker pool. It is constructed explicitly and
// owned by the caller; Stop drains in-flight work but the pool never
// interrupts a running task.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPool starts size workers. The submission queue is bounded at the
// same size so a saturated pool rejects instead of queueing unbounded work.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{tasks: make(chan func(), size)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit enqueues a task, failing immediately when the pool is stopped
// or saturated.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		p.mu.Unlock()
		return nil
	default:
		p.mu.Unlock()
		return errors.New("worker_pool_saturated")
	}
}

// Stop closes the pool and waits for in-flight work to drain, or until
// ctx is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
