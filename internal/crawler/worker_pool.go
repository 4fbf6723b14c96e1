package crawler

import (
	"context"
	"errors"
	"sync"
)

type job func(ctx context.Context)

// workerPool runs fetch jobs on a fixed set of goroutines with a bounded
// queue. The engine owns exactly one pool per run.
type workerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
}

func newWorkerPool(parent context.Context, concurrency, queueSize int) (*workerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &workerPool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queueSize),
	}
	for i := 0; i < concurrency; i++ {
		pool.wg.Add(1)
		go func() {
			defer pool.wg.Done()
			for {
				select {
				case <-pool.ctx.Done():
					return
				case fn, ok := <-pool.jobs:
					if !ok {
						return
					}
					fn(pool.ctx)
				}
			}
		}()
	}
	return pool, nil
}

// submit schedules a job, failing if either context cancels first.
func (p *workerPool) submit(ctx context.Context, fn job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- fn:
		return nil
	}
}

// close stops the workers. In-flight jobs observe the cancelled context.
func (p *workerPool) close() {
	p.cancel()
	close(p.jobs)
	p.wg.Wait()
}
