// Package workers provides a bounded worker pool for parallel filesystem
// work, used by the session cleanup path to overwrite many files at once.
package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Job is one unit of work submitted to the pool.
type Job func(ctx context.Context) error

// Pool fans submitted jobs out over a fixed number of workers. Job errors
// are collected, not fatal - a wipe pass keeps going past an unwritable
// file and reports the failures afterwards.
type Pool struct {
	jobs       chan Job
	maxWorkers int
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	errors     []error
	errorsMu   sync.Mutex
	logger     arbor.ILogger
}

// NewPool creates a worker pool with maxWorkers workers.
func NewPool(maxWorkers int, logger arbor.ILogger) *Pool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		jobs:       make(chan Job, maxWorkers*2),
		maxWorkers: maxWorkers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit queues a job. Fails only once the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Wait closes the queue and blocks until every submitted job has finished.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

// Errors returns the errors collected from failed jobs.
func (p *Pool) Errors() []error {
	p.errorsMu.Lock()
	defer p.errorsMu.Unlock()
	return p.errors
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job(p.ctx); err != nil {
				p.errorsMu.Lock()
				p.errors = append(p.errors, err)
				p.errorsMu.Unlock()

				p.logger.Debug().Err(err).Int("worker_id", id).Msg("Pool job failed")
			}
		case <-p.ctx.Done():
			return
		}
	}
}
