package batch

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Outcome carries either a result or an error for one subject.
type Outcome struct {
	Result *SubjectResult
	Err    *SubjectError
}

// WorkerPool evaluates subjects on a fixed number of goroutines and reports
// every outcome on a single channel.
type WorkerPool struct {
	workers    int
	bufferSize int
	queue      chan models.Subject
	outcomes   chan Outcome
	group      errgroup.Group
	startOnce  sync.Once
}

// NewWorkerPool creates a pool. workers <= 0 means runtime.NumCPU() and
// bufferSize <= 0 means twice the worker count.
func NewWorkerPool(workers, bufferSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if bufferSize <= 0 {
		bufferSize = workers * 2
	}
	return &WorkerPool{
		workers:    workers,
		bufferSize: bufferSize,
		queue:      make(chan models.Subject, bufferSize),
		outcomes:   make(chan Outcome, bufferSize),
	}
}

// Start launches the workers once. Workers drain the queue until Close;
// ctx is handed to process and bounds outcome delivery.
func (p *WorkerPool) Start(ctx context.Context, process func(context.Context, models.Subject) (*SubjectResult, error)) {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.group.Go(func() error {
				for subject := range p.queue {
					var o Outcome
					if result, err := process(ctx, subject); err != nil {
						o.Err = &SubjectError{Subject: subject, Message: err.Error()}
					} else {
						o.Result = result
					}
					select {
					case p.outcomes <- o:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				return nil
			})
		}
	})
}

// Submit queues a subject, or returns ctx's error if it is done first.
func (p *WorkerPool) Submit(ctx context.Context, subject models.Subject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- subject:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting subjects, waits for the workers and then closes the
// outcome channel.
func (p *WorkerPool) Close() {
	close(p.queue)
	_ = p.group.Wait()
	close(p.outcomes)
}

// Outcomes yields one entry per processed subject until Close.
func (p *WorkerPool) Outcomes() <-chan Outcome {
	return p.outcomes
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int {
	return p.workers
}
