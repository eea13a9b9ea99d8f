package dispatch

import (
	"context"
	"log"
	"sync"

	"github.com/datasetu-labs/metaforge/internal/core"
)

// InlineScheduler runs the pipeline synchronously on the caller's goroutine.
// Submit does not return until the job has a terminal state, which keeps
// tests and small CLI deployments free of background machinery.
type InlineScheduler struct {
	process core.ProcessFunc
}

func NewInlineScheduler(process core.ProcessFunc) *InlineScheduler {
	return &InlineScheduler{process: process}
}

func (s *InlineScheduler) Schedule(ctx context.Context, task core.Task) error {
	s.process(ctx, task)
	return nil
}

// PoolScheduler hands tasks to a fixed in-process worker pool over a buffered
// channel. Schedule blocks once the buffer fills, which is the natural
// backpressure for a single-node deployment.
type PoolScheduler struct {
	process core.ProcessFunc
	tasks   chan core.Task
	wg      sync.WaitGroup
}

const poolQueueDepth = 64

func NewPoolScheduler(process core.ProcessFunc) *PoolScheduler {
	return &PoolScheduler{
		process: process,
		tasks:   make(chan core.Task, poolQueueDepth),
	}
}

// Start launches the workers. They drain until ctx is cancelled.
func (s *PoolScheduler) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-s.tasks:
					log.Printf("dispatch: worker %d picked up %s", id, task.Digest)
					s.process(ctx, task)
				}
			}
		}(i)
	}
}

func (s *PoolScheduler) Schedule(ctx context.Context, task core.Task) error {
	select {
	case s.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all workers have exited. Call after cancelling the
// context passed to Start.
func (s *PoolScheduler) Wait() {
	s.wg.Wait()
}
