package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// RenderScheduler runs render jobs one at a time. Rasterization holds a full
// page bitmap in memory, so renders never overlap even across loads.
type RenderScheduler struct {
	sem *semaphore.Weighted
}

// NewRenderScheduler creates a scheduler that admits a single job at a time.
func NewRenderScheduler() *RenderScheduler {
	return &RenderScheduler{sem: semaphore.NewWeighted(1)}
}

// Do waits for the slot, runs fn and releases the slot. It returns ctx.Err()
// without running fn if ctx ends first.
func (s *RenderScheduler) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)
	return fn(ctx)
}
