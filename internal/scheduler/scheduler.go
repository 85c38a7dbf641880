// Package scheduler selects due feeds from the Store and feeds them onto
// the fetch queue, at a bounded rate. It holds no schedule state of its
// own: all due-time truth lives in the Store, so the scheduler is
// restart-safe.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/avchen/feedwright/internal/model"
	"github.com/avchen/feedwright/internal/store"
)

const (
	batchSize  = 500
	emptySleep = 10 * time.Second
	tickSleep  = 1 * time.Second
)

// Scheduler repeatedly selects due feeds and enqueues them.
type Scheduler struct {
	store  store.Store
	out    chan<- model.Feed
	logger *slog.Logger
}

// New returns a Scheduler that pushes due feeds onto out.
func New(s store.Store, out chan<- model.Feed, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: s, out: out, logger: logger}
}

// Run blocks until ctx is cancelled. Each tick selects at most batchSize
// due feeds and pushes them onto the fetch queue, blocking if it's full —
// that block is the pipeline's primary backpressure lever. An empty
// batch backs off for emptySleep; a non-empty batch is followed by a
// short tickSleep to bound the Store query rate.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started")
	defer s.logger.Info("scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		feeds, err := s.store.ListDueFeeds(ctx, batchSize)
		if err != nil {
			s.logger.Error("list due feeds failed", slog.Any("error", err))
			if !sleep(ctx, emptySleep) {
				return
			}
			continue
		}

		if len(feeds) == 0 {
			if !sleep(ctx, emptySleep) {
				return
			}
			continue
		}

		s.logger.Info("feeds due", slog.Int("count", len(feeds)))
		for _, f := range feeds {
			select {
			case s.out <- f:
			case <-ctx.Done():
				return
			}
		}

		if !sleep(ctx, tickSleep) {
			return
		}
	}
}

// sleep waits for d or ctx cancellation, reporting whether it completed
// its full duration.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
