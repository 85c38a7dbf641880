// Package ingest wires the fetch and writer worker pools around the
// scheduler's fetch queue and the pools' own write queue, and owns the
// shutdown drain sequence.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avchen/feedwright/internal/fetcher"
	"github.com/avchen/feedwright/internal/feedparse"
	"github.com/avchen/feedwright/internal/metrics"
	"github.com/avchen/feedwright/internal/model"
	"github.com/avchen/feedwright/internal/scheduler"
	"github.com/avchen/feedwright/internal/store"
)

// Config controls pool sizing and the success-path poll interval.
type Config struct {
	FetchWorkers int
	WriteWorkers int
	DefaultPoll  time.Duration
	FetchQueue   int
	WriteQueue   int
}

// Pipeline is the Supervisor: it owns the fetch and write queues, starts
// the scheduler and both worker pools, and drains them in order on
// shutdown.
type Pipeline struct {
	cfg     Config
	store   store.Store
	fetcher *fetcher.Fetcher
	parser  *feedparse.Parser
	logger  *slog.Logger
	metrics *metrics.Metrics

	fetchQueue chan model.Feed
	writeQueue chan model.WriteTask
}

// New wires a Pipeline over an already-open Store.
func New(cfg Config, s store.Store, f *fetcher.Fetcher, p *feedparse.Parser, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.FetchQueue < cfg.FetchWorkers {
		cfg.FetchQueue = cfg.FetchWorkers
	}
	if cfg.WriteQueue < 10*cfg.WriteWorkers {
		cfg.WriteQueue = 10 * cfg.WriteWorkers
	}

	return &Pipeline{
		cfg:        cfg,
		store:      s,
		fetcher:    f,
		parser:     p,
		logger:     logger,
		metrics:    m,
		fetchQueue: make(chan model.Feed, cfg.FetchQueue),
		writeQueue: make(chan model.WriteTask, cfg.WriteQueue),
	}
}

// Run starts the scheduler and both worker pools and blocks until ctx is
// cancelled, then drains scheduler -> fetch workers -> write workers ->
// closes the Store, in that order, before returning.
//
// Go channels make the pipeline's "sentinel" shutdown signal (spec:
// "enqueue exactly M sentinels") unnecessary: closing a queue broadcasts
// completion to every remaining consumer in one step, which is the
// direct idiomatic equivalent and is what each stage below does.
func (p *Pipeline) Run(ctx context.Context) {
	var writeWG sync.WaitGroup
	writeWG.Add(p.cfg.WriteWorkers)
	for i := 0; i < p.cfg.WriteWorkers; i++ {
		go func() {
			defer writeWG.Done()
			p.runWriter(ctx)
		}()
	}

	var fetchWG sync.WaitGroup
	fetchWG.Add(p.cfg.FetchWorkers)
	for i := 0; i < p.cfg.FetchWorkers; i++ {
		go func() {
			defer fetchWG.Done()
			p.runFetchWorker(ctx)
		}()
	}

	sched := scheduler.New(p.store, p.fetchQueue, p.logger)
	sched.Run(ctx) // blocks until ctx is cancelled

	close(p.fetchQueue)
	fetchWG.Wait()

	close(p.writeQueue)
	writeWG.Wait()

	if err := p.store.Close(); err != nil {
		p.logger.Error("store close failed", slog.Any("error", err))
	}
}

// runFetchWorker drains the fetch queue until it is closed and empty.
// Any error or panic in a single task is contained here and logged; the
// worker always continues to the next task.
func (p *Pipeline) runFetchWorker(ctx context.Context) {
	for feed := range p.fetchQueue {
		p.handleFeed(ctx, feed)
	}
}

func (p *Pipeline) handleFeed(ctx context.Context, feed model.Feed) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fetch worker panic", slog.String("url", feed.URL), slog.Any("panic", r))
		}
	}()

	result, err := p.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		p.metrics.RecordFetch("failure")
		if recErr := p.store.RecordFetchFailure(ctx, feed.ID, err.Error()); recErr != nil {
			p.logger.Error("record fetch failure failed", slog.String("url", feed.URL), slog.Any("error", recErr))
		}
		p.logger.Error("fetch failed", slog.String("url", feed.URL), slog.Any("error", err))
		return
	}

	parsed := p.parser.Parse(result.Body)

	nextPoll := time.Now().Add(p.cfg.DefaultPoll)
	if err := p.store.RecordFetchSuccess(ctx, feed.ID, parsed.Title, result.Status, nextPoll); err != nil {
		p.logger.Error("record fetch success failed", slog.String("url", feed.URL), slog.Any("error", err))
	}
	p.metrics.RecordFetch("success")

	for _, e := range parsed.Entries {
		e.FeedID = feed.ID
		task := model.WriteTask{FeedID: feed.ID, Entry: e}
		select {
		case p.writeQueue <- task:
		case <-ctx.Done():
			return
		}
	}

	p.logger.Info("feed fetched",
		slog.String("url", feed.URL),
		slog.Int("entries", len(parsed.Entries)),
		slog.Bool("lenient", parsed.Lenient))
}

// runWriter consumes write tasks until the queue is closed and empty. It
// holds no Store connection of its own: each InsertEntry call takes a
// connection from the backend's pool and returns it before the next task.
func (p *Pipeline) runWriter(ctx context.Context) {
	for task := range p.writeQueue {
		p.writeOne(ctx, task)
	}
}

func (p *Pipeline) writeOne(ctx context.Context, task model.WriteTask) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("writer panic", slog.Int64("feed_id", task.FeedID), slog.Any("panic", r))
		}
	}()

	outcome, err := p.store.InsertEntry(ctx, task.Entry)
	switch {
	case err != nil:
		p.metrics.RecordWrite("error")
		p.logger.Error("insert entry failed", slog.Int64("feed_id", task.FeedID), slog.Any("error", err))
	case outcome == model.InsertDuplicate:
		p.metrics.RecordWrite("duplicate")
	default:
		p.metrics.RecordWrite("inserted")
	}
}
