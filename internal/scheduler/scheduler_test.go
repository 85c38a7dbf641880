package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/avchen/feedwright/internal/model"
)

// fakeStore is a minimal store.Store double that serves ListDueFeeds from an
// in-memory slice, once, then reports no more feeds due.
type fakeStore struct {
	mu      sync.Mutex
	batches [][]model.Feed
}

func (f *fakeStore) ListDueFeeds(ctx context.Context, limit int) ([]model.Feed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil, nil
	}
	next := f.batches[0]
	f.batches = f.batches[1:]
	if len(next) > limit {
		next = next[:limit]
	}
	return next, nil
}

func (f *fakeStore) RecordFetchSuccess(ctx context.Context, feedID int64, title string, status int, nextPollAt time.Time) error {
	return nil
}
func (f *fakeStore) RecordFetchFailure(ctx context.Context, feedID int64, errText string) error {
	return nil
}
func (f *fakeStore) InsertEntry(ctx context.Context, entry model.Entry) (model.InsertOutcome, error) {
	return model.InsertNew, nil
}
func (f *fakeStore) GetOrCreateFeed(ctx context.Context, url string, pollInterval time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeStore) Close() error { return nil }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestScheduler_EnqueuesDueFeeds covers the basic shape: a batch of due
// feeds is pushed onto the out channel in order.
func TestScheduler_EnqueuesDueFeeds(t *testing.T) {
	fs := &fakeStore{batches: [][]model.Feed{
		{{ID: 1, URL: "https://a.example.com/rss"}, {ID: 2, URL: "https://b.example.com/rss"}},
	}}

	out := make(chan model.Feed, 2)
	s := New(fs, out, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())

	var got []model.Feed
	go func() {
		got = append(got, <-out)
		got = append(got, <-out)
		cancel()
	}()

	s.Run(ctx)

	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("got %+v, want feeds 1 then 2", got)
	}
}

// TestScheduler_StopsOnCancel covers drain correctness: Run must return
// promptly once ctx is cancelled, even with no feeds due.
func TestScheduler_StopsOnCancel(t *testing.T) {
	fs := &fakeStore{}
	out := make(chan model.Feed)
	s := New(fs, out, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after context cancellation")
	}
}
