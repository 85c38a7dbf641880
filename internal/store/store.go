// Package store persists the feed registry and its entries and enforces
// entry deduplication. Two backends satisfy the same contract: a
// pure-Go SQLite store for local development and a PostgreSQL store
// (via a bounded pgx pool) for production.
package store

import (
	"context"
	"time"

	"github.com/avchen/feedwright/internal/model"
)

// Store is the contract the scheduler, fetch workers, and writer pool
// drive the engine through. Every method acquires its own connection
// from the backend's bounded pool and releases it before returning; no
// caller, the WriterPool workers included, holds a connection between
// calls (see internal/ingest).
type Store interface {
	// ListDueFeeds returns up to limit feeds whose NextPollAt is null or
	// not in the future, nulls first, ordered by NextPollAt ascending.
	ListDueFeeds(ctx context.Context, limit int) ([]model.Feed, error)

	// RecordFetchSuccess sets title, last_status, last_fetched_at=now,
	// clears last_error, and advances next_poll_at.
	RecordFetchSuccess(ctx context.Context, feedID int64, title string, status int, nextPollAt time.Time) error

	// RecordFetchFailure clears last_status, records errText, sets
	// last_fetched_at=now, and advances next_poll_at by the penalty
	// interval regardless of the feed's configured poll interval.
	RecordFetchFailure(ctx context.Context, feedID int64, errText string) error

	// InsertEntry upserts entry, ignoring a conflict on entries_unique_guid.
	InsertEntry(ctx context.Context, entry model.Entry) (model.InsertOutcome, error)

	// GetOrCreateFeed returns the ID of the feed registered under url,
	// creating it with pollInterval and next_poll_at=now when absent. An
	// existing row is returned unchanged: its poll_interval and
	// next_poll_at are not updated. The engine itself never calls this.
	GetOrCreateFeed(ctx context.Context, url string, pollInterval time.Duration) (int64, error)

	Close() error
}

// PenaltyInterval is the fixed delay applied to next_poll_at after a
// TransportError, independent of the feed's configured poll interval.
const PenaltyInterval = time.Hour
