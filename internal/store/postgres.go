package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avchen/feedwright/internal/model"
)

// pgUniqueViolation is the constraint-violation SQLSTATE Postgres raises;
// used only to distinguish "ON CONFLICT DO NOTHING already handled this"
// paths from genuine errors, in case a caller bypasses the upsert helpers.
const pgUniqueViolation = "23505"

// PGStore is the production backend: a bounded pgxpool.Pool gives the
// explicit Acquire/Release semantics the Store contract describes,
// rather than database/sql's implicit pooling.
type PGStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a bounded connection pool against dsn (a
// postgres://... DSN) and runs the schema bootstrap. maxConns mirrors the
// "recommended max 20" pool size from the Store contract.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	s := &PGStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS feeds (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		poll_interval INTEGER NOT NULL DEFAULT 3600,
		next_poll_at TIMESTAMPTZ,
		last_fetched_at TIMESTAMPTZ,
		last_status INTEGER,
		last_error TEXT
	);
	CREATE TABLE IF NOT EXISTS entries (
		id BIGSERIAL PRIMARY KEY,
		feed_id BIGINT NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		guid TEXT,
		link TEXT,
		title TEXT,
		summary TEXT,
		content TEXT,
		published_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS entries_unique_guid ON entries(feed_id, guid) WHERE guid IS NOT NULL;
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PGStore) ListDueFeeds(ctx context.Context, limit int) ([]model.Feed, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, title, poll_interval, next_poll_at, last_fetched_at, last_status, last_error
		FROM feeds
		WHERE next_poll_at IS NULL OR next_poll_at <= now()
		ORDER BY next_poll_at NULLS FIRST
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		var f model.Feed
		var pollSecs int32
		if err := rows.Scan(&f.ID, &f.URL, &f.Title, &pollSecs, &f.NextPollAt, &f.LastFetchedAt, &f.LastStatus, &f.LastError); err != nil {
			return nil, err
		}
		f.PollInterval = time.Duration(pollSecs) * time.Second
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (s *PGStore) RecordFetchSuccess(ctx context.Context, feedID int64, title string, status int, nextPollAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE feeds
		SET title = $1, last_status = $2, last_fetched_at = now(), last_error = NULL, next_poll_at = $3
		WHERE id = $4`, title, status, nextPollAt, feedID)
	return err
}

func (s *PGStore) RecordFetchFailure(ctx context.Context, feedID int64, errText string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE feeds
		SET last_status = NULL, last_error = $1, last_fetched_at = now(),
		    next_poll_at = now() + make_interval(secs => $2)
		WHERE id = $3`, errText, PenaltyInterval.Seconds(), feedID)
	return err
}

func (s *PGStore) InsertEntry(ctx context.Context, entry model.Entry) (model.InsertOutcome, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO entries (feed_id, guid, link, title, summary, content, published_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (feed_id, guid) WHERE guid IS NOT NULL DO NOTHING`,
		entry.FeedID, entry.GUID, entry.Link, entry.Title, entry.Summary, entry.Content, entry.PublishedAt, entry.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.InsertDuplicate, nil
		}
		return model.InsertError, err
	}
	if tag.RowsAffected() == 0 {
		return model.InsertDuplicate, nil
	}
	return model.InsertNew, nil
}

func (s *PGStore) GetOrCreateFeed(ctx context.Context, url string, pollInterval time.Duration) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `SELECT id FROM feeds WHERE url = $1`, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO feeds (url, poll_interval, next_poll_at) VALUES ($1, $2, now())
		RETURNING id`, url, int(pollInterval.Seconds())).Scan(&id)
	return id, err
}
