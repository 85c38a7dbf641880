package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/avchen/feedwright/internal/model"
)

// SQLiteStore is the local/dev backend, backed by the pure-Go
// modernc.org/sqlite driver (no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at path and runs the
// schema bootstrap.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(20)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		title TEXT,
		poll_interval INTEGER NOT NULL DEFAULT 3600,
		next_poll_at DATETIME,
		last_fetched_at DATETIME,
		last_status INTEGER,
		last_error TEXT
	);
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		guid TEXT,
		link TEXT,
		title TEXT,
		summary TEXT,
		content TEXT,
		published_at DATETIME,
		updated_at DATETIME,
		fetched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS entries_unique_guid ON entries(feed_id, guid);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ListDueFeeds(ctx context.Context, limit int) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, title, poll_interval, next_poll_at, last_fetched_at, last_status, last_error
		FROM feeds
		WHERE next_poll_at IS NULL OR next_poll_at <= CURRENT_TIMESTAMP
		ORDER BY next_poll_at IS NOT NULL, next_poll_at ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (s *SQLiteStore) RecordFetchSuccess(ctx context.Context, feedID int64, title string, status int, nextPollAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds
		SET title = ?, last_status = ?, last_fetched_at = CURRENT_TIMESTAMP,
		    last_error = NULL, next_poll_at = ?
		WHERE id = ?`, title, status, nextPollAt, feedID)
	return err
}

func (s *SQLiteStore) RecordFetchFailure(ctx context.Context, feedID int64, errText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE feeds
		SET last_status = NULL, last_error = ?, last_fetched_at = CURRENT_TIMESTAMP,
		    next_poll_at = datetime(CURRENT_TIMESTAMP, '+' || ? || ' seconds')
		WHERE id = ?`, errText, int(PenaltyInterval.Seconds()), feedID)
	return err
}

func (s *SQLiteStore) InsertEntry(ctx context.Context, entry model.Entry) (model.InsertOutcome, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (feed_id, guid, link, title, summary, content, published_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, guid) DO NOTHING`,
		entry.FeedID, entry.GUID, entry.Link, entry.Title, entry.Summary, entry.Content, entry.PublishedAt, entry.UpdatedAt)
	if err != nil {
		return model.InsertError, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return model.InsertError, err
	}
	if affected == 0 {
		return model.InsertDuplicate, nil
	}
	return model.InsertNew, nil
}

func (s *SQLiteStore) GetOrCreateFeed(ctx context.Context, url string, pollInterval time.Duration) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM feeds WHERE url = ?`, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO feeds (url, poll_interval, next_poll_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		url, int(pollInterval.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanFeed(rows *sql.Rows) (model.Feed, error) {
	var f model.Feed
	var pollSecs int
	var title, lastError sql.NullString
	var nextPollAt, lastFetchedAt sql.NullTime
	var lastStatus sql.NullInt64

	if err := rows.Scan(&f.ID, &f.URL, &title, &pollSecs, &nextPollAt, &lastFetchedAt, &lastStatus, &lastError); err != nil {
		return model.Feed{}, err
	}

	f.PollInterval = time.Duration(pollSecs) * time.Second
	if title.Valid {
		f.Title = &title.String
	}
	if nextPollAt.Valid {
		t := nextPollAt.Time
		f.NextPollAt = &t
	}
	if lastFetchedAt.Valid {
		t := lastFetchedAt.Time
		f.LastFetchedAt = &t
	}
	if lastStatus.Valid {
		v := int(lastStatus.Int64)
		f.LastStatus = &v
	}
	if lastError.Valid {
		f.LastError = &lastError.String
	}
	return f, nil
}
