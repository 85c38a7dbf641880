package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/avchen/feedwright/internal/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedwright-test.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(s string) *string { return &s }

// TestInsertEntry_Uniqueness covers the Uniqueness property: inserting the
// same (feed_id, guid) twice only ever produces one row.
func TestInsertEntry_Uniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, err := s.GetOrCreateFeed(ctx, "https://example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreateFeed: %v", err)
	}

	entry := model.Entry{FeedID: feedID, GUID: ptr("urn:example:1"), Title: ptr("first")}

	outcome, err := s.InsertEntry(ctx, entry)
	if err != nil {
		t.Fatalf("first InsertEntry: %v", err)
	}
	if outcome != model.InsertNew {
		t.Fatalf("first insert outcome = %v, want InsertNew", outcome)
	}

	outcome, err = s.InsertEntry(ctx, entry)
	if err != nil {
		t.Fatalf("second InsertEntry: %v", err)
	}
	if outcome != model.InsertDuplicate {
		t.Fatalf("second insert outcome = %v, want InsertDuplicate", outcome)
	}
}

// TestInsertEntry_NullGUIDNotDeduped documents OQ-2's resolution: entries
// with a null guid are exempt from the uniqueness constraint and may
// accumulate multiple rows per feed.
func TestInsertEntry_NullGUIDNotDeduped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, err := s.GetOrCreateFeed(ctx, "https://example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreateFeed: %v", err)
	}

	entry := model.Entry{FeedID: feedID, Title: ptr("untitled")}

	for i := 0; i < 2; i++ {
		outcome, err := s.InsertEntry(ctx, entry)
		if err != nil {
			t.Fatalf("InsertEntry #%d: %v", i, err)
		}
		if outcome != model.InsertNew {
			t.Fatalf("InsertEntry #%d outcome = %v, want InsertNew", i, outcome)
		}
	}
}

// TestRecordFetchFailure_Penalty covers the Penalty-on-failure property: a
// TransportError advances next_poll_at by exactly PenaltyInterval.
func TestRecordFetchFailure_Penalty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	feedID, err := s.GetOrCreateFeed(ctx, "https://example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreateFeed: %v", err)
	}

	before := time.Now()
	if err := s.RecordFetchFailure(ctx, feedID, "connection refused"); err != nil {
		t.Fatalf("RecordFetchFailure: %v", err)
	}

	feeds, err := s.ListDueFeeds(ctx, 10)
	if err != nil {
		t.Fatalf("ListDueFeeds: %v", err)
	}
	for _, f := range feeds {
		if f.ID == feedID {
			t.Fatalf("failed feed should not be immediately due again: %+v", f)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, url, title, poll_interval, next_poll_at, last_fetched_at, last_status, last_error FROM feeds WHERE id = ?`, feedID)
	if err != nil {
		t.Fatalf("query feed: %v", err)
	}
	defer rows.Close()
	if !rows.Next() {
		t.Fatal("expected one row for feedID")
	}
	got, err := scanFeed(rows)
	if err != nil {
		t.Fatalf("scan feed: %v", err)
	}

	if got.NextPollAt == nil {
		t.Fatal("next_poll_at should be set after a failure")
	}
	delta := got.NextPollAt.Sub(before)
	if delta < PenaltyInterval-5*time.Second || delta > PenaltyInterval+5*time.Second {
		t.Errorf("next_poll_at delta = %v, want ~%v", delta, PenaltyInterval)
	}
	if got.LastError == nil || *got.LastError != "connection refused" {
		t.Errorf("last_error = %v, want \"connection refused\"", got.LastError)
	}
	if got.LastStatus != nil {
		t.Errorf("last_status = %v, want nil", got.LastStatus)
	}
}

// TestGetOrCreateFeed_Idempotent covers get-or-create by URL: calling it
// twice with the same URL returns the same feed ID.
func TestGetOrCreateFeed_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.GetOrCreateFeed(ctx, "https://example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("first GetOrCreateFeed: %v", err)
	}
	id2, err := s.GetOrCreateFeed(ctx, "https://example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("second GetOrCreateFeed: %v", err)
	}
	if id1 != id2 {
		t.Errorf("ids differ: %d != %d", id1, id2)
	}
}

// TestListDueFeeds_NullFirst covers the "next_poll_at = NULL scheduled
// first" boundary behavior.
func TestListDueFeeds_NullFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	past, err := s.GetOrCreateFeed(ctx, "https://past.example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreateFeed past: %v", err)
	}
	if err := s.RecordFetchSuccess(ctx, past, "past", 200, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("RecordFetchSuccess: %v", err)
	}

	nullFeedID, err := s.GetOrCreateFeed(ctx, "https://null.example.com/rss", time.Hour)
	if err != nil {
		t.Fatalf("GetOrCreateFeed null: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE feeds SET next_poll_at = NULL WHERE id = ?`, nullFeedID); err != nil {
		t.Fatalf("clear next_poll_at: %v", err)
	}

	feeds, err := s.ListDueFeeds(ctx, 10)
	if err != nil {
		t.Fatalf("ListDueFeeds: %v", err)
	}
	if len(feeds) < 2 {
		t.Fatalf("expected both feeds due, got %d", len(feeds))
	}
	if feeds[0].ID != nullFeedID {
		t.Errorf("first due feed = %d, want the null-scheduled feed %d", feeds[0].ID, nullFeedID)
	}
}
