// Package model defines the shared data structures of the ingestion pipeline.
package model

import "time"

// Feed is a registered RSS/Atom source.
type Feed struct {
	ID            int64
	URL           string
	Title         *string
	PollInterval  time.Duration
	NextPollAt    *time.Time
	LastFetchedAt *time.Time
	LastStatus    *int
	LastError     *string
}

// Entry is a single item parsed out of a Feed.
type Entry struct {
	FeedID      int64
	GUID        *string
	Link        *string
	Title       *string
	Summary     *string
	Content     *string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
}

// ParsedFeed is the output of the parse stage: the feed's own title plus
// the entries it currently advertises.
type ParsedFeed struct {
	Title   string
	Entries []Entry
	Lenient bool // true when the payload could not be parsed at all (Entries is then empty); a payload that parses is never marked lenient, even if some items are malformed
}

// InsertOutcome is the result of attempting to persist one Entry.
type InsertOutcome int

const (
	InsertError InsertOutcome = iota
	InsertNew
	InsertDuplicate
)

// WriteTask carries one entry from a FetchWorker to the WriterPool.
type WriteTask struct {
	FeedID int64
	Entry  Entry
}
