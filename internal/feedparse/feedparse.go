// Package feedparse decodes RSS 2.0 and Atom 1.0 payloads into the
// pipeline's normalized entry shape.
package feedparse

import (
	"bytes"

	"github.com/mmcdole/gofeed"

	"github.com/avchen/feedwright/internal/model"
)

// Parser wraps gofeed's universal RSS/Atom parser. It is safe for
// concurrent use by multiple fetch workers: gofeed's parsers keep state
// while parsing, so each Parse call uses its own gofeed.Parser.
type Parser struct{}

// New returns a ready-to-use Parser.
func New() *Parser {
	return &Parser{}
}

// Parse decodes payload and returns the feed's title plus its entries.
//
// A payload gofeed cannot make sense of at all yields a zero-entry,
// lenient result rather than an error: the engine treats an unparseable
// document as a successful fetch with nothing new to write, never as a
// TransportError or write failure.
func (p *Parser) Parse(payload []byte) model.ParsedFeed {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil || feed == nil {
		return model.ParsedFeed{Lenient: true}
	}

	entries := make([]model.Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entries = append(entries, toEntry(item))
	}

	return model.ParsedFeed{Title: feed.Title, Entries: entries}
}

func toEntry(item *gofeed.Item) model.Entry {
	e := model.Entry{
		GUID:        nonEmpty(item.GUID),
		Link:        nonEmpty(item.Link),
		Title:       nonEmpty(item.Title),
		Summary:     nonEmpty(item.Description),
		PublishedAt: item.PublishedParsed,
		UpdatedAt:   item.UpdatedParsed,
	}

	if len(item.Content) > 0 {
		e.Content = nonEmpty(item.Content)
	}

	return e
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
