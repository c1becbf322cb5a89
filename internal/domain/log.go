package domain

import (
	"fmt"
	"time"
)

// ReadingLog records that the reader was at a page on a given date.
// Logs are immutable once created and are deleted only alongside their book.
type ReadingLog struct {
	Date   time.Time `json:"date"`
	ID     string    `json:"id"`
	BookID string    `json:"book_id"`
	Page   int       `json:"page"`
}

// LogKey is the natural key of a reading session across devices: same book,
// same page, same calendar day. The day bucket (rather than the exact
// timestamp) absorbs clock skew between devices that logged the same session.
type LogKey struct {
	Book BookKey
	Day  string
	Page int
}

// Key returns the log's natural key under its owning book's key.
func (l *ReadingLog) Key(owner BookKey) LogKey {
	return LogKey{Book: owner, Page: l.Page, Day: DayOf(l.Date)}
}

// DayOf returns the UTC calendar day of t in YYYY-MM-DD form.
// All day-bucketed comparisons go through this so both devices agree on
// which day a timestamp belongs to regardless of local zone.
func DayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Validate checks the log's own invariants. The page-within-book bound is a
// live-entry concern checked at the store boundary, not here: imported
// history may legitimately exceed a book's page count.
func (l *ReadingLog) Validate() error {
	if l.BookID == "" {
		return fmt.Errorf("log must reference a book")
	}
	if l.Page < 0 {
		return fmt.Errorf("log page cannot be negative, got %d", l.Page)
	}
	if l.Date.IsZero() {
		return fmt.Errorf("log date cannot be zero")
	}
	return nil
}

// Progress returns the derived current page for a book given its full log
// history: the page of the latest-dated log, or 0 with no logs. Imports can
// interleave logs from two histories, so this is recomputed after every
// merge instead of trusting any carried value.
func Progress(logs []*ReadingLog) int {
	var (
		latest time.Time
		page   int
	)
	for _, l := range logs {
		if l.Date.After(latest) {
			latest = l.Date
			page = l.Page
		}
	}
	return page
}
