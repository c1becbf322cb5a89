// Package domain contains the core business entities and merge logic for the Leafmark reading tracker.
package domain

import (
	"fmt"
	"time"
)

// BookStatus is the reading state of a book.
type BookStatus string

const (
	// StatusReading means the book is in progress.
	StatusReading BookStatus = "reading"
	// StatusCompleted means the book has been finished.
	StatusCompleted BookStatus = "completed"
)

// Valid reports whether the status is one of the known values.
func (s BookStatus) Valid() bool {
	return s == StatusReading || s == StatusCompleted
}

// Book represents a tracked title in the local library.
//
// The ID is device-local and opaque; it is never comparable across devices.
// Cross-device identity is the natural key (Title, TotalPages), see BookKey.
type Book struct {
	StartDate    time.Time  `json:"start_date"`
	LastReadDate time.Time  `json:"last_read_date"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       BookStatus `json:"status"`
	TotalPages   int        `json:"total_pages"`

	// CurrentPage is derived from the book's log history (page of the
	// latest-dated log, 0 if none). It is persisted for display but is
	// always recomputed after a merge, never trusted from a snapshot.
	CurrentPage int `json:"current_page"`
}

// BookKey is the natural key identifying the same logical book across devices.
//
// Two devices that register the same title with the same page count before
// ever syncing are talking about the same book, so titles are matched
// byte-for-byte with no normalization. Introducing minted global IDs here
// would silently change merge semantics.
type BookKey struct {
	Title      string
	TotalPages int
}

// Key returns the book's natural key.
func (b *Book) Key() BookKey {
	return BookKey{Title: b.Title, TotalPages: b.TotalPages}
}

// String renders the key for logging.
func (k BookKey) String() string {
	return fmt.Sprintf("%q/%dp", k.Title, k.TotalPages)
}

// Validate checks the book's own invariants.
func (b *Book) Validate() error {
	if b.Title == "" {
		return fmt.Errorf("book title cannot be empty")
	}
	if b.TotalPages <= 0 {
		return fmt.Errorf("book %q: total pages must be positive, got %d", b.Title, b.TotalPages)
	}
	if !b.Status.Valid() {
		return fmt.Errorf("book %q: unknown status %q", b.Title, b.Status)
	}
	return nil
}

// UnionBooks combines two versions of the same logical book into one.
//
// The result keeps the receiver's identity (local ID) and takes the earliest
// start date, the latest last-read date, and completed status if either side
// has finished the book. The rule is idempotent and commutative, so merge
// order between two devices never matters. The returned bool reports whether
// the union differs from local.
func UnionBooks(local, foreign Book) (Book, bool) {
	merged := local

	if foreign.StartDate.Before(local.StartDate) {
		merged.StartDate = foreign.StartDate
	}
	if foreign.LastReadDate.After(local.LastReadDate) {
		merged.LastReadDate = foreign.LastReadDate
	}
	if foreign.Status == StatusCompleted {
		merged.Status = StatusCompleted
	}

	changed := !merged.StartDate.Equal(local.StartDate) ||
		!merged.LastReadDate.Equal(local.LastReadDate) ||
		merged.Status != local.Status
	return merged, changed
}
