// Package store defines the persistence contract the sync engine runs against.
//
// The merge engine never talks to a database directly; it composes the
// primitives below inside one RunInTransaction call, which is the only
// mutual-exclusion boundary in the system. A second import attempted while a
// merge transaction is open waits on (or is rejected by) that transaction.
package store

import (
	"context"
	"time"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
)

// BookUpdate carries partial field updates for a book. Nil fields are left
// untouched.
type BookUpdate struct {
	StartDate    *time.Time
	LastReadDate *time.Time
	Status       *domain.BookStatus
	CurrentPage  *int
}

// Store is the record store the sync subsystem collaborates with.
type Store interface {
	// ListBooks returns every book in the library.
	ListBooks(ctx context.Context) ([]*domain.Book, error)

	// ListLogsForBook returns a book's logs sorted by date ascending.
	ListLogsForBook(ctx context.Context, bookID string) ([]*domain.ReadingLog, error)

	// AddBook inserts a new book. Returns ErrAlreadyExists if the natural
	// key (title, total pages) is already present: one book per natural key
	// per device.
	AddBook(ctx context.Context, book *domain.Book) error

	// UpdateBook applies a partial update. Returns ErrNotFound for an
	// unknown id.
	UpdateBook(ctx context.Context, id string, upd BookUpdate) error

	// AddLog inserts a reading log from live user entry. Unlike the
	// transactional InsertLog, it enforces page <= the book's total pages.
	AddLog(ctx context.Context, log *domain.ReadingLog) error

	// RunInTransaction runs fn atomically: every write made through tx
	// commits together or not at all.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx exposes the store primitives inside a transaction, plus the
// natural-key lookups the merge engine needs.
type Tx interface {
	// FindBookByKey looks a book up by natural key. Returns nil, nil when
	// absent.
	FindBookByKey(key domain.BookKey) (*domain.Book, error)

	// InsertBook inserts a book without touching its derived progress.
	InsertBook(book *domain.Book) error

	// UpdateBook applies a partial update inside the transaction.
	UpdateBook(id string, upd BookUpdate) error

	// HasLog reports whether a log with the natural key
	// (bookID, page, UTC day) already exists.
	HasLog(bookID string, page int, day string) (bool, error)

	// InsertLog inserts a log as-is. No page-bound check: imported history
	// is accepted even when it exceeds the book's page count.
	InsertLog(log *domain.ReadingLog) error

	// LogsForBook returns the book's full log history, date ascending.
	LogsForBook(bookID string) ([]*domain.ReadingLog, error)
}
