package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

// RunInTransaction runs fn against a single database transaction.
// Every write made through the Tx commits together or not at all. This is
// the merge engine's atomicity and mutual-exclusion boundary: a concurrent
// import blocks on SQLite's single writer rather than interleaving.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// tx implements store.Tx over a *sql.Tx.
type tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// FindBookByKey looks a book up by its natural key.
// Returns nil, nil when no book matches.
func (t *tx) FindBookByKey(key domain.BookKey) (*domain.Book, error) {
	row := t.tx.QueryRowContext(t.ctx,
		`SELECT `+bookColumns+` FROM books WHERE title = ? AND total_pages = ?`,
		key.Title, key.TotalPages,
	)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// InsertBook inserts a book inside the transaction.
func (t *tx) InsertBook(book *domain.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx, insertBookSQL,
		book.ID,
		book.Title,
		book.TotalPages,
		formatTime(book.StartDate),
		formatTime(book.LastReadDate),
		string(book.Status),
		book.CurrentPage,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateBook applies a partial update inside the transaction.
func (t *tx) UpdateBook(id string, upd store.BookUpdate) error {
	query, args := buildBookUpdate(id, upd)
	if query == "" {
		return nil
	}

	result, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// HasLog reports whether a log with the natural key (bookID, page, day)
// already exists.
func (t *tx) HasLog(bookID string, page int, day string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT 1 FROM reading_logs WHERE book_id = ? AND page = ? AND day = ?`,
		bookID, page, day,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertLog inserts a log preserving its exact timestamp. The page bound is
// deliberately not checked here: the merge engine accepts out-of-range
// historical data, only live entry rejects it.
func (t *tx) InsertLog(log *domain.ReadingLog) error {
	if err := log.Validate(); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx, insertLogSQL,
		log.ID,
		log.BookID,
		formatTime(log.Date),
		domain.DayOf(log.Date),
		log.Page,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// LogsForBook returns the book's full log history, date ascending.
func (t *tx) LogsForBook(bookID string) ([]*domain.ReadingLog, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT `+logColumns+` FROM reading_logs WHERE book_id = ? ORDER BY date`,
		bookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLogs(rows)
}
