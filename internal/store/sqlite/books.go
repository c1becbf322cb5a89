package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

// bookColumns is the ordered list of columns selected in book queries.
// Must match the scan order in scanBook.
const bookColumns = `id, title, total_pages, start_date, last_read_date, status, current_page`

// scanBook scans a sql.Row (or sql.Rows via its Scan method) into a domain.Book.
func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var b domain.Book

	var (
		startDate    string
		lastReadDate string
		status       string
	)

	err := scanner.Scan(
		&b.ID,
		&b.Title,
		&b.TotalPages,
		&startDate,
		&lastReadDate,
		&status,
		&b.CurrentPage,
	)
	if err != nil {
		return nil, err
	}

	b.StartDate, err = parseTime(startDate)
	if err != nil {
		return nil, err
	}
	b.LastReadDate, err = parseTime(lastReadDate)
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookStatus(status)

	return &b, nil
}

// AddBook inserts a new book into the library.
// Returns store.ErrAlreadyExists on a duplicate id or natural key.
func (s *Store) AddBook(ctx context.Context, book *domain.Book) error {
	if err := book.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, insertBookSQL,
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

// UpdateBook applies a partial update to an existing book.
// Returns store.ErrNotFound if the book does not exist.
func (s *Store) UpdateBook(ctx context.Context, id string, upd store.BookUpdate) error {
	query, args := buildBookUpdate(id, upd)
	if query == "" {
		return nil
	}

	result, err := s.db.ExecContext(ctx, query, args...)
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

// GetBook retrieves a single book by id.
// Returns store.ErrNotFound if the book does not exist.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBooks returns every book in the library ordered by title.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY title, total_pages`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

// insertBookSQL is shared between the direct and transactional insert paths.
const insertBookSQL = `
	INSERT INTO books (
		id, title, total_pages, start_date, last_read_date, status, current_page
	) VALUES (?, ?, ?, ?, ?, ?, ?)`

// buildBookUpdate assembles an UPDATE statement from the non-nil fields.
// Returns an empty query when there is nothing to update.
func buildBookUpdate(id string, upd store.BookUpdate) (string, []any) {
	var (
		sets []string
		args []any
	)

	if upd.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, formatTime(*upd.StartDate))
	}
	if upd.LastReadDate != nil {
		sets = append(sets, "last_read_date = ?")
		args = append(args, formatTime(*upd.LastReadDate))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.CurrentPage != nil {
		sets = append(sets, "current_page = ?")
		args = append(args, *upd.CurrentPage)
	}

	if len(sets) == 0 {
		return "", nil
	}

	args = append(args, id)
	return `UPDATE books SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`, args
}
