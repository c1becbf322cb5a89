package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

// logColumns is the ordered list of columns selected in reading log queries.
// Must match the scan order in scanLog.
const logColumns = `id, book_id, date, page`

// scanLog scans a sql.Row (or sql.Rows via its Scan method) into a domain.ReadingLog.
func scanLog(scanner interface{ Scan(dest ...any) error }) (*domain.ReadingLog, error) {
	var l domain.ReadingLog

	var date string
	err := scanner.Scan(&l.ID, &l.BookID, &date, &l.Page)
	if err != nil {
		return nil, err
	}

	l.Date, err = parseTime(date)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// AddLog inserts a reading log from live user entry.
// It enforces the page bound against the owning book: imported history is
// exempt from this check, manual entry is not.
// Returns store.ErrNotFound for an unknown book and store.ErrAlreadyExists
// when a log for the same page and day already exists.
func (s *Store) AddLog(ctx context.Context, log *domain.ReadingLog) error {
	if err := log.Validate(); err != nil {
		return err
	}

	book, err := s.GetBook(ctx, log.BookID)
	if err != nil {
		return err
	}
	if log.Page > book.TotalPages {
		return store.ErrPageOutOfRange
	}

	_, err = s.db.ExecContext(ctx, insertLogSQL,
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

// ListLogsForBook returns all logs for a book ordered by date ascending.
func (s *Store) ListLogsForBook(ctx context.Context, bookID string) ([]*domain.ReadingLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM reading_logs WHERE book_id = ? ORDER BY date`,
		bookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectLogs(rows)
}

// insertLogSQL is shared between the direct and transactional insert paths.
const insertLogSQL = `
	INSERT INTO reading_logs (id, book_id, date, day, page)
	VALUES (?, ?, ?, ?, ?)`

// collectLogs drains a result set of reading logs.
func collectLogs(rows *sql.Rows) ([]*domain.ReadingLog, error) {
	var logs []*domain.ReadingLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}
