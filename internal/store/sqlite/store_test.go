package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(dbPath, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBook(id, title string, pages int) *domain.Book {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Book{
		ID:           id,
		Title:        title,
		TotalPages:   pages,
		StartDate:    now,
		LastReadDate: now,
		Status:       domain.StatusReading,
	}
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)

	// Verify WAL mode is set.
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected wal, got %s", journalMode)
	}

	// Verify tables exist.
	for _, table := range []string{"books", "reading_logs"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestAddBookNaturalKeyUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	// Same natural key, different id.
	err := s.AddBook(ctx, testBook("bk-2", "Dune", 412))
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	// Same title, different page count is a different book.
	if err := s.AddBook(ctx, testBook("bk-3", "Dune", 500)); err != nil {
		t.Errorf("different natural key should insert: %v", err)
	}
}

func TestUpdateBookPartial(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	completed := domain.StatusCompleted
	page := 412
	err := s.UpdateBook(ctx, "bk-1", store.BookUpdate{Status: &completed, CurrentPage: &page})
	if err != nil {
		t.Fatalf("update book: %v", err)
	}

	b, err := s.GetBook(ctx, "bk-1")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if b.Status != domain.StatusCompleted {
		t.Errorf("expected completed, got %s", b.Status)
	}
	if b.CurrentPage != 412 {
		t.Errorf("expected page 412, got %d", b.CurrentPage)
	}
	// Untouched fields survive.
	if b.Title != "Dune" || b.TotalPages != 412 {
		t.Errorf("partial update clobbered other fields: %+v", b)
	}

	if err := s.UpdateBook(ctx, "bk-missing", store.BookUpdate{Status: &completed}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddLogPageBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	good := &domain.ReadingLog{ID: "log-1", BookID: "bk-1", Page: 100, Date: time.Now().UTC()}
	if err := s.AddLog(ctx, good); err != nil {
		t.Fatalf("add log: %v", err)
	}

	over := &domain.ReadingLog{ID: "log-2", BookID: "bk-1", Page: 500, Date: time.Now().UTC()}
	if err := s.AddLog(ctx, over); !errors.Is(err, store.ErrPageOutOfRange) {
		t.Errorf("expected ErrPageOutOfRange, got %v", err)
	}
}

func TestAddLogDayDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	morning := time.Date(2024, 3, 7, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 3, 7, 22, 0, 0, 0, time.UTC)

	if err := s.AddLog(ctx, &domain.ReadingLog{ID: "log-1", BookID: "bk-1", Page: 100, Date: morning}); err != nil {
		t.Fatalf("add log: %v", err)
	}
	err := s.AddLog(ctx, &domain.ReadingLog{ID: "log-2", BookID: "bk-1", Page: 100, Date: evening})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("same page same day should collide, got %v", err)
	}
}

func TestListLogsSortedByDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	days := []int{9, 3, 6}
	for i, d := range days {
		log := &domain.ReadingLog{
			ID:     "log-" + string(rune('a'+i)),
			BookID: "bk-1",
			Page:   50 * (i + 1),
			Date:   time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC),
		}
		if err := s.AddLog(ctx, log); err != nil {
			t.Fatalf("add log: %v", err)
		}
	}

	logs, err := s.ListLogsForBook(ctx, "bk-1")
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	for i := 1; i < len(logs); i++ {
		if logs[i].Date.Before(logs[i-1].Date) {
			t.Errorf("logs not sorted ascending: %v before %v", logs[i].Date, logs[i-1].Date)
		}
	}
}

func TestRunInTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.InsertBook(testBook("bk-1", "Dune", 412)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	books, err := s.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 0 {
		t.Errorf("rollback should leave no books, got %d", len(books))
	}
}

func TestTxNaturalKeyLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}
	logDate := time.Date(2024, 3, 7, 8, 0, 0, 0, time.UTC)
	if err := s.AddLog(ctx, &domain.ReadingLog{ID: "log-1", BookID: "bk-1", Page: 100, Date: logDate}); err != nil {
		t.Fatalf("add log: %v", err)
	}

	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		b, err := tx.FindBookByKey(domain.BookKey{Title: "Dune", TotalPages: 412})
		if err != nil {
			return err
		}
		if b == nil || b.ID != "bk-1" {
			t.Errorf("expected bk-1, got %+v", b)
		}

		missing, err := tx.FindBookByKey(domain.BookKey{Title: "Dune", TotalPages: 999})
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("expected nil for absent key, got %+v", missing)
		}

		has, err := tx.HasLog("bk-1", 100, "2024-03-07")
		if err != nil {
			return err
		}
		if !has {
			t.Error("expected log for page 100 on 2024-03-07")
		}

		has, err = tx.HasLog("bk-1", 100, "2024-03-08")
		if err != nil {
			return err
		}
		if has {
			t.Error("different day should not match")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

// InsertLog inside a transaction must accept pages beyond the book's total:
// imported history is taken as-is.
func TestTxInsertLogSkipsPageBound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddBook(ctx, testBook("bk-1", "Dune", 412)); err != nil {
		t.Fatalf("add book: %v", err)
	}

	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.InsertLog(&domain.ReadingLog{
			ID:     "log-over",
			BookID: "bk-1",
			Page:   9999,
			Date:   time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("merge-path insert should not enforce page bound: %v", err)
	}
}

// Two transactions writing at the same time must serialize on the write
// lock rather than fail with a busy error mid-transaction.
func TestRunInTransactionSerializesWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entered := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.RunInTransaction(ctx, func(tx store.Tx) error {
			close(entered)
			// Hold the write lock while the second writer queues up.
			time.Sleep(150 * time.Millisecond)
			return tx.InsertBook(testBook("bk-1", "Dune", 412))
		})
	}()

	<-entered
	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		return tx.InsertBook(testBook("bk-2", "Hyperion", 482))
	})
	if err != nil {
		t.Fatalf("second writer should wait, not fail: %v", err)
	}
	if err := <-firstDone; err != nil {
		t.Fatalf("first writer: %v", err)
	}

	books, err := s.ListBooks(ctx)
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(books) != 2 {
		t.Errorf("expected both writes to land, got %d books", len(books))
	}
}
