package merge

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/store/sqlite"
)

func newTestEngine(t *testing.T) (*Engine, *sqlite.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, logger), st
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 9, 30, 0, 0, time.UTC)
}

func foreignBook(id, title string, pages int, status domain.BookStatus, start, last time.Time) *domain.Book {
	return &domain.Book{
		ID:           id,
		Title:        title,
		TotalPages:   pages,
		StartDate:    start,
		LastReadDate: last,
		Status:       status,
	}
}

func foreignLog(id, bookID string, date time.Time, page int) *domain.ReadingLog {
	return &domain.ReadingLog{ID: id, BookID: bookID, Date: date, Page: page}
}

func TestMergeIntoEmptyLibrary(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	books := []*domain.Book{
		foreignBook("remote-1", "Hyperion", 482, domain.StatusReading, day(1), day(4)),
	}
	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-1", day(2), 60),
		foreignLog("rlog-2", "remote-1", day(4), 151),
	}

	res, err := eng.Merge(ctx, books, logs)
	require.NoError(t, err)
	assert.Equal(t, Result{BooksAdded: 1, LogsAdded: 2}, res)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.NotEqual(t, "remote-1", stored[0].ID, "foreign ids must not leak into the local store")
	assert.Equal(t, 151, stored[0].CurrentPage)

	// Re-running the identical snapshot adds nothing.
	res, err = eng.Merge(ctx, books, logs)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestMergeDuneScenario(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	local := foreignBook("bk-local", "Dune", 412, domain.StatusReading, day(1), day(1))
	require.NoError(t, st.AddBook(ctx, local))
	require.NoError(t, st.AddLog(ctx, foreignLog("log-local", "bk-local", day(1), 100)))

	books := []*domain.Book{
		foreignBook("remote-dune", "Dune", 412, domain.StatusCompleted, day(1), day(3)),
	}
	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-dune", day(1).Add(5*time.Hour), 100),
		foreignLog("rlog-2", "remote-dune", day(3), 412),
	}

	res, err := eng.Merge(ctx, books, logs)
	require.NoError(t, err)
	assert.Equal(t, Result{BooksAdded: 0, LogsAdded: 1}, res, "day-1 log dedups, day-3 log lands")

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.StatusCompleted, stored[0].Status)
	assert.Equal(t, 412, stored[0].CurrentPage)

	history, err := st.ListLogsForBook(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMergeUnionTakesEarliestStartAndLatestRead(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	local := foreignBook("bk-local", "Solaris", 204, domain.StatusReading, day(5), day(10))
	require.NoError(t, st.AddBook(ctx, local))

	books := []*domain.Book{
		foreignBook("remote-1", "Solaris", 204, domain.StatusReading, day(2), day(7)),
	}
	_, err := eng.Merge(ctx, books, nil)
	require.NoError(t, err)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].StartDate.Equal(day(2)), "earliest start wins")
	assert.True(t, stored[0].LastReadDate.Equal(day(10)), "latest read wins")
	assert.Equal(t, domain.StatusReading, stored[0].Status)
}

func TestMergeCommutative(t *testing.T) {
	snapA := func() ([]*domain.Book, []*domain.ReadingLog) {
		return []*domain.Book{
				foreignBook("a-1", "Dune", 412, domain.StatusReading, day(1), day(2)),
			}, []*domain.ReadingLog{
				foreignLog("a-log-1", "a-1", day(2), 80),
			}
	}
	snapB := func() ([]*domain.Book, []*domain.ReadingLog) {
		return []*domain.Book{
				foreignBook("b-1", "Dune", 412, domain.StatusCompleted, day(3), day(6)),
				foreignBook("b-2", "Hyperion", 482, domain.StatusReading, day(4), day(5)),
			}, []*domain.ReadingLog{
				foreignLog("b-log-1", "b-1", day(6), 412),
				foreignLog("b-log-2", "b-2", day(5), 30),
			}
	}

	type bookFacts struct {
		start, last time.Time
		status      domain.BookStatus
		page        int
		logs        int
	}

	run := func(t *testing.T, first, second func() ([]*domain.Book, []*domain.ReadingLog)) map[domain.BookKey]bookFacts {
		eng, st := newTestEngine(t)
		ctx := context.Background()

		b, l := first()
		_, err := eng.Merge(ctx, b, l)
		require.NoError(t, err)
		b, l = second()
		_, err = eng.Merge(ctx, b, l)
		require.NoError(t, err)

		stored, err := st.ListBooks(ctx)
		require.NoError(t, err)
		facts := make(map[domain.BookKey]bookFacts, len(stored))
		for _, book := range stored {
			logs, err := st.ListLogsForBook(ctx, book.ID)
			require.NoError(t, err)
			facts[book.Key()] = bookFacts{
				start:  book.StartDate,
				last:   book.LastReadDate,
				status: book.Status,
				page:   book.CurrentPage,
				logs:   len(logs),
			}
		}
		return facts
	}

	ab := run(t, snapA, snapB)
	ba := run(t, snapB, snapA)
	assert.Equal(t, ab, ba, "merge order between two devices must not matter")
}

func TestMergeEmptySnapshotIsNoop(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, st.AddBook(ctx, foreignBook("bk-local", "Dune", 412, domain.StatusReading, day(1), day(1))))

	res, err := eng.Merge(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestMergeSkipsLogWithUnresolvedBook(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-ghost", day(1), 10),
	}
	res, err := eng.Merge(ctx, nil, logs)
	require.NoError(t, err, "a stray log must not fail the import")
	assert.Equal(t, Result{}, res)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestMergeAcceptsOutOfRangeHistoricalLog(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	// A foreign device may carry logs past the local page count, for example
	// after an edition change. Imported history is kept as-is.
	books := []*domain.Book{
		foreignBook("remote-1", "Dune", 412, domain.StatusReading, day(1), day(2)),
	}
	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-1", day(2), 500),
	}

	res, err := eng.Merge(ctx, books, logs)
	require.NoError(t, err)
	assert.Equal(t, Result{BooksAdded: 1, LogsAdded: 1}, res)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, 500, stored[0].CurrentPage)
}

func TestMergeSameDayDifferentTimesDedup(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	books := []*domain.Book{
		foreignBook("remote-1", "Dune", 412, domain.StatusReading, day(1), day(1)),
	}
	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-1", day(1), 100),
		foreignLog("rlog-2", "remote-1", day(1).Add(8*time.Hour), 100),
		foreignLog("rlog-3", "remote-1", day(2), 100),
	}

	res, err := eng.Merge(ctx, books, logs)
	require.NoError(t, err)
	assert.Equal(t, 2, res.LogsAdded, "same page same day collapses, different day stays")
}

func TestMergePreservesExactTimestamp(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	stamp := time.Date(2024, 3, 2, 23, 59, 58, 0, time.UTC)
	books := []*domain.Book{
		foreignBook("remote-1", "Dune", 412, domain.StatusReading, day(1), stamp),
	}
	logs := []*domain.ReadingLog{
		foreignLog("rlog-1", "remote-1", stamp, 100),
	}

	_, err := eng.Merge(ctx, books, logs)
	require.NoError(t, err)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	history, err := st.ListLogsForBook(ctx, stored[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Date.Equal(stamp), "timestamps are stored exactly, only dedup is day-bucketed")
}

func TestMergeAtomicOnBadRecord(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	// The second record fails validation mid-transaction; the first, already
	// inserted, must roll back with it.
	books := []*domain.Book{
		foreignBook("remote-1", "Dune", 412, domain.StatusReading, day(1), day(2)),
		foreignBook("remote-2", "Hyperion", 0, domain.StatusReading, day(1), day(2)),
	}

	_, err := eng.Merge(ctx, books, nil)
	require.Error(t, err)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored, "nothing from a failed merge may remain")
}

func TestMergeDuplicateForeignKeysCollapse(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	// Two foreign records with the same natural key resolve to the same
	// local book: the second sees the first's in-transaction insert.
	books := []*domain.Book{
		foreignBook("remote-1", "Dune", 412, domain.StatusReading, day(1), day(2)),
		foreignBook("remote-2", "Dune", 412, domain.StatusCompleted, day(1), day(3)),
	}

	res, err := eng.Merge(ctx, books, nil)
	require.NoError(t, err)
	assert.Equal(t, Result{BooksAdded: 1}, res)

	stored, err := st.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.StatusCompleted, stored[0].Status)
}
