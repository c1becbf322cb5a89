// Package merge reconciles a foreign snapshot against the local library.
//
// There are no global identifiers: two devices that tracked the same book
// offline are matched by natural key (title + total pages), and their logs
// by (book, page, calendar day). The whole reconciliation runs in one store
// transaction, so a snapshot either applies completely or not at all, and a
// concurrent import serializes behind it.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/id"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

// Result reports what a merge added. Unioned updates to existing books are
// not counted; re-merging the same snapshot yields a zero Result.
type Result struct {
	BooksAdded int
	LogsAdded  int
}

// Engine applies foreign snapshots to the local record store.
type Engine struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a merge engine.
func New(st store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: logger,
	}
}

// Merge reconciles foreign records into the local store.
//
// Books are matched by natural key: absent ones are inserted, present ones
// are updated in place to the union (earliest start, latest read, completed
// wins). Logs are deduplicated by (book, page, UTC day); inserted logs keep
// their exact foreign timestamp. Afterwards every touched book's current
// page is recomputed from its full merged history; progress values carried
// in a snapshot are never trusted, because imports interleave two histories.
//
// The union rule makes Merge idempotent and order-independent: merging the
// same snapshot twice adds nothing, and A-then-B equals B-then-A.
func (e *Engine) Merge(ctx context.Context, foreignBooks []*domain.Book, foreignLogs []*domain.ReadingLog) (Result, error) {
	var result Result

	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		// Foreign book id -> local book id, for resolving log ownership.
		// Scoped to this transaction; foreign ids are never persisted.
		bookIDs := make(map[string]string, len(foreignBooks))
		// Books whose log set or dates changed, for progress recompute.
		touched := make(map[string]bool)

		for _, fb := range foreignBooks {
			local, err := tx.FindBookByKey(fb.Key())
			if err != nil {
				return fmt.Errorf("look up book %s: %w", fb.Key(), err)
			}

			if local == nil {
				localID, err := id.Generate(id.PrefixBook)
				if err != nil {
					return err
				}
				inserted := &domain.Book{
					ID:           localID,
					Title:        fb.Title,
					TotalPages:   fb.TotalPages,
					StartDate:    fb.StartDate,
					LastReadDate: fb.LastReadDate,
					Status:       fb.Status,
				}
				if err := tx.InsertBook(inserted); err != nil {
					return fmt.Errorf("insert book %s: %w", fb.Key(), err)
				}
				bookIDs[fb.ID] = localID
				touched[localID] = true
				result.BooksAdded++
				continue
			}

			bookIDs[fb.ID] = local.ID

			merged, changed := domain.UnionBooks(*local, *fb)
			if changed {
				upd := store.BookUpdate{
					StartDate:    &merged.StartDate,
					LastReadDate: &merged.LastReadDate,
					Status:       &merged.Status,
				}
				if err := tx.UpdateBook(local.ID, upd); err != nil {
					return fmt.Errorf("union book %s: %w", fb.Key(), err)
				}
				touched[local.ID] = true
			}
		}

		for _, fl := range foreignLogs {
			localBookID, ok := bookIDs[fl.BookID]
			if !ok {
				// A log whose book did not resolve should not happen, but a
				// stray record must not sink the whole import.
				e.logger.Warn("skipping log with unresolved book",
					"log_id", fl.ID,
					"foreign_book_id", fl.BookID,
				)
				continue
			}

			exists, err := tx.HasLog(localBookID, fl.Page, domain.DayOf(fl.Date))
			if err != nil {
				return fmt.Errorf("look up log for book %s: %w", localBookID, err)
			}
			if exists {
				continue
			}

			logID, err := id.Generate(id.PrefixLog)
			if err != nil {
				return err
			}
			// Exact timestamp preserved; only the dedup key is day-truncated.
			if err := tx.InsertLog(&domain.ReadingLog{
				ID:     logID,
				BookID: localBookID,
				Date:   fl.Date,
				Page:   fl.Page,
			}); err != nil {
				return fmt.Errorf("insert log for book %s: %w", localBookID, err)
			}
			touched[localBookID] = true
			result.LogsAdded++
		}

		// Recompute derived progress from the merged history.
		for bookID := range touched {
			logs, err := tx.LogsForBook(bookID)
			if err != nil {
				return fmt.Errorf("load logs for book %s: %w", bookID, err)
			}
			page := domain.Progress(logs)
			if err := tx.UpdateBook(bookID, store.BookUpdate{CurrentPage: &page}); err != nil {
				return fmt.Errorf("update progress for book %s: %w", bookID, err)
			}
		}

		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("merge complete",
		"books_added", result.BooksAdded,
		"logs_added", result.LogsAdded,
	)
	return result, nil
}
