package main

import (
	"fmt"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/di"
	"github.com/leafmarkapp/leafmark-sync/internal/domain"
	"github.com/leafmarkapp/leafmark-sync/internal/id"
	"github.com/leafmarkapp/leafmark-sync/internal/store"
)

func newSeedCmd(flags *config.Flags) *cobra.Command {
	var (
		title string
		pages int
		page  int
		date  string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Record reading progress for a book",
		Long: `Seed registers the book if it is not in the library yet and records a
reading log at the given page. Logging the same page twice on the same day
is a no-op: one session per book, page, and calendar day.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(*flags)
			defer injector.Shutdown()

			handle := do.MustInvoke[*di.StoreHandle](injector)
			ctx := cmd.Context()

			when := time.Now().UTC()
			if date != "" {
				var err error
				when, err = time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
			}

			// Find or register the book by natural key.
			books, err := handle.ListBooks(ctx)
			if err != nil {
				return err
			}
			var book *domain.Book
			for _, b := range books {
				if b.Title == title && b.TotalPages == pages {
					book = b
					break
				}
			}
			if book == nil {
				bookID, err := id.Generate(id.PrefixBook)
				if err != nil {
					return err
				}
				book = &domain.Book{
					ID:           bookID,
					Title:        title,
					TotalPages:   pages,
					StartDate:    when,
					LastReadDate: when,
					Status:       domain.StatusReading,
				}
				if err := handle.AddBook(ctx, book); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %q (%d pages).\n", title, pages)
			}

			logID, err := id.Generate(id.PrefixLog)
			if err != nil {
				return err
			}
			err = handle.AddLog(ctx, &domain.ReadingLog{
				ID:     logID,
				BookID: book.ID,
				Date:   when,
				Page:   page,
			})
			if err != nil {
				return err
			}

			// Refresh the derived fields from the full history, so logging a
			// back-dated session never regresses progress.
			logs, err := handle.ListLogsForBook(ctx, book.ID)
			if err != nil {
				return err
			}
			current := domain.Progress(logs)
			upd := store.BookUpdate{CurrentPage: &current}
			if when.After(book.LastReadDate) {
				upd.LastReadDate = &when
			}
			status := book.Status
			if current >= pages {
				status = domain.StatusCompleted
			}
			upd.Status = &status
			if err := handle.UpdateBook(ctx, book.ID, upd); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged page %d of %q (%s).\n", page, title, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "book title")
	cmd.Flags().IntVar(&pages, "pages", 0, "total pages in the book")
	cmd.Flags().IntVar(&page, "page", 0, "page reached")
	cmd.Flags().StringVar(&date, "date", "", "reading date (YYYY-MM-DD, default today)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("pages")
	cmd.MarkFlagRequired("page")

	return cmd
}
