package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/di"
)

func newBooksCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the local library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(*flags)
			defer injector.Shutdown()

			handle := do.MustInvoke[*di.StoreHandle](injector)

			books, err := handle.ListBooks(cmd.Context())
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "The library is empty.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TITLE\tPROGRESS\tSTATUS\tLAST READ")
			for _, b := range books {
				fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\n",
					b.Title, b.CurrentPage, b.TotalPages, b.Status,
					b.LastReadDate.Format("2006-01-02"))
			}
			return w.Flush()
		},
	}
}
