package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/di"
	"github.com/leafmarkapp/leafmark-sync/internal/logger"
	"github.com/leafmarkapp/leafmark-sync/internal/pairing"
	"github.com/leafmarkapp/leafmark-sync/internal/service"
)

func newHostCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Host a pairing session and wait for another device to join",
		Long: `Host snapshots the local library, seals it under a fresh PIN, uploads
it to the relay, and prints the pairing code. It then waits for the joining
device to merge and send its own library back. Press Ctrl-C to cancel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			injector := di.NewContainer(*flags)
			defer injector.Shutdown()

			log := do.MustInvoke[*logger.Logger](injector)
			svc := do.MustInvoke[*service.SyncService](injector)

			sess := pairing.NewSession(cmd.Context())

			// Ctrl-C cancels the session, not just the process.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				log.Info("canceling pairing session")
				sess.Cancel()
			}()

			code, err := svc.Host(cmd.Context(), sess)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Pairing code: %s\n", code)
			fmt.Fprintln(cmd.OutOrStdout(), "Enter this code on the other device. Waiting...")

			if err := svc.AwaitReturn(sess, code); err != nil {
				if sess.Context().Err() == context.Canceled {
					fmt.Fprintln(cmd.OutOrStdout(), "Canceled.")
					return nil
				}
				return err
			}

			stats := sess.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Sync complete: %d books and %d logs added.\n",
				stats.BooksAdded, stats.LogsAdded)
			return nil
		},
	}
}
