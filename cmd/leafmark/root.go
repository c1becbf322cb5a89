package main

import (
	"github.com/spf13/cobra"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
)

func newRootCmd() *cobra.Command {
	var flags config.Flags

	cmd := &cobra.Command{
		Use:   "leafmark",
		Short: "Leafmark reading tracker sync",
		Long: `Leafmark keeps reading progress in a local library and syncs it
device-to-device through an untrusted relay. One device hosts a pairing
session and shows a code; the other joins with that code. Both libraries
converge to the union of their books and reading logs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.Environment, "env", "", "environment (development, staging, production)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.DBPath, "db", "", "path to the library database")
	pf.StringVar(&flags.BlobURL, "blob-relay", "", "base URL of the blob relay")
	pf.StringVar(&flags.SignalURL, "signal-relay", "", "base URL of the signal relay")
	pf.StringVar(&flags.EnvFile, "env-file", "", "path to a .env file")

	cmd.AddCommand(
		newHostCmd(&flags),
		newJoinCmd(&flags),
		newSeedCmd(&flags),
		newBooksCmd(&flags),
	)

	return cmd
}
