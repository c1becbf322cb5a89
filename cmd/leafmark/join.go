package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/leafmarkapp/leafmark-sync/internal/config"
	"github.com/leafmarkapp/leafmark-sync/internal/di"
	"github.com/leafmarkapp/leafmark-sync/internal/errors"
	"github.com/leafmarkapp/leafmark-sync/internal/pairing"
	"github.com/leafmarkapp/leafmark-sync/internal/service"
)

func newJoinCmd(flags *config.Flags) *cobra.Command {
	var (
		room        string
		pin         string
		returnTopic string
	)

	cmd := &cobra.Command{
		Use:   "join [code]",
		Short: "Join a pairing session hosted by another device",
		Long: `Join downloads the hosting device's sealed snapshot, opens it with the
PIN embedded in the code, merges it into the local library, and sends the
merged library back so the host converges too.

The code can be pasted as a single argument, or entered field by field with
--room and --pin when reading it off another screen.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := resolveCode(args, room, pin, returnTopic)
			if err != nil {
				return err
			}

			injector := di.NewContainer(*flags)
			defer injector.Shutdown()

			svc := do.MustInvoke[*service.SyncService](injector)

			sess := pairing.NewSession(cmd.Context())
			if err := svc.Join(sess, code); err != nil {
				return err
			}

			stats := sess.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "Sync complete: %d books and %d logs added.\n",
				stats.BooksAdded, stats.LogsAdded)
			return nil
		},
	}

	cmd.Flags().StringVar(&room, "room", "", "room token from the pairing code")
	cmd.Flags().StringVar(&pin, "pin", "", "PIN from the pairing code")
	cmd.Flags().StringVar(&returnTopic, "return-topic", "", "return topic from the pairing code")

	return cmd
}

// resolveCode builds the pairing code from either the pasted argument or the
// field flags. Both go through the same validation.
func resolveCode(args []string, room, pin, returnTopic string) (pairing.Code, error) {
	if len(args) == 1 {
		if room != "" || pin != "" {
			return pairing.Code{}, errors.Validation("pass either a code argument or --room/--pin, not both")
		}
		src := pairing.NewStaticSource(args[0])
		defer src.Close()
		return pairing.NextFrom(src)
	}

	c := pairing.Code{Room: room, PIN: pin, ReturnTopic: returnTopic}
	if err := c.Validate(); err != nil {
		return pairing.Code{}, err
	}
	return c, nil
}
