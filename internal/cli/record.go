package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

func init() {
	rootCmd.AddCommand(newRecordCmd())
}

func newRecordCmd() *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "record <variant-id> <kind>",
		Short: "Record delivery events for a variant",
		Long: `Record delivery events against a variant's counters.

Kinds: sent, delivered, opened, clicked, unsubscribed, bounced, complained.
In production the delivery subsystem posts these to the API; this
command exists for smoke tests and backfills.

Examples:
  mailsplit record 1f0e... sent --count 500
  mailsplit record 1f0e... opened --count 120`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			variantID := args[0]
			kind := store.EventKind(args[1])

			if count <= 0 {
				return fmt.Errorf("count must be positive, got %d", count)
			}

			delta, err := store.Delta(kind, count)
			if err != nil {
				return err
			}

			return withEngine(func(e *abtest.Engine) error {
				if err := e.IncrementCounters(context.Background(), variantID, delta); err != nil {
					return fmt.Errorf("failed to record events: %w", err)
				}
				fmt.Printf("Recorded %d %s event(s) for variant %s\n", count, kind, variantID)
				return nil
			})
		},
	}

	cmd.Flags().Int64VarP(&count, "count", "n", 1, "number of events to record")

	return cmd
}
