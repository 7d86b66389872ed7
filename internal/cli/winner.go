package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailsplit/mailsplit/internal/abtest"
)

func init() {
	rootCmd.AddCommand(newWinnerCmd())
}

func newWinnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "winner <test-id>",
		Short: "Declare the winner and roll its content out",
		Long: `Evaluate a test and, if it has a statistically significant winner,
republish the winning variant's content as the campaign's primary
content for the remaining audience.

No winner yet is a normal outcome, not an error. Calling this again
after a rollout re-applies the same stored winner; it never picks a
second one.

Example:
  mailsplit winner camp-42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			testID := args[0]

			return withEngine(func(e *abtest.Engine) error {
				outcome, err := e.DeclareWinnerAndSend(context.Background(), testID)
				if err != nil {
					return err
				}

				if !outcome.Success {
					fmt.Printf("No rollout for test '%s': %s\n", testID, outcome.Message)
					return nil
				}

				fmt.Printf("Rolled out winner for test '%s': %s\n", testID, outcome.WinnerID)
				fmt.Println(outcome.Message)
				return nil
			})
		},
	}

	return cmd
}
