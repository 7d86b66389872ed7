package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mailsplit/mailsplit/internal/store"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tests",
	Long:  `List all A/B tests with their aggregate delivery totals.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	return withStore(func(s *store.SQLiteStore) error {
		ctx := context.Background()

		tests, err := s.ListTests(ctx)
		if err != nil {
			return fmt.Errorf("failed to list tests: %w", err)
		}

		if len(tests) == 0 {
			fmt.Println("No tests yet.")
			fmt.Println()
			fmt.Println("Create one with: mailsplit create <test-id> --file test.yaml")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TEST\tCRITERIA\tVARIANTS\tSENT\tOPENED\tCLICKED\tWINNER\tCREATED")

		for _, test := range tests {
			variants, err := s.GetVariants(ctx, test.ID)
			if err != nil {
				return fmt.Errorf("failed to get variants for test %s: %w", test.ID, err)
			}

			var sent, opened, clicked int64
			winner := "-"
			for _, v := range variants {
				sent += v.Counters.TotalSent
				opened += v.Counters.TotalOpened
				clicked += v.Counters.TotalClicked
				if v.IsWinner {
					winner = v.Name
				}
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
				test.ID,
				test.Config.WinnerCriteria,
				len(variants),
				formatNumber(sent),
				formatNumber(opened),
				formatNumber(clicked),
				winner,
				test.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
