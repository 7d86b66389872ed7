package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mailsplit/mailsplit/internal/abtest"
)

var resultsCmd = &cobra.Command{
	Use:   "results <test-id>",
	Short: "Show detailed results for a test",
	Long:  `Show per-variant rates, confidence intervals, significance, and recommendations.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	testID := args[0]

	return withEngine(func(e *abtest.Engine) error {
		res, err := e.Results(context.Background(), testID)
		if err != nil {
			return err
		}

		fmt.Printf("TEST: %s\n", res.TestID)
		fmt.Printf("CRITERIA: %s\n", res.Criteria)
		if res.IsComplete {
			fmt.Println("STATE: complete")
		} else {
			fmt.Println("STATE: running")
		}
		fmt.Println()

		fmt.Println("VARIANT           SENT     OPENED   CLICKED  OPEN%    CLICK%   95% CI")
		fmt.Println(strings.Repeat("─", 76))

		for _, v := range res.Variants {
			indicator := ""
			if v.IsWinner {
				indicator = " ← WINNER"
			}

			ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", v.CILower, v.CIUpper)
			if v.Counters.TotalSent == 0 {
				ciStr = "N/A"
			}

			// Truncate name if too long
			name := v.Name
			if len(name) > 16 {
				name = name[:13] + "..."
			}

			fmt.Printf("%-16s  %-7d  %-7d  %-7d  %-7s  %-7s  %s%s\n",
				name,
				v.Counters.TotalSent,
				v.Counters.TotalOpened,
				v.Counters.TotalClicked,
				formatPercent(v.OpenRate),
				formatPercent(v.ClickRate),
				ciStr,
				indicator,
			)
		}

		fmt.Println()

		if res.HasWinner && res.Winner != nil {
			fmt.Printf("Winner: %s at %.2f%% %s (+%.1f%% over runner-up, p = %.4f)\n",
				res.Winner.VariantID, res.Winner.MetricValue, res.Criteria,
				res.Winner.ImprovementPercent, res.Significance.PValue)
		} else if res.Significance.ZScore > 0 {
			fmt.Printf("Statistical significance: p = %.4f (z = %.2f), not yet decisive at %.0f%% confidence\n",
				res.Significance.PValue, res.Significance.ZScore, res.Significance.Confidence*100)
		} else {
			fmt.Println("Statistical significance: not enough data to compare variants")
		}

		if len(res.Recommendations) > 0 {
			fmt.Println()
			for _, rec := range res.Recommendations {
				fmt.Printf("  • %s\n", rec)
			}
		}

		return nil
	})
}

func formatPercent(pct float64) string {
	if pct == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", pct)
}
