package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	dbPath string
)

var rootCmd = &cobra.Command{
	Use:   "mailsplit",
	Short: "Mailsplit - A/B test decision engine for email campaigns",
	Long: `Mailsplit decides campaign A/B tests with a statistical guarantee.
It tracks per-variant delivery counters, runs a two-proportion z-test
between the leading variants, and rolls the winning creative out to the
remaining audience once the result is significant.

Single Go binary, embedded SQLite.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", getEnvOrDefault("MS_DB_PATH", "./mailsplit.db"), "database path")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
