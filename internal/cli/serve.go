package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/config"
	"github.com/mailsplit/mailsplit/internal/sched"
	"github.com/mailsplit/mailsplit/internal/server"
	"github.com/mailsplit/mailsplit/internal/store"
)

var (
	cfgFile       string
	port          int
	evaluateEvery string
	autoRollout   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the mailsplit HTTP API server.

The server provides:
  - Event ingest for the delivery subsystem (POST /api/events)
  - Test creation and results (POST/GET /api/tests)
  - Winner rollout (POST /api/tests/<id>/rollout)
  - Health check and Prometheus metrics

With --evaluate-every, a background sweep re-evaluates running tests on
a cron schedule; add --auto-rollout to also republish winners as they
become significant.

Examples:
  mailsplit serve --port 8080
  mailsplit serve --evaluate-every "@every 15m" --auto-rollout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&evaluateEvery, "evaluate-every", "", "cron schedule for background evaluation (overrides config)")
	serveCmd.Flags().BoolVar(&autoRollout, "auto-rollout", false, "roll out winners automatically during background evaluation")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DBPath = dbPath
	}
	if port != 0 {
		cfg.Port = port
	}
	if evaluateEvery != "" {
		cfg.EvaluateEvery = evaluateEvery
	}
	if cmd.Flags().Changed("auto-rollout") {
		cfg.AutoRollout = autoRollout
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = filepath.Join(filepath.Dir(cfg.DBPath), ".mailsplit-token")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	engine := abtest.New(s, logger)

	if cfg.EvaluateEvery != "" {
		ev, err := sched.NewEvaluator(engine, s, cfg.EvaluateEvery, cfg.AutoRollout, logger)
		if err != nil {
			return err
		}
		ev.Start()
		defer ev.Stop()
	}

	srv := server.New(s, engine, cfg.Port, cfg.TokenFile, logger)

	fmt.Printf("mailsplit running on http://localhost:%d\n", cfg.Port)
	fmt.Printf("API token: %s\n", srv.Token())
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")

	return srv.Start()
}
