package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(*store.SQLiteStore) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

// withEngine is withStore plus a decision engine on top.
func withEngine(fn func(*abtest.Engine) error) error {
	return withStore(func(s *store.SQLiteStore) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		return fn(abtest.New(s, logger))
	})
}
