package testutil

import (
	"testing"

	"github.com/mailsplit/mailsplit/internal/store"
)

// SetupTestStore creates a test database and returns the store with a cleanup function.
// Uses t.TempDir() for automatic cleanup on test completion.
func SetupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := tmpDir + "/test.db"

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// TwoVariants is the minimal valid variant pair used across tests.
func TwoVariants() []store.VariantConfig {
	return []store.VariantConfig{
		{
			Name:         "A",
			Content:      store.Content{Subject: "Sale starts now"},
			TrafficShare: 0.5,
		},
		{
			Name:         "B",
			Content:      store.Content{Subject: "Our biggest sale starts today"},
			TrafficShare: 0.5,
		},
	}
}

// OpenRateConfig returns a valid config keyed on open rate at 95%
// confidence with the default minimum sample size.
func OpenRateConfig() store.TestConfig {
	return store.TestConfig{
		Name:            "subject line test",
		WinnerCriteria:  store.CriteriaOpenRate,
		ConfidenceLevel: 0.95,
	}
}
