package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// Store defines the persistence contract for tests, variants, and
// delivery counters. Implementations must make IncrementCounters an
// atomic increment (never read-modify-write) and MarkWinner a
// conditional update that can set at most one winner per test.
type Store interface {
	// Test operations
	CreateTest(ctx context.Context, testID string, cfg TestConfig, variants []VariantConfig) ([]*Variant, error)
	GetTest(ctx context.Context, testID string) (*Test, error)
	ListTests(ctx context.Context) ([]*Test, error)
	GetVariants(ctx context.Context, testID string) ([]*Variant, error)

	// Counter and event operations
	RecordEvent(ctx context.Context, variantID string, kind EventKind) error
	IncrementCounters(ctx context.Context, variantID string, delta Counters) error
	GetEvents(ctx context.Context, testID string) ([]*Event, error)

	// Winner operations. MarkWinner returns true only when this call
	// transitioned the variant to winner; false means some variant in
	// the test (possibly another one) already won the race.
	MarkWinner(ctx context.Context, testID, variantID string) (bool, error)
	UpdateCampaignContent(ctx context.Context, testID string, content Content) error

	// Lifecycle
	Close() error
}
