// Package abtest is the statistical decision engine for campaign A/B
// tests: it aggregates delivery counters into per-variant rates, runs a
// frequentist two-proportion significance test between the leader and
// runner-up, gates winner declaration on completion policy, and rolls
// the winning creative out as the campaign's primary content.
package abtest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mailsplit/mailsplit/internal/store"
)

var (
	ErrTestNotFound = errors.New("test not found")
	ErrNotAnABTest  = errors.New("campaign is not an A/B test")
)

// Engine evaluates A/B tests against an injected store, so the
// statistics core stays testable with an in-memory fake.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the engine clock. Tests use it to pin the
// duration gate.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(s store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:  s,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateTest registers a test and its variants. Traffic shares must sum
// to 1.0 within tolerance; the store rejects anything else with
// store.ErrInvalidConfiguration.
func (e *Engine) CreateTest(ctx context.Context, testID string, cfg store.TestConfig, variants []store.VariantConfig) ([]*store.Variant, error) {
	created, err := e.store.CreateTest(ctx, testID, cfg, variants)
	if err != nil {
		return nil, err
	}
	e.logger.Info("ab test created",
		"test_id", testID,
		"variants", len(created),
		"criteria", string(cfg.WinnerCriteria),
		"confidence", cfg.ConfidenceLevel)
	return created, nil
}

// RecordEvent applies a single delivery event to a variant's counters.
func (e *Engine) RecordEvent(ctx context.Context, variantID string, kind store.EventKind) error {
	return e.store.RecordEvent(ctx, variantID, kind)
}

// IncrementCounters applies a batched counter delta from the delivery
// subsystem.
func (e *Engine) IncrementCounters(ctx context.Context, variantID string, delta store.Counters) error {
	return e.store.IncrementCounters(ctx, variantID, delta)
}
