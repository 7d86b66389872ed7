package store

import (
	"fmt"
	"math"
	"time"
)

// WinnerCriteria is the metric used to rank variants.
type WinnerCriteria string

const (
	CriteriaOpenRate       WinnerCriteria = "open_rate"
	CriteriaClickRate      WinnerCriteria = "click_rate"
	CriteriaConversionRate WinnerCriteria = "conversion_rate"
)

// EventKind identifies a delivery event reported by the sending subsystem.
type EventKind string

const (
	EventSent         EventKind = "sent"
	EventDelivered    EventKind = "delivered"
	EventOpened       EventKind = "opened"
	EventClicked      EventKind = "clicked"
	EventUnsubscribed EventKind = "unsubscribed"
	EventBounced      EventKind = "bounced"
	EventComplained   EventKind = "complained"
)

// shareTolerance is the accepted absolute error when checking that
// traffic shares sum to 1.0.
const shareTolerance = 0.01

// DefaultMinimumSampleSize applies when a test config leaves the
// minimum unset.
const DefaultMinimumSampleSize = 100

// TestConfig holds the decision parameters of an A/B test. It is
// validated once at creation and never re-validated per evaluation.
type TestConfig struct {
	Name              string
	WinnerCriteria    WinnerCriteria
	ConfidenceLevel   float64
	TestDurationHours int // 0 disables the duration gate
	MinimumSampleSize int
}

// Validate normalizes defaults and rejects malformed configs.
func (c *TestConfig) Validate() error {
	switch c.WinnerCriteria {
	case CriteriaOpenRate, CriteriaClickRate, CriteriaConversionRate:
	default:
		return fmt.Errorf("%w: unknown winner criteria %q", ErrInvalidConfiguration, c.WinnerCriteria)
	}
	if c.ConfidenceLevel <= 0 || c.ConfidenceLevel >= 1 {
		return fmt.Errorf("%w: confidence level %v outside (0,1)", ErrInvalidConfiguration, c.ConfidenceLevel)
	}
	if c.TestDurationHours < 0 {
		return fmt.Errorf("%w: negative test duration", ErrInvalidConfiguration)
	}
	if c.MinimumSampleSize < 0 {
		return fmt.Errorf("%w: negative minimum sample size", ErrInvalidConfiguration)
	}
	if c.MinimumSampleSize == 0 {
		c.MinimumSampleSize = DefaultMinimumSampleSize
	}
	return nil
}

// Content is the creative under test: what actually lands in the inbox.
type Content struct {
	Subject      string
	Preheader    string
	Body         string
	TemplateData map[string]string
}

// Test is the parent campaign record the engine needs: config, the
// campaign's primary content (the rollout target), and the send start
// time used for duration gating.
type Test struct {
	ID        string
	Config    TestConfig
	Content   Content
	IsABTest  bool
	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VariantConfig is the caller-supplied shape of one variant at creation.
type VariantConfig struct {
	Name         string
	Content      Content
	TrafficShare float64
}

// Variant is a stored variant with its live delivery counters.
type Variant struct {
	ID           string
	TestID       string
	Name         string
	Content      Content
	TrafficShare float64
	IsWinner     bool
	Counters     Counters
}

// Counters are the rolling delivery totals for one variant. Each field
// is non-negative and monotonically non-decreasing for the life of the
// test. The same type doubles as an increment delta.
type Counters struct {
	TotalSent         int64
	TotalDelivered    int64
	TotalOpened       int64
	TotalClicked      int64
	TotalUnsubscribed int64
	TotalBounced      int64
	TotalComplained   int64
}

// Delta returns a Counters increment of n for the given event kind.
func Delta(kind EventKind, n int64) (Counters, error) {
	var c Counters
	switch kind {
	case EventSent:
		c.TotalSent = n
	case EventDelivered:
		c.TotalDelivered = n
	case EventOpened:
		c.TotalOpened = n
	case EventClicked:
		c.TotalClicked = n
	case EventUnsubscribed:
		c.TotalUnsubscribed = n
	case EventBounced:
		c.TotalBounced = n
	case EventComplained:
		c.TotalComplained = n
	default:
		return c, fmt.Errorf("unknown event kind %q", kind)
	}
	return c, nil
}

// Event is one row of the raw delivery-event journal, kept for export
// and auditing. Counters, not events, are the authoritative stats.
type Event struct {
	ID        int64
	TestID    string
	VariantID string
	Kind      EventKind
	CreatedAt time.Time
}

// ValidateVariantConfigs checks the creation-time invariants shared by
// every Store implementation: at least two variants, and traffic shares
// summing to 1.0 within tolerance.
func ValidateVariantConfigs(configs []VariantConfig) error {
	if len(configs) < 2 {
		return fmt.Errorf("%w: need at least 2 variants, got %d", ErrInvalidConfiguration, len(configs))
	}
	sum := 0.0
	for _, vc := range configs {
		if vc.TrafficShare < 0 {
			return fmt.Errorf("%w: variant %q has negative traffic share", ErrInvalidConfiguration, vc.Name)
		}
		sum += vc.TrafficShare
	}
	if math.Abs(sum-1.0) > shareTolerance {
		return fmt.Errorf("%w: traffic shares sum to %.4f, want 1.0 ±%.2f", ErrInvalidConfiguration, sum, shareTolerance)
	}
	return nil
}
