package abtest

import (
	"time"

	"github.com/mailsplit/mailsplit/internal/store"
)

// IsComplete reports whether a running test may be evaluated for a
// winner. Two gates, both required:
//
//   - duration: when the config sets a duration and the campaign has a
//     send start time, the window must have elapsed; without either the
//     gate is vacuously satisfied
//   - sample size: every variant must have at least MinimumSampleSize
//     sends
//
// An incomplete test stays "running" no matter how significant the
// z-test looks, so small samples cannot declare a winner by chance.
func IsComplete(now time.Time, test *store.Test, variants []*store.Variant) bool {
	cfg := test.Config

	if cfg.TestDurationHours > 0 && test.SentAt != nil {
		deadline := test.SentAt.Add(time.Duration(cfg.TestDurationHours) * time.Hour)
		if now.Before(deadline) {
			return false
		}
	}

	if len(variants) == 0 {
		return false
	}
	for _, v := range variants {
		if v.Counters.TotalSent < int64(cfg.MinimumSampleSize) {
			return false
		}
	}

	return true
}
