package abtest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mailsplit/mailsplit/internal/abtest"
	"github.com/mailsplit/mailsplit/internal/store"
)

func variantWithSends(sent int64) *store.Variant {
	return &store.Variant{Counters: store.Counters{TotalSent: sent}}
}

func TestIsComplete_SampleGate(t *testing.T) {
	test := &store.Test{Config: store.TestConfig{MinimumSampleSize: 100}}
	now := time.Now()

	assert.True(t, abtest.IsComplete(now, test, []*store.Variant{
		variantWithSends(100), variantWithSends(250),
	}))

	// One variant short of the minimum keeps the whole test running.
	assert.False(t, abtest.IsComplete(now, test, []*store.Variant{
		variantWithSends(99), variantWithSends(250),
	}))
}

func TestIsComplete_DurationGateVacuousWithoutStart(t *testing.T) {
	// Duration configured but the campaign never started sending: the
	// gate cannot bind and only the sample gate applies.
	test := &store.Test{Config: store.TestConfig{
		MinimumSampleSize: 100,
		TestDurationHours: 24,
	}}

	assert.True(t, abtest.IsComplete(time.Now(), test, []*store.Variant{
		variantWithSends(100), variantWithSends(100),
	}))
}

func TestIsComplete_DurationGateBinds(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	test := &store.Test{
		Config: store.TestConfig{
			MinimumSampleSize: 100,
			TestDurationHours: 24,
		},
		SentAt: &start,
	}
	variants := []*store.Variant{variantWithSends(5000), variantWithSends(5000)}

	assert.False(t, abtest.IsComplete(start.Add(23*time.Hour), test, variants))
	assert.True(t, abtest.IsComplete(start.Add(24*time.Hour), test, variants))
}

func TestIsComplete_NoVariants(t *testing.T) {
	test := &store.Test{Config: store.TestConfig{MinimumSampleSize: 100}}

	assert.False(t, abtest.IsComplete(time.Now(), test, nil))
}
