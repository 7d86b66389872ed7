package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mailsplit/mailsplit/internal/stats"
)

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)

	assert.Zero(t, lower)
	assert.Zero(t, upper)
}

func TestWilsonInterval_ContainsProportion(t *testing.T) {
	lower, upper := stats.WilsonInterval(100, 1000, 0.95)

	p := 0.1
	assert.Less(t, lower, p)
	assert.Greater(t, upper, p)
}

func TestWilsonInterval_Clamped(t *testing.T) {
	lower, _ := stats.WilsonInterval(0, 10, 0.95)
	assert.GreaterOrEqual(t, lower, 0.0)

	_, upper := stats.WilsonInterval(10, 10, 0.95)
	assert.LessOrEqual(t, upper, 1.0)
}

func TestWilsonInterval_NarrowsWithSample(t *testing.T) {
	smallLower, smallUpper := stats.WilsonInterval(10, 100, 0.95)
	largeLower, largeUpper := stats.WilsonInterval(1000, 10000, 0.95)

	assert.Less(t, largeUpper-largeLower, smallUpper-smallLower)
}

func TestZScore_CommonLevels(t *testing.T) {
	assert.InDelta(t, 1.96, stats.ZScore(0.95), 0.001)
	assert.InDelta(t, 1.645, stats.ZScore(0.90), 0.001)
	assert.InDelta(t, 2.576, stats.ZScore(0.99), 0.001)
}

func TestZScore_ApproximatedLevels(t *testing.T) {
	// Below the precomputed table the rational approximation takes
	// over; 0.50 confidence corresponds to z ~ 0.674.
	assert.InDelta(t, 0.674, stats.ZScore(0.50), 0.01)
}
