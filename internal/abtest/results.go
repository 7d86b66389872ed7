package abtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/mailsplit/mailsplit/internal/stats"
	"github.com/mailsplit/mailsplit/internal/store"
)

// conversionProxy: clicks currently stand in for conversions, so the
// conversion_rate criteria ranks by the same counts as click_rate. A
// real conversion signal only needs to change metricCounts, not the
// statistics.
const conversionProxy = store.CriteriaClickRate

// VariantResult is one variant's computed rates. Rates are percentages
// in [0, 100]; a variant with no sends reports 0 everywhere. CILower
// and CIUpper bound the chosen metric with a Wilson score interval.
type VariantResult struct {
	VariantID      string
	Name           string
	TrafficShare   float64
	Counters       store.Counters
	OpenRate       float64
	ClickRate      float64
	ConversionRate float64
	CILower        float64
	CIUpper        float64
	IsWinner       bool
}

// Winner identifies the winning variant once a test has one.
type Winner struct {
	VariantID          string
	MetricValue        float64
	ImprovementPercent float64
}

// Results is the full evaluation of a test: a pure projection of the
// stored config and counters, recomputable any number of times with
// identical output.
type Results struct {
	TestID          string
	Criteria        store.WinnerCriteria
	IsComplete      bool
	HasWinner       bool
	Winner          *Winner
	Variants        []VariantResult
	Significance    stats.Significance
	Recommendations []string
}

// Results evaluates a test: per-variant rates, leader vs runner-up
// significance, completion gating, and the at-most-once winner mark.
//
// A test whose winner is already persisted is terminal: the stored
// decision is reported and never re-litigated. Otherwise, when the test
// is complete and the lead is significant, the leader is marked winner
// with a conditional store update; losing that race to a concurrent
// evaluation silently resolves to whatever winner the race produced.
func (e *Engine) Results(ctx context.Context, testID string) (*Results, error) {
	test, err := e.store.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTestNotFound, testID)
		}
		return nil, err
	}
	if !test.IsABTest {
		return nil, fmt.Errorf("%w: %s", ErrNotAnABTest, testID)
	}

	variants, err := e.store.GetVariants(ctx, testID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: %s has no variants", ErrTestNotFound, testID)
	}

	cfg := test.Config
	results := buildVariantResults(variants, cfg)

	leader, runnerUp := rank(results, cfg.WinnerCriteria)

	sig := stats.Significance{PValue: 1, Confidence: cfg.ConfidenceLevel}
	if runnerUp >= 0 && variants[leader].Counters.TotalSent >= int64(cfg.MinimumSampleSize) {
		succA, nA := metricCounts(&variants[leader].Counters, cfg.WinnerCriteria)
		succB, nB := metricCounts(&variants[runnerUp].Counters, cfg.WinnerCriteria)
		sig = stats.TwoProportion(succA, nA, succB, nB, cfg.ConfidenceLevel)
	}

	isComplete := IsComplete(e.now(), test, variants)
	hasWinner := isComplete && sig.IsSignificant

	winnerIdx := storedWinner(variants)
	switch {
	case winnerIdx >= 0:
		// Terminal state from an earlier evaluation.
		isComplete = true
		hasWinner = true
	case hasWinner:
		marked, err := e.store.MarkWinner(ctx, testID, variants[leader].ID)
		if err != nil {
			return nil, err
		}
		if marked {
			winnerIdx = leader
			results[leader].IsWinner = true
		} else {
			// Lost the race; the concurrent evaluation's pick stands.
			variants, err = e.store.GetVariants(ctx, testID)
			if err != nil {
				return nil, err
			}
			results = buildVariantResults(variants, cfg)
			winnerIdx = storedWinner(variants)
			leader, runnerUp = rank(results, cfg.WinnerCriteria)
		}
		e.logger.Info("ab test winner decided",
			"test_id", testID,
			"variant_id", variants[winnerIdx].ID,
			"p_value", sig.PValue)
	}

	res := &Results{
		TestID:       testID,
		Criteria:     cfg.WinnerCriteria,
		IsComplete:   isComplete,
		HasWinner:    hasWinner,
		Variants:     results,
		Significance: sig,
	}

	if hasWinner && winnerIdx >= 0 {
		res.Winner = &Winner{
			VariantID:          variants[winnerIdx].ID,
			MetricValue:        metricValue(&results[winnerIdx], cfg.WinnerCriteria),
			ImprovementPercent: improvement(results, winnerIdx, cfg.WinnerCriteria),
		}
	}

	res.Recommendations = recommend(res, cfg)

	return res, nil
}

func buildVariantResults(variants []*store.Variant, cfg store.TestConfig) []VariantResult {
	results := make([]VariantResult, len(variants))
	for i, v := range variants {
		r := VariantResult{
			VariantID:      v.ID,
			Name:           v.Name,
			TrafficShare:   v.TrafficShare,
			Counters:       v.Counters,
			OpenRate:       rate(v.Counters.TotalOpened, v.Counters.TotalSent),
			ClickRate:      rate(v.Counters.TotalClicked, v.Counters.TotalSent),
			ConversionRate: rate(v.Counters.TotalClicked, v.Counters.TotalSent),
			IsWinner:       v.IsWinner,
		}
		succ, n := metricCounts(&v.Counters, cfg.WinnerCriteria)
		lower, upper := stats.WilsonInterval(succ, n, cfg.ConfidenceLevel)
		r.CILower = lower * 100
		r.CIUpper = upper * 100
		results[i] = r
	}
	return results
}

// rank returns the index of the leading variant by the chosen metric
// and the best of the rest, or -1 when there is no runner-up. Ties keep
// the earliest-created variant, so repeated evaluations rank
// identically.
func rank(results []VariantResult, criteria store.WinnerCriteria) (leader, runnerUp int) {
	leader = 0
	for i := 1; i < len(results); i++ {
		if metricValue(&results[i], criteria) > metricValue(&results[leader], criteria) {
			leader = i
		}
	}

	runnerUp = -1
	for i := range results {
		if i == leader {
			continue
		}
		if runnerUp < 0 || metricValue(&results[i], criteria) > metricValue(&results[runnerUp], criteria) {
			runnerUp = i
		}
	}
	return leader, runnerUp
}

func storedWinner(variants []*store.Variant) int {
	for i, v := range variants {
		if v.IsWinner {
			return i
		}
	}
	return -1
}

// improvement is the winner's relative lift over the best other
// variant, in percent, 0 when the other variant's metric is 0.
func improvement(results []VariantResult, winnerIdx int, criteria store.WinnerCriteria) float64 {
	best := -1.0
	for i := range results {
		if i == winnerIdx {
			continue
		}
		if v := metricValue(&results[i], criteria); v > best {
			best = v
		}
	}
	if best <= 0 {
		return 0
	}
	return (metricValue(&results[winnerIdx], criteria) - best) / best * 100
}

func metricValue(r *VariantResult, criteria store.WinnerCriteria) float64 {
	switch criteria {
	case store.CriteriaClickRate:
		return r.ClickRate
	case store.CriteriaConversionRate:
		return r.ConversionRate
	default:
		return r.OpenRate
	}
}

func metricCounts(c *store.Counters, criteria store.WinnerCriteria) (successes, samples int64) {
	if criteria == store.CriteriaConversionRate {
		criteria = conversionProxy
	}
	switch criteria {
	case store.CriteriaClickRate:
		return c.TotalClicked, c.TotalSent
	default:
		return c.TotalOpened, c.TotalSent
	}
}

func rate(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
