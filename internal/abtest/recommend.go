package abtest

import (
	"fmt"

	"github.com/mailsplit/mailsplit/internal/store"
)

// Heuristic floors for advisory messages. Advisory only: they never
// influence HasWinner.
const (
	lowOpenRatePct  = 20.0
	lowClickRatePct = 2.0
)

func recommend(res *Results, cfg store.TestConfig) []string {
	var recs []string

	if !res.Significance.IsSignificant {
		recs = append(recs, "No statistically significant difference between variants yet; keep the test running before acting on the numbers.")
	}

	for _, v := range res.Variants {
		if v.Counters.TotalSent < int64(cfg.MinimumSampleSize) {
			recs = append(recs, fmt.Sprintf("At least one variant is below the minimum sample size of %d sends; results are not yet reliable.", cfg.MinimumSampleSize))
			break
		}
	}

	if res.HasWinner && res.Winner != nil {
		name := res.Winner.VariantID
		for _, v := range res.Variants {
			if v.VariantID == res.Winner.VariantID {
				name = v.Name
				break
			}
		}
		recs = append(recs, fmt.Sprintf("Variant %q is a statistically significant winner on %s (p = %.4f); roll it out to the remaining audience.",
			name, criteriaLabel(res.Criteria), res.Significance.PValue))
	}

	if mean(res.Variants, func(v *VariantResult) float64 { return v.OpenRate }) < lowOpenRatePct {
		recs = append(recs, "Average open rate is below 20%; consider testing stronger subject lines.")
	}
	if mean(res.Variants, func(v *VariantResult) float64 { return v.ClickRate }) < lowClickRatePct {
		recs = append(recs, "Average click rate is below 2%; consider clearer calls to action.")
	}

	return recs
}

func criteriaLabel(c store.WinnerCriteria) string {
	switch c {
	case store.CriteriaClickRate:
		return "click rate"
	case store.CriteriaConversionRate:
		return "conversion rate"
	default:
		return "open rate"
	}
}

func mean(variants []VariantResult, metric func(*VariantResult) float64) float64 {
	if len(variants) == 0 {
		return 0
	}
	sum := 0.0
	for i := range variants {
		sum += metric(&variants[i])
	}
	return sum / float64(len(variants))
}
