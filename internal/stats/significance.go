package stats

import "math"

// Significance is the verdict of a two-proportion z-test at a given
// confidence level.
type Significance struct {
	IsSignificant bool
	PValue        float64
	ZScore        float64
	Confidence    float64
}

// TwoProportion performs a pooled two-proportion z-test between two
// variants' (successes, samples) pairs and returns the two-tailed
// verdict at the given confidence level.
//
// Degenerate inputs never error: with an empty sample on either side,
// or zero pooled variance, the null hypothesis cannot be rejected and
// the result is non-significant (p = 1, z = 0).
func TwoProportion(successA, sampleA, successB, sampleB int64, confidence float64) Significance {
	nonSignificant := Significance{PValue: 1, Confidence: confidence}

	if sampleA == 0 || sampleB == 0 {
		return nonSignificant
	}

	pA := float64(successA) / float64(sampleA)
	pB := float64(successB) / float64(sampleB)

	// Pooled proportion under the null hypothesis (pA = pB)
	pooled := float64(successA+successB) / float64(sampleA+sampleB)

	// Standard error of the difference
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(sampleA) + 1/float64(sampleB)))
	if se == 0 {
		return nonSignificant
	}

	z := math.Abs(pA-pB) / se
	p := 2 * (1 - normalCDF(z))
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}

	return Significance{
		IsSignificant: p < 1-confidence,
		PValue:        p,
		ZScore:        z,
		Confidence:    confidence,
	}
}

// normalCDF approximates the cumulative distribution function
// of the standard normal distribution using the Abramowitz and Stegun
// rational approximation (Handbook of Mathematical Functions, formula
// 7.1.26). Absolute error is below 1.5e-7, which keeps p-values stable
// across recomputation.
func normalCDF(x float64) float64 {
	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	x = math.Abs(x) / math.Sqrt2

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
