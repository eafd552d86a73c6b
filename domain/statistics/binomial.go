package statistics

import (
	"math"

	"cognosis/domain/core"
)

// BinomialStats tests hits out of trials against the chance rate p0 with a
// normal approximation to the one-tailed binomial test. Effect size is
// Cohen's h for proportions.
func BinomialStats(hits, trials int, p0 float64) (Result, error) {
	if trials <= 0 {
		return Result{}, core.NewValidationError("trials", "must be positive")
	}
	if hits < 0 || hits > trials {
		return Result{}, core.NewRangeError("hits", hits, trials+1)
	}
	if p0 <= 0 || p0 >= 1 {
		return Result{}, core.NewValidationError("p0", "must be in (0,1)")
	}

	observed := float64(hits) / float64(trials)
	stdError := math.Sqrt(p0 * (1 - p0) / float64(trials))
	z := (observed - p0) / stdError
	p := oneTailedP(z)

	return Result{
		ZScore:       z,
		PValue:       p,
		Significance: Classify(p),
		EffectSize:   cohensH(observed, p0),
		Baseline:     p0,
		Observed:     observed,
		SampleSize:   trials,
	}, nil
}

// cohensH is the arcsine-transformed effect size for two proportions.
func cohensH(p1, p2 float64) float64 {
	return 2 * (math.Asin(math.Sqrt(p1)) - math.Asin(math.Sqrt(p2)))
}

// EffectLabel gives the conventional qualitative reading of an absolute
// standardized effect size.
func EffectLabel(effect float64) string {
	abs := math.Abs(effect)
	switch {
	case abs < 0.2:
		return "negligible"
	case abs < 0.5:
		return "small"
	case abs < 0.8:
		return "medium"
	default:
		return "large"
	}
}
