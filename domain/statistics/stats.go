// Package statistics turns scores and trial batches into hypothesis-testing
// results under the one-tailed psi-hitting convention: only deviations above
// the chance baseline count as evidence, and a score at or below baseline
// always yields p = 1.0 regardless of magnitude.
package statistics

import (
	"math"

	"cognosis/domain/core"
)

// Significance labels a p-value band.
type Significance string

const (
	NotSignificant        Significance = "not_significant"
	MarginallySignificant Significance = "marginally_significant"
	Significant           Significance = "significant"
	VerySignificant       Significance = "very_significant"
	HighlySignificant     Significance = "highly_significant"
)

// Result is a hypothesis-testing outcome.
type Result struct {
	ZScore       float64      `json:"z_score"`
	PValue       float64      `json:"p_value"`
	Significance Significance `json:"significance"`
	EffectSize   float64      `json:"effect_size"`
	Baseline     float64      `json:"baseline"`
	Observed     float64      `json:"observed"`
	SampleSize   int          `json:"sample_size,omitempty"`
}

// DefaultScoreStd is the assumed standard deviation of a 0-100 accuracy
// score around chance, taken from remote-viewing literature (0.15 on the
// unit scale).
const DefaultScoreStd = 15.0

// ScoreStats tests a single 0-100 score against the chance baseline using
// the default score deviation.
func ScoreStats(score, baseline float64) (Result, error) {
	return ScoreStatsWithStd(score, baseline, DefaultScoreStd)
}

// ScoreStatsWithStd tests a single score against baseline with an explicit
// standard error.
func ScoreStatsWithStd(score, baseline, stdError float64) (Result, error) {
	if stdError <= 0 {
		return Result{}, core.NewValidationError("stdError", "must be positive")
	}
	z := (score - baseline) / stdError
	return Result{
		ZScore:       z,
		PValue:       oneTailedP(z),
		Significance: Classify(oneTailedP(z)),
		EffectSize:   z, // Cohen's d against the same deviation
		Baseline:     baseline,
		Observed:     score,
	}, nil
}

// Classify maps a p-value to its significance band.
func Classify(p float64) Significance {
	switch {
	case p < 0.001:
		return HighlySignificant
	case p < 0.01:
		return VerySignificant
	case p < 0.05:
		return Significant
	case p < 0.10:
		return MarginallySignificant
	default:
		return NotSignificant
	}
}

// oneTailedP applies the psi-hitting convention: below-baseline z never
// counts as evidence.
func oneTailedP(z float64) float64 {
	if z <= 0 {
		return 1.0
	}
	return normalTailP(z)
}

// normalTailP approximates P(Z > z) for z >= 0 using the Abramowitz-Stegun
// rational approximation (26.2.17). Absolute error below 7.5e-8, which is
// more than adequate for significance banding.
func normalTailP(z float64) float64 {
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	t := 1.0 / (1.0 + p*z)
	phi := math.Exp(-z*z/2.0) / math.Sqrt(2.0*math.Pi)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	tail := phi * poly
	if tail < 0 {
		return 0
	}
	if tail > 1 {
		return 1
	}
	return tail
}

// normalCDFUpper extends the tail approximation to negative z by symmetry.
func normalCDFUpper(z float64) float64 {
	if z >= 0 {
		return normalTailP(z)
	}
	return 1.0 - normalTailP(-z)
}
