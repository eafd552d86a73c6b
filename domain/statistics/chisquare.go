package statistics

import (
	"math"

	"cognosis/domain/core"
)

// ChiSquareResult is a goodness-of-fit outcome.
type ChiSquareResult struct {
	ChiSquare float64 `json:"chi_square"`
	DF        int     `json:"df"`
	PValue    float64 `json:"p_value"`
}

// ChiSquareStats computes a goodness-of-fit chi-square over observed counts
// against expected counts. The p-value uses the Wilson-Hilferty normal
// approximation: adequate for informal uniformity checks on dice and card
// draws, but an approximation, not an exact test.
func ChiSquareStats(observed, expected []float64) (ChiSquareResult, error) {
	if len(observed) < 2 {
		return ChiSquareResult{}, core.NewValidationError("observed", "need at least 2 categories")
	}
	if len(observed) != len(expected) {
		return ChiSquareResult{}, core.NewValidationError("expected", "length mismatch with observed")
	}

	chi2 := 0.0
	for i := range observed {
		if expected[i] <= 0 {
			return ChiSquareResult{}, core.NewValidationError("expected", "counts must be positive")
		}
		diff := observed[i] - expected[i]
		chi2 += diff * diff / expected[i]
	}
	df := len(observed) - 1

	return ChiSquareResult{
		ChiSquare: chi2,
		DF:        df,
		PValue:    wilsonHilfertyP(chi2, df),
	}, nil
}

// wilsonHilfertyP approximates P(X² > chi2) by mapping the cube root of the
// scaled statistic onto a standard normal.
func wilsonHilfertyP(chi2 float64, df int) float64 {
	k := float64(df)
	mean := 1.0 - 2.0/(9.0*k)
	sd := math.Sqrt(2.0 / (9.0 * k))
	z := (math.Cbrt(chi2/k) - mean) / sd
	return normalCDFUpper(z)
}
