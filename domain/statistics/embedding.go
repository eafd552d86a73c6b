package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"cognosis/domain/core"
)

// EmbeddingStats tests a batch of embedding similarities against a baseline
// similarity distribution. Observed is the batch mean; the standard error
// scales the baseline deviation by sqrt(n).
func EmbeddingStats(similarities []float64, baselineMean, baselineStd float64) (Result, error) {
	if len(similarities) == 0 {
		return Result{}, core.NewValidationError("similarities", "cannot be empty")
	}
	if baselineStd <= 0 {
		return Result{}, core.NewValidationError("baselineStd", "must be positive")
	}

	mean := stat.Mean(similarities, nil)
	n := float64(len(similarities))
	stdError := baselineStd / math.Sqrt(n)
	z := (mean - baselineMean) / stdError
	p := oneTailedP(z)

	return Result{
		ZScore:       z,
		PValue:       p,
		Significance: Classify(p),
		EffectSize:   (mean - baselineMean) / baselineStd,
		Baseline:     baselineMean,
		Observed:     mean,
		SampleSize:   len(similarities),
	}, nil
}

// PsiCoefficient measures how much closer a response sits to the target than
// to the decoys: (Sim(R,T) - mean(Sim(R,D))) / sd(Sim(R,D)). The deviation
// is floored at 0.1 so a degenerate decoy set cannot inflate the statistic.
type PsiCoefficient struct {
	Psi            float64   `json:"psi"`
	SimTarget      float64   `json:"sim_response_target"`
	MeanDistractor float64   `json:"mean_sim_response_distractors"`
	StdDistractor  float64   `json:"std_distractors"`
	Similarities   []float64 `json:"distractor_similarities"`
	Interpretation string    `json:"interpretation"`
	Significant    bool      `json:"significant"`
}

// NewPsiCoefficient computes the coefficient from a response-target
// similarity and response-distractor similarities.
func NewPsiCoefficient(simTarget float64, distractorSims []float64) (PsiCoefficient, error) {
	if len(distractorSims) == 0 {
		return PsiCoefficient{}, core.NewValidationError("distractorSims", "cannot be empty")
	}

	mean := stat.Mean(distractorSims, nil)
	sd := 0.1
	if len(distractorSims) > 1 {
		sd = stat.PopStdDev(distractorSims, nil)
	}
	if sd < 0.001 {
		sd = 0.1
	}

	psi := (simTarget - mean) / sd
	return PsiCoefficient{
		Psi:            psi,
		SimTarget:      simTarget,
		MeanDistractor: mean,
		StdDistractor:  sd,
		Similarities:   append([]float64(nil), distractorSims...),
		Interpretation: interpretPsi(psi),
		Significant:    math.Abs(psi) > 1.96,
	}, nil
}

func interpretPsi(psi float64) string {
	switch {
	case psi > 2.58:
		return "highly_significant_hit"
	case psi > 1.96:
		return "significant_hit"
	case psi > 1.0:
		return "suggestive_hit"
	case psi > 0:
		return "slight_positive"
	case psi > -1.0:
		return "chance_level"
	case psi > -1.96:
		return "below_chance"
	default:
		return "significant_miss"
	}
}
