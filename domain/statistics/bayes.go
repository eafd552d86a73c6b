package statistics

import (
	"math"

	montstats "github.com/montanaflynn/stats"

	"cognosis/domain/core"
)

// BayesianBaseline is a normal-normal conjugate update of a participant's
// personal chance baseline from their observed scores.
type BayesianBaseline struct {
	PriorMean     float64 `json:"prior_mean"`
	PosteriorMean float64 `json:"posterior_mean"`
	PosteriorStd  float64 `json:"posterior_std"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	Observations  int     `json:"n_observations"`
}

// UpdateBaseline folds observed scores into the prior. With a single
// observation the data variance falls back to the prior variance.
func UpdateBaseline(data []float64, priorMean, priorVariance float64) (BayesianBaseline, error) {
	if len(data) == 0 {
		return BayesianBaseline{}, core.NewValidationError("data", "cannot be empty")
	}
	if priorVariance <= 0 {
		return BayesianBaseline{}, core.NewValidationError("priorVariance", "must be positive")
	}

	n := float64(len(data))
	dataMean, err := montstats.Mean(data)
	if err != nil {
		return BayesianBaseline{}, err
	}
	dataVariance := priorVariance
	if len(data) > 1 {
		dataVariance, err = montstats.PopulationVariance(data)
		if err != nil {
			return BayesianBaseline{}, err
		}
		if dataVariance <= 0 {
			dataVariance = priorVariance
		}
	}

	posteriorVariance := 1.0 / (1.0/priorVariance + n/dataVariance)
	posteriorMean := posteriorVariance * (priorMean/priorVariance + n*dataMean/dataVariance)
	posteriorStd := math.Sqrt(posteriorVariance)

	return BayesianBaseline{
		PriorMean:     priorMean,
		PosteriorMean: posteriorMean,
		PosteriorStd:  posteriorStd,
		CILower:       posteriorMean - 1.96*posteriorStd,
		CIUpper:       posteriorMean + 1.96*posteriorStd,
		Observations:  len(data),
	}, nil
}

// BatchSummary is the aggregate view of a batch of session scores.
type BatchSummary struct {
	Sessions int     `json:"n_sessions"`
	Mean     float64 `json:"mean_score"`
	Std      float64 `json:"std_score"`
	Median   float64 `json:"median_score"`
	Min      float64 `json:"min_score"`
	Max      float64 `json:"max_score"`
}

// Summarize computes descriptive statistics over a score batch.
func Summarize(scores []float64) (BatchSummary, error) {
	if len(scores) == 0 {
		return BatchSummary{}, core.NewValidationError("scores", "cannot be empty")
	}

	mean, err := montstats.Mean(scores)
	if err != nil {
		return BatchSummary{}, err
	}
	std, err := montstats.StandardDeviation(scores)
	if err != nil {
		return BatchSummary{}, err
	}
	median, err := montstats.Median(scores)
	if err != nil {
		return BatchSummary{}, err
	}
	min, err := montstats.Min(scores)
	if err != nil {
		return BatchSummary{}, err
	}
	max, err := montstats.Max(scores)
	if err != nil {
		return BatchSummary{}, err
	}

	return BatchSummary{
		Sessions: len(scores),
		Mean:     mean,
		Std:      std,
		Median:   median,
		Min:      min,
		Max:      max,
	}, nil
}
