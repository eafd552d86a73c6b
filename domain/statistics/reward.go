package statistics

import (
	"sort"

	"cognosis/domain/core"
)

// RewardPoint is one tabulated (accuracy, fraction-of-range) pair.
type RewardPoint struct {
	Accuracy float64 `json:"accuracy"`
	Fraction float64 `json:"fraction"`
}

// RewardCurve maps a 0-100 accuracy score to a token amount:
// reward = base + (max-base) * f(accuracy). Within the tabulated region f is
// linear interpolation between known points; below the smallest tabulated
// accuracy f falls back to accuracy²/1000. The two regions have different
// curve shapes; that asymmetry is part of the product's payout design and is
// kept as-is.
type RewardCurve struct {
	Base  float64
	Max   float64
	table []RewardPoint
}

// DefaultRewardTable anchors the payout fractions used in production.
var DefaultRewardTable = []RewardPoint{
	{Accuracy: 20, Fraction: 0.40},
	{Accuracy: 40, Fraction: 0.50},
	{Accuracy: 60, Fraction: 0.65},
	{Accuracy: 80, Fraction: 0.85},
	{Accuracy: 100, Fraction: 1.00},
}

// NewRewardCurve validates and constructs a curve. The table must be
// non-empty, sorted-able by accuracy, non-decreasing in fraction, and end at
// accuracy 100 with fraction 1 so that reward(100) == max.
func NewRewardCurve(base, max float64, table []RewardPoint) (RewardCurve, error) {
	if max < base {
		return RewardCurve{}, core.NewValidationError("max", "must be >= base")
	}
	if len(table) == 0 {
		return RewardCurve{}, core.NewValidationError("table", "cannot be empty")
	}

	pts := append([]RewardPoint(nil), table...)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Accuracy < pts[j].Accuracy })

	for i, p := range pts {
		if p.Accuracy < 0 || p.Accuracy > 100 {
			return RewardCurve{}, core.NewValidationError("table", "accuracy out of [0,100]")
		}
		if p.Fraction < 0 || p.Fraction > 1 {
			return RewardCurve{}, core.NewValidationError("table", "fraction out of [0,1]")
		}
		if i > 0 && p.Fraction < pts[i-1].Fraction {
			return RewardCurve{}, core.NewValidationError("table", "fractions must be non-decreasing")
		}
	}
	last := pts[len(pts)-1]
	if last.Accuracy != 100 || last.Fraction != 1 {
		return RewardCurve{}, core.NewValidationError("table", "must end at (100, 1)")
	}
	return RewardCurve{Base: base, Max: max, table: pts}, nil
}

// DefaultRewardCurve builds the production curve over [base, max].
func DefaultRewardCurve(base, max float64) (RewardCurve, error) {
	return NewRewardCurve(base, max, DefaultRewardTable)
}

// Reward maps accuracy to a token amount. Accuracy is clamped to [0,100].
func (c RewardCurve) Reward(accuracy float64) float64 {
	if accuracy < 0 {
		accuracy = 0
	}
	if accuracy > 100 {
		accuracy = 100
	}
	return c.Base + (c.Max-c.Base)*c.fraction(accuracy)
}

func (c RewardCurve) fraction(accuracy float64) float64 {
	smallest := c.table[0]
	if accuracy < smallest.Accuracy {
		// Low-accuracy extrapolation: quadratic rather than linear.
		f := accuracy * accuracy / 1000.0
		if f > smallest.Fraction {
			f = smallest.Fraction
		}
		return f
	}
	for i := 1; i < len(c.table); i++ {
		lo, hi := c.table[i-1], c.table[i]
		if accuracy <= hi.Accuracy {
			span := hi.Accuracy - lo.Accuracy
			if span == 0 {
				return hi.Fraction
			}
			t := (accuracy - lo.Accuracy) / span
			return lo.Fraction + t*(hi.Fraction-lo.Fraction)
		}
	}
	return c.table[len(c.table)-1].Fraction
}
