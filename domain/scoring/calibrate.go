package scoring

import (
	"gonum.org/v1/gonum/floats"
)

// Calibration constants for mapping raw cosine similarity onto the 0-100
// accuracy scale. Unrelated text pairs typically sit near the low end of
// the band; near-paraphrases near the top.
const (
	similarityFloor = 0.15
	similarityCeil  = 0.70

	// featureHitThreshold decides matched vs missed when comparing a guess
	// against individual target features.
	featureHitThreshold = 0.45
)

// CalibrateSimilarity linearly remaps cosine similarity from the
// [similarityFloor, similarityCeil] band to [0, 100], clamped.
func CalibrateSimilarity(cosine float64) float64 {
	score := (cosine - similarityFloor) / (similarityCeil - similarityFloor) * 100.0
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// CosineSimilarity computes the cosine of the angle between two embedding
// vectors. Zero-length or mismatched vectors yield 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}
