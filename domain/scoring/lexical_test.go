package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalIdenticalScores100(t *testing.T) {
	r := LexicalScore("a red lighthouse on a rocky shore", "a red lighthouse on a rocky shore")
	assert.InDelta(t, 100, r.OverallScore, 1e-9)
	assert.Equal(t, MethodLexical, r.Method)
	assert.Empty(t, r.Missed)
}

func TestLexicalDisjointScoresZero(t *testing.T) {
	r := LexicalScore("purple elephant dancing", "quiet mountain stream")
	assert.InDelta(t, 0, r.OverallScore, 1e-9)
	assert.Empty(t, r.Matched)
}

func TestLexicalDeterministic(t *testing.T) {
	first := LexicalScore("tall tower near water", "a red lighthouse on a rocky shore near water")
	for i := 0; i < 10; i++ {
		again := LexicalScore("tall tower near water", "a red lighthouse on a rocky shore near water")
		assert.Equal(t, first.OverallScore, again.OverallScore)
	}
}

func TestLexicalNormalization(t *testing.T) {
	// Case and punctuation do not affect the overlap.
	r := LexicalScore("LIGHTHOUSE, rocks!", "lighthouse rocks")
	assert.InDelta(t, 100, r.OverallScore, 1e-9)
}

func TestLexicalEmptyInput(t *testing.T) {
	assert.InDelta(t, 0, LexicalScore("", "target").OverallScore, 1e-9)
	assert.InDelta(t, 0, LexicalScore("guess", "").OverallScore, 1e-9)
}

func TestLexicalPartialOverlap(t *testing.T) {
	// target has 4 distinct words, guess shares 2 of them and has 2 of its
	// own: overlap 2 / max(4,4) = 50.
	r := LexicalScore("red lighthouse purple elephant", "red lighthouse rocky shore")
	assert.InDelta(t, 50, r.OverallScore, 1e-9)
}

func TestExactMatch(t *testing.T) {
	assert.InDelta(t, 100, ExactMatch("Ace of Spades", "  ace of spades ").OverallScore, 1e-9)
	assert.InDelta(t, 0, ExactMatch("ace of spades", "king of hearts").OverallScore, 1e-9)
}

func TestScoreMultipleChoice(t *testing.T) {
	hit, err := ScoreMultipleChoice(true, 4)
	require.NoError(t, err)
	assert.InDelta(t, 100, hit.Score, 1e-9)
	assert.InDelta(t, 100, hit.AboveChanceScore, 1e-9)
	assert.InDelta(t, 0.25, hit.ChanceLevel, 1e-9)

	miss, err := ScoreMultipleChoice(false, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0, miss.Score, 1e-9)
	assert.InDelta(t, 0, miss.AboveChanceScore, 1e-9, "misses floor at zero after chance correction")

	_, err = ScoreMultipleChoice(true, 1)
	assert.Error(t, err)
}

func TestCalibrateSimilarity(t *testing.T) {
	assert.InDelta(t, 0, CalibrateSimilarity(0.15), 1e-9)
	assert.InDelta(t, 100, CalibrateSimilarity(0.70), 1e-9)
	assert.InDelta(t, 0, CalibrateSimilarity(-0.2), 1e-9, "clamped below the band")
	assert.InDelta(t, 100, CalibrateSimilarity(0.95), 1e-9, "clamped above the band")

	mid := CalibrateSimilarity(0.425) // midpoint of the band
	assert.InDelta(t, 50, mid, 1e-6)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity(nil, nil), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 2}), 1e-9)
}
