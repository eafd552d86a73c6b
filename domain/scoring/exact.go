package scoring

import (
	"strings"

	"cognosis/domain/core"
)

// ExactMatch scores discrete symbols (card rank/suit, binary hit/miss).
// Case-insensitive, whitespace-trimmed. Never falls through to the semantic
// tiers.
func ExactMatch(targetSymbol, responseSymbol string) Result {
	match := strings.EqualFold(strings.TrimSpace(targetSymbol), strings.TrimSpace(responseSymbol))
	score := 0.0
	if match {
		score = 100.0
	}
	return Result{
		OverallScore: score,
		Method:       MethodDeterministic,
	}
}

// MultipleChoice scores a forced choice among numChoices options with chance
// correction: above-chance = (hit - 1/n) / (1 - 1/n), floored at 0.
type MultipleChoice struct {
	Hit              bool    `json:"hit"`
	Score            float64 `json:"score"`              // raw 0 or 100
	AboveChanceScore float64 `json:"above_chance_score"` // chance-corrected 0..100
	ChanceLevel      float64 `json:"chance_level"`
	NumChoices       int     `json:"num_choices"`
}

// ScoreMultipleChoice computes chance-corrected forced-choice accuracy.
func ScoreMultipleChoice(hit bool, numChoices int) (MultipleChoice, error) {
	if numChoices < 2 {
		return MultipleChoice{}, core.NewValidationError("numChoices", "must be at least 2")
	}

	chance := 1.0 / float64(numChoices)
	rawUnit := 0.0
	raw := 0.0
	if hit {
		rawUnit = 1.0
		raw = 100.0
	}
	aboveChance := (rawUnit - chance) / (1.0 - chance) * 100.0
	if aboveChance < 0 {
		aboveChance = 0
	}
	return MultipleChoice{
		Hit:              hit,
		Score:            raw,
		AboveChanceScore: aboveChance,
		ChanceLevel:      chance,
		NumChoices:       numChoices,
	}, nil
}
