package scoring

import (
	"strings"
)

// LexicalScore computes length-normalized word overlap between guess and
// target text: |shared| / max(|target words|, |guess words|), scaled to
// 0-100. Deterministic: same inputs always produce the same output.
func LexicalScore(guess, targetText string) Result {
	guessWords := wordSet(guess)
	targetWords := wordSet(targetText)

	if len(guessWords) == 0 || len(targetWords) == 0 {
		return Result{OverallScore: 0, Method: MethodLexical}
	}

	var matched, missed []Evidence
	overlap := 0
	for word := range targetWords {
		if guessWords[word] {
			overlap++
			matched = append(matched, Evidence{Text: word})
		} else {
			missed = append(missed, Evidence{Text: word})
		}
	}

	denom := len(targetWords)
	if len(guessWords) > denom {
		denom = len(guessWords)
	}
	score := float64(overlap) / float64(denom) * 100.0

	return Result{
		OverallScore: score,
		Method:       MethodLexical,
		Matched:      matched,
		Missed:       missed,
	}
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}
