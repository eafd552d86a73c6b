package scoring

import (
	"context"
	"fmt"
	"log"

	"cognosis/domain/core"
	"cognosis/domain/target"
)

// EmbeddingOracle converts texts into fixed-dimension embedding vectors.
type EmbeddingOracle interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Judgment is the structured response of the LLM scoring oracle.
type Judgment struct {
	Score     float64 `json:"score"` // 0..100
	Reasoning string  `json:"reasoning"`
}

// JudgeOracle asks a language model to rate guess-target similarity.
type JudgeOracle interface {
	Judge(ctx context.Context, guess string, tgt target.Target) (Judgment, error)
}

// Engine runs the scoring fallback chain. Each tier is attempted only when
// the previous one is unavailable or fails; a tier's timeout or malformed
// response moves on to the next tier rather than aborting the scoring.
type Engine struct {
	embedding EmbeddingOracle
	judge     JudgeOracle
}

// NewEngine creates an Engine. Either oracle may be nil; the lexical tier
// needs neither and always terminates the chain for free-response kinds.
func NewEngine(embedding EmbeddingOracle, judge JudgeOracle) *Engine {
	return &Engine{embedding: embedding, judge: judge}
}

// Score maps (guess, target, kind) to a Result. Forced-choice kinds are
// scored deterministically and never enter the semantic chain. The caller
// always gets a definite verdict: a Result, or an error naming why every
// applicable tier failed.
func (e *Engine) Score(ctx context.Context, guess string, tgt target.Target, kind ExperimentKind) (Result, error) {
	switch kind {
	case KindForcedChoice:
		return ExactMatch(tgt.Payload, guess), nil
	case KindFreeResponse:
	default:
		return Result{}, core.NewValidationError("kind", string(kind))
	}

	if guess == "" {
		return Result{}, core.NewValidationError("guess", "cannot be empty")
	}

	if e.embedding != nil {
		result, err := e.scoreByEmbedding(ctx, guess, tgt)
		if err == nil {
			return result, nil
		}
		log.Printf("[ScoringEngine] embedding tier failed, trying llm: %v", err)
	}

	if e.judge != nil {
		result, err := e.scoreByJudgment(ctx, guess, tgt)
		if err == nil {
			return result, nil
		}
		log.Printf("[ScoringEngine] llm tier failed, trying lexical: %v", err)
	}

	return LexicalScore(guess, tgt.Payload), nil
}

func (e *Engine) scoreByEmbedding(ctx context.Context, guess string, tgt target.Target) (Result, error) {
	texts := append([]string{guess, tgt.Payload}, tgt.Features...)
	vectors, err := e.embedding.Embed(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("%w: embed: %v", core.ErrTierFailed, err)
	}
	if len(vectors) != len(texts) {
		return Result{}, fmt.Errorf("%w: embed returned %d vectors for %d texts", core.ErrTierFailed, len(vectors), len(texts))
	}

	guessVec, targetVec := vectors[0], vectors[1]
	cosine := CosineSimilarity(guessVec, targetVec)
	score := CalibrateSimilarity(cosine)

	// Per-feature evidence: each target feature is matched against the full
	// guess at the feature threshold.
	var matched, missed []Evidence
	for i, feature := range tgt.Features {
		featureSim := CosineSimilarity(guessVec, vectors[2+i])
		ev := Evidence{Text: feature, Similarity: featureSim}
		if featureSim >= featureHitThreshold {
			matched = append(matched, ev)
		} else {
			missed = append(missed, ev)
		}
	}

	raw := cosine
	return Result{
		OverallScore:  score,
		Method:        MethodEmbedding,
		Matched:       matched,
		Missed:        missed,
		RawSimilarity: &raw,
	}, nil
}

// Similarities measures the guess against the target and each distractor in
// one embedding batch, for psi-coefficient analysis. Requires the embedding
// oracle.
func (e *Engine) Similarities(ctx context.Context, guess string, tgt target.Target, distractors []target.Target) (float64, []float64, error) {
	if e.embedding == nil {
		return 0, nil, core.ErrOracleUnavailable
	}
	if len(distractors) == 0 {
		return 0, nil, core.NewValidationError("distractors", "cannot be empty")
	}
	texts := []string{guess, tgt.Payload}
	for _, d := range distractors {
		texts = append(texts, d.Payload)
	}
	vectors, err := e.embedding.Embed(ctx, texts)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: embed: %v", core.ErrTierFailed, err)
	}
	if len(vectors) != len(texts) {
		return 0, nil, fmt.Errorf("%w: embed returned %d vectors for %d texts", core.ErrTierFailed, len(vectors), len(texts))
	}

	guessVec := vectors[0]
	simTarget := CosineSimilarity(guessVec, vectors[1])
	distractorSims := make([]float64, len(distractors))
	for i := range distractors {
		distractorSims[i] = CosineSimilarity(guessVec, vectors[2+i])
	}
	return simTarget, distractorSims, nil
}

func (e *Engine) scoreByJudgment(ctx context.Context, guess string, tgt target.Target) (Result, error) {
	judgment, err := e.judge.Judge(ctx, guess, tgt)
	if err != nil {
		return Result{}, fmt.Errorf("%w: judge: %v", core.ErrTierFailed, err)
	}
	// An out-of-range score is a tier failure, not a zero.
	if judgment.Score < 0 || judgment.Score > 100 {
		return Result{}, fmt.Errorf("%w: judge score %.2f outside [0,100]", core.ErrTierFailed, judgment.Score)
	}
	return Result{
		OverallScore: judgment.Score,
		Method:       MethodLLM,
		Reasoning:    judgment.Reasoning,
	}, nil
}
