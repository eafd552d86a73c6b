package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cognosis/domain/scoring"
	"cognosis/domain/target"
)

// JudgeAdapter implements scoring.JudgeOracle using an LLM. The model returns
// a strict JSON judgment; anything malformed or out of range surfaces as an
// error so the scoring engine can drop to the next tier.
type JudgeAdapter struct {
	config    Config
	llmClient LLMClient
}

// NewJudgeAdapter creates a judge adapter against the configured provider.
func NewJudgeAdapter(config Config) (*JudgeAdapter, error) {
	client, err := newLLMClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &JudgeAdapter{config: config, llmClient: client}, nil
}

// NewJudgeAdapterWithClient injects a client, for tests.
func NewJudgeAdapterWithClient(config Config, client LLMClient) *JudgeAdapter {
	return &JudgeAdapter{config: config, llmClient: client}
}

const judgePromptTemplate = `You are scoring a perception experiment.

A receiver wrote down impressions without any knowledge of the target.
Rate how well the impressions match the target on a 0-100 scale, where 0
means no correspondence at all and 100 means an unmistakable description.

Target description: %s
Target features: %s

Receiver impressions: %s

Respond with ONLY a JSON object, no prose around it:
{"score": <number 0-100>, "reasoning": "<one or two sentences>"}`

// Judge rates guess-target correspondence.
func (a *JudgeAdapter) Judge(ctx context.Context, guess string, tgt target.Target) (scoring.Judgment, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, tgt.Payload, strings.Join(tgt.Features, ", "), guess)
	response, err := a.llmClient.ChatCompletion(ctx, a.config.Model, prompt, a.config.MaxTokens)
	if err != nil {
		return scoring.Judgment{}, fmt.Errorf("judge completion: %w", err)
	}
	return parseJudgment(response)
}

// parseJudgment extracts the JSON object from the model response. Models
// occasionally wrap the object in code fences or prose; the parse tolerates
// the wrapping but rejects anything without a valid object.
func parseJudgment(response string) (scoring.Judgment, error) {
	raw := strings.TrimSpace(response)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var judgment scoring.Judgment
	if err := json.Unmarshal([]byte(raw), &judgment); err != nil {
		return scoring.Judgment{}, fmt.Errorf("malformed judgment %q: %w", truncate(response, 120), err)
	}
	if judgment.Score < 0 || judgment.Score > 100 {
		return scoring.Judgment{}, fmt.Errorf("judgment score %.2f outside [0,100]", judgment.Score)
	}
	return judgment, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
