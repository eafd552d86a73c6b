package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cognosis/domain/scoring"
	"cognosis/domain/target"
)

// SieveAdapter implements target.SimilarityOracle: decoy candidates come from
// the chat model and pairwise similarity from the embeddings endpoint. The
// selector verifies every candidate against the similarity band, so the chat
// model's output is a proposal, never a guarantee.
type SieveAdapter struct {
	config    Config
	llmClient LLMClient
}

// NewSieveAdapter creates a sieve adapter against the configured provider.
func NewSieveAdapter(config Config) (*SieveAdapter, error) {
	client, err := newLLMClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &SieveAdapter{config: config, llmClient: client}, nil
}

// NewSieveAdapterWithClient injects a client, for tests.
func NewSieveAdapterWithClient(config Config, client LLMClient) *SieveAdapter {
	return &SieveAdapter{config: config, llmClient: client}
}

const sievePromptTemplate = `Generate %d decoy descriptions for a perception
experiment. Each decoy must be the same kind of scene as the real target and
plausibly confusable with it at a glance, yet clearly distinct on inspection.

Real target: %s

Respond with ONLY a JSON array of %d strings.`

// GenerateDistractors proposes n decoy targets for t.
func (a *SieveAdapter) GenerateDistractors(ctx context.Context, t target.Target, n int, minSimilarity float64) ([]target.Target, error) {
	prompt := fmt.Sprintf(sievePromptTemplate, n, t.Payload, n)
	response, err := a.llmClient.ChatCompletion(ctx, a.config.Model, prompt, a.config.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("sieve completion: %w", err)
	}

	payloads, err := parseDecoyList(response)
	if err != nil {
		return nil, err
	}

	decoys := make([]target.Target, 0, len(payloads))
	for _, payload := range payloads {
		decoy, err := target.New(t.Kind, payload, nil, "")
		if err != nil {
			continue
		}
		decoys = append(decoys, decoy)
	}
	if len(decoys) == 0 {
		return nil, fmt.Errorf("sieve produced no usable decoys")
	}
	return decoys, nil
}

// Similarity embeds both payloads and returns their cosine similarity.
func (a *SieveAdapter) Similarity(ctx context.Context, x, y target.Target) (float64, error) {
	vectors, err := a.llmClient.Embeddings(ctx, a.config.EmbeddingModel, []string{x.Payload, y.Payload})
	if err != nil {
		return 0, fmt.Errorf("similarity embeddings: %w", err)
	}
	if len(vectors) != 2 {
		return 0, fmt.Errorf("expected 2 embeddings, got %d", len(vectors))
	}
	return scoring.CosineSimilarity(vectors[0], vectors[1]), nil
}

// parseDecoyList extracts the JSON string array, tolerating code fences.
func parseDecoyList(response string) ([]string, error) {
	raw := strings.TrimSpace(response)
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	var payloads []string
	if err := json.Unmarshal([]byte(raw), &payloads); err != nil {
		return nil, fmt.Errorf("malformed decoy list %q: %w", truncate(response, 120), err)
	}
	return payloads, nil
}
