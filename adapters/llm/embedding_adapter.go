package llm

import (
	"context"
	"fmt"
)

// EmbeddingAdapter implements scoring.EmbeddingOracle via the provider's
// embeddings endpoint.
type EmbeddingAdapter struct {
	config    Config
	llmClient LLMClient
}

// NewEmbeddingAdapter creates an embedding adapter against the configured
// provider.
func NewEmbeddingAdapter(config Config) (*EmbeddingAdapter, error) {
	client, err := newLLMClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return &EmbeddingAdapter{config: config, llmClient: client}, nil
}

// NewEmbeddingAdapterWithClient injects a client, for tests.
func NewEmbeddingAdapterWithClient(config Config, client LLMClient) *EmbeddingAdapter {
	return &EmbeddingAdapter{config: config, llmClient: client}
}

// Embed converts texts into embedding vectors, one per input, in order.
func (a *EmbeddingAdapter) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts to embed")
	}
	vectors, err := a.llmClient.Embeddings(ctx, a.config.EmbeddingModel, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	return vectors, nil
}
