package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cognosis/domain/target"
)

func testTarget(t *testing.T) target.Target {
	t.Helper()
	tgt, err := target.New(target.KindImage, "a red lighthouse on a rocky shore", []string{"lighthouse", "rocks"}, "")
	require.NoError(t, err)
	return tgt
}

func TestJudgeParsesCleanJSON(t *testing.T) {
	mock := &MockLLMClient{Response: `{"score": 72, "reasoning": "Strong structural match."}`}
	adapter := NewJudgeAdapterWithClient(Config{Model: "gpt-4.1-mini"}, mock)

	judgment, err := adapter.Judge(context.Background(), "tall red tower by water", testTarget(t))
	require.NoError(t, err)
	assert.Equal(t, 72.0, judgment.Score)
	assert.Equal(t, "Strong structural match.", judgment.Reasoning)
}

func TestJudgeParsesFencedJSON(t *testing.T) {
	mock := &MockLLMClient{Response: "```json\n{\"score\": 15.5, \"reasoning\": \"Little overlap.\"}\n```"}
	adapter := NewJudgeAdapterWithClient(Config{Model: "gpt-4.1-mini"}, mock)

	judgment, err := adapter.Judge(context.Background(), "a quiet forest", testTarget(t))
	require.NoError(t, err)
	assert.Equal(t, 15.5, judgment.Score)
}

func TestJudgeRejectsMalformedResponse(t *testing.T) {
	for _, response := range []string{
		"I would rate this about 70 out of 100.",
		`{"score": "high", "reasoning": "not a number"}`,
		"",
	} {
		mock := &MockLLMClient{Response: response}
		adapter := NewJudgeAdapterWithClient(Config{Model: "gpt-4.1-mini"}, mock)
		_, err := adapter.Judge(context.Background(), "guess", testTarget(t))
		assert.Error(t, err, "response %q must not parse", response)
	}
}

func TestJudgeRejectsOutOfRangeScore(t *testing.T) {
	for _, response := range []string{
		`{"score": 420, "reasoning": "confused model"}`,
		`{"score": -5, "reasoning": "confused model"}`,
	} {
		mock := &MockLLMClient{Response: response}
		adapter := NewJudgeAdapterWithClient(Config{Model: "gpt-4.1-mini"}, mock)
		_, err := adapter.Judge(context.Background(), "guess", testTarget(t))
		assert.Error(t, err, "response %q must be rejected", response)
	}
}

func TestJudgePropagatesClientError(t *testing.T) {
	mock := &MockLLMClient{Error: errors.New("rate limited")}
	adapter := NewJudgeAdapterWithClient(Config{Model: "gpt-4.1-mini"}, mock)
	_, err := adapter.Judge(context.Background(), "guess", testTarget(t))
	assert.ErrorContains(t, err, "rate limited")
}

func TestEmbedReturnsVectorPerText(t *testing.T) {
	mock := &MockLLMClient{Vectors: [][]float64{{1, 0}, {0, 1}}}
	adapter := NewEmbeddingAdapterWithClient(Config{EmbeddingModel: "text-embedding-3-small"}, mock)

	vectors, err := adapter.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float64{1, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1}, vectors[1])
	assert.Equal(t, []float64{1, 0}, vectors[2])
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	adapter := NewEmbeddingAdapterWithClient(Config{}, &MockLLMClient{})
	_, err := adapter.Embed(context.Background(), nil)
	assert.Error(t, err)
}
