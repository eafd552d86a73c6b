// Package scoring converts a free-form guess and a target into a 0-100
// accuracy score through an ordered fallback chain: embedding similarity,
// LLM semantic judgment, lexical overlap, and a deterministic tier for
// symbolic targets. The tier that actually produced a score is always
// recorded; scores are not comparable across tiers.
package scoring

// Method identifies the tier that produced a score.
type Method string

const (
	MethodEmbedding     Method = "embedding"
	MethodLLM           Method = "llm"
	MethodLexical       Method = "lexical"
	MethodDeterministic Method = "deterministic"
)

// Evidence is one matched or missed target feature.
type Evidence struct {
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Result is the outcome of scoring one guess against one target.
type Result struct {
	OverallScore  float64    `json:"overall_score"` // 0..100
	Method        Method     `json:"method"`
	Matched       []Evidence `json:"matched,omitempty"`
	Missed        []Evidence `json:"missed,omitempty"`
	RawSimilarity *float64   `json:"raw_similarity,omitempty"`
	Reasoning     string     `json:"reasoning,omitempty"`
}

// ExperimentKind selects the scoring strategy for an experiment type.
type ExperimentKind string

const (
	// KindFreeResponse covers remote viewing, telepathy impressions and
	// other open text, scored through the semantic tier chain.
	KindFreeResponse ExperimentKind = "free_response"
	// KindForcedChoice covers card draws, grid choices and other discrete
	// symbols, scored deterministically and never through tiers 1-3.
	KindForcedChoice ExperimentKind = "forced_choice"
)
