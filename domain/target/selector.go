package target

import (
	"context"
	"fmt"
	"log"
	"sync"

	"cognosis/domain/beacon"
	"cognosis/domain/core"
)

// GenerativeOracle synthesizes novel targets (e.g. AI-generated images).
type GenerativeOracle interface {
	Generate(ctx context.Context, constraints Constraints) (Target, error)
}

// SimilarityOracle produces decoys within a similarity band of a target and
// measures pairwise similarity for band verification.
type SimilarityOracle interface {
	GenerateDistractors(ctx context.Context, t Target, n int, minSimilarity float64) ([]Target, error)
	Similarity(ctx context.Context, a, b Target) (float64, error)
}

// Selector picks or synthesizes targets from verifiable randomness. Selection
// for a given (beacon, purpose) is cached so audit replays are idempotent:
// the same beacon always yields the same target.
type Selector struct {
	generative GenerativeOracle
	similarity SimilarityOracle

	mu    sync.Mutex
	cache map[string]Target
}

// NewSelector creates a Selector. Both oracles are optional; without a
// generative oracle Generate always falls back to the pool.
func NewSelector(generative GenerativeOracle, similarity SimilarityOracle) *Selector {
	return &Selector{
		generative: generative,
		similarity: similarity,
		cache:      make(map[string]Target),
	}
}

// SelectFromPool picks pool[DeriveIndex(beacon, purpose, len(pool))].
func (s *Selector) SelectFromPool(pool Pool, b beacon.Beacon, purpose string) (Target, error) {
	if len(pool) == 0 {
		return Target{}, core.NewValidationError("pool", "cannot be empty")
	}

	key := fmt.Sprintf("%d/%s", b.Round, purpose)
	s.mu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	idx, err := beacon.DeriveIndex(b, purpose, len(pool))
	if err != nil {
		return Target{}, err
	}
	picked := pool[idx]

	s.mu.Lock()
	s.cache[key] = picked
	s.mu.Unlock()
	return picked, nil
}

// Generate synthesizes a target via the generative oracle, falling back to
// pool selection on oracle failure. A session is never left without a target.
func (s *Selector) Generate(ctx context.Context, constraints Constraints, pool Pool, b beacon.Beacon, purpose string) (Target, error) {
	if s.generative != nil {
		generated, err := s.generative.Generate(ctx, constraints)
		if err == nil {
			return generated, nil
		}
		log.Printf("[Selector] generative oracle failed, falling back to pool: %v", err)
	}
	return s.SelectFromPool(pool, b, purpose)
}

// GenerateDistractors asks the similarity oracle for n decoys within the
// band [minSimilarity, 1) of the target. Decoys outside the band are dropped:
// the caller gets fewer decoys rather than a silently weakened guarantee.
func (s *Selector) GenerateDistractors(ctx context.Context, t Target, n int, minSimilarity float64) ([]Target, error) {
	if n <= 0 {
		return nil, core.NewValidationError("n", "must be positive")
	}
	if minSimilarity < 0 || minSimilarity >= 1 {
		return nil, core.NewValidationError("minSimilarity", "must be in [0,1)")
	}
	if s.similarity == nil {
		return nil, core.ErrOracleUnavailable
	}

	candidates, err := s.similarity.GenerateDistractors(ctx, t, n, minSimilarity)
	if err != nil {
		return nil, fmt.Errorf("%w: distractor generation: %v", core.ErrOracleUnavailable, err)
	}

	kept := make([]Target, 0, len(candidates))
	for _, d := range candidates {
		sim, err := s.similarity.Similarity(ctx, t, d)
		if err != nil {
			log.Printf("[Selector] dropping unverifiable distractor %s: %v", d.ID, err)
			continue
		}
		// The band excludes 1.0: a decoy identical to the target would leak
		// it, and one below the floor is trivially distinguishable.
		if sim >= minSimilarity && sim < 1 {
			kept = append(kept, d)
		}
	}
	if len(kept) < n {
		log.Printf("[Selector] similarity band satisfied by %d/%d distractors", len(kept), n)
	}
	return kept, nil
}
