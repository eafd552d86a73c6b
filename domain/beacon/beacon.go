// Package beacon provides verifiable-randomness beacons and deterministic
// derivation of indices and permutations from them. Every decision derived
// from a beacon is replayable from (round, randomness, purpose), so a
// contested experiment outcome can be independently recomputed.
package beacon

import (
	"encoding/hex"
	"fmt"

	"cognosis/domain/core"
)

// Source identifies where a beacon's randomness came from.
type Source string

const (
	// SourceExternal means the randomness came from a public beacon network
	// and is third-party auditable.
	SourceExternal Source = "external"
	// SourceLocalFallback means the randomness was generated locally because
	// no external beacon responded. It is unpredictable but not auditable.
	SourceLocalFallback Source = "local_fallback"
)

// RandomnessSize is the required randomness length in bytes.
const RandomnessSize = 32

// Beacon is a single round of verifiable randomness. Immutable once fetched.
type Beacon struct {
	Round      uint64 `json:"round"`
	Randomness []byte `json:"randomness"` // RandomnessSize bytes
	Source     Source `json:"source"`
}

// New validates and constructs a Beacon.
func New(round uint64, randomness []byte, source Source) (Beacon, error) {
	if len(randomness) != RandomnessSize {
		return Beacon{}, core.NewValidationError("randomness", fmt.Sprintf("expected %d bytes, got %d", RandomnessSize, len(randomness)))
	}
	if source != SourceExternal && source != SourceLocalFallback {
		return Beacon{}, core.NewValidationError("source", string(source))
	}
	return Beacon{Round: round, Randomness: randomness, Source: source}, nil
}

// ParseHex constructs a Beacon from hex-encoded randomness.
func ParseHex(round uint64, randomnessHex string, source Source) (Beacon, error) {
	raw, err := hex.DecodeString(randomnessHex)
	if err != nil {
		return Beacon{}, core.NewValidationError("randomness", "not valid hex")
	}
	return New(round, raw, source)
}

// RandomnessHex returns the randomness as lowercase hex.
func (b Beacon) RandomnessHex() string {
	return hex.EncodeToString(b.Randomness)
}

// Auditable reports whether the beacon can be verified by a third party.
// Callers that require auditable randomness (prize draws) must reject
// local-fallback beacons; callers that only need unpredictability may accept
// them.
func (b Beacon) Auditable() bool {
	return b.Source == SourceExternal
}

// RequireAuditable returns ErrLocalFallback unless the beacon is external.
func (b Beacon) RequireAuditable() error {
	if !b.Auditable() {
		return fmt.Errorf("%w: round %d", core.ErrLocalFallback, b.Round)
	}
	return nil
}
