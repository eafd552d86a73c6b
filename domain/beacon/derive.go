package beacon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"cognosis/domain/core"
)

// DeriveIndex deterministically maps (beacon, purpose) to an index in
// [0, max). The purpose string provides domain separation: the same round
// must never drive two different decisions under the same purpose.
//
// Derivation: HMAC-SHA256(key=randomness, message=purpose), first 4 bytes
// big-endian as an unsigned 32-bit integer, reduced mod max.
func DeriveIndex(b Beacon, purpose string, max int) (int, error) {
	if max <= 0 {
		return 0, core.NewValidationError("max", "must be positive")
	}
	// The reduction works on a 32-bit draw; a larger max would silently
	// truncate and bias the result.
	if uint64(max) > math.MaxUint32 {
		return 0, core.NewValidationError("max", "exceeds the 32-bit derivation range")
	}
	if purpose == "" {
		return 0, core.NewValidationError("purpose", "cannot be empty")
	}

	mac := hmac.New(sha256.New, b.Randomness)
	mac.Write([]byte(purpose))
	digest := mac.Sum(nil)

	v := binary.BigEndian.Uint32(digest[:4])
	return int(v % uint32(max)), nil
}

// DeriveUniqueIndices derives count distinct indices in [0, max) by appending
// a step suffix to the purpose until enough distinct values are collected.
// Fails with a range error when count > max.
func DeriveUniqueIndices(b Beacon, purpose string, count, max int) ([]int, error) {
	if count > max {
		return nil, core.NewRangeError("count", count, max+1)
	}
	if count < 0 {
		return nil, core.NewValidationError("count", "cannot be negative")
	}

	seen := make(map[int]bool, count)
	out := make([]int, 0, count)
	for step := 0; len(out) < count; step++ {
		idx, err := DeriveIndex(b, fmt.Sprintf("%s/%d", purpose, step), max)
		if err != nil {
			return nil, err
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out, nil
}

// DerivePermutation derives a uniform permutation of [0, length) via a
// Fisher-Yates shuffle seeded by repeated DeriveIndex calls with per-step
// purpose suffixes. Deterministic for a given beacon and purpose.
func DerivePermutation(b Beacon, length int, purpose string) ([]int, error) {
	if length < 0 {
		return nil, core.NewValidationError("length", "cannot be negative")
	}

	perm := make([]int, length)
	for i := range perm {
		perm[i] = i
	}
	for i := length - 1; i > 0; i-- {
		j, err := DeriveIndex(b, fmt.Sprintf("%s/fy/%d", purpose, i), i+1)
		if err != nil {
			return nil, err
		}
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm, nil
}
