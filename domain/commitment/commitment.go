// Package commitment implements the binding hash scheme that locks a party
// to a secret value before any reveal. A commitment binds value, nonce and
// session metadata; flipping any byte of any input invalidates verification.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"cognosis/domain/core"
)

// NonceSize is the size of commitment nonces in bytes.
const NonceSize = 32

// Scheme selects the hash construction for a commitment.
type Scheme string

const (
	// SchemeOffChain is H(value ‖ nonce ‖ metadataHash) with SHA-256,
	// used for event-window and telepathy sessions settled off-chain.
	SchemeOffChain Scheme = "offchain"
	// SchemeOnChain is Blake2b-256(value ‖ nonce), matching the on-chain
	// settlement contract's verifier.
	SchemeOnChain Scheme = "onchain"
)

// Commitment binds a party to a secret value. The nonce must be held only by
// the committing party (or encrypted at rest) until the legal reveal instant.
// Once Revealed is set the commitment is terminal.
type Commitment struct {
	ID        core.CommitmentID   `json:"id"`
	Scheme    Scheme              `json:"scheme"`
	Hash      core.CommitmentHash `json:"hash"`
	CreatedAt core.Timestamp      `json:"created_at"`
	Revealed  bool                `json:"revealed"`
	// BoundValueRef points at the durable record of the committed value
	// (e.g. a target id). It never contains the value itself.
	BoundValueRef string `json:"bound_value_ref"`
}

// NewNonce generates a fresh commitment nonce from the system CSPRNG.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return nonce, nil
}

// ComputeHash computes the binding hash for the given scheme.
func ComputeHash(scheme Scheme, value, nonce []byte, metadataHash core.MetadataHash) (core.CommitmentHash, error) {
	if len(value) == 0 {
		return "", core.NewValidationError("value", "cannot be empty")
	}
	if len(nonce) != NonceSize {
		return "", core.NewValidationError("nonce", fmt.Sprintf("expected %d bytes, got %d", NonceSize, len(nonce)))
	}

	switch scheme {
	case SchemeOffChain:
		h := sha256.New()
		h.Write(value)
		h.Write(nonce)
		h.Write([]byte(metadataHash))
		return core.CommitmentHash(hex.EncodeToString(h.Sum(nil))), nil
	case SchemeOnChain:
		h, err := blake2b.New256(nil)
		if err != nil {
			return "", fmt.Errorf("initializing blake2b: %w", err)
		}
		h.Write(value)
		h.Write(nonce)
		return core.CommitmentHash(hex.EncodeToString(h.Sum(nil))), nil
	default:
		return "", core.NewValidationError("scheme", string(scheme))
	}
}

// New creates a commitment over value with a fresh nonce. The nonce is
// returned to the caller and never stored on the Commitment itself.
func New(scheme Scheme, value []byte, metadataHash core.MetadataHash, boundValueRef string, now core.Timestamp) (Commitment, []byte, error) {
	nonce, err := NewNonce()
	if err != nil {
		return Commitment{}, nil, err
	}
	hash, err := ComputeHash(scheme, value, nonce, metadataHash)
	if err != nil {
		return Commitment{}, nil, err
	}
	return Commitment{
		ID:            core.CommitmentID(core.NewID()),
		Scheme:        scheme,
		Hash:          hash,
		CreatedAt:     now,
		BoundValueRef: boundValueRef,
	}, nonce, nil
}

// Verify reports whether (value, nonce, metadataHash) opens the commitment.
func Verify(c Commitment, value, nonce []byte, metadataHash core.MetadataHash) bool {
	recomputed, err := ComputeHash(c.Scheme, value, nonce, metadataHash)
	if err != nil {
		return false
	}
	return core.Hash(c.Hash).Equals(core.Hash(recomputed))
}

// Reveal marks the commitment revealed after verifying the opening. A second
// reveal fails with ErrAlreadyRevealed and leaves the commitment unchanged.
func (c *Commitment) Reveal(value, nonce []byte, metadataHash core.MetadataHash) error {
	if c.Revealed {
		return core.ErrAlreadyRevealed
	}
	if !Verify(*c, value, nonce, metadataHash) {
		return core.NewValidationError("opening", "does not match commitment hash")
	}
	c.Revealed = true
	return nil
}
