package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash represents a cryptographic hash in lowercase hex
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals compares two hashes in constant time
func (h Hash) Equals(other Hash) bool {
	return subtle.ConstantTimeCompare([]byte(h), []byte(other)) == 1
}

// Domain-specific hash types
type (
	CommitmentHash Hash
	TagsHash       Hash
	MetadataHash   Hash
)

// Constructors
func NewMetadataHash(data []byte) MetadataHash { return MetadataHash(NewHash(data)) }
func NewTagsHash(data []byte) TagsHash         { return TagsHash(NewHash(data)) }

// String conversions
func (h CommitmentHash) String() string { return Hash(h).String() }
func (h TagsHash) String() string       { return Hash(h).String() }
func (h MetadataHash) String() string   { return Hash(h).String() }

// IsEmpty checks
func (h CommitmentHash) IsEmpty() bool { return Hash(h).IsEmpty() }
func (h TagsHash) IsEmpty() bool       { return Hash(h).IsEmpty() }
