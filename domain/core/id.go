package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SessionID    ID
	TargetID     ID
	CommitmentID ID
	PartyID      ID
	TrialID      ID
)

// String conversions for domain IDs
func (id SessionID) String() string    { return ID(id).String() }
func (id TargetID) String() string     { return ID(id).String() }
func (id CommitmentID) String() string { return ID(id).String() }
func (id PartyID) String() string      { return ID(id).String() }
func (id TrialID) String() string      { return ID(id).String() }

// ParseSessionID parses a string into SessionID
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}

// ParsePartyID parses a string into PartyID
func ParsePartyID(s string) (PartyID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("party ID cannot be empty")
	}
	return PartyID(s), nil
}

// ParseTargetID parses a string into TargetID
func ParseTargetID(s string) (TargetID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("target ID cannot be empty")
	}
	return TargetID(s), nil
}
