// Package target defines experiment targets and their selection. A target is
// what an experiment is "about": the image the sender concentrates on, the
// location a viewer describes, the card a participant predicts.
package target

import (
	"cognosis/domain/core"
)

// Kind classifies what the target payload represents.
type Kind string

const (
	KindLocation  Kind = "location"
	KindImage     Kind = "image"
	KindObject    Kind = "object"
	KindConcept   Kind = "concept"
	KindGenerated Kind = "generated"
)

// Target is selected once per session and immutable after creation. It must
// never be exposed to a participant before the session window closes.
type Target struct {
	ID       core.TargetID `json:"id"`
	Kind     Kind          `json:"kind"`
	Payload  string        `json:"payload"`
	Features []string      `json:"features,omitempty"`
	ImageRef string        `json:"image_ref,omitempty"`
}

// New constructs a validated Target.
func New(kind Kind, payload string, features []string, imageRef string) (Target, error) {
	if payload == "" {
		return Target{}, core.NewValidationError("payload", "cannot be empty")
	}
	switch kind {
	case KindLocation, KindImage, KindObject, KindConcept, KindGenerated:
	default:
		return Target{}, core.NewValidationError("kind", string(kind))
	}
	return Target{
		ID:       core.TargetID(core.NewID()),
		Kind:     kind,
		Payload:  payload,
		Features: features,
		ImageRef: imageRef,
	}, nil
}

// Pool is a curated set of candidate targets.
type Pool []Target

// Constraints guide generative target synthesis.
type Constraints struct {
	Kind     Kind   `json:"kind"`
	Style    string `json:"style,omitempty"`
	Category string `json:"category,omitempty"`
	Seed     *int64 `json:"seed,omitempty"`
}
