package session

import (
	"cognosis/domain/beacon"
	"cognosis/domain/core"
	"cognosis/domain/target"
)

// Grid is the opaque capability mapping display index to underlying target.
// The receiver only ever sees the shuffled entries; the true index lives
// inside the grid and is dereferenced exactly once, at response submission.
// The zero Grid is unusable; build one with NewGrid or RestoreGrid.
type Grid struct {
	entries   []target.Target
	trueIndex int
}

// NewGrid shuffles the target and its decoys into a display order derived
// from the beacon, so the ordering itself is replayable in an audit but
// unpredictable to either party.
func NewGrid(b beacon.Beacon, purpose string, tgt target.Target, distractors []target.Target) (*Grid, error) {
	all := make([]target.Target, 0, len(distractors)+1)
	all = append(all, tgt)
	all = append(all, distractors...)

	perm, err := beacon.DerivePermutation(b, len(all), purpose)
	if err != nil {
		return nil, err
	}

	entries := make([]target.Target, len(all))
	trueIndex := -1
	for display, original := range perm {
		entries[display] = all[original]
		if original == 0 {
			trueIndex = display
		}
	}
	return &Grid{entries: entries, trueIndex: trueIndex}, nil
}

// RestoreGrid rebuilds a grid from persisted entries and true index. For
// repository use only.
func RestoreGrid(entries []target.Target, trueIndex int) (*Grid, error) {
	if trueIndex < 0 || trueIndex >= len(entries) {
		return nil, core.NewRangeError("trueIndex", trueIndex, len(entries))
	}
	return &Grid{entries: append([]target.Target(nil), entries...), trueIndex: trueIndex}, nil
}

// Size returns the number of displayed options.
func (g *Grid) Size() int { return len(g.entries) }

// IsHit dereferences a display index against the hidden true index. The
// index is range-checked before any comparison.
func (g *Grid) IsHit(displayIndex int) (bool, error) {
	if displayIndex < 0 || displayIndex >= len(g.entries) {
		return false, core.NewRangeError("choice", displayIndex, len(g.entries))
	}
	return displayIndex == g.trueIndex, nil
}

// Entries returns the display-ordered targets with identities blinded: the
// receiver view carries payloads and image refs but no target ids, so the
// true option cannot be inferred from metadata.
func (g *Grid) Entries() []GridEntry {
	out := make([]GridEntry, len(g.entries))
	for i, e := range g.entries {
		out[i] = GridEntry{
			DisplayIndex: i,
			Payload:      e.Payload,
			ImageRef:     e.ImageRef,
		}
	}
	return out
}

// Persisted exposes the raw entries and true index for durable storage.
// Never hand the result to a participant view.
func (g *Grid) Persisted() ([]target.Target, int) {
	return append([]target.Target(nil), g.entries...), g.trueIndex
}

// GridEntry is one blinded option in the receiver's display grid.
type GridEntry struct {
	DisplayIndex int    `json:"display_index"`
	Payload      string `json:"payload"`
	ImageRef     string `json:"image_ref,omitempty"`
}
