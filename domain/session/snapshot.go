package session

import (
	"encoding/hex"

	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
)

// Snapshot is the role-appropriate view of a session handed to external
// consumers. It never carries the unrevealed grid ordering, the other
// party's unrevealed tags, or an unrevealed target.
type Snapshot struct {
	ID       core.SessionID `json:"id"`
	Kind     Kind           `json:"kind"`
	Status   Status         `json:"status"`
	Role     Role           `json:"role"`
	Parties  []Party        `json:"parties"`
	TagsHash core.TagsHash  `json:"tags_hash,omitempty"`

	// Target is present for the sender during Sending and for everyone
	// after reveal.
	Target *target.Target `json:"target,omitempty"`

	// GridEntries is the blinded display grid, present for the receiver
	// during Receiving only.
	GridEntries []GridEntry `json:"grid_entries,omitempty"`

	// OwnSubmission echoes the viewer's own submission, if any.
	OwnSubmission *Submission `json:"own_submission,omitempty"`

	// SenderTags become visible to everyone after reveal.
	SenderTags []string `json:"sender_tags,omitempty"`

	// TargetNonce and BeaconRound open the target commitment for outside
	// audit. Both only appear after reveal: the round alone would let a
	// receiver replay the grid ordering.
	TargetNonce string `json:"target_nonce,omitempty"`
	BeaconRound uint64 `json:"beacon_round,omitempty"`

	DelayEndsAt core.Timestamp     `json:"delay_ends_at,omitempty"`
	Hit         *bool              `json:"hit,omitempty"`
	Score       *scoring.Result    `json:"score,omitempty"`
	Stats       *statistics.Result `json:"stats,omitempty"`
	UpdatedAt   core.Timestamp     `json:"updated_at"`
}

// SnapshotFor builds the legal view of the session for the given party.
// Unknown parties get the public (most restricted) view.
func (s *Session) SnapshotFor(viewer core.PartyID) Snapshot {
	role, _ := s.RoleOf(viewer)
	snap := Snapshot{
		ID:          s.ID,
		Kind:        s.Kind,
		Status:      s.Status,
		Role:        role,
		Parties:     append([]Party(nil), s.Parties...),
		TagsHash:    s.TagsHash,
		DelayEndsAt: s.DelayEndsAt,
		UpdatedAt:   s.UpdatedAt,
	}

	revealed := s.Status == StatusRevealed || s.Status == StatusScored

	// Sender sees the target while sending; everyone sees it after reveal.
	if s.Target != nil && (revealed || (role == RoleSender && s.targetVisibleToSender())) {
		tgt := *s.Target
		snap.Target = &tgt
	}

	// Receiver sees the blinded grid only while choosing.
	if role == RoleReceiver && s.Status == StatusReceiving && s.grid != nil {
		snap.GridEntries = s.grid.Entries()
	}

	if sub, ok := s.Submissions[role]; ok {
		own := sub
		snap.OwnSubmission = &own
	}

	if revealed {
		if tags, ok := s.SenderTags(); ok {
			snap.SenderTags = tags
		}
		if nonce, ok := s.TargetNonce(); ok {
			snap.TargetNonce = hex.EncodeToString(nonce)
			snap.BeaconRound = s.BeaconRound
		}
		snap.Hit = s.Hit
		snap.Score = s.Score
		snap.Stats = s.Stats
	}
	return snap
}

func (s *Session) targetVisibleToSender() bool {
	switch s.Status {
	case StatusSending, StatusDelay, StatusReceiving:
		return true
	}
	return false
}
