package session

import (
	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
)

// Record is the flat persistence form of a Session, including the private
// grid ordering and unrevealed sender tags. For repository use only: handing
// a Record to a participant leaks the experiment.
type Record struct {
	ID      core.SessionID `json:"id"`
	Kind    Kind           `json:"kind"`
	Status  Status         `json:"status"`
	Version int            `json:"version"`

	Parties     []Party                 `json:"parties"`
	Commitments []commitment.Commitment `json:"commitments,omitempty"`
	Target      *target.Target          `json:"target,omitempty"`
	Distractors []target.Target         `json:"distractors,omitempty"`

	GridEntries   []target.Target `json:"grid_entries,omitempty"`
	GridTrueIndex int             `json:"grid_true_index"`
	HasGrid       bool            `json:"has_grid"`

	BeaconRound uint64 `json:"beacon_round,omitempty"`
	TargetNonce []byte `json:"target_nonce,omitempty"`

	DelayMinutes int            `json:"delay_minutes,omitempty"`
	DelayEndsAt  core.Timestamp `json:"delay_ends_at,omitempty"`

	InviteExpiresAt core.Timestamp `json:"invite_expires_at,omitempty"`
	RetentionEndsAt core.Timestamp `json:"retention_ends_at,omitempty"`

	TagsHash       core.TagsHash `json:"tags_hash,omitempty"`
	SenderTags     []string      `json:"sender_tags,omitempty"`
	SenderTagsSalt []byte        `json:"sender_tags_salt,omitempty"`

	Submissions map[Role]Submission `json:"submissions,omitempty"`
	Hit         *bool               `json:"hit,omitempty"`
	Score       *scoring.Result     `json:"score,omitempty"`
	Stats       *statistics.Result  `json:"stats,omitempty"`
	CreatedAt   core.Timestamp      `json:"created_at"`
	UpdatedAt   core.Timestamp      `json:"updated_at"`
}

// Record flattens the session for storage.
func (s *Session) Record() Record {
	rec := Record{
		ID:              s.ID,
		Kind:            s.Kind,
		Status:          s.Status,
		Version:         s.Version,
		Parties:         append([]Party(nil), s.Parties...),
		Commitments:     append([]commitment.Commitment(nil), s.Commitments...),
		Target:          s.Target,
		Distractors:     append([]target.Target(nil), s.Distractors...),
		BeaconRound:     s.BeaconRound,
		TargetNonce:     append([]byte(nil), s.targetNonce...),
		DelayMinutes:    s.DelayMinutes,
		DelayEndsAt:     s.DelayEndsAt,
		InviteExpiresAt: s.InviteExpiresAt,
		RetentionEndsAt: s.RetentionEndsAt,
		TagsHash:        s.TagsHash,
		SenderTags:      append([]string(nil), s.senderTags...),
		SenderTagsSalt:  append([]byte(nil), s.senderTagsSalt...),
		Submissions:     s.Submissions,
		Hit:             s.Hit,
		Score:           s.Score,
		Stats:           s.Stats,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.grid != nil {
		entries, trueIndex := s.grid.Persisted()
		rec.GridEntries = entries
		rec.GridTrueIndex = trueIndex
		rec.HasGrid = true
	}
	return rec
}

// FromRecord rebuilds a session from its stored form.
func FromRecord(rec Record) (*Session, error) {
	s := &Session{
		ID:              rec.ID,
		Kind:            rec.Kind,
		Status:          rec.Status,
		Version:         rec.Version,
		Parties:         rec.Parties,
		Commitments:     rec.Commitments,
		Target:          rec.Target,
		Distractors:     rec.Distractors,
		BeaconRound:     rec.BeaconRound,
		targetNonce:     rec.TargetNonce,
		DelayMinutes:    rec.DelayMinutes,
		DelayEndsAt:     rec.DelayEndsAt,
		InviteExpiresAt: rec.InviteExpiresAt,
		RetentionEndsAt: rec.RetentionEndsAt,
		TagsHash:        rec.TagsHash,
		senderTags:      rec.SenderTags,
		senderTagsSalt:  rec.SenderTagsSalt,
		Submissions:     rec.Submissions,
		Hit:             rec.Hit,
		Score:           rec.Score,
		Stats:           rec.Stats,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if s.Submissions == nil {
		s.Submissions = make(map[Role]Submission)
	}
	if rec.HasGrid {
		grid, err := RestoreGrid(rec.GridEntries, rec.GridTrueIndex)
		if err != nil {
			return nil, err
		}
		s.grid = grid
	}
	return s, nil
}
