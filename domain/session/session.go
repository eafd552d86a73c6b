// Package session implements the experiment lifecycle: the aggregate root,
// its state machines (single-party event-window and two-party telepathy), and
// the role-scoped views handed to participants. All mutation goes through
// transition methods whose guards either fully apply or fully no-op; callers
// persist the result with an atomic compare-and-set on Version.
package session

import (
	"time"

	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
)

// Kind is the experiment shape.
type Kind string

const (
	// KindEventWindow is the single-party protocol: commit, then a
	// user-initiated reveal against real-world outcomes.
	KindEventWindow Kind = "event_window"
	// KindMultiParty is the two-role telepathy protocol with a mandatory
	// delay between target-lock and response.
	KindMultiParty Kind = "multi_party"
)

// Status is the state machine state.
type Status string

const (
	// Event-window states
	StatusCreated   Status = "created"
	StatusCommitted Status = "committed"

	// Multi-party states
	StatusAwaitingParticipant Status = "awaiting_participant"
	StatusSending             Status = "sending"
	StatusDelay               Status = "delay"
	StatusReceiving           Status = "receiving"

	// Shared states
	StatusRevealed  Status = "revealed"
	StatusScored    Status = "scored"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are legal from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusScored, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Role names a party's function in the protocol.
type Role string

const (
	RoleParticipant Role = "participant" // event-window single party
	RoleSender      Role = "sender"
	RoleReceiver    Role = "receiver"
)

// Party is a participant bound to a role.
type Party struct {
	Role Role         `json:"role"`
	ID   core.PartyID `json:"id"`
}

// Submission is one party's response: free-form content plus up to
// MaxTags short tags. Exactly one submission per role per session.
type Submission struct {
	Role        Role           `json:"role"`
	PartyID     core.PartyID   `json:"party_id"`
	Content     string         `json:"content,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	ChoiceIndex *int           `json:"choice_index,omitempty"`
	SubmittedAt core.Timestamp `json:"submitted_at"`
}

// RequiredTags is the exact number of tags a telepathy submission carries.
const RequiredTags = 3

// MaxTags bounds the tags on any submission.
const MaxTags = 3

// Session is the aggregate root for one run of the protocol. It is mutated
// only through its transition methods and becomes immutable once Status is
// terminal or Revealed (event-window).
type Session struct {
	ID      core.SessionID `json:"id"`
	Kind    Kind           `json:"kind"`
	Status  Status         `json:"status"`
	Version int            `json:"version"`

	Parties     []Party                 `json:"parties"`
	Commitments []commitment.Commitment `json:"commitments,omitempty"`
	Target      *target.Target          `json:"-"` // hidden until reveal; snapshots expose it legally
	Distractors []target.Target         `json:"-"`

	// BeaconRound is the randomness round that drove target selection and
	// grid ordering. Hidden until reveal: with the round a receiver could
	// replay the grid permutation and find the true index.
	BeaconRound uint64 `json:"-"`

	// grid is the opaque display-order capability for telepathy sessions.
	// Never serialized into any participant view.
	grid *Grid

	// targetNonce opens the target commitment at response time. Held by
	// the service on the session because neither party may learn it early.
	targetNonce []byte

	DelayMinutes int            `json:"delay_minutes,omitempty"`
	DelayEndsAt  core.Timestamp `json:"delay_ends_at,omitempty"`

	InviteExpiresAt core.Timestamp `json:"invite_expires_at,omitempty"`
	RetentionEndsAt core.Timestamp `json:"retention_ends_at,omitempty"`
	TagsHash        core.TagsHash  `json:"tags_hash,omitempty"`
	senderTags      []string
	senderTagsSalt  []byte
	Submissions     map[Role]Submission `json:"submissions,omitempty"`
	Hit             *bool               `json:"hit,omitempty"`
	Score           *scoring.Result     `json:"score,omitempty"`
	Stats           *statistics.Result  `json:"stats,omitempty"`
	CreatedAt       core.Timestamp      `json:"created_at"`
	UpdatedAt       core.Timestamp      `json:"updated_at"`
}

// NewEventWindow starts a single-party session in Created. The retention
// period bounds how long a committed session may wait for its reveal.
func NewEventWindow(party core.PartyID, retention time.Duration, now core.Timestamp) (*Session, error) {
	if party == "" {
		return nil, core.NewValidationError("party", "cannot be empty")
	}
	if retention <= 0 {
		return nil, core.NewValidationError("retention", "must be positive")
	}
	return &Session{
		ID:              core.SessionID(core.NewID()),
		Kind:            KindEventWindow,
		Status:          StatusCreated,
		Parties:         []Party{{Role: RoleParticipant, ID: party}},
		RetentionEndsAt: now.Add(retention),
		Submissions:     make(map[Role]Submission),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// NewMultiParty starts a telepathy session in AwaitingParticipant. The
// creator takes the sender role; the joining party becomes the receiver.
func NewMultiParty(creator core.PartyID, delayMinutes int, inviteTTL time.Duration, now core.Timestamp) (*Session, error) {
	if creator == "" {
		return nil, core.NewValidationError("creator", "cannot be empty")
	}
	if delayMinutes < 0 {
		return nil, core.NewValidationError("delayMinutes", "cannot be negative")
	}
	if inviteTTL <= 0 {
		return nil, core.NewValidationError("inviteTTL", "must be positive")
	}
	return &Session{
		ID:              core.SessionID(core.NewID()),
		Kind:            KindMultiParty,
		Status:          StatusAwaitingParticipant,
		Parties:         []Party{{Role: RoleSender, ID: creator}},
		DelayMinutes:    delayMinutes,
		InviteExpiresAt: now.Add(inviteTTL),
		Submissions:     make(map[Role]Submission),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// PartyByRole returns the party holding role, if any.
func (s *Session) PartyByRole(role Role) (Party, bool) {
	for _, p := range s.Parties {
		if p.Role == role {
			return p, true
		}
	}
	return Party{}, false
}

// RoleOf returns the role a party id holds in this session.
func (s *Session) RoleOf(id core.PartyID) (Role, bool) {
	for _, p := range s.Parties {
		if p.ID == id {
			return p.Role, true
		}
	}
	return "", false
}

// Grid returns the opaque display-order capability, nil before target lock.
func (s *Session) Grid() *Grid { return s.grid }

// SenderTags returns the sender's committed tags. Legal only once the
// session has revealed; before that the tags are private to the sender.
func (s *Session) SenderTags() ([]string, bool) {
	if s.Status != StatusRevealed && s.Status != StatusScored {
		return nil, false
	}
	return append([]string(nil), s.senderTags...), true
}

// TargetNonce returns the opening nonce of the target commitment. Legal only
// once the session has revealed; before that the nonce would let either party
// test candidate targets against the commitment hash.
func (s *Session) TargetNonce() ([]byte, bool) {
	if s.Status != StatusRevealed && s.Status != StatusScored {
		return nil, false
	}
	if len(s.targetNonce) == 0 {
		return nil, false
	}
	return append([]byte(nil), s.targetNonce...), true
}

func (s *Session) touch(now core.Timestamp) {
	s.UpdatedAt = now
	s.Version++
}
