package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
)

// Transition guards. Every method either fully applies (status, version and
// payload updated together) or returns an error leaving the session
// untouched. Callers must persist the mutated session with a compare-and-set
// on the previous Version so racing requests yield exactly one success.

// Commit attaches the binding commitment to an event-window session.
// Created -> Committed.
func (s *Session) Commit(c commitment.Commitment, now core.Timestamp) error {
	if s.Kind != KindEventWindow {
		return core.NewValidationError("kind", "commit applies to event-window sessions")
	}
	if s.Status != StatusCreated {
		return core.NewTransitionError(string(s.Status), string(StatusCommitted))
	}
	s.Commitments = append(s.Commitments, c)
	s.Status = StatusCommitted
	s.touch(now)
	return nil
}

// RevealEvent performs the user-initiated reveal of an event-window session.
// Committed -> Revealed (terminal). A session past its retention period can
// no longer reveal; it expires instead.
func (s *Session) RevealEvent(value, nonce []byte, metadataHash core.MetadataHash, now core.Timestamp) error {
	if s.Kind != KindEventWindow {
		return core.NewValidationError("kind", "reveal applies to event-window sessions")
	}
	switch s.Status {
	case StatusCommitted:
	case StatusRevealed:
		return core.ErrAlreadyRevealed
	default:
		return core.NewTransitionError(string(s.Status), string(StatusRevealed))
	}
	if now.After(s.RetentionEndsAt) {
		s.Status = StatusExpired
		s.touch(now)
		return core.ErrSessionExpired
	}
	if len(s.Commitments) == 0 {
		return core.NewValidationError("commitments", "no commitment to reveal")
	}
	if err := s.Commitments[len(s.Commitments)-1].Reveal(value, nonce, metadataHash); err != nil {
		return err
	}
	// The opened value is the prediction of record from here on; scoring
	// reads it from the submission, never from the caller again.
	party, _ := s.PartyByRole(RoleParticipant)
	s.Submissions[RoleParticipant] = Submission{
		Role:        RoleParticipant,
		PartyID:     party.ID,
		Content:     string(value),
		SubmittedAt: now,
	}
	s.Status = StatusRevealed
	s.touch(now)
	return nil
}

// ExpireEvent retires a committed session whose retention period lapsed
// without a reveal. Committed -> Expired (terminal). Idempotent on expired
// sessions.
func (s *Session) ExpireEvent(now core.Timestamp) error {
	if s.Status == StatusExpired {
		return nil
	}
	if s.Status != StatusCommitted {
		return core.NewTransitionError(string(s.Status), string(StatusExpired))
	}
	if now.Before(s.RetentionEndsAt) {
		return core.ErrNotYetDue
	}
	s.Status = StatusExpired
	s.touch(now)
	return nil
}

// Join admits the second party to a telepathy session as the receiver.
// AwaitingParticipant -> Sending. The joiner must be distinct from the
// creator and the invite must not have expired.
func (s *Session) Join(joiner core.PartyID, now core.Timestamp) error {
	if s.Kind != KindMultiParty {
		return core.NewValidationError("kind", "join applies to multi-party sessions")
	}
	if s.Status != StatusAwaitingParticipant {
		return core.NewTransitionError(string(s.Status), string(StatusSending))
	}
	if joiner == "" {
		return core.NewValidationError("joiner", "cannot be empty")
	}
	if sender, ok := s.PartyByRole(RoleSender); ok && sender.ID == joiner {
		return core.NewValidationError("joiner", "cannot join own session")
	}
	if now.After(s.InviteExpiresAt) {
		s.Status = StatusExpired
		s.touch(now)
		return core.ErrSessionExpired
	}
	s.Parties = append(s.Parties, Party{Role: RoleReceiver, ID: joiner})
	s.Status = StatusSending
	s.touch(now)
	return nil
}

// ExpireInvite retires a session no second party joined in time.
// AwaitingParticipant -> Expired (terminal). Idempotent on expired sessions.
func (s *Session) ExpireInvite(now core.Timestamp) error {
	if s.Status == StatusExpired {
		return nil
	}
	if s.Status != StatusAwaitingParticipant {
		return core.NewTransitionError(string(s.Status), string(StatusExpired))
	}
	if now.Before(s.InviteExpiresAt) {
		return core.ErrNotYetDue
	}
	s.Status = StatusExpired
	s.touch(now)
	return nil
}

// LockTarget binds the selected target, decoys, display grid and commitment
// to the session, along with the nonce and beacon round needed to open the
// commitment at response time. Legal exactly once, during Sending, before
// the sender's tags.
func (s *Session) LockTarget(tgt target.Target, distractors []target.Target, grid *Grid, c commitment.Commitment, nonce []byte, round uint64, now core.Timestamp) error {
	if s.Status != StatusSending {
		return core.NewTransitionError(string(s.Status), "target_locked")
	}
	if s.Target != nil {
		return core.NewValidationError("target", "already locked")
	}
	if grid == nil || grid.Size() != len(distractors)+1 {
		return core.NewValidationError("grid", "must cover target and all distractors")
	}
	if len(nonce) == 0 {
		return core.NewValidationError("nonce", "cannot be empty")
	}
	if !commitment.Verify(c, []byte(tgt.Payload), nonce, TargetMetadataHash(s.ID, round)) {
		return core.NewValidationError("commitment", "does not bind the target")
	}
	s.Target = &tgt
	s.Distractors = append([]target.Target(nil), distractors...)
	s.BeaconRound = round
	s.grid = grid
	s.targetNonce = append([]byte(nil), nonce...)
	s.Commitments = append(s.Commitments, c)
	s.touch(now)
	return nil
}

// SubmitTags records the sender's three impression tags and opens the delay
// window. Sending -> Delay. The tags themselves stay private to the sender
// until reveal; only their salted hash is visible.
func (s *Session) SubmitTags(sender core.PartyID, tags []string, salt []byte, now core.Timestamp) error {
	if s.Status != StatusSending {
		return core.NewTransitionError(string(s.Status), string(StatusDelay))
	}
	party, ok := s.PartyByRole(RoleSender)
	if !ok || party.ID != sender {
		return core.NewValidationError("sender", "not the session sender")
	}
	if s.Target == nil {
		return core.NewValidationError("target", "must be locked before tags")
	}
	cleaned, err := cleanTags(tags)
	if err != nil {
		return err
	}
	if len(salt) == 0 {
		return core.NewValidationError("salt", "cannot be empty")
	}

	s.TagsHash = hashTags(cleaned, salt)
	s.senderTags = cleaned
	s.senderTagsSalt = append([]byte(nil), salt...)
	s.Submissions[RoleSender] = Submission{
		Role:        RoleSender,
		PartyID:     sender,
		Tags:        cleaned,
		SubmittedAt: now,
	}
	s.DelayEndsAt = now.Add(time.Duration(s.DelayMinutes) * time.Minute)
	s.Status = StatusDelay
	s.touch(now)
	return nil
}

// PollDelay advances Delay -> Receiving once the delay deadline passes. The
// gate is a pure wall-clock comparison; premature polls fail with NotYetDue
// and polls after the transition are idempotent no-ops.
func (s *Session) PollDelay(now core.Timestamp) error {
	switch s.Status {
	case StatusReceiving:
		return nil
	case StatusDelay:
	default:
		return core.NewTransitionError(string(s.Status), string(StatusReceiving))
	}
	if now.Before(s.DelayEndsAt) {
		return core.ErrNotYetDue
	}
	s.Status = StatusReceiving
	s.touch(now)
	return nil
}

// SubmitResponse records the receiver's three tags and grid choice, then
// reveals. Receiving -> Revealed. The choice index is range-checked against
// the grid and the hidden ordering is dereferenced exactly here.
func (s *Session) SubmitResponse(receiver core.PartyID, tags []string, choice int, now core.Timestamp) error {
	if s.Status != StatusReceiving {
		if s.Status == StatusRevealed || s.Status == StatusScored {
			return core.ErrAlreadyRevealed
		}
		return core.NewTransitionError(string(s.Status), string(StatusRevealed))
	}
	party, ok := s.PartyByRole(RoleReceiver)
	if !ok || party.ID != receiver {
		return core.NewValidationError("receiver", "not the session receiver")
	}
	cleaned, err := cleanTags(tags)
	if err != nil {
		return err
	}
	hit, err := s.grid.IsHit(choice)
	if err != nil {
		return err
	}
	if len(s.Commitments) > 0 && s.Target != nil {
		// Open the target commitment with the stored nonce rather than
		// trusting the locked fields: a session whose target drifted from
		// its commitment must not reveal.
		last := len(s.Commitments) - 1
		meta := TargetMetadataHash(s.ID, s.BeaconRound)
		if err := s.Commitments[last].Reveal([]byte(s.Target.Payload), s.targetNonce, meta); err != nil {
			return err
		}
	}

	choiceCopy := choice
	s.Submissions[RoleReceiver] = Submission{
		Role:        RoleReceiver,
		PartyID:     receiver,
		Tags:        cleaned,
		ChoiceIndex: &choiceCopy,
		SubmittedAt: now,
	}
	s.Hit = &hit
	s.Status = StatusRevealed
	s.touch(now)
	return nil
}

// MarkScored attaches the scoring and statistics results.
// Revealed -> Scored (terminal). A second attempt fails with AlreadyScored
// and never recomputes: a changed score after settlement would break the
// binding guarantee.
func (s *Session) MarkScored(score scoring.Result, stats statistics.Result, now core.Timestamp) error {
	if s.Status == StatusScored {
		return core.ErrAlreadyScored
	}
	if s.Status != StatusRevealed {
		return core.NewTransitionError(string(s.Status), string(StatusScored))
	}
	s.Score = &score
	s.Stats = &stats
	s.Status = StatusScored
	s.touch(now)
	return nil
}

// Cancel withdraws the session. Legal from any non-terminal state, only for
// a party of the session. Terminal.
func (s *Session) Cancel(by core.PartyID, now core.Timestamp) error {
	if s.Status.Terminal() {
		return core.NewTransitionError(string(s.Status), string(StatusCancelled))
	}
	// An event-window reveal is terminal; a multi-party session can still be
	// withdrawn between reveal and scoring.
	if s.Kind == KindEventWindow && s.Status == StatusRevealed {
		return core.NewTransitionError(string(s.Status), string(StatusCancelled))
	}
	if _, ok := s.RoleOf(by); !ok {
		return core.NewValidationError("party", "not a member of this session")
	}
	s.Status = StatusCancelled
	s.touch(now)
	return nil
}

// TargetMetadataHash is the commitment metadata binding a target commitment
// to its session and beacon round. Shared by commitment creation at target
// lock and the opening at response time.
func TargetMetadataHash(id core.SessionID, round uint64) core.MetadataHash {
	return core.NewMetadataHash([]byte(fmt.Sprintf("%s/%d", id, round)))
}

func cleanTags(tags []string) ([]string, error) {
	if len(tags) != RequiredTags {
		return nil, core.NewValidationError("tags", "exactly 3 tags required")
	}
	cleaned := make([]string, 0, RequiredTags)
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			return nil, core.NewValidationError("tags", "tags cannot be empty")
		}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned, nil
}

func hashTags(tags []string, salt []byte) core.TagsHash {
	h := sha256.New()
	for _, tag := range tags {
		h.Write([]byte(tag))
		h.Write([]byte{0})
	}
	h.Write(salt)
	return core.TagsHash(hex.EncodeToString(h.Sum(nil)))
}
