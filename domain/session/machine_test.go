package session

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cognosis/domain/beacon"
	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
)

var (
	alice = core.PartyID("alice")
	bob   = core.PartyID("bob")
)

func testBeacon(t *testing.T) beacon.Beacon {
	t.Helper()
	sum := sha256.Sum256([]byte("round-9"))
	b, err := beacon.New(9, sum[:], beacon.SourceExternal)
	require.NoError(t, err)
	return b
}

func testTargets(t *testing.T) (target.Target, []target.Target) {
	t.Helper()
	tgt, err := target.New(target.KindImage, "a red lighthouse on a rocky shore", []string{"lighthouse", "rocks"}, "ipfs://target")
	require.NoError(t, err)
	var distractors []target.Target
	for _, p := range []string{"a white windmill in a field", "a stone tower in fog", "a pier at sunset"} {
		d, err := target.New(target.KindImage, p, nil, "")
		require.NoError(t, err)
		distractors = append(distractors, d)
	}
	return tgt, distractors
}

func lockTestTarget(t *testing.T, s *Session, now core.Timestamp) *Grid {
	t.Helper()
	b := testBeacon(t)
	tgt, distractors := testTargets(t)
	grid, err := NewGrid(b, "session/"+s.ID.String()+"/grid", tgt, distractors)
	require.NoError(t, err)
	c, nonce, err := commitment.New(commitment.SchemeOffChain, []byte(tgt.Payload), TargetMetadataHash(s.ID, b.Round), tgt.ID.String(), now)
	require.NoError(t, err)
	require.NoError(t, s.LockTarget(tgt, distractors, grid, c, nonce, b.Round, now))
	return grid
}

func startedMultiParty(t *testing.T, delayMinutes int) (*Session, core.Timestamp) {
	t.Helper()
	now := core.Now()
	s, err := NewMultiParty(alice, delayMinutes, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, s.Join(bob, now))
	lockTestTarget(t, s, now)
	return s, now
}

func TestMultiPartyHappyPath(t *testing.T) {
	s, now := startedMultiParty(t, 30)
	assert.Equal(t, StatusSending, s.Status)

	require.NoError(t, s.SubmitTags(alice, []string{"tall", "red", "coastal"}, []byte("salt"), now))
	assert.Equal(t, StatusDelay, s.Status)
	assert.False(t, s.TagsHash.IsEmpty())

	// Premature poll fails with NotYetDue and changes nothing.
	version := s.Version
	err := s.PollDelay(now)
	assert.ErrorIs(t, err, core.ErrNotYetDue)
	assert.Equal(t, StatusDelay, s.Status)
	assert.Equal(t, version, s.Version)

	after := now.Add(31 * time.Minute)
	require.NoError(t, s.PollDelay(after))
	assert.Equal(t, StatusReceiving, s.Status)

	// Poll after the transition is an idempotent no-op.
	version = s.Version
	require.NoError(t, s.PollDelay(after))
	assert.Equal(t, version, s.Version)

	require.NoError(t, s.SubmitResponse(bob, []string{"bright", "narrow", "wet"}, 0, after))
	assert.Equal(t, StatusRevealed, s.Status)
	require.NotNil(t, s.Hit)

	score := scoring.Result{OverallScore: 80, Method: scoring.MethodLexical}
	stats, err := statistics.ScoreStats(80, 50)
	require.NoError(t, err)
	require.NoError(t, s.MarkScored(score, stats, after))
	assert.Equal(t, StatusScored, s.Status)
	assert.True(t, s.Status.Terminal())
}

func TestZeroDelayTransitionsImmediately(t *testing.T) {
	s, now := startedMultiParty(t, 0)
	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("salt"), now))
	require.NoError(t, s.PollDelay(now), "delayEndsAt <= now must pass the gate")
	assert.Equal(t, StatusReceiving, s.Status)
}

func TestJoinGuards(t *testing.T) {
	now := core.Now()
	s, err := NewMultiParty(alice, 10, time.Hour, now)
	require.NoError(t, err)

	// Creator cannot join own session.
	assert.Error(t, s.Join(alice, now))
	assert.Equal(t, StatusAwaitingParticipant, s.Status)

	// Expired invite flips to Expired.
	late := now.Add(2 * time.Hour)
	err = s.Join(bob, late)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Equal(t, StatusExpired, s.Status)

	// Joining an expired session is an invalid transition.
	assert.ErrorIs(t, s.Join(bob, late), core.ErrInvalidTransition)
}

func TestSubmitTagsGuards(t *testing.T) {
	s, now := startedMultiParty(t, 5)

	// Wrong party.
	assert.Error(t, s.SubmitTags(bob, []string{"a", "b", "c"}, []byte("s"), now))

	// Wrong tag counts and empty tags.
	assert.Error(t, s.SubmitTags(alice, []string{"a", "b"}, []byte("s"), now))
	assert.Error(t, s.SubmitTags(alice, []string{"a", "b", "c", "d"}, []byte("s"), now))
	assert.Error(t, s.SubmitTags(alice, []string{"a", " ", "c"}, []byte("s"), now))
	assert.Equal(t, StatusSending, s.Status, "failed guard must not mutate status")

	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))

	// Double submission is an invalid transition.
	assert.ErrorIs(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now), core.ErrInvalidTransition)
}

func TestSubmitResponseGuards(t *testing.T) {
	s, now := startedMultiParty(t, 0)
	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))
	require.NoError(t, s.PollDelay(now))

	// Wrong party.
	assert.Error(t, s.SubmitResponse(alice, []string{"x", "y", "z"}, 0, now))

	// Out-of-range choice.
	err := s.SubmitResponse(bob, []string{"x", "y", "z"}, 4, now)
	assert.ErrorIs(t, err, core.ErrRange)
	err = s.SubmitResponse(bob, []string{"x", "y", "z"}, -1, now)
	assert.ErrorIs(t, err, core.ErrRange)
	assert.Equal(t, StatusReceiving, s.Status)

	require.NoError(t, s.SubmitResponse(bob, []string{"x", "y", "z"}, 2, now))

	// Second reveal attempt fails terminally.
	assert.ErrorIs(t, s.SubmitResponse(bob, []string{"x", "y", "z"}, 2, now), core.ErrAlreadyRevealed)
}

func TestTargetCommitmentOpensAtResponse(t *testing.T) {
	s, now := startedMultiParty(t, 0)

	// Before reveal the opening nonce is unavailable to anyone.
	_, ok := s.TargetNonce()
	assert.False(t, ok)

	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))
	require.NoError(t, s.PollDelay(now))
	require.NoError(t, s.SubmitResponse(bob, []string{"x", "y", "z"}, 1, now))

	// The reveal opened the commitment cryptographically, not by fiat: the
	// stored nonce and metadata must verify against the commitment hash.
	last := s.Commitments[len(s.Commitments)-1]
	assert.True(t, last.Revealed)
	nonce, ok := s.TargetNonce()
	require.True(t, ok)
	meta := TargetMetadataHash(s.ID, s.BeaconRound)
	assert.True(t, commitment.Verify(last, []byte(s.Target.Payload), nonce, meta))
}

func TestRestoredSessionStillOpensCommitment(t *testing.T) {
	s, now := startedMultiParty(t, 0)
	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))

	// Persist and reload mid-protocol; the opening material must survive.
	rec := s.Record()
	require.NotEmpty(t, rec.TargetNonce)
	restored, err := FromRecord(rec)
	require.NoError(t, err)

	require.NoError(t, restored.PollDelay(now))
	require.NoError(t, restored.SubmitResponse(bob, []string{"x", "y", "z"}, 0, now))
	last := restored.Commitments[len(restored.Commitments)-1]
	assert.True(t, last.Revealed)
	nonce, ok := restored.TargetNonce()
	require.True(t, ok)
	assert.True(t, commitment.Verify(last, []byte(restored.Target.Payload), nonce, TargetMetadataHash(restored.ID, restored.BeaconRound)))
}

func TestLockTargetRejectsUnboundCommitment(t *testing.T) {
	now := core.Now()
	s, err := NewMultiParty(alice, 0, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, s.Join(bob, now))

	b := testBeacon(t)
	tgt, distractors := testTargets(t)
	grid, err := NewGrid(b, "session/"+s.ID.String()+"/grid", tgt, distractors)
	require.NoError(t, err)

	// Commitment over a different payload cannot bind this target.
	c, nonce, err := commitment.New(commitment.SchemeOffChain, []byte("something else"), TargetMetadataHash(s.ID, b.Round), tgt.ID.String(), now)
	require.NoError(t, err)
	assert.Error(t, s.LockTarget(tgt, distractors, grid, c, nonce, b.Round, now))
	assert.Nil(t, s.Target)
}

func TestMarkScoredIsTerminal(t *testing.T) {
	s, now := startedMultiParty(t, 0)
	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))
	require.NoError(t, s.PollDelay(now))
	require.NoError(t, s.SubmitResponse(bob, []string{"x", "y", "z"}, 0, now))

	stats, err := statistics.ScoreStats(70, 50)
	require.NoError(t, err)
	require.NoError(t, s.MarkScored(scoring.Result{OverallScore: 70, Method: scoring.MethodLexical}, stats, now))

	firstScore := s.Score.OverallScore
	err = s.MarkScored(scoring.Result{OverallScore: 5, Method: scoring.MethodLexical}, stats, now)
	assert.ErrorIs(t, err, core.ErrAlreadyScored)
	assert.Equal(t, firstScore, s.Score.OverallScore, "a second scoring attempt must never recompute")
}

func TestIllegalTransitionsLeaveStatusUnchanged(t *testing.T) {
	now := core.Now()
	s, err := NewMultiParty(alice, 10, time.Hour, now)
	require.NoError(t, err)

	// From AwaitingParticipant, everything except Join/Expire/Cancel fails.
	assert.Error(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))
	assert.Error(t, s.PollDelay(now))
	assert.Error(t, s.SubmitResponse(bob, []string{"a", "b", "c"}, 0, now))
	stats := statistics.Result{}
	assert.Error(t, s.MarkScored(scoring.Result{}, stats, now))
	assert.Equal(t, StatusAwaitingParticipant, s.Status)
	assert.Equal(t, 0, s.Version)
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	s, now := startedMultiParty(t, 10)
	require.NoError(t, s.Cancel(bob, now))
	assert.Equal(t, StatusCancelled, s.Status)

	// Cancel on a terminal session fails.
	assert.ErrorIs(t, s.Cancel(alice, now), core.ErrInvalidTransition)

	// Outsiders cannot cancel.
	s2, now2 := startedMultiParty(t, 10)
	assert.Error(t, s2.Cancel(core.PartyID("mallory"), now2))
	assert.Equal(t, StatusSending, s2.Status)
}

func TestEventWindowLifecycle(t *testing.T) {
	now := core.Now()
	s, err := NewEventWindow(alice, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, s.Status)

	value := []byte("the market closes up on friday")
	meta := core.NewMetadataHash([]byte(s.ID))
	c, nonce, err := commitment.New(commitment.SchemeOffChain, value, meta, "prediction", now)
	require.NoError(t, err)

	require.NoError(t, s.Commit(c, now))
	assert.Equal(t, StatusCommitted, s.Status)

	// Reveal with a bad opening fails and leaves state alone.
	badNonce := make([]byte, commitment.NonceSize)
	assert.Error(t, s.RevealEvent(value, badNonce, meta, now))
	assert.Equal(t, StatusCommitted, s.Status)

	require.NoError(t, s.RevealEvent(value, nonce, meta, now.Add(time.Hour)))
	assert.Equal(t, StatusRevealed, s.Status)

	// The opened value is recorded as the prediction of record.
	sub, ok := s.Submissions[RoleParticipant]
	require.True(t, ok)
	assert.Equal(t, string(value), sub.Content)
	assert.Equal(t, alice, sub.PartyID)

	// Second reveal fails.
	assert.ErrorIs(t, s.RevealEvent(value, nonce, meta, now.Add(time.Hour)), core.ErrAlreadyRevealed)
}

func TestEventWindowExpiry(t *testing.T) {
	now := core.Now()
	s, err := NewEventWindow(alice, time.Hour, now)
	require.NoError(t, err)

	meta := core.NewMetadataHash([]byte(s.ID))
	c, nonce, err := commitment.New(commitment.SchemeOffChain, []byte("v"), meta, "ref", now)
	require.NoError(t, err)
	require.NoError(t, s.Commit(c, now))

	// Too early to expire.
	assert.ErrorIs(t, s.ExpireEvent(now), core.ErrNotYetDue)

	// Reveal after retention expires the session instead.
	late := now.Add(2 * time.Hour)
	err = s.RevealEvent([]byte("v"), nonce, meta, late)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Equal(t, StatusExpired, s.Status)

	// Expire is idempotent once expired.
	assert.NoError(t, s.ExpireEvent(late))
}

func TestVersionIncreasesOnEachTransition(t *testing.T) {
	s, now := startedMultiParty(t, 0)
	v := s.Version
	require.NoError(t, s.SubmitTags(alice, []string{"a", "b", "c"}, []byte("s"), now))
	assert.Greater(t, s.Version, v)
	v = s.Version
	require.NoError(t, s.PollDelay(now))
	assert.Greater(t, s.Version, v)
}
