package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/session"
	"cognosis/domain/target"
	"cognosis/internal/testkit"
	"cognosis/ports"
)

func newTestService(t *testing.T) (*ExperimentService, *testkit.Kit) {
	t.Helper()
	kit := testkit.New()
	selector := target.NewSelector(nil, nil)
	scorer := scoring.NewEngine(nil, nil)
	svc, err := NewExperimentService(
		kit.Sessions, kit.Trials, kit.Beacons, selector, scorer,
		testkit.TargetPool(), kit.Clock, DefaultExperimentConfig(),
	)
	require.NoError(t, err)
	return svc, kit
}

func TestTelepathyEndToEnd(t *testing.T) {
	svc, kit := newTestService(t)
	ctx := context.Background()
	sender := core.PartyID("sender-1")
	receiver := core.PartyID("receiver-1")

	sess, err := svc.CreateTelepathySession(ctx, sender, 0)
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingParticipant, sess.Status)

	_, err = svc.JoinSession(ctx, sess.ID, receiver)
	require.NoError(t, err)

	sess, err = svc.LockTarget(ctx, sess.ID, sender, target.Constraints{})
	require.NoError(t, err)
	require.NotNil(t, sess.Target)
	require.NotNil(t, sess.Grid())
	assert.Len(t, sess.Commitments, 1)
	assert.Equal(t, 4, sess.Grid().Size())

	// The sender sees the target; the receiver does not.
	senderView, err := svc.Snapshot(ctx, sess.ID, sender)
	require.NoError(t, err)
	assert.NotNil(t, senderView.Target)
	receiverView, err := svc.Snapshot(ctx, sess.ID, receiver)
	require.NoError(t, err)
	assert.Nil(t, receiverView.Target)

	_, err = svc.SubmitTags(ctx, sess.ID, sender, []string{"tall", "red", "coastal"})
	require.NoError(t, err)

	// Zero delay: the gate passes immediately.
	sess, err = svc.Poll(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusReceiving, sess.Status)

	receiverView, err = svc.Snapshot(ctx, sess.ID, receiver)
	require.NoError(t, err)
	require.Len(t, receiverView.GridEntries, 4)

	// Pick the true index so the trial settles as a hit.
	choice := -1
	for i := 0; i < sess.Grid().Size(); i++ {
		hit, err := sess.Grid().IsHit(i)
		require.NoError(t, err)
		if hit {
			choice = i
		}
	}
	require.GreaterOrEqual(t, choice, 0)

	sess, err = svc.SubmitResponse(ctx, sess.ID, receiver, []string{"bright", "narrow", "red"}, choice)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevealed, sess.Status)
	require.NotNil(t, sess.Hit)
	assert.True(t, *sess.Hit)

	sess, err = svc.ScoreSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusScored, sess.Status)
	require.NotNil(t, sess.Score)
	require.NotNil(t, sess.Stats)

	// A second scoring never recomputes.
	_, err = svc.ScoreSession(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrAlreadyScored)

	trial, err := kit.Trials.GetBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, receiver, trial.PartyID)
	assert.Equal(t, 4, trial.NumOptions)
	assert.Greater(t, trial.Reward, 0.0)
}

func TestTelepathyDelayGate(t *testing.T) {
	svc, kit := newTestService(t)
	ctx := context.Background()
	sender := core.PartyID("sender-2")
	receiver := core.PartyID("receiver-2")

	sess, err := svc.CreateTelepathySession(ctx, sender, 30)
	require.NoError(t, err)
	_, err = svc.JoinSession(ctx, sess.ID, receiver)
	require.NoError(t, err)
	_, err = svc.LockTarget(ctx, sess.ID, sender, target.Constraints{})
	require.NoError(t, err)
	_, err = svc.SubmitTags(ctx, sess.ID, sender, []string{"a", "b", "c"})
	require.NoError(t, err)

	_, err = svc.Poll(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrNotYetDue)

	kit.Clock.At = kit.Clock.At.Add(31 * time.Minute)
	sess, err = svc.Poll(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusReceiving, sess.Status)
}

func TestLockTargetIsDeterministicInTheBeacon(t *testing.T) {
	svc, _ := newTestService(t)
	svc2, _ := newTestService(t)
	ctx := context.Background()

	run := func(s *ExperimentService) *session.Session {
		sess, err := s.CreateTelepathySession(ctx, "sender", 0)
		require.NoError(t, err)
		_, err = s.JoinSession(ctx, sess.ID, "receiver")
		require.NoError(t, err)
		sess, err = s.LockTarget(ctx, sess.ID, "sender", target.Constraints{})
		require.NoError(t, err)
		return sess
	}

	a, b := run(svc), run(svc2)
	// Session ids differ, so grid purposes differ, but the pool pick is a
	// pure function of beacon round and purpose per service.
	require.NotNil(t, a.Target)
	require.NotNil(t, b.Target)
	assert.Equal(t, 4, a.Grid().Size())
	assert.Equal(t, 4, b.Grid().Size())
}

func TestEventWindowEndToEnd(t *testing.T) {
	svc, kit := newTestService(t)
	ctx := context.Background()
	party := core.PartyID("predictor")

	prediction := []byte("the vote passes with a narrow margin")
	sess, nonce, err := svc.CreateEventWindow(ctx, party, prediction, "election-2026")
	require.NoError(t, err)
	assert.Equal(t, session.StatusCommitted, sess.Status)
	require.Len(t, nonce, 32)

	// Wrong opening is rejected.
	_, err = svc.RevealEventWindow(ctx, sess.ID, party, []byte("different text"), nonce, "election-2026")
	require.Error(t, err)

	sess, err = svc.RevealEventWindow(ctx, sess.ID, party, prediction, nonce, "election-2026")
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevealed, sess.Status)

	sess, err = svc.ScoreEventWindow(ctx, sess.ID, "the vote passes with a narrow margin")
	require.NoError(t, err)
	assert.Equal(t, session.StatusScored, sess.Status)
	assert.InDelta(t, 100, sess.Score.OverallScore, 0.01, "identical outcome scores full marks lexically")

	trial, err := kit.Trials.GetBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, party, trial.PartyID)
}

func TestScoreEventWindowUsesRevealedPrediction(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	party := core.PartyID("predictor")

	prediction := []byte("heavy rain across the northern coast")
	sess, nonce, err := svc.CreateEventWindow(ctx, party, prediction, "weather-w12")
	require.NoError(t, err)
	_, err = svc.RevealEventWindow(ctx, sess.ID, party, prediction, nonce, "weather-w12")
	require.NoError(t, err)

	// The outcome shares no words with the revealed prediction. If scoring
	// ever compared the outcome against itself it would report a perfect
	// match; it must judge the prediction opened at reveal instead.
	sess, err = svc.ScoreEventWindow(ctx, sess.ID, "a dry sunny weekend everywhere")
	require.NoError(t, err)
	require.NotNil(t, sess.Score)
	assert.Less(t, sess.Score.OverallScore, 50.0)
}

func TestScoreEventWindowRequiresReveal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, _, err := svc.CreateEventWindow(ctx, "predictor", []byte("it snows"), "ref")
	require.NoError(t, err)

	_, err = svc.ScoreEventWindow(ctx, sess.ID, "it snows")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestCreateTelepathySessionAppliesDefaultDelay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateTelepathySession(ctx, "sender", -1)
	require.NoError(t, err)
	assert.Equal(t, 30, sess.DelayMinutes, "unspecified delay falls back to the configured default")

	sess, err = svc.CreateTelepathySession(ctx, "sender", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, sess.DelayMinutes)
}

// outagedTrialLedger fails a bounded number of appends, then recovers.
type outagedTrialLedger struct {
	*testkit.InMemoryTrialRepository
	failures int
}

func (l *outagedTrialLedger) Append(ctx context.Context, trial ports.Trial) error {
	if l.failures > 0 {
		l.failures--
		return errors.New("ledger unavailable")
	}
	return l.InMemoryTrialRepository.Append(ctx, trial)
}

func newOutagedService(t *testing.T, failures int) (*ExperimentService, *testkit.Kit, *outagedTrialLedger) {
	t.Helper()
	kit := testkit.New()
	ledger := &outagedTrialLedger{InMemoryTrialRepository: kit.Trials, failures: failures}
	svc, err := NewExperimentService(
		kit.Sessions, ledger, kit.Beacons, target.NewSelector(nil, nil),
		scoring.NewEngine(nil, nil), testkit.TargetPool(), kit.Clock, DefaultExperimentConfig(),
	)
	require.NoError(t, err)
	return svc, kit, ledger
}

func TestScoreSessionRepairsMissingTrial(t *testing.T) {
	svc, kit, _ := newOutagedService(t, 1)
	ctx := context.Background()
	sender := core.PartyID("s")
	receiver := core.PartyID("r")

	sess, err := svc.CreateTelepathySession(ctx, sender, 0)
	require.NoError(t, err)
	_, err = svc.JoinSession(ctx, sess.ID, receiver)
	require.NoError(t, err)
	_, err = svc.LockTarget(ctx, sess.ID, sender, target.Constraints{})
	require.NoError(t, err)
	_, err = svc.SubmitTags(ctx, sess.ID, sender, []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = svc.Poll(ctx, sess.ID)
	require.NoError(t, err)
	_, err = svc.SubmitResponse(ctx, sess.ID, receiver, []string{"x", "y", "z"}, 0)
	require.NoError(t, err)

	// First attempt marks the session scored but the append fails.
	_, err = svc.ScoreSession(ctx, sess.ID)
	require.Error(t, err)
	got, err := kit.Sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusScored, got.Status)
	_, err = kit.Trials.GetBySession(ctx, sess.ID)
	assert.True(t, core.IsNotFoundError(err), "scored with no settled trial")

	// A retry settles the missing trial instead of refusing outright.
	sess, err = svc.ScoreSession(ctx, sess.ID)
	require.NoError(t, err)
	trial, err := kit.Trials.GetBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, trial.SessionID)

	// Once settled, further attempts report already scored.
	_, err = svc.ScoreSession(ctx, sess.ID)
	assert.ErrorIs(t, err, core.ErrAlreadyScored)
}

func TestScoreEventWindowRepairsMissingTrial(t *testing.T) {
	svc, kit, _ := newOutagedService(t, 1)
	ctx := context.Background()
	party := core.PartyID("predictor")

	prediction := []byte("the launch slips to spring")
	sess, nonce, err := svc.CreateEventWindow(ctx, party, prediction, "launch")
	require.NoError(t, err)
	_, err = svc.RevealEventWindow(ctx, sess.ID, party, prediction, nonce, "launch")
	require.NoError(t, err)

	_, err = svc.ScoreEventWindow(ctx, sess.ID, "the launch slips to spring")
	require.Error(t, err)

	sess, err = svc.ScoreEventWindow(ctx, sess.ID, "ignored on repair")
	require.NoError(t, err)
	trial, err := kit.Trials.GetBySession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, party, trial.PartyID)

	_, err = svc.ScoreEventWindow(ctx, sess.ID, "anything")
	assert.ErrorIs(t, err, core.ErrAlreadyScored)
}

func TestSweepExpired(t *testing.T) {
	svc, kit := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateTelepathySession(ctx, "lonely-sender", 0)
	require.NoError(t, err)

	kit.Clock.At = kit.Clock.At.Add(25 * time.Hour)
	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	got, err := kit.Sessions.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusExpired, got.Status)
}

func TestAnalysisOverSettledTrials(t *testing.T) {
	svc, kit := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sender := core.PartyID("s")
		receiver := core.PartyID("r")
		sess, err := svc.CreateTelepathySession(ctx, sender, 0)
		require.NoError(t, err)
		_, err = svc.JoinSession(ctx, sess.ID, receiver)
		require.NoError(t, err)
		sess, err = svc.LockTarget(ctx, sess.ID, sender, target.Constraints{})
		require.NoError(t, err)
		_, err = svc.SubmitTags(ctx, sess.ID, sender, []string{"a", "b", "c"})
		require.NoError(t, err)
		_, err = svc.Poll(ctx, sess.ID)
		require.NoError(t, err)
		_, err = svc.SubmitResponse(ctx, sess.ID, receiver, []string{"x", "y", "z"}, 0)
		require.NoError(t, err)
		_, err = svc.ScoreSession(ctx, sess.ID)
		require.NoError(t, err)
	}

	analysis := NewAnalysisService(kit.Trials, nil, 50, 225)
	result, err := analysis.AnalyzeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Summary.Sessions)
	require.NotNil(t, result.Hits)
	assert.Equal(t, 3, result.Hits.SampleSize)
	assert.Equal(t, 3, result.Baseline.Observations)

	md := RenderReportMarkdown(result)
	assert.Contains(t, md, "# Batch Analysis")
	html := RenderReportHTML(result)
	assert.Contains(t, string(html), "<h1")
}
