package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cognosis/domain/beacon"
	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/session"
	"cognosis/domain/statistics"
	"cognosis/domain/target"
	"cognosis/ports"
)

// ExperimentConfig tunes protocol parameters shared by all sessions.
type ExperimentConfig struct {
	InviteTTL        time.Duration
	Retention        time.Duration
	DefaultDelay     time.Duration
	Distractors      int
	MinSimilarity    float64
	Baseline         float64
	RewardBase       float64
	RewardMax        float64
	CommitmentScheme commitment.Scheme
}

// DefaultExperimentConfig mirrors the production deployment values.
func DefaultExperimentConfig() ExperimentConfig {
	return ExperimentConfig{
		InviteTTL:        24 * time.Hour,
		Retention:        30 * 24 * time.Hour,
		DefaultDelay:     30 * time.Minute,
		Distractors:      3,
		MinSimilarity:    0.30,
		Baseline:         50,
		RewardBase:       10,
		RewardMax:        100,
		CommitmentScheme: commitment.SchemeOffChain,
	}
}

// ExperimentService orchestrates the commit-reveal protocol end to end:
// session lifecycle, verifiable target selection, commitment binding, and
// settlement into the trial ledger. All session mutation goes through a
// load-mutate-save loop with a compare-and-set on the session version, so
// racing requests resolve to exactly one winner per transition.
type ExperimentService struct {
	sessions ports.SessionRepository
	trials   ports.TrialRepository
	beacons  ports.BeaconClient
	selector *target.Selector
	scorer   *scoring.Engine
	rewards  statistics.RewardCurve
	pool     target.Pool
	clock    core.Clock
	cfg      ExperimentConfig
}

// NewExperimentService wires the service. The pool backs target selection
// when the generative oracle is absent or failing.
func NewExperimentService(
	sessions ports.SessionRepository,
	trials ports.TrialRepository,
	beacons ports.BeaconClient,
	selector *target.Selector,
	scorer *scoring.Engine,
	pool target.Pool,
	clock core.Clock,
	cfg ExperimentConfig,
) (*ExperimentService, error) {
	rewards, err := statistics.DefaultRewardCurve(cfg.RewardBase, cfg.RewardMax)
	if err != nil {
		return nil, fmt.Errorf("reward curve: %w", err)
	}
	return &ExperimentService{
		sessions: sessions,
		trials:   trials,
		beacons:  beacons,
		selector: selector,
		scorer:   scorer,
		rewards:  rewards,
		pool:     pool,
		clock:    clock,
		cfg:      cfg,
	}, nil
}

// saveRetries bounds the reload loop on version conflicts.
const saveRetries = 3

// mutate runs fn against a fresh load of the session and persists the result
// with a compare-and-set on the pre-mutation version, reloading on conflict.
func (s *ExperimentService) mutate(ctx context.Context, id core.SessionID, fn func(*session.Session) error) (*session.Session, error) {
	var lastErr error
	for attempt := 0; attempt < saveRetries; attempt++ {
		sess, err := s.sessions.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := sess.Version
		if err := fn(sess); err != nil {
			return nil, err
		}
		if err := s.sessions.Save(ctx, sess, expected); err != nil {
			if errors.Is(err, core.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return sess, nil
	}
	return nil, fmt.Errorf("session %s: %w", id, lastErr)
}

// CreateEventWindow starts a single-party session and binds the prediction
// in one step. The returned nonce is the participant's opening secret; the
// service never stores it.
func (s *ExperimentService) CreateEventWindow(ctx context.Context, party core.PartyID, prediction []byte, valueRef string) (*session.Session, []byte, error) {
	now := s.clock.Now()
	sess, err := session.NewEventWindow(party, s.cfg.Retention, now)
	if err != nil {
		return nil, nil, err
	}

	meta := core.NewMetadataHash([]byte(sess.ID.String() + "/" + valueRef))
	c, nonce, err := commitment.New(s.cfg.CommitmentScheme, prediction, meta, valueRef, now)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Commit(c, now); err != nil {
		return nil, nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, nil, err
	}
	log.Printf("[ExperimentService] created event-window session %s for %s", sess.ID, party)
	return sess, nonce, nil
}

// RevealEventWindow opens the commitment with the participant's secret.
func (s *ExperimentService) RevealEventWindow(ctx context.Context, id core.SessionID, party core.PartyID, prediction, nonce []byte, valueRef string) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		if role, ok := sess.RoleOf(party); !ok || role != session.RoleParticipant {
			return core.NewValidationError("party", "not the session participant")
		}
		meta := core.NewMetadataHash([]byte(sess.ID.String() + "/" + valueRef))
		return sess.RevealEvent(prediction, nonce, meta, s.clock.Now())
	})
}

// ScoreEventWindow scores a revealed prediction against the observed outcome
// and settles the trial. The prediction of record is the value opened at
// reveal; a caller never re-supplies it.
func (s *ExperimentService) ScoreEventWindow(ctx context.Context, id core.SessionID, outcome string) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusScored {
		return s.ensureSettled(ctx, sess, nil)
	}
	if sess.Status != session.StatusRevealed {
		return nil, core.NewTransitionError(string(sess.Status), string(session.StatusScored))
	}
	sub, ok := sess.Submissions[session.RoleParticipant]
	if !ok || sub.Content == "" {
		return nil, core.NewValidationError("submission", "no revealed prediction")
	}

	outcomeTarget, err := target.New(target.KindConcept, outcome, nil, "")
	if err != nil {
		return nil, err
	}
	score, err := s.scorer.Score(ctx, sub.Content, outcomeTarget, scoring.KindFreeResponse)
	if err != nil {
		return nil, err
	}
	stats, err := statistics.ScoreStats(score.OverallScore, s.cfg.Baseline)
	if err != nil {
		return nil, err
	}

	sess, err = s.mutate(ctx, id, func(fresh *session.Session) error {
		return fresh.MarkScored(score, stats, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, sess, nil); err != nil {
		return nil, err
	}
	return sess, nil
}

// CreateTelepathySession starts a two-party session with the creator as
// sender. A negative delay asks for the configured default.
func (s *ExperimentService) CreateTelepathySession(ctx context.Context, creator core.PartyID, delayMinutes int) (*session.Session, error) {
	if delayMinutes < 0 {
		delayMinutes = int(s.cfg.DefaultDelay / time.Minute)
	}
	sess, err := session.NewMultiParty(creator, delayMinutes, s.cfg.InviteTTL, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	log.Printf("[ExperimentService] created telepathy session %s for %s (delay %dm)", sess.ID, creator, delayMinutes)
	return sess, nil
}

// JoinSession admits the receiver.
func (s *ExperimentService) JoinSession(ctx context.Context, id core.SessionID, joiner core.PartyID) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.Join(joiner, s.clock.Now())
	})
}

// LockTarget selects the target and decoys from the randomness beacon and
// binds them to the session under a commitment. Selection is deterministic
// in the beacon round, so an auditor can replay the choice.
func (s *ExperimentService) LockTarget(ctx context.Context, id core.SessionID, sender core.PartyID, constraints target.Constraints) (*session.Session, error) {
	b, err := s.beacons.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("beacon fetch: %w", err)
	}
	if err := b.RequireAuditable(); err != nil {
		log.Printf("[ExperimentService] beacon round %d is %s; session %s will not be auditable", b.Round, b.Source, id)
	}

	return s.mutate(ctx, id, func(sess *session.Session) error {
		if role, ok := sess.RoleOf(sender); !ok || role != session.RoleSender {
			return core.NewValidationError("sender", "not the session sender")
		}

		purpose := "session/" + sess.ID.String() + "/target"
		tgt, err := s.selector.Generate(ctx, constraints, s.pool, b, purpose)
		if err != nil {
			return err
		}

		distractors, err := s.distractorsFor(ctx, tgt, b, sess.ID)
		if err != nil {
			return err
		}

		grid, err := session.NewGrid(b, "session/"+sess.ID.String()+"/grid", tgt, distractors)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		meta := session.TargetMetadataHash(sess.ID, b.Round)
		c, nonce, err := commitment.New(s.cfg.CommitmentScheme, []byte(tgt.Payload), meta, tgt.ID.String(), now)
		if err != nil {
			return err
		}
		return sess.LockTarget(tgt, distractors, grid, c, nonce, b.Round, now)
	})
}

// distractorsFor prefers oracle-generated decoys in the similarity band and
// falls back to beacon-drawn pool entries when the oracle cannot fill the
// grid. The pool fallback keeps sessions usable offline.
func (s *ExperimentService) distractorsFor(ctx context.Context, tgt target.Target, b beacon.Beacon, id core.SessionID) ([]target.Target, error) {
	want := s.cfg.Distractors
	decoys, err := s.selector.GenerateDistractors(ctx, tgt, want, s.cfg.MinSimilarity)
	if err != nil {
		if !errors.Is(err, core.ErrOracleUnavailable) {
			return nil, err
		}
		decoys = nil
	}
	if len(decoys) >= want {
		return decoys[:want], nil
	}

	// Fill the remainder from the pool, skipping the target itself.
	var candidates target.Pool
	for _, p := range s.pool {
		if p.ID != tgt.ID && p.Payload != tgt.Payload {
			candidates = append(candidates, p)
		}
	}
	missing := want - len(decoys)
	if missing > len(candidates) {
		return nil, core.NewValidationError("pool", "too small to fill the grid")
	}
	purpose := "session/" + id.String() + "/decoys"
	indices, err := beacon.DeriveUniqueIndices(b, purpose, missing, len(candidates))
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		decoys = append(decoys, candidates[idx])
	}
	return decoys, nil
}

// SubmitTags records the sender's impressions and opens the delay window.
func (s *ExperimentService) SubmitTags(ctx context.Context, id core.SessionID, sender core.PartyID, tags []string) (*session.Session, error) {
	salt, err := commitment.NewNonce()
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.SubmitTags(sender, tags, salt, s.clock.Now())
	})
}

// Poll advances a session whose delay deadline has passed. Polling early
// fails with NotYetDue and leaves the session untouched.
func (s *ExperimentService) Poll(ctx context.Context, id core.SessionID) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.PollDelay(s.clock.Now())
	})
}

// SubmitResponse records the receiver's impressions and grid choice, then
// reveals the session.
func (s *ExperimentService) SubmitResponse(ctx context.Context, id core.SessionID, receiver core.PartyID, tags []string, choice int) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.SubmitResponse(receiver, tags, choice, s.clock.Now())
	})
}

// ScoreSession scores a revealed telepathy session: the receiver's tags are
// judged against the revealed target, statistics attach, and the trial
// settles into the ledger. Scoring is terminal and never recomputes.
func (s *ExperimentService) ScoreSession(ctx context.Context, id core.SessionID) (*session.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusScored {
		return s.ensureSettled(ctx, sess, nil)
	}
	if sess.Status != session.StatusRevealed {
		return nil, core.NewTransitionError(string(sess.Status), string(session.StatusScored))
	}
	if sess.Target == nil {
		return nil, core.NewValidationError("target", "session has no locked target")
	}

	sub, ok := sess.Submissions[session.RoleReceiver]
	if !ok {
		return nil, core.NewValidationError("submission", "no receiver submission")
	}
	guess := strings.Join(sub.Tags, " ")

	score, err := s.scorer.Score(ctx, guess, *sess.Target, scoring.KindFreeResponse)
	if err != nil {
		return nil, err
	}
	stats, err := statistics.ScoreStats(score.OverallScore, s.cfg.Baseline)
	if err != nil {
		return nil, err
	}

	// Psi is best-effort: it needs the embedding oracle and the decoys, and
	// its absence never blocks settlement.
	var psi *statistics.PsiCoefficient
	if len(sess.Distractors) > 0 {
		simTarget, distractorSims, simErr := s.scorer.Similarities(ctx, guess, *sess.Target, sess.Distractors)
		if simErr == nil {
			if coeff, psiErr := statistics.NewPsiCoefficient(simTarget, distractorSims); psiErr == nil {
				psi = &coeff
			}
		} else {
			log.Printf("[ExperimentService] psi unavailable for session %s: %v", id, simErr)
		}
	}

	sess, err = s.mutate(ctx, id, func(fresh *session.Session) error {
		return fresh.MarkScored(score, stats, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, sess, psi); err != nil {
		return nil, err
	}
	return sess, nil
}

// ensureSettled repairs a scored session whose trial never reached the
// ledger, e.g. when the process died between the scored save and the append.
// With the trial present the session is simply already scored. Psi is not
// recomputed on repair.
func (s *ExperimentService) ensureSettled(ctx context.Context, sess *session.Session, psi *statistics.PsiCoefficient) (*session.Session, error) {
	_, err := s.trials.GetBySession(ctx, sess.ID)
	if err == nil {
		return nil, core.ErrAlreadyScored
	}
	if !core.IsNotFoundError(err) {
		return nil, err
	}
	log.Printf("[ExperimentService] session %s scored without a trial; repairing settlement", sess.ID)
	if err := s.settle(ctx, sess, psi); err != nil {
		return nil, err
	}
	return sess, nil
}

// settle appends the scored session to the append-only trial ledger.
func (s *ExperimentService) settle(ctx context.Context, sess *session.Session, psi *statistics.PsiCoefficient) error {
	if sess.Score == nil || sess.Stats == nil {
		return core.NewValidationError("session", "cannot settle without score")
	}
	party, _ := sess.PartyByRole(session.RoleReceiver)
	if party.ID == "" {
		party, _ = sess.PartyByRole(session.RoleParticipant)
	}
	numOptions := 0
	if g := sess.Grid(); g != nil {
		numOptions = g.Size()
	}
	trial := ports.Trial{
		ID:         core.TrialID(core.NewID()),
		SessionID:  sess.ID,
		PartyID:    party.ID,
		Kind:       string(sess.Kind),
		Hit:        sess.Hit,
		NumOptions: numOptions,
		Score:      *sess.Score,
		Stats:      *sess.Stats,
		Psi:        psi,
		Reward:     s.rewards.Reward(sess.Score.OverallScore),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.trials.Append(ctx, trial); err != nil {
		return fmt.Errorf("trial ledger: %w", err)
	}
	log.Printf("[ExperimentService] settled session %s: score %.1f via %s, reward %.2f",
		sess.ID, trial.Score.OverallScore, trial.Score.Method, trial.Reward)
	return nil
}

// Cancel withdraws a session on behalf of one of its parties.
func (s *ExperimentService) Cancel(ctx context.Context, id core.SessionID, by core.PartyID) (*session.Session, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.Cancel(by, s.clock.Now())
	})
}

// Snapshot returns the role-appropriate view for the viewer.
func (s *ExperimentService) Snapshot(ctx context.Context, id core.SessionID, viewer core.PartyID) (session.Snapshot, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.SnapshotFor(viewer), nil
}

// SweepExpired expires sessions whose invite or retention deadline lapsed.
// Run periodically; each expiry goes through the usual compare-and-set.
func (s *ExperimentService) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock.Now()
	candidates, err := s.sessions.ListExpirable(ctx, now)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, candidate := range candidates {
		_, err := s.mutate(ctx, candidate.ID, func(sess *session.Session) error {
			switch sess.Status {
			case session.StatusAwaitingParticipant:
				return sess.ExpireInvite(now)
			case session.StatusCommitted:
				return sess.ExpireEvent(now)
			default:
				return core.ErrNotYetDue
			}
		})
		if err != nil {
			if core.IsGuardError(err) {
				continue
			}
			return swept, err
		}
		swept++
	}
	if swept > 0 {
		log.Printf("[ExperimentService] swept %d expired sessions", swept)
	}
	return swept, nil
}
