package testkit

import (
	"context"
	"sync"

	"cognosis/domain/commitment"
	"cognosis/domain/core"
	"cognosis/domain/session"
	"cognosis/ports"
)

// InMemorySessionRepository is a map-backed ports.SessionRepository with the
// same compare-and-set semantics as the postgres adapter. Stored sessions are
// deep-enough copies that callers cannot mutate the store in place.
type InMemorySessionRepository struct {
	mu       sync.Mutex
	sessions map[core.SessionID]*session.Session
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{sessions: make(map[core.SessionID]*session.Session)}
}

func (r *InMemorySessionRepository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		return core.NewValidationError("session", "already exists")
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *InMemorySessionRepository) GetByID(_ context.Context, id core.SessionID) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *InMemorySessionRepository) Save(_ context.Context, s *session.Session, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.ID]
	if !ok {
		return core.ErrSessionNotFound
	}
	if stored.Version != expectedVersion {
		return core.ErrVersionConflict
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *InMemorySessionRepository) ListByParty(_ context.Context, party core.PartyID, limit, offset int) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if _, ok := s.RoleOf(party); ok {
			out = append(out, cloneSession(s))
		}
	}
	return paginate(out, limit, offset), nil
}

func (r *InMemorySessionRepository) ListByStatus(_ context.Context, status session.Status) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.Status == status {
			out = append(out, cloneSession(s))
		}
	}
	return out, nil
}

func (r *InMemorySessionRepository) ListExpirable(_ context.Context, now core.Timestamp) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.Status.Terminal() {
			continue
		}
		switch s.Status {
		case session.StatusAwaitingParticipant:
			if now.After(s.InviteExpiresAt) {
				out = append(out, cloneSession(s))
			}
		case session.StatusCommitted:
			if now.After(s.RetentionEndsAt) {
				out = append(out, cloneSession(s))
			}
		}
	}
	return out, nil
}

func cloneSession(s *session.Session) *session.Session {
	c := *s
	c.Parties = append([]session.Party(nil), s.Parties...)
	c.Commitments = append([]commitment.Commitment(nil), s.Commitments...)
	c.Submissions = make(map[session.Role]session.Submission, len(s.Submissions))
	for k, v := range s.Submissions {
		c.Submissions[k] = v
	}
	return &c
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// InMemoryTrialRepository is an append-only ledger for tests.
type InMemoryTrialRepository struct {
	mu     sync.Mutex
	trials []ports.Trial
}

func NewInMemoryTrialRepository() *InMemoryTrialRepository {
	return &InMemoryTrialRepository{}
}

func (r *InMemoryTrialRepository) Append(_ context.Context, trial ports.Trial) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trials {
		if t.SessionID == trial.SessionID {
			return core.NewValidationError("trial", "session already settled")
		}
	}
	r.trials = append(r.trials, trial)
	return nil
}

func (r *InMemoryTrialRepository) GetBySession(_ context.Context, id core.SessionID) (*ports.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trials {
		if t.SessionID == id {
			out := t
			return &out, nil
		}
	}
	return nil, core.ErrNotFound
}

func (r *InMemoryTrialRepository) ListByParty(_ context.Context, party core.PartyID, limit, offset int) ([]ports.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ports.Trial
	for _, t := range r.trials {
		if t.PartyID == party {
			out = append(out, t)
		}
	}
	return paginate(out, limit, offset), nil
}

func (r *InMemoryTrialRepository) ListAll(_ context.Context, limit, offset int) ([]ports.Trial, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]ports.Trial(nil), r.trials...)
	return paginate(out, limit, offset), nil
}

func (r *InMemoryTrialRepository) CountHits(_ context.Context, party core.PartyID) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hits, total int
	for _, t := range r.trials {
		if t.PartyID != party || t.Hit == nil {
			continue
		}
		total++
		if *t.Hit {
			hits++
		}
	}
	return hits, total, nil
}
