package ports

import (
	"context"

	"cognosis/domain/core"
	"cognosis/domain/session"
)

// SessionRepository defines the interface for session storage operations.
// Save is an atomic compare-and-set: the write succeeds only if the stored
// version still equals expectedVersion, otherwise it fails with
// core.ErrVersionConflict and the caller reloads and retries. This is what
// makes the state-machine guards hold under racing requests.
type SessionRepository interface {
	Create(ctx context.Context, s *session.Session) error
	GetByID(ctx context.Context, id core.SessionID) (*session.Session, error)
	Save(ctx context.Context, s *session.Session, expectedVersion int) error

	// Queries
	ListByParty(ctx context.Context, party core.PartyID, limit, offset int) ([]*session.Session, error)
	ListByStatus(ctx context.Context, status session.Status) ([]*session.Session, error)

	// ListExpirable returns non-terminal sessions whose invite or retention
	// deadline has passed, for the sweeper.
	ListExpirable(ctx context.Context, now core.Timestamp) ([]*session.Session, error)
}
