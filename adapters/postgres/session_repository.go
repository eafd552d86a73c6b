package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"cognosis/domain/core"
	"cognosis/domain/session"
	"cognosis/ports"
)

// sessionRepository implements the SessionRepository interface. The aggregate
// is stored as a JSONB document with the guard-relevant columns (status,
// version, deadlines, parties) lifted out for queries and the compare-and-set.
type sessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) ports.SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, s *session.Session) error {
	rec := s.Record()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `INSERT INTO sessions (
		id, kind, status, version, party_ids, invite_expires_at, retention_ends_at, data, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Kind, rec.Status, rec.Version, pq.Array(partyIDs(rec)),
		nullableTime(rec.InviteExpiresAt), nullableTime(rec.RetentionEndsAt),
		data, rec.CreatedAt.Time(), rec.UpdatedAt.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *sessionRepository) GetByID(ctx context.Context, id core.SessionID) (*session.Session, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return unmarshalSession(data)
}

// Save applies the mutated session only if the stored version still matches
// expectedVersion. Zero rows affected means a racing writer won; the caller
// reloads and retries.
func (r *sessionRepository) Save(ctx context.Context, s *session.Session, expectedVersion int) error {
	rec := s.Record()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `UPDATE sessions SET
		status = $3, version = $4, party_ids = $5,
		invite_expires_at = $6, retention_ends_at = $7, data = $8, updated_at = $9
	WHERE id = $1 AND version = $2`

	result, err := r.db.ExecContext(ctx, query,
		rec.ID, expectedVersion,
		rec.Status, rec.Version, pq.Array(partyIDs(rec)),
		nullableTime(rec.InviteExpiresAt), nullableTime(rec.RetentionEndsAt),
		data, rec.UpdatedAt.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check session existence: %w", err)
		}
		if !exists {
			return core.ErrSessionNotFound
		}
		return core.ErrVersionConflict
	}
	return nil
}

func (r *sessionRepository) ListByParty(ctx context.Context, party core.PartyID, limit, offset int) ([]*session.Session, error) {
	query := `SELECT data FROM sessions
		WHERE $1 = ANY(party_ids)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, string(party), limit, offset)
}

func (r *sessionRepository) ListByStatus(ctx context.Context, status session.Status) ([]*session.Session, error) {
	query := `SELECT data FROM sessions WHERE status = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, string(status))
}

func (r *sessionRepository) ListExpirable(ctx context.Context, now core.Timestamp) ([]*session.Session, error) {
	query := `SELECT data FROM sessions
		WHERE (status = $1 AND invite_expires_at < $3)
		   OR (status = $2 AND retention_ends_at < $3)`
	return r.list(ctx, query, string(session.StatusAwaitingParticipant), string(session.StatusCommitted), now.Time())
}

func (r *sessionRepository) list(ctx context.Context, query string, args ...any) ([]*session.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*session.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s, err := unmarshalSession(data)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unmarshalSession(data []byte) (*session.Session, error) {
	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session.FromRecord(rec)
}

func partyIDs(rec session.Record) []string {
	ids := make([]string, 0, len(rec.Parties))
	for _, p := range rec.Parties {
		ids = append(ids, string(p.ID))
	}
	return ids
}

func nullableTime(ts core.Timestamp) *time.Time {
	t := ts.Time()
	if t.IsZero() {
		return nil
	}
	return &t
}
