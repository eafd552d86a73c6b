package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cognosis/domain/core"
	"cognosis/domain/statistics"
	"cognosis/ports"
)

// trialRepository implements the append-only TrialRepository interface.
// There is no update path: the unique session_id constraint makes a second
// settlement of the same session a hard failure.
type trialRepository struct {
	db *sqlx.DB
}

// NewTrialRepository creates a new trial repository
func NewTrialRepository(db *sqlx.DB) ports.TrialRepository {
	return &trialRepository{db: db}
}

func (r *trialRepository) Append(ctx context.Context, trial ports.Trial) error {
	scoreJSON, err := json.Marshal(trial.Score)
	if err != nil {
		return fmt.Errorf("failed to marshal score: %w", err)
	}
	statsJSON, err := json.Marshal(trial.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	var psiJSON []byte
	if trial.Psi != nil {
		psiJSON, err = json.Marshal(trial.Psi)
		if err != nil {
			return fmt.Errorf("failed to marshal psi: %w", err)
		}
	}

	query := `INSERT INTO trials (
		id, session_id, party_id, kind, hit, num_options, score, stats, psi, reward, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.ExecContext(ctx, query,
		trial.ID, trial.SessionID, trial.PartyID, trial.Kind,
		trial.Hit, trial.NumOptions, scoreJSON, statsJSON, psiJSON,
		trial.Reward, trial.CreatedAt.Time(),
	)
	if err != nil {
		return fmt.Errorf("failed to append trial: %w", err)
	}
	return nil
}

const trialColumns = `id, session_id, party_id, kind, hit, COALESCE(num_options, 0), score, stats, psi, reward, created_at`

func (r *trialRepository) GetBySession(ctx context.Context, id core.SessionID) (*ports.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE session_id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	trial, err := scanTrial(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	return trial, nil
}

func (r *trialRepository) ListByParty(ctx context.Context, party core.PartyID, limit, offset int) ([]ports.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials
		WHERE party_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	return r.list(ctx, query, string(party), limit, offset)
}

func (r *trialRepository) ListAll(ctx context.Context, limit, offset int) ([]ports.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *trialRepository) CountHits(ctx context.Context, party core.PartyID) (int, int, error) {
	query := `SELECT
		COUNT(*) FILTER (WHERE hit), COUNT(*)
	FROM trials WHERE party_id = $1 AND hit IS NOT NULL`
	var hits, total int
	if err := r.db.QueryRowContext(ctx, query, party).Scan(&hits, &total); err != nil {
		return 0, 0, fmt.Errorf("failed to count hits: %w", err)
	}
	return hits, total, nil
}

func (r *trialRepository) list(ctx context.Context, query string, args ...any) ([]ports.Trial, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}
	defer rows.Close()

	var out []ports.Trial
	for rows.Next() {
		trial, err := scanTrial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *trial)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrial(row rowScanner) (*ports.Trial, error) {
	var trial ports.Trial
	var scoreJSON, statsJSON, psiJSON []byte
	var hit sql.NullBool
	var createdAt time.Time
	err := row.Scan(
		&trial.ID, &trial.SessionID, &trial.PartyID, &trial.Kind,
		&hit, &trial.NumOptions, &scoreJSON, &statsJSON, &psiJSON,
		&trial.Reward, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if hit.Valid {
		trial.Hit = &hit.Bool
	}
	trial.CreatedAt = core.NewTimestamp(createdAt)
	if err := json.Unmarshal(scoreJSON, &trial.Score); err != nil {
		return nil, fmt.Errorf("failed to unmarshal score: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &trial.Stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats: %w", err)
	}
	if len(psiJSON) > 0 {
		var psi statistics.PsiCoefficient
		if err := json.Unmarshal(psiJSON, &psi); err != nil {
			return nil, fmt.Errorf("failed to unmarshal psi: %w", err)
		}
		trial.Psi = &psi
	}
	return &trial, nil
}
