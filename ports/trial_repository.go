package ports

import (
	"context"

	"cognosis/domain/core"
	"cognosis/domain/scoring"
	"cognosis/domain/statistics"
)

// Trial is one settled experiment outcome, the unit the statistics
// engine aggregates over. Rows are append-only: a trial is written once,
// at scoring time, and never updated.
type Trial struct {
	ID         core.TrialID               `json:"id"`
	SessionID  core.SessionID             `json:"session_id"`
	PartyID    core.PartyID               `json:"party_id"`
	Kind       string                     `json:"kind"`
	Hit        *bool                      `json:"hit,omitempty"`
	NumOptions int                        `json:"num_options,omitempty"`
	Score      scoring.Result             `json:"score"`
	Stats      statistics.Result          `json:"stats"`
	Psi        *statistics.PsiCoefficient `json:"psi,omitempty"`
	Reward     float64                    `json:"reward"`
	CreatedAt  core.Timestamp             `json:"created_at"`
}

// TrialRepository defines the interface for the append-only trial ledger.
type TrialRepository interface {
	Append(ctx context.Context, trial Trial) error
	GetBySession(ctx context.Context, id core.SessionID) (*Trial, error)
	ListByParty(ctx context.Context, party core.PartyID, limit, offset int) ([]Trial, error)
	ListAll(ctx context.Context, limit, offset int) ([]Trial, error)
	CountHits(ctx context.Context, party core.PartyID) (hits, total int, err error)
}
