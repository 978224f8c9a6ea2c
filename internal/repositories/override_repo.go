package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type OverrideRepo struct {
	q sqlx.ExtContext
}

type overrideRow struct {
	OverrideID    string         `db:"override_id"`
	OutcomeID     string         `db:"outcome_id"`
	RunID         string         `db:"run_id"`
	Ranking       string         `db:"ranking"`
	BrandPosition sql.NullInt64  `db:"brand_position"`
	Score         float64        `db:"score"`
	Reason        string         `db:"reason"`
	AppliedBy     string         `db:"applied_by"`
	Active        bool           `db:"active"`
	CreatedAt     string         `db:"created_at"`
	RevertedAt    sql.NullString `db:"reverted_at"`
}

const overrideColumns = `override_id, outcome_id, run_id, ranking, brand_position, score, reason, applied_by,
	active, created_at, reverted_at`

func (row *overrideRow) toModel() (*models.Override, error) {
	overrideID, err := uuid.Parse(row.OverrideID)
	if err != nil {
		return nil, fmt.Errorf("invalid override id %q: %w", row.OverrideID, err)
	}
	outcomeID, err := uuid.Parse(row.OutcomeID)
	if err != nil {
		return nil, fmt.Errorf("invalid outcome id %q: %w", row.OutcomeID, err)
	}
	ranking, err := models.DecodeRanking([]byte(row.Ranking))
	if err != nil {
		return nil, fmt.Errorf("override %s: %w", row.OverrideID, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	revertedAt, err := parseNullTime(row.RevertedAt)
	if err != nil {
		return nil, err
	}

	return &models.Override{
		OverrideID:    overrideID,
		OutcomeID:     outcomeID,
		Ranking:       ranking,
		BrandPosition: intPtr(row.BrandPosition),
		Score:         row.Score,
		Reason:        row.Reason,
		AppliedBy:     row.AppliedBy,
		Active:        row.Active,
		CreatedAt:     createdAt,
		RevertedAt:    revertedAt,
	}, nil
}

// Create stores an override of an outcome belonging to runID.
func (r *OverrideRepo) Create(ctx context.Context, runID uuid.UUID, o *models.Override) error {
	ranking, err := models.EncodeRanking(o.Ranking)
	if err != nil {
		return fmt.Errorf("failed to encode override ranking: %w", err)
	}
	query := r.q.Rebind(`INSERT INTO pria_outcome_overrides (` + overrideColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, query,
		o.OverrideID.String(), o.OutcomeID.String(), runID.String(), string(ranking), nullInt(o.BrandPosition),
		o.Score, o.Reason, o.AppliedBy, o.Active, formatTime(o.CreatedAt), nullTime(o.RevertedAt))
	if err != nil {
		return fmt.Errorf("failed to create override for outcome %s: %w", o.OutcomeID, err)
	}
	return nil
}

// GetActiveByOutcome returns the active override of an outcome, or
// ErrNotFound when there is none.
func (r *OverrideRepo) GetActiveByOutcome(ctx context.Context, outcomeID uuid.UUID) (*models.Override, error) {
	var row overrideRow
	query := r.q.Rebind(`SELECT ` + overrideColumns + ` FROM pria_outcome_overrides
		WHERE outcome_id = ? AND active = ? ORDER BY created_at DESC LIMIT 1`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, outcomeID.String(), true); err != nil {
		return nil, notFound(err, "active override for outcome "+outcomeID.String())
	}
	return row.toModel()
}

// ListByOutcome returns the override history of an outcome, oldest first.
func (r *OverrideRepo) ListByOutcome(ctx context.Context, outcomeID uuid.UUID) ([]*models.Override, error) {
	return r.list(ctx, `SELECT `+overrideColumns+` FROM pria_outcome_overrides
		WHERE outcome_id = ? ORDER BY created_at, override_id`, outcomeID.String())
}

// ListActiveByRun returns the active overrides of every outcome in a run.
func (r *OverrideRepo) ListActiveByRun(ctx context.Context, runID uuid.UUID) ([]*models.Override, error) {
	return r.list(ctx, `SELECT `+overrideColumns+` FROM pria_outcome_overrides
		WHERE run_id = ? AND active = ? ORDER BY created_at, override_id`, runID.String(), true)
}

// Deactivate marks every active override of an outcome as reverted at the
// given time and reports how many were affected.
func (r *OverrideRepo) Deactivate(ctx context.Context, outcomeID uuid.UUID, at time.Time) (int64, error) {
	query := r.q.Rebind(`UPDATE pria_outcome_overrides SET active = ?, reverted_at = ?
		WHERE outcome_id = ? AND active = ?`)
	res, err := r.q.ExecContext(ctx, query, false, formatTime(at), outcomeID.String(), true)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate overrides for outcome %s: %w", outcomeID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func (r *OverrideRepo) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	query := r.q.Rebind(`DELETE FROM pria_outcome_overrides WHERE run_id = ?`)
	if _, err := r.q.ExecContext(ctx, query, runID.String()); err != nil {
		return fmt.Errorf("failed to delete overrides for run %s: %w", runID, err)
	}
	return nil
}

func (r *OverrideRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Override, error) {
	var rows []overrideRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	overrides := make([]*models.Override, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, nil
}
