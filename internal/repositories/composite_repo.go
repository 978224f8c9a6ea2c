package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type CompositeRepo struct {
	q sqlx.ExtContext
}

type compositeRow struct {
	RunID         string  `db:"run_id"`
	Overall       float64 `db:"overall"`
	ByCategory    string  `db:"by_category"`
	PromptCount   int     `db:"prompt_count"`
	OverrideCount int     `db:"override_count"`
	ComputedAt    string  `db:"computed_at"`
}

// Upsert stores the composite of a run, replacing any previous value.
func (r *CompositeRepo) Upsert(ctx context.Context, c *models.CompositeScore) error {
	byCategory := c.ByCategory
	if byCategory == nil {
		byCategory = map[string]float64{}
	}
	data, err := json.Marshal(byCategory)
	if err != nil {
		return fmt.Errorf("failed to marshal category scores: %w", err)
	}

	query := r.q.Rebind(`INSERT INTO pria_composite_scores (run_id, overall, by_category, prompt_count, override_count, computed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			overall = excluded.overall,
			by_category = excluded.by_category,
			prompt_count = excluded.prompt_count,
			override_count = excluded.override_count,
			computed_at = excluded.computed_at`)
	_, err = r.q.ExecContext(ctx, query,
		c.RunID.String(), c.Overall, string(data), c.PromptCount, c.OverrideCount, formatTime(c.ComputedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert composite for run %s: %w", c.RunID, err)
	}
	return nil
}

func (r *CompositeRepo) GetByRun(ctx context.Context, runID uuid.UUID) (*models.CompositeScore, error) {
	var row compositeRow
	query := r.q.Rebind(`SELECT run_id, overall, by_category, prompt_count, override_count, computed_at
		FROM pria_composite_scores WHERE run_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, runID.String()); err != nil {
		return nil, notFound(err, "composite for run "+runID.String())
	}

	computedAt, err := parseTime(row.ComputedAt)
	if err != nil {
		return nil, err
	}
	c := &models.CompositeScore{
		RunID:         runID,
		Overall:       row.Overall,
		PromptCount:   row.PromptCount,
		OverrideCount: row.OverrideCount,
		ComputedAt:    computedAt,
	}
	if err := json.Unmarshal([]byte(row.ByCategory), &c.ByCategory); err != nil {
		return nil, fmt.Errorf("invalid category scores for run %s: %w", runID, err)
	}
	return c, nil
}

func (r *CompositeRepo) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	query := r.q.Rebind(`DELETE FROM pria_composite_scores WHERE run_id = ?`)
	if _, err := r.q.ExecContext(ctx, query, runID.String()); err != nil {
		return fmt.Errorf("failed to delete composite for run %s: %w", runID, err)
	}
	return nil
}
