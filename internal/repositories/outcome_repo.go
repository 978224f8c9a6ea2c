package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type OutcomeRepo struct {
	q sqlx.ExtContext
}

type outcomeRow struct {
	OutcomeID     string        `db:"outcome_id"`
	RunID         string        `db:"run_id"`
	PromptID      string        `db:"prompt_id"`
	CategoryID    string        `db:"category_id"`
	Ranking       string        `db:"ranking"`
	Flags         string        `db:"flags"`
	BrandPosition sql.NullInt64 `db:"brand_position"`
	Score         float64       `db:"score"`
	RawText       string        `db:"raw_text"`
	Truncated     bool          `db:"truncated"`
	Model         string        `db:"model"`
	InputTokens   int           `db:"input_tokens"`
	OutputTokens  int           `db:"output_tokens"`
	Cost          float64       `db:"cost"`
	CreatedAt     string        `db:"created_at"`
}

const outcomeColumns = `outcome_id, run_id, prompt_id, category_id, ranking, flags, brand_position, score,
	raw_text, truncated, model, input_tokens, output_tokens, cost, created_at`

// toModel decodes the stored documents. A ranking or flags document that does
// not decode is returned as an error rather than read as empty.
func (row *outcomeRow) toModel() (*models.PromptOutcome, error) {
	outcomeID, err := uuid.Parse(row.OutcomeID)
	if err != nil {
		return nil, fmt.Errorf("invalid outcome id %q: %w", row.OutcomeID, err)
	}
	runID, err := uuid.Parse(row.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", row.RunID, err)
	}
	promptID, err := uuid.Parse(row.PromptID)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt id %q: %w", row.PromptID, err)
	}
	ranking, err := models.DecodeRanking([]byte(row.Ranking))
	if err != nil {
		return nil, fmt.Errorf("outcome %s: %w", row.OutcomeID, err)
	}
	flags, err := models.DecodeFlags([]byte(row.Flags))
	if err != nil {
		return nil, fmt.Errorf("outcome %s: %w", row.OutcomeID, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &models.PromptOutcome{
		OutcomeID:     outcomeID,
		RunID:         runID,
		PromptID:      promptID,
		CategoryID:    row.CategoryID,
		Ranking:       ranking,
		Flags:         flags,
		BrandPosition: intPtr(row.BrandPosition),
		Score:         row.Score,
		RawText:       row.RawText,
		Truncated:     row.Truncated,
		Model:         row.Model,
		InputTokens:   row.InputTokens,
		OutputTokens:  row.OutputTokens,
		Cost:          row.Cost,
		CreatedAt:     createdAt,
	}, nil
}

func (r *OutcomeRepo) Create(ctx context.Context, o *models.PromptOutcome) error {
	ranking, err := models.EncodeRanking(o.Ranking)
	if err != nil {
		return fmt.Errorf("failed to encode ranking: %w", err)
	}
	flags, err := models.EncodeFlags(o.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}

	query := r.q.Rebind(`INSERT INTO pria_prompt_outcomes (` + outcomeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, query,
		o.OutcomeID.String(), o.RunID.String(), o.PromptID.String(), o.CategoryID, string(ranking), string(flags),
		nullInt(o.BrandPosition), o.Score, o.RawText, o.Truncated, o.Model, o.InputTokens, o.OutputTokens, o.Cost,
		formatTime(o.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create outcome for prompt %s: %w", o.PromptID, err)
	}
	return nil
}

func (r *OutcomeRepo) GetByID(ctx context.Context, outcomeID uuid.UUID) (*models.PromptOutcome, error) {
	var row outcomeRow
	query := r.q.Rebind(`SELECT ` + outcomeColumns + ` FROM pria_prompt_outcomes WHERE outcome_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, outcomeID.String()); err != nil {
		return nil, notFound(err, "outcome "+outcomeID.String())
	}
	return row.toModel()
}

// ListByRun returns the run's outcomes in the order they were recorded.
func (r *OutcomeRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.PromptOutcome, error) {
	var rows []outcomeRow
	query := r.q.Rebind(`SELECT ` + outcomeColumns + ` FROM pria_prompt_outcomes
		WHERE run_id = ? ORDER BY created_at, outcome_id`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, runID.String()); err != nil {
		return nil, fmt.Errorf("failed to list outcomes for run %s: %w", runID, err)
	}

	outcomes := make([]*models.PromptOutcome, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

// UpdateFlags rewrites only the flags document of an outcome.
func (r *OutcomeRepo) UpdateFlags(ctx context.Context, outcomeID uuid.UUID, flags models.ExtractionFlags) error {
	data, err := models.EncodeFlags(flags)
	if err != nil {
		return fmt.Errorf("failed to encode flags: %w", err)
	}
	query := r.q.Rebind(`UPDATE pria_prompt_outcomes SET flags = ? WHERE outcome_id = ?`)
	res, err := r.q.ExecContext(ctx, query, string(data), outcomeID.String())
	if err != nil {
		return fmt.Errorf("failed to update flags for outcome %s: %w", outcomeID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outcome %s: %w", outcomeID, ErrNotFound)
	}
	return nil
}

func (r *OutcomeRepo) DeleteByRun(ctx context.Context, runID uuid.UUID) error {
	query := r.q.Rebind(`DELETE FROM pria_prompt_outcomes WHERE run_id = ?`)
	if _, err := r.q.ExecContext(ctx, query, runID.String()); err != nil {
		return fmt.Errorf("failed to delete outcomes for run %s: %w", runID, err)
	}
	return nil
}
