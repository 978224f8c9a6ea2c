package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type PromptRepo struct {
	q sqlx.ExtContext
}

type promptRow struct {
	PromptID   string         `db:"prompt_id"`
	RunID      string         `db:"run_id"`
	Text       string         `db:"prompt_text"`
	CategoryID sql.NullString `db:"category_id"`
	Metadata   string         `db:"metadata"`
	IsActive   bool           `db:"is_active"`
	CreatedAt  string         `db:"created_at"`
}

const promptColumns = `prompt_id, run_id, prompt_text, category_id, metadata, is_active, created_at`

func (row *promptRow) toModel() (*models.Prompt, error) {
	promptID, err := uuid.Parse(row.PromptID)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt id %q: %w", row.PromptID, err)
	}
	runID, err := uuid.Parse(row.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", row.RunID, err)
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}

	p := &models.Prompt{
		PromptID:  promptID,
		RunID:     runID,
		Text:      row.Text,
		IsActive:  row.IsActive,
		CreatedAt: createdAt,
	}
	if row.CategoryID.Valid {
		category := row.CategoryID.String
		p.CategoryID = &category
	}
	if err := json.Unmarshal([]byte(row.Metadata), &p.Metadata); err != nil {
		return nil, fmt.Errorf("invalid metadata for prompt %s: %w", row.PromptID, err)
	}
	return p, nil
}

// BulkCreate inserts prompts in slice order. Prompts without an ID or a
// creation time get one; generated creation times are strictly increasing so
// the slice order becomes the execution order.
func (r *PromptRepo) BulkCreate(ctx context.Context, prompts []*models.Prompt) error {
	query := r.q.Rebind(`INSERT INTO pria_prompts (` + promptColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`)

	base := time.Now().UTC()
	for i, p := range prompts {
		if p.PromptID == uuid.Nil {
			p.PromptID = uuid.New()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = base.Add(time.Duration(i) * time.Microsecond)
		}
		metadata := p.Metadata
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadataJSON, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for prompt %s: %w", p.PromptID, err)
		}

		if _, err := r.q.ExecContext(ctx, query,
			p.PromptID.String(), p.RunID.String(), p.Text, nullString(p.CategoryID), string(metadataJSON), p.IsActive, formatTime(p.CreatedAt)); err != nil {
			return fmt.Errorf("failed to create prompt %s: %w", p.PromptID, err)
		}
	}
	return nil
}

// ListActiveByRun returns the run's active prompts in creation order.
func (r *PromptRepo) ListActiveByRun(ctx context.Context, runID uuid.UUID) ([]*models.Prompt, error) {
	return r.list(ctx, `SELECT `+promptColumns+` FROM pria_prompts
		WHERE run_id = ? AND is_active = ? ORDER BY created_at, prompt_id`, runID.String(), true)
}

// ListByRun returns all prompts of the run, active or not.
func (r *PromptRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*models.Prompt, error) {
	return r.list(ctx, `SELECT `+promptColumns+` FROM pria_prompts
		WHERE run_id = ? ORDER BY created_at, prompt_id`, runID.String())
}

func (r *PromptRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Prompt, error) {
	var rows []promptRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}

	prompts := make([]*models.Prompt, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}
