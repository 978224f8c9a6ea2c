package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RunRepo struct {
	q sqlx.ExtContext
}

type runRow struct {
	RunID        string         `db:"run_id"`
	BrandName    string         `db:"brand_name"`
	BrandAliases string         `db:"brand_aliases"`
	Competitors  string         `db:"competitors"`
	Status       string         `db:"status"`
	Model        string         `db:"model"`
	Temperature  float64        `db:"temperature"`
	MaxTokens    int            `db:"max_tokens"`
	InputTokens  int            `db:"input_tokens"`
	OutputTokens int            `db:"output_tokens"`
	TotalCost    float64        `db:"total_cost"`
	ErrorMessage sql.NullString `db:"error_message"`
	StartedAt    sql.NullString `db:"started_at"`
	CompletedAt  sql.NullString `db:"completed_at"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

const runColumns = `run_id, brand_name, brand_aliases, competitors, status, model, temperature, max_tokens,
	input_tokens, output_tokens, total_cost, error_message, started_at, completed_at, created_at, updated_at`

func toRunRow(run *models.Run) (*runRow, error) {
	aliases := run.BrandAliases
	if aliases == nil {
		aliases = []string{}
	}
	aliasJSON, err := json.Marshal(aliases)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal brand aliases: %w", err)
	}
	competitors := run.Competitors
	if competitors == nil {
		competitors = []models.NamedEntity{}
	}
	competitorJSON, err := json.Marshal(competitors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal competitors: %w", err)
	}

	return &runRow{
		RunID:        run.RunID.String(),
		BrandName:    run.BrandName,
		BrandAliases: string(aliasJSON),
		Competitors:  string(competitorJSON),
		Status:       string(run.Status),
		Model:        run.Model,
		Temperature:  run.Temperature,
		MaxTokens:    run.MaxTokens,
		InputTokens:  run.InputTokens,
		OutputTokens: run.OutputTokens,
		TotalCost:    run.TotalCost,
		ErrorMessage: nullString(run.ErrorMessage),
		StartedAt:    nullTime(run.StartedAt),
		CompletedAt:  nullTime(run.CompletedAt),
		CreatedAt:    formatTime(run.CreatedAt),
		UpdatedAt:    formatTime(run.UpdatedAt),
	}, nil
}

func (row *runRow) toModel() (*models.Run, error) {
	runID, err := uuid.Parse(row.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", row.RunID, err)
	}

	run := &models.Run{
		RunID:        runID,
		BrandName:    row.BrandName,
		Status:       models.RunStatus(row.Status),
		Model:        row.Model,
		Temperature:  row.Temperature,
		MaxTokens:    row.MaxTokens,
		InputTokens:  row.InputTokens,
		OutputTokens: row.OutputTokens,
		TotalCost:    row.TotalCost,
	}
	if err := json.Unmarshal([]byte(row.BrandAliases), &run.BrandAliases); err != nil {
		return nil, fmt.Errorf("invalid brand aliases for run %s: %w", row.RunID, err)
	}
	if err := json.Unmarshal([]byte(row.Competitors), &run.Competitors); err != nil {
		return nil, fmt.Errorf("invalid competitors for run %s: %w", row.RunID, err)
	}
	if row.ErrorMessage.Valid {
		msg := row.ErrorMessage.String
		run.ErrorMessage = &msg
	}
	if run.StartedAt, err = parseNullTime(row.StartedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseNullTime(row.CompletedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *RunRepo) Create(ctx context.Context, run *models.Run) error {
	row, err := toRunRow(run)
	if err != nil {
		return err
	}
	query := r.q.Rebind(`INSERT INTO pria_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.q.ExecContext(ctx, query,
		row.RunID, row.BrandName, row.BrandAliases, row.Competitors, row.Status, row.Model, row.Temperature, row.MaxTokens,
		row.InputTokens, row.OutputTokens, row.TotalCost, row.ErrorMessage, row.StartedAt, row.CompletedAt, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", row.RunID, err)
	}
	return nil
}

func (r *RunRepo) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	var row runRow
	query := r.q.Rebind(`SELECT ` + runColumns + ` FROM pria_runs WHERE run_id = ?`)
	if err := sqlx.GetContext(ctx, r.q, &row, query, runID.String()); err != nil {
		return nil, notFound(err, "run "+runID.String())
	}
	return row.toModel()
}

// Update writes every mutable column of the run.
func (r *RunRepo) Update(ctx context.Context, run *models.Run) error {
	row, err := toRunRow(run)
	if err != nil {
		return err
	}
	query := r.q.Rebind(`UPDATE pria_runs SET
		brand_name = ?, brand_aliases = ?, competitors = ?, status = ?, model = ?, temperature = ?, max_tokens = ?,
		input_tokens = ?, output_tokens = ?, total_cost = ?, error_message = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE run_id = ?`)
	res, err := r.q.ExecContext(ctx, query,
		row.BrandName, row.BrandAliases, row.Competitors, row.Status, row.Model, row.Temperature, row.MaxTokens,
		row.InputTokens, row.OutputTokens, row.TotalCost, row.ErrorMessage, row.StartedAt, row.CompletedAt, row.UpdatedAt,
		row.RunID)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", row.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", row.RunID, ErrNotFound)
	}
	return nil
}

// ListByStatus returns runs in the given status, oldest first.
func (r *RunRepo) ListByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.Run, error) {
	var rows []runRow
	query := r.q.Rebind(`SELECT ` + runColumns + ` FROM pria_runs WHERE status = ? ORDER BY created_at, run_id LIMIT ?`)
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, string(status), limit); err != nil {
		return nil, fmt.Errorf("failed to list %s runs: %w", status, err)
	}

	runs := make([]*models.Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
