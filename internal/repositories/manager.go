package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RepositoryManager groups all repositories over one database handle or
// transaction.
type RepositoryManager struct {
	db         *sqlx.DB
	Runs       *RunRepo
	Prompts    *PromptRepo
	Outcomes   *OutcomeRepo
	Overrides  *OverrideRepo
	Composites *CompositeRepo
}

// NewRepositoryManager creates a repository manager backed by db.
func NewRepositoryManager(db *sqlx.DB) *RepositoryManager {
	rm := newRepos(db)
	rm.db = db
	return rm
}

func newRepos(q sqlx.ExtContext) *RepositoryManager {
	return &RepositoryManager{
		Runs:       &RunRepo{q: q},
		Prompts:    &PromptRepo{q: q},
		Outcomes:   &OutcomeRepo{q: q},
		Overrides:  &OverrideRepo{q: q},
		Composites: &CompositeRepo{q: q},
	}
}

// InTx runs fn with repositories bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calls on
// the outer manager inside fn are not part of the transaction.
func (rm *RepositoryManager) InTx(ctx context.Context, fn func(tx *RepositoryManager) error) error {
	if rm.db == nil {
		return fmt.Errorf("nested transactions are not supported")
	}

	tx, err := rm.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback on error

	if err := fn(newRepos(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadOutcomes returns the run's outcomes with their active overrides
// attached.
func (rm *RepositoryManager) LoadOutcomes(ctx context.Context, runID uuid.UUID) ([]*models.PromptOutcome, error) {
	outcomes, err := rm.Outcomes.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	overrides, err := rm.Overrides.ListActiveByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	byOutcome := make(map[uuid.UUID]*models.Override, len(overrides))
	for _, o := range overrides {
		byOutcome[o.OutcomeID] = o
	}
	for _, o := range outcomes {
		o.Override = byOutcome[o.OutcomeID]
	}
	return outcomes, nil
}

// LoadOutcome returns one outcome with its active override attached.
func (rm *RepositoryManager) LoadOutcome(ctx context.Context, outcomeID uuid.UUID) (*models.PromptOutcome, error) {
	outcome, err := rm.Outcomes.GetByID(ctx, outcomeID)
	if err != nil {
		return nil, err
	}
	override, err := rm.Overrides.GetActiveByOutcome(ctx, outcomeID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	outcome.Override = override
	return outcome, nil
}
