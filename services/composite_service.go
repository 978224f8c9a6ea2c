package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/scoring"
	"github.com/google/uuid"
)

type compositeService struct {
	repos *repositories.RepositoryManager
	now   func() time.Time
}

func NewCompositeService(repos *repositories.RepositoryManager) CompositeService {
	return &compositeService{repos: repos, now: func() time.Time { return time.Now().UTC() }}
}

// Compute derives the composite from outcomes, using the override score of
// every outcome with an active override.
func (s *compositeService) Compute(runID uuid.UUID, outcomes []*models.PromptOutcome) *models.CompositeScore {
	all := make([]float64, 0, len(outcomes))
	byCategory := make(map[string][]float64)
	overrides := 0

	for _, o := range outcomes {
		score := o.EffectiveScore()
		all = append(all, score)

		category := o.CategoryID
		if category == "" {
			category = models.UncategorizedCategory
		}
		byCategory[category] = append(byCategory[category], score)

		if o.Override != nil && o.Override.Active {
			overrides++
		}
	}

	return &models.CompositeScore{
		RunID:         runID,
		Overall:       scoring.Aggregate(all),
		ByCategory:    scoring.AggregateByCategory(byCategory),
		PromptCount:   len(outcomes),
		OverrideCount: overrides,
		ComputedAt:    s.now(),
	}
}

// Recompute reloads the run's outcomes and stores a fresh composite. It
// returns nil when the run has no outcome and no composite yet.
func (s *compositeService) Recompute(ctx context.Context, runID uuid.UUID) (*models.CompositeScore, error) {
	var composite *models.CompositeScore
	err := s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		var err error
		composite, err = recomputeComposite(ctx, tx, s, runID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return composite, nil
}

// recomputeComposite stores a fresh composite using the given (transaction
// bound) repositories. A composite is only created once the run has an
// outcome.
func recomputeComposite(ctx context.Context, repos *repositories.RepositoryManager, composites CompositeService, runID uuid.UUID) (*models.CompositeScore, error) {
	outcomes, err := repos.LoadOutcomes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	if len(outcomes) == 0 {
		_, err := repos.Composites.GetByRun(ctx, runID)
		if errors.Is(err, repositories.ErrNotFound) {
			fmt.Printf("[Recompute] Run %s has no outcomes, no composite stored\n", runID)
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	composite := composites.Compute(runID, outcomes)
	if err := repos.Composites.Upsert(ctx, composite); err != nil {
		return nil, err
	}

	fmt.Printf("[Recompute] Run %s composite %.2f over %d prompts (%d overridden)\n",
		runID, composite.Overall, composite.PromptCount, composite.OverrideCount)
	return composite, nil
}
