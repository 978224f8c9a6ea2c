package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/ranking"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/scoring"
	"github.com/google/uuid"
)

type overrideService struct {
	repos      *repositories.RepositoryManager
	composites CompositeService
	indexer    OutcomeIndexer
	locks      *RunLocks
	now        func() time.Time
}

func NewOverrideService(repos *repositories.RepositoryManager, composites CompositeService, indexer OutcomeIndexer, locks *RunLocks) OverrideService {
	if indexer == nil {
		indexer = NewNoopIndexer()
	}
	return &overrideService{
		repos:      repos,
		composites: composites,
		indexer:    indexer,
		locks:      locks,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ValidateOverrideRanking checks a human-supplied ranking: at most three
// entries, positions 1..3 strictly increasing, known kinds and non-empty names.
func ValidateOverrideRanking(r models.Ranking) error {
	if len(r) > ranking.MaxRankedEntries {
		return fmt.Errorf("%w: %d entries, at most %d allowed", ErrInvalidOverride, len(r), ranking.MaxRankedEntries)
	}

	previous := 0
	for i, entry := range r {
		if entry.Position < 1 || entry.Position > ranking.MaxRankedEntries {
			return fmt.Errorf("%w: entry %d has position %d outside 1..%d", ErrInvalidOverride, i, entry.Position, ranking.MaxRankedEntries)
		}
		if entry.Position <= previous {
			return fmt.Errorf("%w: entry %d position %d is not after %d", ErrInvalidOverride, i, entry.Position, previous)
		}
		if !entry.EntityKind.Valid() {
			return fmt.Errorf("%w: entry %d has unknown entity kind %q", ErrInvalidOverride, i, entry.EntityKind)
		}
		if strings.TrimSpace(entry.EntityName) == "" {
			return fmt.Errorf("%w: entry %d has no entity name", ErrInvalidOverride, i)
		}
		previous = entry.Position
	}
	return nil
}

// ApplyOverride replaces the effective ranking of an outcome. The original
// ranking is kept; a previously active override is deactivated. The run's
// state is not touched.
func (s *overrideService) ApplyOverride(ctx context.Context, req OverrideRequest) (*OverrideResult, error) {
	if err := ValidateOverrideRanking(req.Ranking); err != nil {
		return nil, err
	}

	// Only the run ID is taken from this read; everything written back is
	// re-read under the run lock.
	located, err := s.repos.Outcomes.GetByID(ctx, req.OutcomeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(located.RunID)
	defer unlock()

	run, err := s.repos.Runs.GetByID(ctx, located.RunID)
	if err != nil {
		return nil, err
	}

	position, found := ranking.ResolvePosition(req.Ranking, run.BrandName, run.BrandAliases)
	override := &models.Override{
		OverrideID: uuid.New(),
		OutcomeID:  located.OutcomeID,
		Ranking:    append(models.Ranking{}, req.Ranking...),
		Score:      scoring.ScoreFor(position, found),
		Reason:     req.Reason,
		AppliedBy:  req.AppliedBy,
		Active:     true,
		CreatedAt:  s.now(),
	}
	if found {
		override.BrandPosition = &position
	}

	result := &OverrideResult{}
	var previousScore float64
	err = s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		current, err := tx.LoadOutcome(ctx, req.OutcomeID)
		if err != nil {
			return err
		}
		previousScore = current.EffectiveScore()

		if _, err := tx.Overrides.Deactivate(ctx, current.OutcomeID, override.CreatedAt); err != nil {
			return err
		}
		if err := tx.Overrides.Create(ctx, current.RunID, override); err != nil {
			return err
		}

		flags := current.Flags
		flags.ManualOverride = true
		if err := tx.Outcomes.UpdateFlags(ctx, current.OutcomeID, flags); err != nil {
			return err
		}

		composite, err := recomputeComposite(ctx, tx, s.composites, current.RunID)
		if err != nil {
			return err
		}
		result.Composite = composite

		result.Outcome, err = tx.LoadOutcome(ctx, current.OutcomeID)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply override to outcome %s: %w", req.OutcomeID, err)
	}

	fmt.Printf("[ApplyOverride] Outcome %s overridden by %q: score %.1f -> %.1f\n",
		req.OutcomeID, req.AppliedBy, previousScore, override.Score)
	s.reindex(ctx, run, result.Outcome)
	return result, nil
}

// RevertOverride deactivates the active override of an outcome. The reverted
// override stays in the history.
func (s *overrideService) RevertOverride(ctx context.Context, outcomeID uuid.UUID) (*OverrideResult, error) {
	located, err := s.repos.Outcomes.GetByID(ctx, outcomeID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(located.RunID)
	defer unlock()

	run, err := s.repos.Runs.GetByID(ctx, located.RunID)
	if err != nil {
		return nil, err
	}

	result := &OverrideResult{}
	err = s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		current, err := tx.Outcomes.GetByID(ctx, outcomeID)
		if err != nil {
			return err
		}

		n, err := tx.Overrides.Deactivate(ctx, outcomeID, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("active override for outcome %s: %w", outcomeID, repositories.ErrNotFound)
		}

		flags := current.Flags
		flags.ManualOverride = false
		if err := tx.Outcomes.UpdateFlags(ctx, outcomeID, flags); err != nil {
			return err
		}

		composite, err := recomputeComposite(ctx, tx, s.composites, current.RunID)
		if err != nil {
			return err
		}
		result.Composite = composite

		result.Outcome, err = tx.LoadOutcome(ctx, outcomeID)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to revert override of outcome %s: %w", outcomeID, err)
	}

	fmt.Printf("[RevertOverride] Outcome %s reverted to extracted ranking (score %.1f)\n", outcomeID, result.Outcome.Score)
	s.reindex(ctx, run, result.Outcome)
	return result, nil
}

func (s *overrideService) ListOverrides(ctx context.Context, outcomeID uuid.UUID) ([]*models.Override, error) {
	return s.repos.Overrides.ListByOutcome(ctx, outcomeID)
}

func (s *overrideService) reindex(ctx context.Context, run *models.Run, outcome *models.PromptOutcome) {
	if err := s.indexer.IndexOutcomes(ctx, run, []*models.PromptOutcome{outcome}); err != nil {
		fmt.Printf("[Override] Warning: failed to index outcome %s: %v\n", outcome.OutcomeID, err)
	}
}
