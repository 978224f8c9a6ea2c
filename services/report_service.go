package services

import (
	"context"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/scoring"
	"github.com/google/uuid"
)

type reportService struct {
	repos *repositories.RepositoryManager
}

func NewReportService(repos *repositories.RepositoryManager) ReportService {
	return &reportService{repos: repos}
}

// IntentWeightedIndex weights per-category averages by the intent_weight
// metadata of the run's prompts. A category takes the first weight found
// among its prompts. The stored composite is not read or written.
func (s *reportService) IntentWeightedIndex(ctx context.Context, runID uuid.UUID) (*IntentReport, error) {
	prompts, err := s.repos.Prompts.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.repos.LoadOutcomes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	weights := make(map[string]float64)
	for _, p := range prompts {
		category := p.Category()
		if _, ok := weights[category]; ok {
			continue
		}
		if w, ok := scoring.ParseWeight(p.Metadata[scoring.IntentWeightKey]); ok {
			weights[category] = w
		}
	}

	scores := make(map[string][]float64)
	for _, o := range outcomes {
		category := o.CategoryID
		if category == "" {
			category = models.UncategorizedCategory
		}
		scores[category] = append(scores[category], o.EffectiveScore())
	}

	weighted := false
	for category, w := range weights {
		if w > 0 && len(scores[category]) > 0 {
			weighted = true
			break
		}
	}

	return &IntentReport{
		RunID:      runID,
		Index:      scoring.IntentWeightedIndex(scores, weights),
		Weighted:   weighted,
		Weights:    weights,
		ByCategory: scoring.AggregateByCategory(scores),
	}, nil
}
