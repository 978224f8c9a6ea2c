package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/ranking"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/scoring"
	"github.com/google/uuid"
)

// replayResult compares a stored outcome with a fresh extraction of its
// stored reply text.
type replayResult struct {
	Outcome       *models.PromptOutcome
	Replayed      models.Ranking
	Strategy      string
	ReplayedScore float64
	RankingDrift  bool
	ScoreDrift    bool
	Overridden    bool
}

type replaySummary struct {
	Run               *models.Run
	Results           []replayResult
	StoredComposite   *models.CompositeScore
	ReplayedComposite float64
	Drifted           int
}

func replayRun(ctx context.Context, repos *repositories.RepositoryManager, runID uuid.UUID) (*replaySummary, error) {
	run, err := repos.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	outcomes, err := repos.LoadOutcomes(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outcomes: %w", err)
	}

	summary := &replaySummary{Run: run}
	stored, err := repos.Composites.GetByRun(ctx, runID)
	switch {
	case err == nil:
		summary.StoredComposite = stored
	case !errors.Is(err, repositories.ErrNotFound):
		return nil, fmt.Errorf("failed to load composite: %w", err)
	}

	entities := run.Entities()
	scores := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		replayed, _, strategy := ranking.ExtractWithStrategy(o.RawText, entities)
		position, found := ranking.ResolvePosition(replayed, run.BrandName, run.BrandAliases)
		score := scoring.ScoreFor(position, found)

		result := replayResult{
			Outcome:       o,
			Replayed:      replayed,
			Strategy:      strategy,
			ReplayedScore: score,
			RankingDrift:  !sameRanking(o.Ranking, replayed),
			ScoreDrift:    score != o.Score,
			Overridden:    o.Override != nil && o.Override.Active,
		}
		if result.RankingDrift || result.ScoreDrift {
			summary.Drifted++
		}
		summary.Results = append(summary.Results, result)

		// An active override wins over any replayed extraction.
		if result.Overridden {
			scores = append(scores, o.Override.Score)
		} else {
			scores = append(scores, score)
		}
	}
	summary.ReplayedComposite = scoring.Aggregate(scores)
	return summary, nil
}

func sameRanking(a, b models.Ranking) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatRanking(r models.Ranking) string {
	if len(r) == 0 {
		return "-"
	}
	out := ""
	for i, e := range r {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%d:%s", e.Position, e.EntityName)
	}
	return out
}
