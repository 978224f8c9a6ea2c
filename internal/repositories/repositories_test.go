package repositories_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories/repotest"
	"github.com/google/uuid"
)

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	run, _ := repotest.SeedRun(t, repos, "Acme", []string{"Globex"})

	got, err := repos.Runs.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.BrandName != "Acme" || got.Status != models.RunStatusPending {
		t.Errorf("unexpected run %+v", got)
	}
	if len(got.Competitors) != 1 || got.Competitors[0].Name != "Globex" {
		t.Errorf("competitors not restored: %+v", got.Competitors)
	}
	if !got.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, run.CreatedAt)
	}

	msg := "provider down"
	now := time.Now().UTC()
	got.Status = models.RunStatusFailed
	got.ErrorMessage = &msg
	got.CompletedAt = &now
	got.InputTokens = 12
	if err := repos.Runs.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated, err := repos.Runs.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != models.RunStatusFailed || updated.ErrorMessage == nil || *updated.ErrorMessage != msg {
		t.Errorf("update not persisted: %+v", updated)
	}
	if updated.CompletedAt == nil || !updated.CompletedAt.Equal(now) || updated.InputTokens != 12 {
		t.Errorf("completion fields not persisted: %+v", updated)
	}

	if _, err := repos.Runs.GetByID(ctx, uuid.New()); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	first, _ := repotest.SeedRun(t, repos, "Acme", nil)
	second, _ := repotest.SeedRun(t, repos, "Initech", nil)

	second.Status = models.RunStatusCompleted
	if err := repos.Runs.Update(ctx, second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pending, err := repos.Runs.ListByStatus(ctx, models.RunStatusPending, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 1 || pending[0].RunID != first.RunID {
		t.Errorf("expected only the first run, got %d runs", len(pending))
	}
}

func TestPromptsKeepCreationOrder(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	run, prompts := repotest.SeedRun(t, repos, "Acme", nil, "first", "second", "third")

	category := "comparison"
	inactive := &models.Prompt{
		RunID:      run.RunID,
		Text:       "retired",
		CategoryID: &category,
		Metadata:   map[string]string{"intent_weight": "40%"},
		IsActive:   false,
	}
	if err := repos.Prompts.BulkCreate(ctx, []*models.Prompt{inactive}); err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	active, err := repos.Prompts.ListActiveByRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ListActiveByRun: %v", err)
	}
	var texts []string
	for _, p := range active {
		texts = append(texts, p.Text)
	}
	if !reflect.DeepEqual(texts, []string{"first", "second", "third"}) {
		t.Errorf("got %v", texts)
	}
	if active[0].PromptID != prompts[0].PromptID {
		t.Error("prompt ids must round trip")
	}

	all, err := repos.Prompts.ListByRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 prompts, got %d", len(all))
	}
	last := all[3]
	if last.Category() != "comparison" || last.Metadata["intent_weight"] != "40%" || last.IsActive {
		t.Errorf("unexpected prompt %+v", last)
	}
}

func newOutcome(run *models.Run, prompt *models.Prompt, ranking models.Ranking, pos *int, score float64) *models.PromptOutcome {
	return &models.PromptOutcome{
		OutcomeID:     uuid.New(),
		RunID:         run.RunID,
		PromptID:      prompt.PromptID,
		CategoryID:    prompt.Category(),
		Ranking:       ranking,
		BrandPosition: pos,
		Score:         score,
		RawText:       "1. Acme",
		Model:         "gpt-4.1",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOutcomeRoundTrip(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	run, prompts := repotest.SeedRun(t, repos, "Acme", nil, "best tools?")

	one := 1
	outcome := newOutcome(run, prompts[0], models.Ranking{{Position: 1, EntityName: "Acme", EntityKind: models.EntityKindBrand}}, &one, 1.0)
	outcome.Flags = models.ExtractionFlags{CompetitorDetected: true}
	if err := repos.Outcomes.Create(ctx, outcome); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repos.Outcomes.GetByID(ctx, outcome.OutcomeID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reflect.DeepEqual(got.Ranking, outcome.Ranking) || got.Flags != outcome.Flags {
		t.Errorf("got %+v", got)
	}
	if got.BrandPosition == nil || *got.BrandPosition != 1 || got.Score != 1.0 {
		t.Errorf("position/score not persisted: %+v", got)
	}
	if got.CategoryID != models.UncategorizedCategory {
		t.Errorf("category = %q", got.CategoryID)
	}

	if err := repos.Outcomes.UpdateFlags(ctx, outcome.OutcomeID, models.ExtractionFlags{ManualOverride: true}); err != nil {
		t.Fatalf("UpdateFlags: %v", err)
	}
	got, _ = repos.Outcomes.GetByID(ctx, outcome.OutcomeID)
	if !got.Flags.ManualOverride || got.Flags.CompetitorDetected {
		t.Errorf("flags not replaced: %+v", got.Flags)
	}

	// One outcome per prompt per run.
	dup := newOutcome(run, prompts[0], models.Ranking{}, nil, 0)
	if err := repos.Outcomes.Create(ctx, dup); err == nil {
		t.Error("expected a unique violation for a second outcome of the same prompt")
	}
}

func TestMalformedStoredRankingSurfaces(t *testing.T) {
	for _, stored := range []string{"garbage", "null", "{}", `{"foo":"bar"}`, `{"schema_version":1}`, `{"schema_version":1,"entries":null}`} {
		t.Run(stored, func(t *testing.T) {
			ctx := context.Background()
			db := repotest.NewDB(t)
			repos := repositories.NewRepositoryManager(db)
			run, prompts := repotest.SeedRun(t, repos, "Acme", nil, "q")

			outcome := newOutcome(run, prompts[0], models.Ranking{}, nil, 0)
			if err := repos.Outcomes.Create(ctx, outcome); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := db.ExecContext(ctx, `UPDATE pria_prompt_outcomes SET ranking = ? WHERE outcome_id = ?`, stored, outcome.OutcomeID.String()); err != nil {
				t.Fatalf("corrupt: %v", err)
			}

			if _, err := repos.Outcomes.GetByID(ctx, outcome.OutcomeID); !errors.Is(err, models.ErrMalformedRanking) {
				t.Errorf("expected ErrMalformedRanking, got %v", err)
			}
			if _, err := repos.LoadOutcomes(ctx, run.RunID); !errors.Is(err, models.ErrMalformedRanking) {
				t.Errorf("expected ErrMalformedRanking from LoadOutcomes, got %v", err)
			}
		})
	}
}

func TestLegacyRankingDecodes(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	repos := repositories.NewRepositoryManager(db)
	run, prompts := repotest.SeedRun(t, repos, "Acme", nil, "q")

	outcome := newOutcome(run, prompts[0], models.Ranking{}, nil, 0)
	if err := repos.Outcomes.Create(ctx, outcome); err != nil {
		t.Fatalf("Create: %v", err)
	}
	legacy := `[{"position":1,"entity_name":"Acme","entity_kind":"brand"}]`
	if _, err := db.ExecContext(ctx, `UPDATE pria_prompt_outcomes SET ranking = ? WHERE outcome_id = ?`, legacy, outcome.OutcomeID.String()); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := repos.Outcomes.GetByID(ctx, outcome.OutcomeID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Ranking) != 1 || got.Ranking[0].EntityName != "Acme" {
		t.Errorf("legacy ranking not decoded: %+v", got.Ranking)
	}
}

func TestOverrideHistory(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	run, prompts := repotest.SeedRun(t, repos, "Acme", []string{"Globex"}, "q")

	outcome := newOutcome(run, prompts[0], models.Ranking{{Position: 1, EntityName: "Globex", EntityKind: models.EntityKindCompetitor}}, nil, 0)
	if err := repos.Outcomes.Create(ctx, outcome); err != nil {
		t.Fatalf("Create outcome: %v", err)
	}

	if _, err := repos.Overrides.GetActiveByOutcome(ctx, outcome.OutcomeID); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected no active override, got %v", err)
	}

	one := 1
	first := &models.Override{
		OverrideID:    uuid.New(),
		OutcomeID:     outcome.OutcomeID,
		Ranking:       models.Ranking{{Position: 1, EntityName: "Acme", EntityKind: models.EntityKindBrand}},
		BrandPosition: &one,
		Score:         1,
		Reason:        "reviewer",
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := repos.Overrides.Create(ctx, run.RunID, first); err != nil {
		t.Fatalf("Create override: %v", err)
	}

	loaded, err := repos.LoadOutcomes(ctx, run.RunID)
	if err != nil {
		t.Fatalf("LoadOutcomes: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Override == nil || loaded[0].EffectiveScore() != 1 {
		t.Fatalf("override not attached: %+v", loaded)
	}
	if loaded[0].Ranking[0].EntityName != "Globex" {
		t.Error("original ranking must stay retrievable")
	}

	n, err := repos.Overrides.Deactivate(ctx, outcome.OutcomeID, time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("Deactivate = %d, %v", n, err)
	}

	single, err := repos.LoadOutcome(ctx, outcome.OutcomeID)
	if err != nil {
		t.Fatalf("LoadOutcome: %v", err)
	}
	if single.Override != nil {
		t.Error("reverted override must not be attached")
	}

	history, err := repos.Overrides.ListByOutcome(ctx, outcome.OutcomeID)
	if err != nil {
		t.Fatalf("ListByOutcome: %v", err)
	}
	if len(history) != 1 || history[0].Active || history[0].RevertedAt == nil {
		t.Errorf("history should keep the reverted override: %+v", history)
	}
}

func TestCompositeUpsert(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	runID := uuid.New()

	if _, err := repos.Composites.GetByRun(ctx, runID); !errors.Is(err, repositories.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	c := &models.CompositeScore{RunID: runID, Overall: 70, ByCategory: map[string]float64{"uncategorized": 70}, PromptCount: 3, ComputedAt: time.Now().UTC()}
	if err := repos.Composites.Upsert(ctx, c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	c.Overall = 100
	c.OverrideCount = 1
	if err := repos.Composites.Upsert(ctx, c); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := repos.Composites.GetByRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if got.Overall != 100 || got.OverrideCount != 1 || got.ByCategory["uncategorized"] != 70 {
		t.Errorf("got %+v", got)
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	runID := uuid.New()
	boom := errors.New("boom")

	err := repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		c := &models.CompositeScore{RunID: runID, Overall: 40, ComputedAt: time.Now().UTC()}
		if err := tx.Composites.Upsert(ctx, c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repos.Composites.GetByRun(ctx, runID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("rolled back write should not be visible, got %v", err)
	}

	err = repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		return tx.Composites.Upsert(ctx, &models.CompositeScore{RunID: runID, Overall: 40, ComputedAt: time.Now().UTC()})
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if _, err := repos.Composites.GetByRun(ctx, runID); err != nil {
		t.Errorf("committed write should be visible: %v", err)
	}
}
