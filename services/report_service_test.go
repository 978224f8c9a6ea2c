package services_test

import (
	"context"
	"testing"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/AI-Template-SDK/senso-pria/services/testutil"
	"github.com/google/uuid"
)

func categorized(text, category, weight string) *models.Prompt {
	p := &models.Prompt{Text: text, CategoryID: &category, IsActive: true}
	if weight != "" {
		p.Metadata = map[string]string{"intent_weight": weight}
	}
	return p
}

func TestIntentWeightedIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		reply(testutil.TopThreeReply("Acme", "Globex", "Initech")),
		reply("Nothing stands out here."),
	)
	run := h.createRun(t,
		categorized("which tool should I buy?", "purchase", "75%"),
		categorized("how do these tools compare?", "research", "25%"),
	)

	if _, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{}); err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}

	report, err := h.reports.IntentWeightedIndex(ctx, run.RunID)
	if err != nil {
		t.Fatalf("IntentWeightedIndex: %v", err)
	}
	// (100*75 + 0*25) / 100
	if report.Index != 75 || !report.Weighted {
		t.Errorf("report = %+v, want weighted index 75", report)
	}
	if report.ByCategory["purchase"] != 100 || report.ByCategory["research"] != 0 {
		t.Errorf("by category = %v", report.ByCategory)
	}

	composite, err := h.repos.Composites.GetByRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByRun: %v", err)
	}
	if composite.Overall != 50 {
		t.Errorf("the stored composite must stay the plain mean, got %v", composite.Overall)
	}
}

func TestIntentWeightedIndexWithoutWeights(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		reply(testutil.TopThreeReply("Globex", "Acme", "Initech")),
		reply(testutil.TopThreeReply("Acme", "Globex", "Initech")),
	)
	run := h.createRun(t, categorized("a", "purchase", ""), categorized("b", "research", "unknown"))

	if _, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{}); err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}

	report, err := h.reports.IntentWeightedIndex(ctx, run.RunID)
	if err != nil {
		t.Fatalf("IntentWeightedIndex: %v", err)
	}
	if report.Index != 85 || report.Weighted {
		t.Errorf("report = %+v, want unweighted 85", report)
	}
}

func TestIntentWeightedIndexEmptyRun(t *testing.T) {
	h := newHarness(t)
	report, err := h.reports.IntentWeightedIndex(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("IntentWeightedIndex: %v", err)
	}
	if report.Index != 0 {
		t.Errorf("index = %v, want 0", report.Index)
	}
}

func TestCompositeCompute(t *testing.T) {
	h := newHarness(t)
	runID := uuid.New()
	outcomes := []*models.PromptOutcome{
		{CategoryID: "purchase", Score: 1.0},
		{CategoryID: "purchase", Score: 0.4},
		{CategoryID: "", Score: 0.7, Override: &models.Override{Score: 0, Active: false}},
		{CategoryID: "research", Score: 0, Override: &models.Override{Score: 0.4, Active: true}},
	}

	c := h.composites.Compute(runID, outcomes)
	// (1 + 0.4 + 0.7 + 0.4) / 4
	if c.Overall != 62.5 {
		t.Errorf("overall = %v, want 62.5", c.Overall)
	}
	want := map[string]float64{"purchase": 70, models.UncategorizedCategory: 70, "research": 40}
	for k, v := range want {
		if c.ByCategory[k] != v {
			t.Errorf("category %s = %v, want %v", k, c.ByCategory[k], v)
		}
	}
	if c.PromptCount != 4 || c.OverrideCount != 1 || c.RunID != runID {
		t.Errorf("counts = %+v", c)
	}
}
