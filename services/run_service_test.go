package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories/repotest"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/AI-Template-SDK/senso-pria/services/testutil"
)

type harness struct {
	cfg        *config.Config
	repos      *repositories.RepositoryManager
	provider   *testutil.MockCompletionProvider
	indexer    *testutil.MockIndexer
	composites services.CompositeService
	runs       services.RunService
	overrides  services.OverrideService
	reports    services.ReportService
}

func newHarness(t *testing.T, replies ...testutil.MockReply) *harness {
	t.Helper()

	cfg := testutil.SampleConfig()
	repos := repotest.NewManager(t)
	provider := &testutil.MockCompletionProvider{Replies: replies}
	indexer := &testutil.MockIndexer{}
	locks := services.NewRunLocks()
	composites := services.NewCompositeService(repos)

	return &harness{
		cfg:        cfg,
		repos:      repos,
		provider:   provider,
		indexer:    indexer,
		composites: composites,
		runs:       services.NewRunService(cfg, repos, &testutil.MockProviderFactory{Provider: provider}, composites, indexer, locks),
		overrides:  services.NewOverrideService(repos, composites, indexer, locks),
		reports:    services.NewReportService(repos),
	}
}

func (h *harness) createRun(t *testing.T, prompts ...*models.Prompt) *models.Run {
	t.Helper()

	run := &models.Run{
		BrandName: "Acme",
		Competitors: []models.NamedEntity{
			{Name: "Globex", Kind: models.EntityKindCompetitor},
			{Name: "Initech", Kind: models.EntityKindCompetitor},
		},
	}
	if err := h.runs.CreateRun(context.Background(), run, prompts); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func prompts(texts ...string) []*models.Prompt {
	var out []*models.Prompt
	for _, text := range texts {
		out = append(out, &models.Prompt{Text: text, IsActive: true})
	}
	return out
}

func reply(text string) testutil.MockReply {
	return testutil.MockReply{Text: text, InputTokens: 10, OutputTokens: 20, Cost: 0.01}
}

func TestRunPromptsCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		reply(testutil.TopThreeReply("Acme", "Globex", "Initech")),
		reply(testutil.TopThreeReply("Globex", "Acme", "Initech")),
		reply("Acme is a fine choice among many options."),
	)
	run := h.createRun(t, prompts("best tools?", "cheapest tools?", "any tools?")...)

	result, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}

	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}
	wantScores := []float64{1.0, 0.7, 0}
	for i, o := range result.Outcomes {
		if o.Score != wantScores[i] {
			t.Errorf("outcome %d score = %v, want %v", i, o.Score, wantScores[i])
		}
	}

	last := result.Outcomes[2].Flags
	if !last.AmbiguousRanking || !last.NoRanking || !last.BrandNotDetected {
		t.Errorf("unstructured reply flags = %+v", last)
	}
	if !result.Outcomes[1].Flags.CompetitorDetected {
		t.Error("competitor_detected should be raised when a competitor is ranked")
	}

	if result.Composite == nil || result.Composite.Overall != 56.67 {
		t.Fatalf("composite = %+v, want overall 56.67", result.Composite)
	}
	if result.Composite.ByCategory[models.UncategorizedCategory] != 56.67 {
		t.Errorf("uncategorized = %v", result.Composite.ByCategory)
	}
	if result.Usage.InputTokens != 30 || result.Usage.OutputTokens != 60 || result.Usage.TokensUsed() != 90 {
		t.Errorf("usage = %+v", result.Usage)
	}

	stored, err := h.repos.Runs.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.RunStatusCompleted || stored.CompletedAt == nil || stored.StartedAt == nil {
		t.Errorf("run not completed: %+v", stored)
	}
	if stored.Model != "gpt-4.1" || stored.MaxTokens != 2000 || stored.TokensUsed() != 90 {
		t.Errorf("run parameters not recorded: %+v", stored)
	}

	composite, err := h.repos.Composites.GetByRun(ctx, run.RunID)
	if err != nil || composite.Overall != 56.67 || composite.PromptCount != 3 {
		t.Errorf("stored composite = %+v, %v", composite, err)
	}
	if len(h.indexer.Indexed) != 3 {
		t.Errorf("expected 3 indexed outcomes, got %d", len(h.indexer.Indexed))
	}

	req := h.provider.Requests[0]
	if req.SystemPrompt != h.cfg.Run.SystemPrompt || req.UserPrompt != "best tools?" || req.Temperature != 0.7 {
		t.Errorf("unexpected completion request %+v", req)
	}
}

func TestRunPromptsFailsFast(t *testing.T) {
	ctx := context.Background()
	upstream := errors.New("upstream returned 500")
	h := newHarness(t,
		reply(testutil.TopThreeReply("Acme", "Globex", "Initech")),
		testutil.MockReply{Err: upstream},
		reply(testutil.TopThreeReply("Acme", "Globex", "Initech")),
	)
	run := h.createRun(t, prompts("one", "two", "three")...)

	result, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if !errors.Is(err, services.ErrCompletionFailed) || !errors.Is(err, upstream) {
		t.Fatalf("expected ErrCompletionFailed wrapping the upstream error, got %v", err)
	}
	if h.provider.Calls() != 2 {
		t.Errorf("the third prompt must not be attempted, got %d calls", h.provider.Calls())
	}
	if result == nil || len(result.Outcomes) != 1 {
		t.Fatalf("the first outcome should be returned, got %+v", result)
	}

	stored, err := h.repos.Runs.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != models.RunStatusFailed || stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, "upstream returned 500") {
		t.Errorf("run should be failed with the upstream message, got %+v", stored)
	}

	outcomes, err := h.repos.Outcomes.ListByRun(ctx, run.RunID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(outcomes) != 1 {
		t.Errorf("completed outcomes are kept, got %d", len(outcomes))
	}
}

type blockingProvider struct{}

func (blockingProvider) Complete(ctx context.Context, req services.CompletionRequest) (*services.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingProvider) GetProviderName() string { return "blocking" }

func TestRunPromptsTimeoutFailsRun(t *testing.T) {
	ctx := context.Background()
	cfg := testutil.SampleConfig()
	cfg.Run.CompletionTimeoutSeconds = 1
	repos := repotest.NewManager(t)
	composites := services.NewCompositeService(repos)
	runs := services.NewRunService(cfg, repos, &testutil.MockProviderFactory{Provider: blockingProvider{}}, composites, nil, services.NewRunLocks())

	run := &models.Run{BrandName: "Acme"}
	if err := runs.CreateRun(ctx, run, prompts("slow")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	_, err := runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if !errors.Is(err, services.ErrCompletionFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a timed out completion failure, got %v", err)
	}
	stored, _ := repos.Runs.GetByID(ctx, run.RunID)
	if stored.Status != models.RunStatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
}

func TestRunPromptsProviderResolutionFails(t *testing.T) {
	ctx := context.Background()
	repos := repotest.NewManager(t)
	runs := services.NewRunService(testutil.SampleConfig(), repos, &testutil.MockProviderFactory{Err: errors.New("unsupported model: llama")},
		services.NewCompositeService(repos), nil, services.NewRunLocks())

	run := &models.Run{BrandName: "Acme"}
	if err := runs.CreateRun(ctx, run, prompts("q")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := runs.RunPrompts(ctx, run.RunID, services.RunOptions{Model: "llama"}); err == nil {
		t.Fatal("expected an error")
	}
	stored, _ := repos.Runs.GetByID(ctx, run.RunID)
	if stored.Status != models.RunStatusFailed || stored.Model != "llama" {
		t.Errorf("run = %+v", stored)
	}
}

func TestRunPromptsRequiresPendingUnlessForced(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reply(testutil.TopThreeReply("Globex", "Initech", "Acme")))
	run := h.createRun(t, prompts("one", "two")...)

	first, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}
	if first.Composite.Overall != 40 {
		t.Fatalf("composite = %v, want 40", first.Composite.Overall)
	}
	if _, err := h.overrides.ApplyOverride(ctx, services.OverrideRequest{
		OutcomeID: first.Outcomes[0].OutcomeID,
		Ranking:   models.Ranking{{Position: 1, EntityName: "Acme", EntityKind: models.EntityKindBrand}},
	}); err != nil {
		t.Fatalf("ApplyOverride: %v", err)
	}

	if _, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{}); !errors.Is(err, services.ErrRunNotRunnable) {
		t.Fatalf("expected ErrRunNotRunnable, got %v", err)
	}

	h.provider.Replies = []testutil.MockReply{reply(testutil.TopThreeReply("Acme", "Globex", "Initech"))}
	temperature := 0.2
	second, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{Force: true, Model: "claude-sonnet-4-20250514", Temperature: &temperature, MaxTokens: 500})
	if err != nil {
		t.Fatalf("forced RunPrompts: %v", err)
	}
	if second.Composite.Overall != 100 || second.Composite.OverrideCount != 0 {
		t.Errorf("composite = %+v, want 100 with no overrides", second.Composite)
	}

	outcomes, err := h.repos.LoadOutcomes(ctx, run.RunID)
	if err != nil {
		t.Fatalf("LoadOutcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("previous outcomes must be discarded, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Override != nil {
			t.Error("previous overrides must be discarded")
		}
	}

	stored, _ := h.repos.Runs.GetByID(ctx, run.RunID)
	if stored.Model != "claude-sonnet-4-20250514" || stored.Temperature != 0.2 || stored.MaxTokens != 500 {
		t.Errorf("forced run parameters not recorded: %+v", stored)
	}
	if stored.InputTokens != 20 {
		t.Errorf("usage should restart on force, got %d input tokens", stored.InputTokens)
	}
}

func TestRunPromptsTruncatesStoredTextOnly(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", services.MaxRawTextBytes+10) + "\n1. Acme\n"
	h := newHarness(t, reply(long))
	run := h.createRun(t, prompts("long answer please")...)

	result, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}

	stored, err := h.repos.Outcomes.GetByID(ctx, result.Outcomes[0].OutcomeID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !stored.Truncated || len(stored.RawText) != services.MaxRawTextBytes {
		t.Errorf("truncated = %v, len = %d", stored.Truncated, len(stored.RawText))
	}
	if strings.Contains(stored.RawText, "Acme") {
		t.Error("the ranked line lies beyond the cap and must not be stored")
	}
	if stored.Score != 1.0 || len(stored.Ranking) != 1 {
		t.Errorf("extraction must see the full reply, got score %v ranking %+v", stored.Score, stored.Ranking)
	}
}

func TestRunPromptsDiagnostics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testutil.MockReply{Text: "", Incomplete: true})
	run := h.createRun(t, prompts("q")...)

	result, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}
	got := result.Outcomes[0].Flags
	want := models.ExtractionFlags{
		AmbiguousRanking:   true,
		NoRanking:          true,
		BrandNotDetected:   true,
		ParsingError:       true,
		IncompleteResponse: true,
	}
	if got != want {
		t.Errorf("flags = %+v, want %+v", got, want)
	}
	if result.Outcomes[0].BrandPosition != nil {
		t.Error("brand position should be absent")
	}
}

func TestRunPromptsIgnoresIndexerFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reply(testutil.TopThreeReply("Acme", "Globex", "Initech")))
	h.indexer.Err = errors.New("typesense unavailable")
	run := h.createRun(t, prompts("q")...)

	if _, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{}); err != nil {
		t.Fatalf("indexing failures must not fail the run: %v", err)
	}
}

func TestRunPromptsWithoutActivePromptsStoresNoComposite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reply("1. Acme"))
	run := h.createRun(t, &models.Prompt{Text: "retired question", IsActive: false})

	result, err := h.runs.RunPrompts(ctx, run.RunID, services.RunOptions{})
	if err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}
	if result.Run.Status != models.RunStatusCompleted {
		t.Errorf("status = %s, want completed", result.Run.Status)
	}
	if result.Composite != nil {
		t.Errorf("composite = %+v, want none without outcomes", result.Composite)
	}
	if h.provider.Calls() != 0 {
		t.Errorf("provider called %d times, want 0", h.provider.Calls())
	}
	if _, err := h.repos.Composites.GetByRun(ctx, run.RunID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("expected no stored composite, got %v", err)
	}

	recomputed, err := h.composites.Recompute(ctx, run.RunID)
	if err != nil || recomputed != nil {
		t.Errorf("Recompute = %+v, %v; want nil, nil", recomputed, err)
	}
}

func TestCreateRunRequiresBrand(t *testing.T) {
	h := newHarness(t)
	if err := h.runs.CreateRun(context.Background(), &models.Run{BrandName: "  "}, nil); err == nil {
		t.Fatal("expected an error for an empty brand")
	}
}

func TestListPendingRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, reply("nothing"))
	done := h.createRun(t, prompts("q")...)
	waiting := h.createRun(t, prompts("q")...)

	if _, err := h.runs.RunPrompts(ctx, done.RunID, services.RunOptions{}); err != nil {
		t.Fatalf("RunPrompts: %v", err)
	}

	pending, err := h.runs.ListPendingRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingRuns: %v", err)
	}
	if len(pending) != 1 || pending[0].RunID != waiting.RunID {
		t.Errorf("expected only the waiting run, got %d", len(pending))
	}
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		in     string
		max    int
		want   string
		wantOK bool
	}{
		{"short", 10, "short", false},
		{"exact", 5, "exact", false},
		{"aé", 2, "a", true},
		{"aé", 3, "aé", false},
		{"日本語", 4, "日", true},
	}
	for _, tt := range tests {
		got, truncated := services.TruncateUTF8(tt.in, tt.max)
		if got != tt.want || truncated != tt.wantOK {
			t.Errorf("TruncateUTF8(%q, %d) = (%q, %v), want (%q, %v)", tt.in, tt.max, got, truncated, tt.want, tt.wantOK)
		}
	}
}

func TestRunLocksSerializeSameRun(t *testing.T) {
	locks := services.NewRunLocks()
	run := models.Run{}
	unlock := locks.Lock(run.RunID)

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock(run.RunID)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}
