// services/run_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/internal/ranking"
	"github.com/AI-Template-SDK/senso-pria/internal/repositories"
	"github.com/AI-Template-SDK/senso-pria/internal/scoring"
	"github.com/google/uuid"
)

// MaxRawTextBytes caps the stored reply text. Extraction always sees the
// full reply.
const MaxRawTextBytes = 100 * 1024

type runService struct {
	cfg        *config.Config
	repos      *repositories.RepositoryManager
	providers  ProviderFactory
	composites CompositeService
	indexer    OutcomeIndexer
	locks      *RunLocks
	now        func() time.Time
}

func NewRunService(cfg *config.Config, repos *repositories.RepositoryManager, providers ProviderFactory, composites CompositeService, indexer OutcomeIndexer, locks *RunLocks) RunService {
	if indexer == nil {
		indexer = NewNoopIndexer()
	}
	return &runService{
		cfg:        cfg,
		repos:      repos,
		providers:  providers,
		composites: composites,
		indexer:    indexer,
		locks:      locks,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateRun stores a new pending run with its prompts. Prompts are executed
// in the order given.
func (s *runService) CreateRun(ctx context.Context, run *models.Run, prompts []*models.Prompt) error {
	if strings.TrimSpace(run.BrandName) == "" {
		return fmt.Errorf("brand name is required")
	}

	now := s.now()
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}
	run.Status = models.RunStatusPending
	run.CreatedAt = now
	run.UpdatedAt = now
	for _, p := range prompts {
		p.RunID = run.RunID
	}

	err := s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		if err := tx.Runs.Create(ctx, run); err != nil {
			return err
		}
		return tx.Prompts.BulkCreate(ctx, prompts)
	})
	if err != nil {
		return err
	}

	fmt.Printf("[CreateRun] Created run %s for brand %s with %d prompts\n", run.RunID, run.BrandName, len(prompts))
	return nil
}

func (s *runService) ListPendingRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	return s.repos.Runs.ListByStatus(ctx, models.RunStatusPending, limit)
}

// RunPrompts executes every active prompt of the run in creation order. The
// first failing completion call fails the run; outcomes recorded before it
// are kept and returned alongside the error.
func (s *runService) RunPrompts(ctx context.Context, runID uuid.UUID, opts RunOptions) (*RunResult, error) {
	unlock := s.locks.Lock(runID)
	defer unlock()

	run, err := s.repos.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusPending && !opts.Force {
		return nil, fmt.Errorf("%w: run %s is %s", ErrRunNotRunnable, runID, run.Status)
	}

	req := s.completionDefaults(opts)
	result := &RunResult{Run: run, Outcomes: []*models.PromptOutcome{}}

	if opts.Force {
		if err := s.discardResults(ctx, run); err != nil {
			return nil, err
		}
	}

	// pending -> running
	startedAt := s.now()
	run.Status = models.RunStatusRunning
	run.Model = req.Model
	run.Temperature = req.Temperature
	run.MaxTokens = req.MaxTokens
	run.StartedAt = &startedAt
	run.UpdatedAt = startedAt
	if err := s.repos.Runs.Update(ctx, run); err != nil {
		return nil, err
	}
	fmt.Printf("[RunPrompts] Run %s running with model %s (temperature %.2f, max tokens %d)\n",
		run.RunID, req.Model, req.Temperature, req.MaxTokens)

	provider, err := s.providers.ProviderFor(req.Model)
	if err != nil {
		return result, s.failRun(ctx, run, fmt.Errorf("failed to resolve provider: %w", err))
	}

	prompts, err := s.repos.Prompts.ListActiveByRun(ctx, run.RunID)
	if err != nil {
		return result, s.failRun(ctx, run, err)
	}
	entities := run.Entities()

	for i, prompt := range prompts {
		fmt.Printf("[RunPrompts] Run %s prompt %d/%d (%s)\n", run.RunID, i+1, len(prompts), prompt.PromptID)

		req.UserPrompt = prompt.Text
		resp, err := s.complete(ctx, provider, req)
		if err != nil {
			return result, s.failRun(ctx, run, fmt.Errorf("%w: prompt %s: %w", ErrCompletionFailed, prompt.PromptID, err))
		}

		outcome := s.buildOutcome(run, prompt, req.Model, resp, entities)

		run.InputTokens += resp.InputTokens
		run.OutputTokens += resp.OutputTokens
		run.TotalCost += resp.Cost
		run.UpdatedAt = s.now()

		err = s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
			if err := tx.Outcomes.Create(ctx, outcome); err != nil {
				return err
			}
			if err := tx.Runs.Update(ctx, run); err != nil {
				return err
			}
			composite, err := recomputeComposite(ctx, tx, s.composites, run.RunID)
			if err != nil {
				return err
			}
			result.Composite = composite
			return nil
		})
		if err != nil {
			run.InputTokens -= resp.InputTokens
			run.OutputTokens -= resp.OutputTokens
			run.TotalCost -= resp.Cost
			return result, s.failRun(ctx, run, fmt.Errorf("failed to persist outcome for prompt %s: %w", prompt.PromptID, err))
		}

		result.Outcomes = append(result.Outcomes, outcome)
		result.Usage.InputTokens += resp.InputTokens
		result.Usage.OutputTokens += resp.OutputTokens
		result.Usage.TotalCost += resp.Cost

		fmt.Printf("[RunPrompts] Prompt %s scored %.1f (flags: %s)\n",
			prompt.PromptID, outcome.Score, strings.Join(outcome.Flags.Names(), ","))
	}

	// running -> completed
	err = s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		composite, err := recomputeComposite(ctx, tx, s.composites, run.RunID)
		if err != nil {
			return err
		}
		result.Composite = composite

		completedAt := s.now()
		run.Status = models.RunStatusCompleted
		run.CompletedAt = &completedAt
		run.UpdatedAt = completedAt
		return tx.Runs.Update(ctx, run)
	})
	if err != nil {
		return result, s.failRun(ctx, run, fmt.Errorf("failed to complete run: %w", err))
	}

	if err := s.indexer.IndexOutcomes(ctx, run, result.Outcomes); err != nil {
		fmt.Printf("[RunPrompts] Warning: failed to index outcomes of run %s: %v\n", run.RunID, err)
	}

	overall := "none"
	if result.Composite != nil {
		overall = fmt.Sprintf("%.2f", result.Composite.Overall)
	}
	fmt.Printf("[RunPrompts] Run %s completed: %d outcomes, composite %s, %d tokens, $%.4f\n",
		run.RunID, len(result.Outcomes), overall, result.Usage.TokensUsed(), result.Usage.TotalCost)
	return result, nil
}

func (s *runService) completionDefaults(opts RunOptions) CompletionRequest {
	req := CompletionRequest{
		SystemPrompt: s.cfg.Run.SystemPrompt,
		Model:        opts.Model,
		Temperature:  s.cfg.Run.DefaultTemperature,
		MaxTokens:    opts.MaxTokens,
	}
	if req.Model == "" {
		req.Model = s.cfg.Run.DefaultModel
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.cfg.Run.DefaultMaxTokens
	}
	return req
}

// complete performs one completion call under the configured timeout.
func (s *runService) complete(ctx context.Context, provider CompletionProvider, req CompletionRequest) (*CompletionResponse, error) {
	callCtx := ctx
	if s.cfg.Run.CompletionTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Run.CompletionTimeoutSeconds)*time.Second)
		defer cancel()
	}
	return provider.Complete(callCtx, req)
}

// buildOutcome extracts, resolves and scores one reply.
func (s *runService) buildOutcome(run *models.Run, prompt *models.Prompt, model string, resp *CompletionResponse, entities []models.NamedEntity) *models.PromptOutcome {
	extracted, flags := ranking.Extract(resp.Text, entities)

	position, found := ranking.ResolvePosition(extracted, run.BrandName, run.BrandAliases)
	flags = ranking.Diagnose(extracted, flags, found)
	if strings.TrimSpace(resp.Text) == "" {
		flags.ParsingError = true
	}
	if resp.Incomplete {
		flags.IncompleteResponse = true
	}

	var brandPosition *int
	if found {
		brandPosition = &position
	}

	rawText, truncated := TruncateUTF8(resp.Text, MaxRawTextBytes)

	return &models.PromptOutcome{
		OutcomeID:     uuid.New(),
		RunID:         run.RunID,
		PromptID:      prompt.PromptID,
		CategoryID:    prompt.Category(),
		Ranking:       extracted,
		Flags:         flags,
		BrandPosition: brandPosition,
		Score:         scoring.ScoreFor(position, found),
		RawText:       rawText,
		Truncated:     truncated,
		Model:         model,
		InputTokens:   resp.InputTokens,
		OutputTokens:  resp.OutputTokens,
		Cost:          resp.Cost,
		CreatedAt:     s.now(),
	}
}

// discardResults removes everything a previous execution of the run produced.
func (s *runService) discardResults(ctx context.Context, run *models.Run) error {
	err := s.repos.InTx(ctx, func(tx *repositories.RepositoryManager) error {
		if err := tx.Overrides.DeleteByRun(ctx, run.RunID); err != nil {
			return err
		}
		if err := tx.Outcomes.DeleteByRun(ctx, run.RunID); err != nil {
			return err
		}
		return tx.Composites.DeleteByRun(ctx, run.RunID)
	})
	if err != nil {
		return fmt.Errorf("failed to discard previous results of run %s: %w", run.RunID, err)
	}

	run.InputTokens = 0
	run.OutputTokens = 0
	run.TotalCost = 0
	run.ErrorMessage = nil
	run.CompletedAt = nil
	fmt.Printf("[RunPrompts] Discarded previous results of run %s\n", run.RunID)
	return nil
}

// failRun marks the run failed and returns cause. A failure to record the
// state is logged; cause is still what the caller sees.
func (s *runService) failRun(ctx context.Context, run *models.Run, cause error) error {
	fmt.Printf("[RunPrompts] Run %s failed: %v\n", run.RunID, cause)

	msg := cause.Error()
	now := s.now()
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &msg
	run.CompletedAt = &now
	run.UpdatedAt = now

	// The caller's context may be the one that expired.
	if err := s.repos.Runs.Update(context.WithoutCancel(ctx), run); err != nil {
		fmt.Printf("[RunPrompts] Warning: failed to mark run %s failed: %v\n", run.RunID, err)
	}
	return cause
}

// TruncateUTF8 cuts s to at most max bytes without splitting a rune.
func TruncateUTF8(s string, max int) (string, bool) {
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
