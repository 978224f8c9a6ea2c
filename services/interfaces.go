// services/interfaces.go
package services

import (
	"context"
	"errors"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrCompletionFailed wraps any failure of the upstream completion call,
	// including timeouts.
	ErrCompletionFailed = errors.New("completion failed")
	// ErrInvalidOverride is returned before any state change when an override
	// ranking does not validate.
	ErrInvalidOverride = errors.New("invalid override")
	// ErrRunNotRunnable is returned when a run is not pending and Force is not set.
	ErrRunNotRunnable = errors.New("run is not runnable")
)

// CompletionRequest is one call to a completion service
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// CompletionResponse contains the reply of a completion service
type CompletionResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Cost         float64
	// Incomplete is set when the provider stopped because of the token cap.
	Incomplete bool
}

// TokensUsed is the sum of input and output tokens.
func (r *CompletionResponse) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}

// CompletionProvider is a chat-completion backend
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	GetProviderName() string
}

// ProviderFactory resolves the provider serving a model name
type ProviderFactory interface {
	ProviderFor(model string) (CompletionProvider, error)
}

type CostService interface {
	CalculateCost(provider, model string, inputTokens, outputTokens int) float64
}

// RunOptions are the parameters of one execution of a run. Zero values fall
// back to the configured defaults.
type RunOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	// Force discards existing outcomes, overrides and the composite of the run
	// and executes it again regardless of its state.
	Force bool
}

// RunResult is what an execution of a run produced
type RunResult struct {
	Run       *models.Run
	Outcomes  []*models.PromptOutcome
	Usage     models.Usage
	Composite *models.CompositeScore
}

// RunService executes measurement runs
type RunService interface {
	CreateRun(ctx context.Context, run *models.Run, prompts []*models.Prompt) error
	RunPrompts(ctx context.Context, runID uuid.UUID, opts RunOptions) (*RunResult, error)
	ListPendingRuns(ctx context.Context, limit int) ([]*models.Run, error)
}

// OverrideRequest is a human-supplied replacement ranking for one outcome
type OverrideRequest struct {
	OutcomeID uuid.UUID
	Ranking   models.Ranking
	Reason    string
	AppliedBy string
}

// OverrideResult is the updated outcome and the recomputed composite
type OverrideResult struct {
	Outcome   *models.PromptOutcome
	Composite *models.CompositeScore
}

// OverrideService applies and reverts manual overrides
type OverrideService interface {
	ApplyOverride(ctx context.Context, req OverrideRequest) (*OverrideResult, error)
	RevertOverride(ctx context.Context, outcomeID uuid.UUID) (*OverrideResult, error)
	ListOverrides(ctx context.Context, outcomeID uuid.UUID) ([]*models.Override, error)
}

// CompositeService computes the materialized index of a run
type CompositeService interface {
	Compute(runID uuid.UUID, outcomes []*models.PromptOutcome) *models.CompositeScore
	Recompute(ctx context.Context, runID uuid.UUID) (*models.CompositeScore, error)
}

// IntentReport is the intent-weighted presentation of a run
type IntentReport struct {
	RunID      uuid.UUID          `json:"run_id"`
	Index      float64            `json:"index"`
	Weighted   bool               `json:"weighted"`
	Weights    map[string]float64 `json:"weights"`
	ByCategory map[string]float64 `json:"by_category"`
}

// ReportService produces read-only views over stored outcomes
type ReportService interface {
	IntentWeightedIndex(ctx context.Context, runID uuid.UUID) (*IntentReport, error)
}

// OutcomeIndexer pushes outcomes to a search index for review
type OutcomeIndexer interface {
	EnsureCollection(ctx context.Context) error
	IndexOutcomes(ctx context.Context, run *models.Run, outcomes []*models.PromptOutcome) error
}
