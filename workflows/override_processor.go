// workflows/override_processor.go
package workflows

import (
	"context"
	"fmt"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/google/uuid"
)

const (
	OverrideApplyEventName  = "pria.outcome.override"
	OverrideRevertEventName = "pria.outcome.override.revert"
)

type OverrideProcessor struct {
	overrideService services.OverrideService
	client          inngestgo.Client
}

func NewOverrideProcessor(overrideService services.OverrideService) *OverrideProcessor {
	return &OverrideProcessor{
		overrideService: overrideService,
	}
}

func (p *OverrideProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

func (p *OverrideProcessor) ApplyOverride() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "apply-pria-override",
			Name:    "PRIA - Apply Manual Ranking Override",
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(OverrideApplyEventName, nil),
		func(ctx context.Context, input inngestgo.Input[OverrideApplyEvent]) (any, error) {
			evt := input.Event.Data
			outcomeID, err := uuid.Parse(evt.OutcomeID)
			if err != nil {
				return nil, fmt.Errorf("invalid outcome ID %q: %w", evt.OutcomeID, err)
			}
			fmt.Printf("[ApplyOverride] Override of outcome %s requested by %s\n", outcomeID, evt.AppliedBy)

			return step.Run(ctx, "apply-override", func(ctx context.Context) (map[string]interface{}, error) {
				result, err := p.overrideService.ApplyOverride(ctx, services.OverrideRequest{
					OutcomeID: outcomeID,
					Ranking:   evt.Ranking,
					Reason:    evt.Reason,
					AppliedBy: evt.AppliedBy,
				})
				if err != nil {
					return nil, err
				}
				return overrideSummary(result), nil
			})
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ApplyOverride function: %w", err))
	}
	return fn
}

func (p *OverrideProcessor) RevertOverride() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "revert-pria-override",
			Name:    "PRIA - Revert Manual Ranking Override",
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(OverrideRevertEventName, nil),
		func(ctx context.Context, input inngestgo.Input[OverrideRevertEvent]) (any, error) {
			evt := input.Event.Data
			outcomeID, err := uuid.Parse(evt.OutcomeID)
			if err != nil {
				return nil, fmt.Errorf("invalid outcome ID %q: %w", evt.OutcomeID, err)
			}
			fmt.Printf("[RevertOverride] Revert of outcome %s requested by %s\n", outcomeID, evt.RevertedBy)

			return step.Run(ctx, "revert-override", func(ctx context.Context) (map[string]interface{}, error) {
				result, err := p.overrideService.RevertOverride(ctx, outcomeID)
				if err != nil {
					return nil, err
				}
				return overrideSummary(result), nil
			})
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create RevertOverride function: %w", err))
	}
	return fn
}

func overrideSummary(result *services.OverrideResult) map[string]interface{} {
	summary := map[string]interface{}{
		"outcome_id":      result.Outcome.OutcomeID.String(),
		"run_id":          result.Outcome.RunID.String(),
		"original_score":  result.Outcome.Score,
		"effective_score": result.Outcome.EffectiveScore(),
		"overridden":      result.Outcome.Override != nil && result.Outcome.Override.Active,
	}
	if result.Composite != nil {
		summary["composite"] = result.Composite.Overall
		summary["override_count"] = result.Composite.OverrideCount
	}
	return summary
}

// Event types
type OverrideApplyEvent struct {
	OutcomeID string         `json:"outcome_id"`
	Ranking   models.Ranking `json:"ranking"`
	Reason    string         `json:"reason,omitempty"`
	AppliedBy string         `json:"applied_by"`
}

type OverrideRevertEvent struct {
	OutcomeID  string `json:"outcome_id"`
	RevertedBy string `json:"reverted_by,omitempty"`
}
