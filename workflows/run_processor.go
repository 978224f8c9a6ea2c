// workflows/run_processor.go
package workflows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/AI-Template-SDK/senso-pria/internal/models"
	"github.com/AI-Template-SDK/senso-pria/services"
	"github.com/google/uuid"
)

const (
	RunCreateEventName  = "pria.run.create"
	RunExecuteEventName = "pria.run.execute"
)

type RunProcessor struct {
	runService    services.RunService
	reportService services.ReportService
	alerts        *SlackNotifier
	client        inngestgo.Client
}

func NewRunProcessor(
	runService services.RunService,
	reportService services.ReportService,
	alerts *SlackNotifier,
) *RunProcessor {
	return &RunProcessor{
		runService:    runService,
		reportService: reportService,
		alerts:        alerts,
	}
}

func (p *RunProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// CreateRun stores a run and its prompts, optionally queueing its execution.
func (p *RunProcessor) CreateRun() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:      "create-pria-run",
			Name:    "PRIA - Create Measurement Run",
			Retries: inngestgo.IntPtr(2),
		},
		inngestgo.EventTrigger(RunCreateEventName, nil),
		func(ctx context.Context, input inngestgo.Input[RunCreateEvent]) (any, error) {
			evt := input.Event.Data
			fmt.Printf("[CreateRun] Creating run for brand %q with %d prompts (triggered by %s)\n",
				evt.BrandName, len(evt.Prompts), evt.TriggeredBy)

			runID, err := step.Run(ctx, "create-run", func(ctx context.Context) (string, error) {
				run, prompts, err := buildRun(evt)
				if err != nil {
					return "", err
				}
				if err := p.runService.CreateRun(ctx, run, prompts); err != nil {
					return "", fmt.Errorf("failed to create run: %w", err)
				}
				return run.RunID.String(), nil
			})
			if err != nil {
				return nil, fmt.Errorf("step 1 failed: %w", err)
			}

			result := map[string]interface{}{
				"run_id":       runID,
				"brand_name":   evt.BrandName,
				"prompt_count": len(evt.Prompts),
				"queued":       false,
			}
			if !evt.Execute {
				return result, nil
			}

			_, err = step.Run(ctx, "trigger-execution", func(ctx context.Context) (interface{}, error) {
				return p.client.Send(ctx, inngestgo.Event{
					Name: RunExecuteEventName,
					Data: RunExecuteEvent{
						RunID:       runID,
						Model:       evt.Model,
						Temperature: evt.Temperature,
						MaxTokens:   evt.MaxTokens,
						TriggeredBy: "create_run",
					}.eventData(),
				})
			})
			if err != nil {
				return nil, fmt.Errorf("step 2 failed: %w", err)
			}

			result["queued"] = true
			return result, nil
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create CreateRun function: %w", err))
	}
	return fn
}

// ExecuteRun runs every active prompt of a pending run and reports its
// intent-weighted index.
func (p *RunProcessor) ExecuteRun() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "execute-pria-run",
			Name: "PRIA - Execute Measurement Run",
			// A failed run is terminal; re-execution goes through force.
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(RunExecuteEventName, nil),
		func(ctx context.Context, input inngestgo.Input[RunExecuteEvent]) (any, error) {
			evt := input.Event.Data
			runID, err := uuid.Parse(evt.RunID)
			if err != nil {
				return nil, fmt.Errorf("invalid run ID %q: %w", evt.RunID, err)
			}
			fmt.Printf("[ExecuteRun] Starting run %s (triggered by %s, force=%t)\n", runID, evt.TriggeredBy, evt.Force)

			summary, err := step.Run(ctx, "execute-run", func(ctx context.Context) (map[string]interface{}, error) {
				result, err := p.runService.RunPrompts(ctx, runID, evt.options())
				if errors.Is(err, services.ErrRunNotRunnable) {
					fmt.Printf("[ExecuteRun] Skipping run %s: %v\n", runID, err)
					return map[string]interface{}{"run_id": runID.String(), "status": "skipped", "reason": err.Error()}, nil
				}
				if err != nil {
					brand := ""
					if result != nil && result.Run != nil {
						brand = result.Run.BrandName
					}
					p.alerts.notify(ctx, runID, brand, "execute-run", err)
					return nil, err
				}
				return runSummary(result), nil
			})
			if err != nil {
				return nil, fmt.Errorf("step 1 failed: %w", err)
			}
			if summary["status"] == "skipped" {
				return summary, nil
			}

			report, err := step.Run(ctx, "intent-report", func(ctx context.Context) (*services.IntentReport, error) {
				return p.reportService.IntentWeightedIndex(ctx, runID)
			})
			if err != nil {
				return nil, fmt.Errorf("step 2 failed: %w", err)
			}

			summary["intent_weighted_index"] = report.Index
			summary["intent_weighted"] = report.Weighted
			summary["completed_at"] = time.Now().UTC()

			fmt.Printf("[ExecuteRun] COMPLETED: run %s composite %v, intent-weighted index %.2f\n",
				runID, summary["composite"], report.Index)
			return summary, nil
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create ExecuteRun function: %w", err))
	}
	return fn
}

func runSummary(result *services.RunResult) map[string]interface{} {
	summary := map[string]interface{}{
		"run_id":        result.Run.RunID.String(),
		"brand_name":    result.Run.BrandName,
		"status":        string(result.Run.Status),
		"model":         result.Run.Model,
		"outcomes":      len(result.Outcomes),
		"input_tokens":  result.Usage.InputTokens,
		"output_tokens": result.Usage.OutputTokens,
		"total_cost":    result.Usage.TotalCost,
	}
	if result.Composite != nil {
		summary["composite"] = result.Composite.Overall
		summary["by_category"] = result.Composite.ByCategory
	}

	flagged := 0
	for _, o := range result.Outcomes {
		if o.Flags.AmbiguousRanking || o.Flags.NoRanking || o.Flags.ParsingError {
			flagged++
		}
	}
	summary["needs_review"] = flagged
	return summary
}

// buildRun turns a create event into the run and prompt rows.
func buildRun(evt RunCreateEvent) (*models.Run, []*models.Prompt, error) {
	if strings.TrimSpace(evt.BrandName) == "" {
		return nil, nil, fmt.Errorf("brand_name is required")
	}
	if len(evt.Prompts) == 0 {
		return nil, nil, fmt.Errorf("at least one prompt is required")
	}

	run := &models.Run{
		RunID:        uuid.New(),
		BrandName:    strings.TrimSpace(evt.BrandName),
		BrandAliases: evt.BrandAliases,
		Competitors:  make([]models.NamedEntity, 0, len(evt.Competitors)),
	}
	for _, c := range evt.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		run.Competitors = append(run.Competitors, models.NamedEntity{
			Name:    c.Name,
			Kind:    models.EntityKindCompetitor,
			Aliases: c.Aliases,
		})
	}

	prompts := make([]*models.Prompt, 0, len(evt.Prompts))
	for i, in := range evt.Prompts {
		if strings.TrimSpace(in.Text) == "" {
			return nil, nil, fmt.Errorf("prompt %d has no text", i)
		}
		prompt := &models.Prompt{
			Text:     in.Text,
			Metadata: in.Metadata,
			IsActive: !in.Inactive,
		}
		if in.CategoryID != "" {
			category := in.CategoryID
			prompt.CategoryID = &category
		}
		prompts = append(prompts, prompt)
	}
	return run, prompts, nil
}

// Event types
type RunCreateEvent struct {
	BrandName    string               `json:"brand_name"`
	BrandAliases []string             `json:"brand_aliases,omitempty"`
	Competitors  []models.NamedEntity `json:"competitors,omitempty"`
	Prompts      []RunPromptInput     `json:"prompts"`
	Execute      bool                 `json:"execute,omitempty"`
	Model        string               `json:"model,omitempty"`
	Temperature  *float64             `json:"temperature,omitempty"`
	MaxTokens    int                  `json:"max_tokens,omitempty"`
	TriggeredBy  string               `json:"triggered_by"`
}

type RunPromptInput struct {
	Text       string            `json:"text"`
	CategoryID string            `json:"category_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Inactive   bool              `json:"inactive,omitempty"`
}

type RunExecuteEvent struct {
	RunID       string   `json:"run_id"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Force       bool     `json:"force,omitempty"`
	TriggeredBy string   `json:"triggered_by"`
}

func (e RunExecuteEvent) options() services.RunOptions {
	return services.RunOptions{
		Model:       e.Model,
		Temperature: e.Temperature,
		MaxTokens:   e.MaxTokens,
		Force:       e.Force,
	}
}

func (e RunExecuteEvent) eventData() map[string]interface{} {
	data := map[string]interface{}{
		"run_id":       e.RunID,
		"triggered_by": e.TriggeredBy,
	}
	if e.Model != "" {
		data["model"] = e.Model
	}
	if e.Temperature != nil {
		data["temperature"] = *e.Temperature
	}
	if e.MaxTokens > 0 {
		data["max_tokens"] = e.MaxTokens
	}
	if e.Force {
		data["force"] = true
	}
	return data
}
