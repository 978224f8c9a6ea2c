// workflows/scheduled_processor.go
package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"

	"github.com/AI-Template-SDK/senso-pria/internal/config"
	"github.com/AI-Template-SDK/senso-pria/services"
)

// dispatchBatchSize bounds how many pending runs one tick queues.
const dispatchBatchSize = 50

type ScheduledProcessor struct {
	runService services.RunService
	client     inngestgo.Client
	cfg        *config.Config
}

func NewScheduledProcessor(runService services.RunService, cfg *config.Config) *ScheduledProcessor {
	return &ScheduledProcessor{
		runService: runService,
		cfg:        cfg,
	}
}

func (p *ScheduledProcessor) SetClient(client inngestgo.Client) {
	p.client = client
}

// PendingRunDispatcher queues an execution for every run still pending.
func (p *ScheduledProcessor) PendingRunDispatcher() inngestgo.ServableFunction {
	fn, err := inngestgo.CreateFunction(
		p.client,
		inngestgo.FunctionOpts{
			ID:   "pria-pending-run-dispatcher",
			Name: "PRIA - Pending Run Dispatcher",
		},
		inngestgo.CronTrigger(p.cfg.Run.DispatchCron),
		func(ctx context.Context, input inngestgo.Input[any]) (any, error) {
			now := time.Now().UTC()

			runIDs, err := step.Run(ctx, "list-pending-runs", func(ctx context.Context) ([]string, error) {
				runs, err := p.runService.ListPendingRuns(ctx, dispatchBatchSize)
				if err != nil {
					return nil, err
				}
				ids := make([]string, 0, len(runs))
				for _, run := range runs {
					ids = append(ids, run.RunID.String())
				}
				return ids, nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list pending runs: %w", err)
			}

			if len(runIDs) == 0 {
				return map[string]interface{}{
					"dispatched_at":   now,
					"runs_dispatched": 0,
				}, nil
			}

			// One step per run so a retry only resends what did not go out.
			dispatched := make([]string, 0, len(runIDs))
			for _, runID := range runIDs {
				_, err := step.Run(ctx, fmt.Sprintf("trigger-run-%s", runID), func(ctx context.Context) (interface{}, error) {
					return p.client.Send(ctx, inngestgo.Event{
						Name: RunExecuteEventName,
						Data: RunExecuteEvent{RunID: runID, TriggeredBy: "pending_dispatcher"}.eventData(),
					})
				})
				if err != nil {
					fmt.Printf("[PendingRunDispatcher] Warning: failed to send execute event for run %s: %v\n", runID, err)
					continue
				}
				dispatched = append(dispatched, runID)
			}

			fmt.Printf("[PendingRunDispatcher] Queued %d of %d pending runs\n", len(dispatched), len(runIDs))
			return map[string]interface{}{
				"dispatched_at":   now,
				"runs_dispatched": len(dispatched),
				"run_ids":         dispatched,
			}, nil
		},
	)
	if err != nil {
		panic(fmt.Errorf("failed to create PendingRunDispatcher function: %w", err))
	}
	return fn
}
