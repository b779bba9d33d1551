// Package service wraps the orchestrator's phase surface with the
// resilience policy callers see: the planning phase gets time-boxed,
// retried attempts, the other phases pass through unchanged. The facade
// also owns error notifications: failed planning attempts are only logged
// as they happen, and the notification stream receives a single error per
// failed phase call once the outcome is final.
package service

import (
	"context"
	"fmt"
	"time"

	"papermill/pkg/config"
	"papermill/pkg/events"
	"papermill/pkg/logx"
	"papermill/pkg/orchestrator"
)

// Workflow is the phase surface the facade wraps. Satisfied by
// *orchestrator.Orchestrator.
type Workflow interface {
	ExecutePlanningPhase(ctx context.Context, problemText string) (orchestrator.PlanningResult, error)
	ExecuteModelingPhase(ctx context.Context, planText string) (orchestrator.ModelingResult, error)
	ExecuteWritingPhase(ctx context.Context) (orchestrator.WritingResult, error)
}

// Facade retries the planning phase per the configured policy.
type Facade struct {
	workflow Workflow
	cfg      config.PlanningConfig
	notifier events.Notifier
	logger   *logx.Logger
}

// New builds a facade. A nil notifier discards notifications.
func New(workflow Workflow, cfg config.PlanningConfig, notifier events.Notifier) *Facade {
	if notifier == nil {
		notifier = events.Discard
	}
	return &Facade{
		workflow: workflow,
		cfg:      cfg,
		notifier: notifier,
		logger:   logx.NewLogger("service"),
	}
}

// RunPlanning executes the planning phase with up to Retries additional
// attempts after the first failure, each attempt bounded by AttemptLimit
// and separated by a fixed RetryDelay. Exactly one error notification is
// emitted when every attempt has failed.
func (f *Facade) RunPlanning(ctx context.Context, problemText string) (orchestrator.PlanningResult, error) {
	attempts := f.cfg.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := f.runPlanningAttempt(ctx, problemText)
		if err == nil {
			if attempt > 1 {
				f.logger.Info("planning succeeded on attempt %d/%d", attempt, attempts)
			}
			return result, nil
		}
		lastErr = err
		f.logger.Warn("planning attempt %d/%d failed: %v", attempt, attempts, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			err := fmt.Errorf("planning aborted: %w", ctx.Err())
			f.notifier.Notify(events.NewError(err.Error()))
			return orchestrator.PlanningResult{}, err
		case <-time.After(f.cfg.RetryDelay):
		}
	}

	err := fmt.Errorf("planning failed after %d attempts: %w", attempts, lastErr)
	f.notifier.Notify(events.NewError(err.Error()))
	return orchestrator.PlanningResult{}, err
}

// runPlanningAttempt time-boxes one attempt.
func (f *Facade) runPlanningAttempt(ctx context.Context, problemText string) (orchestrator.PlanningResult, error) {
	if f.cfg.AttemptLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.AttemptLimit)
		defer cancel()
	}
	return f.workflow.ExecutePlanningPhase(ctx, problemText)
}

// RunModeling passes through to the orchestrator. Modeling failures are not
// retried: a bad plan fails the same way every time, and a flaky provider
// is already retried at the client middleware layer.
func (f *Facade) RunModeling(ctx context.Context, planText string) (orchestrator.ModelingResult, error) {
	result, err := f.workflow.ExecuteModelingPhase(ctx, planText)
	if err != nil {
		f.notifier.Notify(events.NewError(err.Error()))
		return orchestrator.ModelingResult{}, err
	}
	return result, nil
}

// RunWriting passes through to the orchestrator.
func (f *Facade) RunWriting(ctx context.Context) (orchestrator.WritingResult, error) {
	result, err := f.workflow.ExecuteWritingPhase(ctx)
	if err != nil {
		f.notifier.Notify(events.NewError(err.Error()))
		return orchestrator.WritingResult{}, err
	}
	return result, nil
}
