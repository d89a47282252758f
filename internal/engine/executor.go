package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

type callResult struct {
	value any
	err   error
}

// executeStep runs one step: it marks the step in flight, resolves the
// parameters, invokes the function (retrying per the step's policy), and on
// success records the raw result and projects the step's outputs. The
// returned record is finalized by the caller on failure
func (r *workflowRun) executeStep(
	ctx context.Context, step *api.StepSpec,
) (*api.StepRecord, error) {
	rec := &api.StepRecord{
		Name:      step.Name,
		Function:  step.Function,
		Status:    api.StepRunning,
		StartedAt: r.engine.now(),
	}
	r.update(ctx, api.SetCurrentStep(step.Name), api.RecordStep(rec))
	r.engine.publish(&api.ExecutionEvent{
		Type:        api.EventStepStarted,
		ExecutionID: r.ex.ID,
		WorkflowID:  r.def.Name,
		Step:        step.Name,
	})

	params := ResolveAll(step.Parameters, r.ex.Input, r.results)
	result, attempts, err := r.invokeWithRetry(ctx, step, params)

	done := r.engine.now()
	rec.Attempts = attempts
	rec.CompletedAt = &done
	dur := done.Sub(rec.StartedAt)

	if err != nil {
		rec.Error = err.Error()
		r.engine.metrics.stepFinished(step.Function, api.StepFailed, dur)
		slog.Warn("Step failed",
			log.ExecutionID(r.ex.ID),
			log.StepName(step.Name),
			log.FunctionName(step.Function),
			slog.Int("attempts", attempts),
			log.Error(err))
		r.engine.publish(&api.ExecutionEvent{
			Type:        api.EventStepFailed,
			ExecutionID: r.ex.ID,
			WorkflowID:  r.def.Name,
			Step:        step.Name,
			Attempt:     attempts,
			Error:       api.NewErrorDetail(err),
		})
		return rec, err
	}

	r.results[step.Name] = result
	r.project(step, result)

	rec.Status = api.StepCompleted
	rec.Result = result
	r.update(ctx, api.RecordStep(rec), api.SetOutput(r.output))
	r.engine.metrics.stepFinished(step.Function, api.StepCompleted, dur)

	slog.Debug("Step completed",
		log.ExecutionID(r.ex.ID),
		log.StepName(step.Name),
		log.FunctionName(step.Function),
		slog.Duration("duration", dur))
	r.engine.publish(&api.ExecutionEvent{
		Type:        api.EventStepCompleted,
		ExecutionID: r.ex.ID,
		WorkflowID:  r.def.Name,
		Step:        step.Name,
		Attempt:     attempts,
		Data:        api.CloneValue(result),
	})
	return rec, nil
}

// project copies the declared result paths of a step into the workflow
// output. Paths that do not resolve leave their output key unset
func (r *workflowRun) project(step *api.StepSpec, result any) {
	for key, path := range step.Output {
		if v, ok := LookupPath(result, path); ok {
			r.output[key] = api.CloneValue(v)
		}
	}
}

func (r *workflowRun) invokeWithRetry(
	ctx context.Context, step *api.StepSpec, params api.Args,
) (any, int, error) {
	var policy *api.RetryPolicy
	if h := r.def.Handler(step.Name); h != nil && h.Action == api.ActionRetry {
		policy = h.Retry
	}

	for retries := 0; ; retries++ {
		attempts := retries + 1
		result, err := r.engine.call(ctx, step, params)
		if err == nil {
			return result, attempts, nil
		}
		if !retryable(ctx, err) || !policy.ShouldRetry(retries) {
			return nil, attempts, err
		}

		delay := policy.Delay(retries)
		r.engine.metrics.stepRetried(step.Function)
		slog.Info("Retrying step",
			log.ExecutionID(r.ex.ID),
			log.StepName(step.Name),
			slog.Int("attempt", attempts+1),
			slog.Duration("delay", delay),
			log.Error(err))
		r.engine.publish(&api.ExecutionEvent{
			Type:        api.EventStepRetrying,
			ExecutionID: r.ex.ID,
			WorkflowID:  r.def.Name,
			Step:        step.Name,
			Attempt:     attempts + 1,
			Error:       api.NewErrorDetail(err),
		})

		if err := sleep(ctx, delay); err != nil {
			return nil, attempts, err
		}
	}
}

// call invokes a step's function under the step timeout. The call is
// abandoned when the context ends even if the function ignores it
func (e *Engine) call(
	ctx context.Context, step *api.StepSpec, params api.Args,
) (any, error) {
	return e.callFunction(ctx, step.Function, params, e.stepTimeout(step))
}

func (e *Engine) callFunction(
	ctx context.Context, name api.FunctionName, params api.Args,
	timeout time.Duration,
) (any, error) {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callResult, 1)
	go func() {
		res, err := e.functions.Invoke(ctx, name, params)
		done <- callResult{value: res, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && timedOut(parent, ctx) {
			return nil, stepTimeout(name, timeout)
		}
		return res.value, res.err
	case <-ctx.Done():
		if timedOut(parent, ctx) {
			return nil, stepTimeout(name, timeout)
		}
		return nil, fmt.Errorf("%w: %s: %w",
			api.ErrFunctionExecution, name, ctx.Err())
	}
}

// timedOut reports whether the call's own deadline ended it while the
// surrounding run was still live
func timedOut(parent, call context.Context) bool {
	return parent.Err() == nil &&
		errors.Is(call.Err(), context.DeadlineExceeded)
}

func stepTimeout(name api.FunctionName, timeout time.Duration) error {
	return fmt.Errorf("%w: %s: %w after %s",
		api.ErrFunctionExecution, name, api.ErrStepTimeout, timeout)
}

func retryable(ctx context.Context, err error) bool {
	return ctx.Err() == nil && !errors.Is(err, api.ErrFunctionNotFound)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
