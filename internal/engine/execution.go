package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

// workflowRun holds the state of one execution while its steps are driven
type workflowRun struct {
	engine  *Engine
	def     *api.WorkflowDefinition
	ex      *api.Execution
	results StepResults
	output  api.Args
}

// ExecuteWorkflow runs the named workflow to completion and returns its
// execution record. A nil record is returned only when the workflow could
// not be started. A failed execution is returned together with an error
// wrapping ErrWorkflowExecution
func (e *Engine) ExecuteWorkflow(
	ctx context.Context, name api.WorkflowName, input api.Args,
) (*api.Execution, error) {
	run, err := e.prepare(ctx, name, input)
	if err != nil {
		return nil, err
	}
	return run.execute(ctx)
}

// StartWorkflow creates an execution for the named workflow and runs it in
// the background, returning its id. Errors that prevent the execution from
// being created are returned directly
func (e *Engine) StartWorkflow(
	ctx context.Context, name api.WorkflowName, input api.Args,
) (api.ExecutionID, error) {
	if e.ctx.Err() != nil {
		return "", ErrEngineStopped
	}
	run, err := e.prepare(ctx, name, input)
	if err != nil {
		return "", err
	}

	if !e.goRun(run) {
		_, _ = run.fail(ctx, run.def.Steps[0].Name, ErrEngineStopped)
		return "", ErrEngineStopped
	}
	return run.ex.ID, nil
}

func (e *Engine) goRun(run *workflowRun) bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stopped {
		return false
	}
	e.running.Go(func() {
		_, _ = run.execute(e.ctx)
	})
	return true
}

// RunWorkflow executes a workflow request and maps the outcome to the
// caller-facing response. Errors never escape as Go errors
func (e *Engine) RunWorkflow(
	ctx context.Context, req *api.WorkflowRequest,
) *api.WorkflowResponse {
	ex, err := e.ExecuteWorkflow(ctx, req.WorkflowName, req.Input)
	return api.NewWorkflowResponse(ex, err)
}

func (e *Engine) prepare(
	ctx context.Context, name api.WorkflowName, input api.Args,
) (*workflowRun, error) {
	def, err := e.loadWorkflow(ctx, name)
	if err != nil {
		return nil, err
	}

	first := def.Steps[0]
	if _, ok := e.functions.Lookup(first.Function); !ok {
		err := fmt.Errorf("%w: %s: %w: %s", api.ErrWorkflowExecution,
			def.Name, api.ErrFunctionNotFound, first.Function)
		slog.Warn("Workflow rejected before start",
			log.WorkflowID(def.Name),
			log.StepName(first.Name),
			log.Error(err))
		return nil, err
	}

	e.materialize(ctx, def)

	ex, err := e.tracker.Create(ctx, def.Name, input, first.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", api.ErrWorkflowExecution,
			def.Name, err)
	}

	e.metrics.executionStarted()
	slog.Info("Workflow execution started",
		log.ExecutionID(ex.ID),
		log.WorkflowID(def.Name))
	e.publish(&api.ExecutionEvent{
		Type:        api.EventExecutionStarted,
		ExecutionID: ex.ID,
		WorkflowID:  def.Name,
		Status:      api.StatusRunning,
	})

	return &workflowRun{
		engine:  e,
		def:     def,
		ex:      ex,
		results: StepResults{},
		output:  api.Args{},
	}, nil
}

func (r *workflowRun) execute(ctx context.Context) (*api.Execution, error) {
	if timeout := r.engine.workflowTimeout(r.def); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	idx := 0
	for idx < len(r.def.Steps) {
		step := r.def.Steps[idx]
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, step.Name, err)
		}

		rec, err := r.executeStep(ctx, step)
		if err == nil {
			idx++
			continue
		}

		if target, ok := r.redirect(ctx, step); ok {
			rec.Status = api.StepRecovered
			r.update(ctx, api.RecordStep(rec))
			slog.Warn("Step failure redirected",
				log.ExecutionID(r.ex.ID),
				log.StepName(step.Name),
				slog.String("target", string(target)),
				log.Error(err))
			idx = r.def.StepIndex(target)
			continue
		}

		rec.Status = api.StepFailed
		r.update(ctx, api.RecordStep(rec))
		return r.fail(ctx, step.Name, err)
	}
	return r.complete(ctx)
}

func (r *workflowRun) redirect(
	ctx context.Context, step *api.StepSpec,
) (api.StepName, bool) {
	h := r.def.Handler(step.Name)
	if h == nil || h.Action != api.ActionNext || ctx.Err() != nil {
		return "", false
	}
	return h.Target, true
}

func (r *workflowRun) complete(ctx context.Context) (*api.Execution, error) {
	r.update(ctx, api.Complete(r.output, r.engine.now()))
	r.engine.metrics.executionFinished(r.def.Name, api.StatusCompleted)

	slog.Info("Workflow execution completed",
		log.ExecutionID(r.ex.ID),
		log.WorkflowID(r.def.Name))
	r.engine.publish(&api.ExecutionEvent{
		Type:        api.EventExecutionCompleted,
		ExecutionID: r.ex.ID,
		WorkflowID:  r.def.Name,
		Status:      api.StatusCompleted,
		Data:        r.output.Clone(),
	})
	return r.ex.Clone(), nil
}

func (r *workflowRun) fail(
	ctx context.Context, step api.StepName, cause error,
) (*api.Execution, error) {
	detail := &api.ErrorDetail{
		Code:    api.CodeOf(cause),
		Message: cause.Error(),
		Step:    step,
	}
	r.update(ctx, api.Fail(detail, r.engine.now()))
	r.engine.metrics.executionFinished(r.def.Name, api.StatusFailed)

	slog.Error("Workflow execution failed",
		log.ExecutionID(r.ex.ID),
		log.WorkflowID(r.def.Name),
		log.StepName(step),
		log.Status(api.StatusFailed),
		slog.String("code", string(detail.Code)),
		log.ErrorString(detail.Message))
	r.engine.publish(&api.ExecutionEvent{
		Type:        api.EventExecutionFailed,
		ExecutionID: r.ex.ID,
		WorkflowID:  r.def.Name,
		Step:        step,
		Status:      api.StatusFailed,
		Error:       detail,
	})

	err := fmt.Errorf("%w: %s: step %s: %w",
		api.ErrWorkflowExecution, r.def.Name, step, cause)
	return r.ex.Clone(), err
}

// update applies updates through the tracker. When the tracker no longer
// knows the execution, the locally held record is updated instead so the
// run can still report a best-effort result
func (r *workflowRun) update(
	ctx context.Context, updates ...api.ExecutionUpdate,
) {
	ctx = context.WithoutCancel(ctx)
	ex, err := r.engine.tracker.Update(ctx, r.ex.ID, updates...)
	if err == nil {
		r.ex = ex
		return
	}

	if errors.Is(err, api.ErrExecutionNotFound) {
		slog.Warn("Execution missing from tracker",
			log.ExecutionID(r.ex.ID))
	} else {
		slog.Error("Failed to update execution",
			log.ExecutionID(r.ex.ID),
			log.Error(err))
	}
	r.ex.Apply(updates...)
}
