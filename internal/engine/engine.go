package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
)

type (
	// Engine owns the function and workflow registries and drives workflow
	// executions against them
	Engine struct {
		config      *config.Config
		functions   *FunctionRegistry
		workflows   *WorkflowRegistry
		tracker     ExecutionTracker
		definitions DefinitionStore
		events      EventSink
		metrics     *Metrics
		now         func() time.Time
		ctx         context.Context
		cancel      context.CancelFunc
		running     sync.WaitGroup
		runMu       sync.Mutex
		stopped     bool
		stopOnce    sync.Once
	}

	// Dependencies are the collaborators an Engine is constructed with.
	// Only Tracker is required
	Dependencies struct {
		Tracker     ExecutionTracker
		Definitions DefinitionStore
		Events      EventSink
		Metrics     *Metrics
		Clock       func() time.Time
	}

	// ExecutionTracker records the state of workflow executions
	ExecutionTracker interface {
		Create(
			ctx context.Context, workflow api.WorkflowName, input api.Args,
			first api.StepName,
		) (*api.Execution, error)
		Update(
			ctx context.Context, id api.ExecutionID,
			updates ...api.ExecutionUpdate,
		) (*api.Execution, error)
		Get(ctx context.Context, id api.ExecutionID) (*api.Execution, error)
	}

	// DefinitionStore is the durable home of workflow definitions
	DefinitionStore interface {
		GetByName(
			ctx context.Context, name api.WorkflowName,
		) (*api.WorkflowDefinition, error)
		Create(ctx context.Context, def *api.WorkflowDefinition) error
		List(ctx context.Context) ([]*api.WorkflowDefinition, error)
	}

	// EventSink receives execution lifecycle events
	EventSink interface {
		Publish(ev *api.ExecutionEvent)
	}
)

var (
	ErrTrackerRequired = errors.New("execution tracker required")
	ErrEngineStopped   = errors.New("engine stopped")
)

// New creates an Engine from the given configuration and dependencies
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Tracker == nil {
		return nil, ErrTrackerRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		config:      cfg,
		functions:   NewFunctionRegistry(),
		workflows:   NewWorkflowRegistry(),
		tracker:     deps.Tracker,
		definitions: deps.Definitions,
		events:      deps.Events,
		metrics:     deps.Metrics,
		now:         clock,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Stop cancels asynchronous executions and waits for them to finish
// recording their terminal state
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		// no new background runs may be added once Wait begins
		e.runMu.Lock()
		e.stopped = true
		e.runMu.Unlock()

		e.cancel()
		e.running.Wait()
		slog.Info("Engine stopped")
	})
	return nil
}

// Functions exposes the function registry
func (e *Engine) Functions() *FunctionRegistry {
	return e.functions
}

// RegisterFunction makes fn callable under name, replacing any prior entry
func (e *Engine) RegisterFunction(name api.FunctionName, fn Invocable) {
	e.functions.Register(name, fn)
	slog.Debug("Function registered", log.FunctionName(name))
}

// RegisterFunc registers a plain function handler under name
func (e *Engine) RegisterFunc(name api.FunctionName, fn FunctionHandler) {
	e.RegisterFunction(name, fn)
}

// ListFunctions describes all registered functions
func (e *Engine) ListFunctions() []api.FunctionInfo {
	return e.functions.List()
}

// RegisterWorkflow registers a new workflow definition, rejecting a name
// that is already registered
func (e *Engine) RegisterWorkflow(def *api.WorkflowDefinition) error {
	if err := e.workflows.Register(def); err != nil {
		return err
	}
	slog.Info("Workflow registered", log.WorkflowID(def.Name))
	return nil
}

// ReplaceWorkflow registers a workflow definition, overwriting any
// definition with the same name
func (e *Engine) ReplaceWorkflow(def *api.WorkflowDefinition) error {
	if err := e.workflows.Replace(def); err != nil {
		return err
	}
	slog.Info("Workflow replaced", log.WorkflowID(def.Name))
	return nil
}

// GetWorkflow returns the named definition, consulting the definition store
// when it is not registered in-process
func (e *Engine) GetWorkflow(
	ctx context.Context, name api.WorkflowName,
) (*api.WorkflowDefinition, error) {
	return e.loadWorkflow(ctx, name)
}

// ListWorkflows returns the in-process definitions merged with those held
// by the definition store
func (e *Engine) ListWorkflows(
	ctx context.Context,
) ([]*api.WorkflowDefinition, error) {
	if e.definitions != nil {
		stored, err := e.definitions.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, def := range stored {
			if err := e.workflows.adopt(def); err != nil {
				slog.Warn("Skipping invalid stored workflow",
					log.WorkflowID(def.Name),
					log.Error(err))
			}
		}
	}
	return e.workflows.List(), nil
}

// GetExecution returns the execution record for id
func (e *Engine) GetExecution(
	ctx context.Context, id api.ExecutionID,
) (*api.Execution, error) {
	return e.tracker.Get(ctx, id)
}

// Stats reports the number of registered functions and workflows
func (e *Engine) Stats() (functions, workflows int) {
	return e.functions.Len(), e.workflows.Len()
}

func (e *Engine) loadWorkflow(
	ctx context.Context, name api.WorkflowName,
) (*api.WorkflowDefinition, error) {
	if def, ok := e.workflows.Get(name); ok {
		return def, nil
	}
	if e.definitions == nil {
		return nil, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, name)
	}

	def, err := e.definitions.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, api.ErrWorkflowNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", api.ErrWorkflowNotFound, name, err)
	}
	if err := e.workflows.adopt(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (e *Engine) materialize(
	ctx context.Context, def *api.WorkflowDefinition,
) {
	if e.definitions == nil || e.workflows.isPersisted(def.Name) {
		return
	}
	err := e.definitions.Create(ctx, def)
	if err != nil && !isExists(err) {
		slog.Warn("Failed to persist workflow definition",
			log.WorkflowID(def.Name),
			log.Error(err))
		return
	}
	e.workflows.markPersisted(def.Name)
}

func (e *Engine) publish(ev *api.ExecutionEvent) {
	if e.events == nil {
		return
	}
	ev.Timestamp = e.now()
	e.events.Publish(ev)
}

func (e *Engine) stepTimeout(step *api.StepSpec) time.Duration {
	if step != nil && step.Timeout > 0 {
		return time.Duration(step.Timeout) * time.Millisecond
	}
	return e.config.StepTimeoutDuration()
}

func (e *Engine) workflowTimeout(def *api.WorkflowDefinition) time.Duration {
	if def.Timeout > 0 {
		return time.Duration(def.Timeout) * time.Millisecond
	}
	return e.config.WorkflowTimeoutDuration()
}

func isExists(err error) bool {
	return errors.Is(err, api.ErrWorkflowExists)
}
