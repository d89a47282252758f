package helpers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/levyline/taxflow/pkg/api"
)

// Recorder is a test function that records every invocation and returns a
// fixed result or error
type Recorder struct {
	Result any
	Err    error
	calls  []api.Args
	count  atomic.Int32
	mu     sync.Mutex
}

// ErrTestFailure is the error returned by failing test functions
var ErrTestFailure = errors.New("test function failure")

// NewRecorder creates a recorder that returns result
func NewRecorder(result any) *Recorder {
	return &Recorder{Result: result}
}

// NewFailingRecorder creates a recorder that always fails
func NewFailingRecorder() *Recorder {
	return &Recorder{Err: ErrTestFailure}
}

// Invoke records the call
func (r *Recorder) Invoke(_ context.Context, params api.Args) (any, error) {
	r.count.Add(1)
	r.mu.Lock()
	r.calls = append(r.calls, params.Clone())
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Result, nil
}

// Count returns the number of invocations
func (r *Recorder) Count() int {
	return int(r.count.Load())
}

// Calls returns the parameters of every invocation
func (r *Recorder) Calls() []api.Args {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.Args(nil), r.calls...)
}

// FailTimes returns a function that fails n times before returning result
func FailTimes(n int, result any) func(context.Context, api.Args) (any, error) {
	var calls atomic.Int32
	return func(context.Context, api.Args) (any, error) {
		if int(calls.Add(1)) <= n {
			return nil, ErrTestFailure
		}
		return result, nil
	}
}

// Block returns a function that waits for its context to end
func Block() func(context.Context, api.Args) (any, error) {
	return func(ctx context.Context, _ api.Args) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// NewStep creates a step calling fn with no parameters or outputs
func NewStep(name api.StepName, fn api.FunctionName) *api.StepSpec {
	return &api.StepSpec{
		Name:       name,
		Function:   fn,
		Parameters: api.Params{},
		Output:     map[api.Name]string{},
	}
}

// NewWorkflow creates a workflow running steps in order
func NewWorkflow(
	name api.WorkflowName, steps ...*api.StepSpec,
) *api.WorkflowDefinition {
	return &api.WorkflowDefinition{
		Name:          name,
		Steps:         steps,
		Inputs:        map[api.Name]string{},
		Outputs:       map[api.Name]string{},
		ErrorHandlers: map[api.StepName]*api.ErrorHandler{},
	}
}

// NewSimpleWorkflow creates a single-step workflow calling fn
func NewSimpleWorkflow(
	name api.WorkflowName, fn api.FunctionName,
) *api.WorkflowDefinition {
	return NewWorkflow(name, NewStep("main", fn))
}

// WithParam sets a step parameter and returns the step
func WithParam(step *api.StepSpec, name api.Name, p api.Param) *api.StepSpec {
	step.Parameters[name] = p
	return step
}

// WithOutput maps a result path of the step to a workflow output key
func WithOutput(step *api.StepSpec, key api.Name, path string) *api.StepSpec {
	step.Output[key] = path
	return step
}

// RetryHandler creates a retry error handler with a fixed zero-delay policy
func RetryHandler(maxAttempts int) *api.ErrorHandler {
	return &api.ErrorHandler{
		Action: api.ActionRetry,
		Retry: &api.RetryPolicy{
			MaxAttempts: maxAttempts,
			BackoffType: api.BackoffTypeFixed,
		},
	}
}

// NextHandler creates an error handler redirecting to target
func NextHandler(target api.StepName) *api.ErrorHandler {
	return &api.ErrorHandler{
		Action: api.ActionNext,
		Target: target,
	}
}
