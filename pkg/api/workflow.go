package api

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/levyline/taxflow/pkg/util"
)

type (
	// WorkflowDefinition declares an ordered sequence of function calls,
	// their parameter bindings, output projections, and error handlers
	WorkflowDefinition struct {
		Inputs        map[Name]string            `json:"inputs,omitempty"`
		Outputs       map[Name]string            `json:"outputs,omitempty"`
		ErrorHandlers map[StepName]*ErrorHandler `json:"error_handlers,omitempty"`
		Name          WorkflowName               `json:"name"`
		Description   string                     `json:"description,omitempty"`
		Steps         []*StepSpec                `json:"steps"`
		Timeout       int64                      `json:"timeout,omitempty"`
	}

	// StepSpec binds one function call within a workflow
	StepSpec struct {
		Parameters Params          `json:"parameters,omitempty"`
		Output     map[Name]string `json:"output,omitempty"`
		Name       StepName        `json:"name"`
		Function   FunctionName    `json:"function"`
		Timeout    int64           `json:"timeout,omitempty"`
	}

	// ErrorHandler is the policy applied when a step's function fails
	ErrorHandler struct {
		Retry  *RetryPolicy  `json:"retry,omitempty"`
		Action HandlerAction `json:"action"`
		Target StepName      `json:"target,omitempty"`
	}

	// HandlerAction selects the error handling behavior for a step
	HandlerAction string

	// RetryPolicy bounds the re-attempts of a failed step. MaxAttempts
	// counts attempts after the first failure; zero disables retrying
	RetryPolicy struct {
		BackoffType  string  `json:"backoff_type,omitempty"`
		Factor       float64 `json:"factor,omitempty"`
		MaxAttempts  int     `json:"max_attempts"`
		BackoffMs    int64   `json:"backoff_ms,omitempty"`
		MaxBackoffMs int64   `json:"max_backoff_ms,omitempty"`
	}
)

const (
	ActionRetry     HandlerAction = "retry"
	ActionNext      HandlerAction = "next"
	ActionTerminate HandlerAction = "terminate"

	BackoffTypeFixed       = "fixed"
	BackoffTypeLinear      = "linear"
	BackoffTypeExponential = "exponential"

	DefaultBackoffFactor = 2.0
)

const (
	Second int64 = 1000
	Minute       = Second * 60
	Hour         = Minute * 60
)

var (
	ErrWorkflowNameInvalid = errors.New("workflow name invalid")
	ErrWorkflowNoSteps     = errors.New("workflow has no steps")
	ErrStepNameInvalid     = errors.New("step name invalid")
	ErrStepNameDuplicate   = errors.New("duplicate step name")
	ErrStepFunctionEmpty   = errors.New("step function empty")
	ErrUnknownStepRef      = errors.New("parameter references unknown step")
	ErrOutputCollision     = errors.New("output key declared by more than one step")
	ErrHandlerUnknownStep  = errors.New("error handler for unknown step")
	ErrInvalidAction       = errors.New("invalid error handler action")
	ErrNextTargetRequired  = errors.New("next handler requires a target")
	ErrNextTargetInvalid   = errors.New("next target must be a later step")
	ErrRetryPolicyRequired = errors.New("retry handler requires a policy")
	ErrInvalidRetryPolicy  = errors.New("invalid retry policy")
	ErrInvalidBackoffType  = errors.New("invalid backoff type")
	ErrNegativeTimeout     = errors.New("timeout cannot be negative")
)

var (
	validActions = util.SetOf(
		ActionRetry,
		ActionNext,
		ActionTerminate,
	)

	validBackoffTypes = util.SetOf(
		BackoffTypeFixed,
		BackoffTypeLinear,
		BackoffTypeExponential,
	)
)

// Validate checks the structural integrity of a workflow definition:
// unique step names, resolvable step references, non-colliding outputs, and
// well-formed error handlers
func (w *WorkflowDefinition) Validate() error {
	if !ValidName(w.Name) {
		return fmt.Errorf("%w: %q", ErrWorkflowNameInvalid, w.Name)
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowNoSteps, w.Name)
	}
	if w.Timeout < 0 {
		return fmt.Errorf("%w: workflow %s", ErrNegativeTimeout, w.Name)
	}

	names := util.Set[StepName]{}
	for _, step := range w.Steps {
		if err := step.validate(); err != nil {
			return err
		}
		if !names.Add(step.Name) {
			return fmt.Errorf("%w: %s", ErrStepNameDuplicate, step.Name)
		}
	}

	if err := w.validateRefs(names); err != nil {
		return err
	}
	if err := w.validateOutputs(); err != nil {
		return err
	}
	return w.validateHandlers()
}

// StepIndex returns the position of the named step, or -1 if absent
func (w *WorkflowDefinition) StepIndex(name StepName) int {
	return slices.IndexFunc(w.Steps, func(s *StepSpec) bool {
		return s.Name == name
	})
}

// Handler returns the error handler registered for the named step, if any
func (w *WorkflowDefinition) Handler(name StepName) *ErrorHandler {
	if w.ErrorHandlers == nil {
		return nil
	}
	return w.ErrorHandlers[name]
}

// Functions returns the distinct function names referenced by the steps
func (w *WorkflowDefinition) Functions() []FunctionName {
	seen := util.Set[FunctionName]{}
	var res []FunctionName
	for _, step := range w.Steps {
		if seen.Add(step.Function) {
			res = append(res, step.Function)
		}
	}
	return res
}

// Clone returns a deep copy of the definition
func (w *WorkflowDefinition) Clone() *WorkflowDefinition {
	res := *w
	res.Inputs = maps.Clone(w.Inputs)
	res.Outputs = maps.Clone(w.Outputs)
	res.Steps = make([]*StepSpec, len(w.Steps))
	for i, step := range w.Steps {
		res.Steps[i] = step.Clone()
	}
	if w.ErrorHandlers != nil {
		res.ErrorHandlers = make(map[StepName]*ErrorHandler, len(w.ErrorHandlers))
		for name, h := range w.ErrorHandlers {
			hc := *h
			if h.Retry != nil {
				rc := *h.Retry
				hc.Retry = &rc
			}
			res.ErrorHandlers[name] = &hc
		}
	}
	return &res
}

func (w *WorkflowDefinition) validateRefs(names util.Set[StepName]) error {
	for _, step := range w.Steps {
		for pName, p := range step.Parameters {
			if p.Kind == ParamStep && !names.Contains(p.Step) {
				return fmt.Errorf("%w: %s.%s -> %s",
					ErrUnknownStepRef, step.Name, pName, p.Step)
			}
		}
	}
	return nil
}

func (w *WorkflowDefinition) validateOutputs() error {
	owners := map[Name]StepName{}
	for _, step := range w.Steps {
		for key := range step.Output {
			if owner, ok := owners[key]; ok {
				return fmt.Errorf("%w: %s (steps %s, %s)",
					ErrOutputCollision, key, owner, step.Name)
			}
			owners[key] = step.Name
		}
	}
	return nil
}

func (w *WorkflowDefinition) validateHandlers() error {
	for name, h := range w.ErrorHandlers {
		idx := w.StepIndex(name)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrHandlerUnknownStep, name)
		}
		if h == nil || !validActions.Contains(h.Action) {
			return fmt.Errorf("%w: step %s", ErrInvalidAction, name)
		}
		switch h.Action {
		case ActionNext:
			if h.Target == "" {
				return fmt.Errorf("%w: step %s", ErrNextTargetRequired, name)
			}
			if w.StepIndex(h.Target) <= idx {
				return fmt.Errorf("%w: %s -> %s",
					ErrNextTargetInvalid, name, h.Target)
			}
		case ActionRetry:
			if h.Retry == nil {
				return fmt.Errorf("%w: step %s", ErrRetryPolicyRequired, name)
			}
			if err := h.Retry.Validate(); err != nil {
				return fmt.Errorf("%w: step %s", err, name)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the step
func (s *StepSpec) Clone() *StepSpec {
	res := *s
	res.Output = maps.Clone(s.Output)
	if s.Parameters != nil {
		res.Parameters = make(Params, len(s.Parameters))
		for k, p := range s.Parameters {
			p.Value = CloneValue(p.Value)
			res.Parameters[k] = p
		}
	}
	return &res
}

func (s *StepSpec) validate() error {
	if !ValidName(s.Name) {
		return fmt.Errorf("%w: %q", ErrStepNameInvalid, s.Name)
	}
	if s.Function == "" {
		return fmt.Errorf("%w: step %s", ErrStepFunctionEmpty, s.Name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: step %s", ErrNegativeTimeout, s.Name)
	}
	for _, p := range s.Parameters {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: step %s", err, s.Name)
		}
	}
	return nil
}

// Validate checks the retry policy bounds
func (r *RetryPolicy) Validate() error {
	if r.MaxAttempts < 0 || r.BackoffMs < 0 || r.Factor < 0 {
		return ErrInvalidRetryPolicy
	}
	if r.MaxBackoffMs != 0 && r.MaxBackoffMs < r.BackoffMs {
		return ErrInvalidRetryPolicy
	}
	if r.BackoffType != "" && !validBackoffTypes.Contains(r.BackoffType) {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType, r.BackoffType)
	}
	return nil
}

// ShouldRetry reports whether another attempt is permitted after the given
// number of retries have already been made
func (r *RetryPolicy) ShouldRetry(retries int) bool {
	return r != nil && retries < r.MaxAttempts
}

// maxDelayMs is the longest delay, in milliseconds, a time.Duration holds
const maxDelayMs = float64(math.MaxInt64 / int64(time.Millisecond))

// Delay computes the wait before retry number n (zero-based)
func (r *RetryPolicy) Delay(n int) time.Duration {
	base := float64(r.BackoffMs)
	var ms float64
	switch r.BackoffType {
	case BackoffTypeFixed:
		ms = base
	case BackoffTypeLinear:
		ms = base * float64(n+1)
	default:
		factor := r.Factor
		if factor == 0 {
			factor = DefaultBackoffFactor
		}
		ms = base * math.Pow(factor, float64(n))
	}
	if r.MaxBackoffMs > 0 && ms > float64(r.MaxBackoffMs) {
		ms = float64(r.MaxBackoffMs)
	}
	if ms > maxDelayMs {
		ms = maxDelayMs
	}
	return time.Duration(ms) * time.Millisecond
}
