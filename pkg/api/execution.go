package api

import (
	"slices"
	"time"
)

type (
	// Execution is the run-time record of one workflow invocation
	Execution struct {
		StartedAt   time.Time       `json:"started_at"`
		Input       Args            `json:"input"`
		Output      Args            `json:"output"`
		Error       *ErrorDetail    `json:"error,omitempty"`
		CompletedAt *time.Time      `json:"completed_at"`
		CurrentStep *StepName       `json:"current_step"`
		ID          ExecutionID     `json:"id"`
		WorkflowID  WorkflowName    `json:"workflow_id"`
		Status      ExecutionStatus `json:"status"`
		Steps       []*StepRecord   `json:"steps,omitempty"`
	}

	// StepRecord captures the outcome of one step within an execution
	StepRecord struct {
		StartedAt   time.Time    `json:"started_at"`
		CompletedAt *time.Time   `json:"completed_at,omitempty"`
		Result      any          `json:"result,omitempty"`
		Name        StepName     `json:"name"`
		Function    FunctionName `json:"function"`
		Status      StepStatus   `json:"status"`
		Error       string       `json:"error,omitempty"`
		Attempts    int          `json:"attempts"`
	}

	// ExecutionStatus is the lifecycle state of an execution
	ExecutionStatus string

	// StepStatus is the outcome of a single step
	StepStatus string

	// ExecutionUpdate mutates an execution record in place. Updates are
	// applied by the execution tracker under its per-execution lock
	ExecutionUpdate func(*Execution)
)

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"

	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepRecovered StepStatus = "recovered"
)

// NewExecution creates a running execution record positioned at the first
// step
func NewExecution(
	id ExecutionID, workflow WorkflowName, input Args, first StepName,
	now time.Time,
) *Execution {
	ex := &Execution{
		ID:         id,
		WorkflowID: workflow,
		Status:     StatusRunning,
		Input:      input.Clone(),
		Output:     Args{},
		StartedAt:  now,
	}
	if first != "" {
		ex.CurrentStep = &first
	}
	return ex
}

// IsTerminal reports whether the execution has left the running state
func (e *Execution) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// Step returns the most recent record for the named step
func (e *Execution) Step(name StepName) *StepRecord {
	for _, rec := range slices.Backward(e.Steps) {
		if rec.Name == name {
			return rec
		}
	}
	return nil
}

// Clone returns a deep copy of the execution
func (e *Execution) Clone() *Execution {
	res := *e
	res.Input = e.Input.Clone()
	res.Output = e.Output.Clone()
	if e.Error != nil {
		errCopy := *e.Error
		res.Error = &errCopy
	}
	if e.CompletedAt != nil {
		at := *e.CompletedAt
		res.CompletedAt = &at
	}
	if e.CurrentStep != nil {
		step := *e.CurrentStep
		res.CurrentStep = &step
	}
	if e.Steps != nil {
		res.Steps = make([]*StepRecord, len(e.Steps))
		for i, rec := range e.Steps {
			rc := *rec
			rc.Result = CloneValue(rec.Result)
			if rec.CompletedAt != nil {
				at := *rec.CompletedAt
				rc.CompletedAt = &at
			}
			res.Steps[i] = &rc
		}
	}
	return &res
}

// Apply runs each update against the execution in order
func (e *Execution) Apply(updates ...ExecutionUpdate) {
	for _, u := range updates {
		u(e)
	}
}

// SetCurrentStep marks the named step as in flight
func SetCurrentStep(name StepName) ExecutionUpdate {
	return func(e *Execution) {
		e.CurrentStep = &name
	}
}

// RecordStep appends or replaces the record for a step attempt sequence
func RecordStep(rec *StepRecord) ExecutionUpdate {
	return func(e *Execution) {
		rc := *rec
		for i, existing := range e.Steps {
			if existing.Name == rec.Name && existing.Status == StepRunning {
				e.Steps[i] = &rc
				return
			}
		}
		e.Steps = append(e.Steps, &rc)
	}
}

// SetOutput replaces the accumulated output
func SetOutput(output Args) ExecutionUpdate {
	return func(e *Execution) {
		e.Output = output.Clone()
	}
}

// Complete transitions the execution to completed
func Complete(output Args, at time.Time) ExecutionUpdate {
	return func(e *Execution) {
		e.Status = StatusCompleted
		e.Output = output.Clone()
		e.CompletedAt = &at
		e.CurrentStep = nil
		e.Error = nil
	}
}

// Fail transitions the execution to failed with the captured error
func Fail(detail *ErrorDetail, at time.Time) ExecutionUpdate {
	return func(e *Execution) {
		e.Status = StatusFailed
		e.Error = detail
		e.CompletedAt = &at
		e.CurrentStep = nil
	}
}
