package api

import "time"

type (
	// WorkflowRequest asks the engine to run a workflow with the given input
	WorkflowRequest struct {
		Input        Args         `json:"input"`
		WorkflowName WorkflowName `json:"workflow_name"`
	}

	// WorkflowResponse reports the outcome of a workflow request
	WorkflowResponse struct {
		Output      Args            `json:"output,omitempty"`
		Error       *ErrorDetail    `json:"error,omitempty"`
		ExecutionID ExecutionID     `json:"execution_id,omitempty"`
		Status      ExecutionStatus `json:"status"`
	}

	// FunctionCallRequest invokes a single function outside of a workflow
	FunctionCallRequest struct {
		Parameters   Args         `json:"parameters"`
		FunctionName FunctionName `json:"function_name"`
		CallID       CallID       `json:"call_id,omitempty"`
	}

	// FunctionCallResponse reports the outcome of a single function call
	FunctionCallResponse struct {
		Timestamp time.Time       `json:"timestamp"`
		Result    any             `json:"result,omitempty"`
		Error     *ErrorDetail    `json:"error,omitempty"`
		CallID    CallID          `json:"call_id"`
		Status    ExecutionStatus `json:"status"`
	}

	// FunctionInvocation is the request body posted to HTTP functions
	FunctionInvocation struct {
		Arguments Args   `json:"arguments"`
		CallID    CallID `json:"call_id,omitempty"`
	}

	// FunctionResult is the response body expected from HTTP functions
	FunctionResult struct {
		Result  any    `json:"result,omitempty"`
		Error   string `json:"error,omitempty"`
		Success bool   `json:"success"`
	}

	// FunctionsListResponse contains the registered functions
	FunctionsListResponse struct {
		Functions []FunctionInfo `json:"functions"`
		Count     int            `json:"count"`
	}

	// FunctionRegisteredResponse is returned when a function definition is
	// registered
	FunctionRegisteredResponse struct {
		Function FunctionInfo `json:"function"`
		Message  string       `json:"message"`
	}

	// WorkflowsListResponse contains the registered workflow definitions
	WorkflowsListResponse struct {
		Workflows []*WorkflowDefinition `json:"workflows"`
		Count     int                   `json:"count"`
	}

	// WorkflowRegisteredResponse is returned when a workflow is registered
	WorkflowRegisteredResponse struct {
		Workflow *WorkflowDefinition `json:"workflow"`
		Message  string              `json:"message"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service   string `json:"service"`
		Version   string `json:"version"`
		Status    string `json:"status"`
		Functions int    `json:"functions"`
		Workflows int    `json:"workflows"`
	}

	// ErrorResponse is the body returned for failed HTTP requests
	ErrorResponse struct {
		Error  string    `json:"error"`
		Code   ErrorCode `json:"code,omitempty"`
		Status int       `json:"status"`
	}
)

// NewWorkflowResponse maps an execution record, or the error that prevented
// one from being created, to the caller-facing response
func NewWorkflowResponse(ex *Execution, err error) *WorkflowResponse {
	if ex == nil {
		return &WorkflowResponse{
			Status: StatusFailed,
			Error:  NewErrorDetail(err),
		}
	}
	res := &WorkflowResponse{
		ExecutionID: ex.ID,
		Status:      ex.Status,
	}
	switch ex.Status {
	case StatusFailed:
		res.Error = ex.Error
		if res.Error == nil {
			res.Error = NewErrorDetail(err)
		}
	default:
		res.Output = ex.Output.Clone()
	}
	return res
}
