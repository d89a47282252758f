package api

import (
	"context"
	"errors"
)

type (
	// ErrorDetail is the structured error returned to callers and captured
	// in failed execution records
	ErrorDetail struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
		Step    StepName  `json:"step,omitempty"`
	}

	// ErrorCode is a stable, machine-readable error classification
	ErrorCode string
)

const (
	CodeFunctionNotFound  ErrorCode = "FUNCTION_NOT_FOUND"
	CodeFunctionExecution ErrorCode = "FUNCTION_EXECUTION_ERROR"
	CodeWorkflowNotFound  ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeWorkflowExecution ErrorCode = "WORKFLOW_EXECUTION_ERROR"
	CodeExecutionNotFound ErrorCode = "EXECUTION_NOT_FOUND"
	CodeExecutionTimeout  ErrorCode = "EXECUTION_TIMEOUT"
	CodeExecutionCanceled ErrorCode = "EXECUTION_CANCELED"
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrFunctionNotFound  = errors.New("function not found")
	ErrFunctionExecution = errors.New("function execution failed")
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrWorkflowExecution = errors.New("workflow execution failed")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrWorkflowExists    = errors.New("workflow already registered")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrStepTimeout       = errors.New("step timed out")
)

var validationErrors = []error{
	ErrInvalidRequest,
	ErrWorkflowNameInvalid,
	ErrWorkflowNoSteps,
	ErrStepNameInvalid,
	ErrStepNameDuplicate,
	ErrStepFunctionEmpty,
	ErrUnknownStepRef,
	ErrOutputCollision,
	ErrHandlerUnknownStep,
	ErrInvalidAction,
	ErrNextTargetRequired,
	ErrNextTargetInvalid,
	ErrRetryPolicyRequired,
	ErrInvalidRetryPolicy,
	ErrInvalidBackoffType,
	ErrNegativeTimeout,
	ErrInvalidParamKind,
	ErrStepRefEmpty,
	ErrFunctionNameInvalid,
	ErrInvalidFunctionType,
	ErrScriptRequired,
	ErrHTTPRequired,
}

// CodeOf classifies an error. The most specific cause wins: a function
// failure wrapped in a workflow failure reports the function code
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return CodeExecutionTimeout
	case errors.Is(err, context.Canceled):
		return CodeExecutionCanceled
	case errors.Is(err, ErrFunctionNotFound):
		return CodeFunctionNotFound
	case errors.Is(err, ErrFunctionExecution):
		return CodeFunctionExecution
	case errors.Is(err, ErrWorkflowNotFound):
		return CodeWorkflowNotFound
	case errors.Is(err, ErrExecutionNotFound):
		return CodeExecutionNotFound
	case errors.Is(err, ErrWorkflowExists):
		return CodeConflict
	case isValidationError(err):
		return CodeInvalidRequest
	case errors.Is(err, ErrWorkflowExecution):
		return CodeWorkflowExecution
	default:
		return CodeInternal
	}
}

// NewErrorDetail converts an error into its caller-facing form
func NewErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	return &ErrorDetail{
		Code:    CodeOf(err),
		Message: err.Error(),
	}
}

// Error implements error so a captured detail can be rethrown
func (d *ErrorDetail) Error() string {
	return string(d.Code) + ": " + d.Message
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
