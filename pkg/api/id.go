package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type (
	// ExecutionID is a unique identifier for a workflow execution
	ExecutionID string

	// WorkflowName uniquely identifies a workflow definition
	WorkflowName string

	// FunctionName uniquely identifies a registered function
	FunctionName string

	// StepName identifies a step within a workflow
	StepName string

	// CallID correlates a single function call with its response
	CallID string
)

// InvalidNameChars matches characters not permitted in function, workflow,
// and step names. Valid characters are: letters, digits, underscore, dot,
// hyphen
var InvalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-]`)

// NewExecutionID generates a new random execution identifier
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.NewString())
}

// NewCallID generates a new random call identifier
func NewCallID() CallID {
	return CallID(uuid.NewString())
}

// ValidName reports whether a name is non-empty and contains only permitted
// characters
func ValidName[T ~string](name T) bool {
	s := string(name)
	return strings.TrimSpace(s) != "" && !InvalidNameChars.MatchString(s)
}
