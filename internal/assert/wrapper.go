package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/config"
	"github.com/levyline/taxflow/pkg/api"
)

// Wrapper wraps testify assertions with engine-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *require.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus engine-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    require.New(t),
	}
}

// WorkflowValid asserts that a workflow definition passes validation
func (w *Wrapper) WorkflowValid(def *api.WorkflowDefinition) {
	w.Helper()
	w.NoError(def.Validate())
}

// WorkflowInvalid asserts that a workflow definition fails validation with
// the expected error
func (w *Wrapper) WorkflowInvalid(def *api.WorkflowDefinition, target error) {
	w.Helper()
	err := def.Validate()
	w.ErrorIs(err, target)
}

// ExecutionCompleted asserts that an execution finished successfully with
// the expected output
func (w *Wrapper) ExecutionCompleted(ex *api.Execution, output api.Args) {
	w.Helper()
	w.Require.NotNil(ex)
	w.Equal(api.StatusCompleted, ex.Status)
	w.Nil(ex.Error)
	w.Nil(ex.CurrentStep)
	w.NotNil(ex.CompletedAt)
	if output != nil {
		w.Equal(output, ex.Output)
	}
}

// ExecutionFailed asserts that an execution failed with the expected error
// code and was left in a fully populated terminal state
func (w *Wrapper) ExecutionFailed(ex *api.Execution, code api.ErrorCode) {
	w.Helper()
	w.Require.NotNil(ex)
	w.Equal(api.StatusFailed, ex.Status)
	w.Nil(ex.CurrentStep)
	w.NotNil(ex.CompletedAt)
	w.Require.NotNil(ex.Error)
	w.Equal(code, ex.Error.Code)
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= config.MaxTCPPort)
	w.True(cfg.StepTimeout > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if err != nil && contains != "" {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
