package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/pkg/api"
)

const (
	definitionsDir = "../../examples/definitions"
	propertiesFile = "../../examples/properties.yaml"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("ARCHIVE_BUCKET_URL", "")

	var out, logs bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runWorkflow(t *testing.T, args ...string) (*api.WorkflowResponse, error) {
	t.Helper()
	base := []string{
		"--definitions", definitionsDir,
		"--properties", propertiesFile,
		"--log-level", "error",
		"run",
	}
	out, err := execute(t, append(base, args...)...)

	var res api.WorkflowResponse
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	return &res, err
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", definitionsDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 functions, 2 workflows")
}

func TestValidateErrors(t *testing.T) {
	_, err := execute(t, "validate", "testdata/missing")
	assert.Error(t, err)

	_, err = execute(t, "validate")
	assert.Error(t, err)
}

func TestRunAssessProperty(t *testing.T) {
	res, err := runWorkflow(t,
		"assess_property", "--input", `{"property_id":"p-100"}`,
	)
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, res.Status)
	assert.NotEmpty(t, res.ExecutionID)
	assert.Equal(t, api.Args{
		"owner":    "Rivera Holdings LLC",
		"county":   "Travis",
		"tax_year": 2024.0,
		"tax_due":  6127.5,
	}, res.Output)
}

func TestRunWithPenalty(t *testing.T) {
	res, err := runWorkflow(t, "assess_with_penalty",
		"-i", `{"property_id":"p-100","days_late":0}`,
	)
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, res.Status)
	assert.Equal(t, 0.0, res.Output["penalty"])
	assert.Equal(t, 6127.5, res.Output["total_due"])
}

func TestRunFailures(t *testing.T) {
	res, err := runWorkflow(t,
		"assess_property", "--input", `{"property_id":"p-999"}`,
	)
	assert.ErrorIs(t, err, ErrWorkflowFailed)
	assert.Equal(t, api.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, api.CodeFunctionExecution, res.Error.Code)

	res, err = runWorkflow(t, "missing_workflow")
	assert.ErrorIs(t, err, ErrWorkflowFailed)
	require.NotNil(t, res.Error)
	assert.Equal(t, api.CodeWorkflowNotFound, res.Error.Code)
}

func TestRunInvalidInput(t *testing.T) {
	_, err := execute(t, "run", "assess_property", "--input", "{not json")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
