package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/pkg/api"
)

func TestWorkflowRegistryRegister(t *testing.T) {
	reg := engine.NewWorkflowRegistry()
	def := helpers.NewSimpleWorkflow("assess", "calculate")

	require.NoError(t, reg.Register(def))
	assert.ErrorIs(t, reg.Register(def), api.ErrWorkflowExists)
	assert.Equal(t, 1, reg.Len())

	def.Description = "replaced"
	require.NoError(t, reg.Replace(def))
	got, ok := reg.Get("assess")
	require.True(t, ok)
	assert.Equal(t, "replaced", got.Description)
}

func TestWorkflowRegistryRejectsInvalid(t *testing.T) {
	reg := engine.NewWorkflowRegistry()
	assert.ErrorIs(t, reg.Register(nil), api.ErrInvalidRequest)

	def := helpers.NewWorkflow("empty")
	assert.ErrorIs(t, reg.Register(def), api.ErrWorkflowNoSteps)
	assert.Equal(t, 0, reg.Len())
}

func TestWorkflowRegistryIsolation(t *testing.T) {
	reg := engine.NewWorkflowRegistry()
	def := helpers.NewSimpleWorkflow("assess", "calculate")
	require.NoError(t, reg.Register(def))

	def.Steps[0].Function = "mutated"
	got, _ := reg.Get("assess")
	assert.Equal(t, api.FunctionName("calculate"), got.Steps[0].Function)

	got.Steps[0].Function = "mutated"
	again, _ := reg.Get("assess")
	assert.Equal(t, api.FunctionName("calculate"), again.Steps[0].Function)
}

func TestWorkflowRegistryList(t *testing.T) {
	reg := engine.NewWorkflowRegistry()
	require.NoError(t, reg.Register(helpers.NewSimpleWorkflow("b", "f")))
	require.NoError(t, reg.Register(helpers.NewSimpleWorkflow("a", "f")))

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, api.WorkflowName("a"), list[0].Name)
	assert.Equal(t, api.WorkflowName("b"), list[1].Name)

	_, ok := reg.Get("c")
	assert.False(t, ok)
}
