package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/pkg/api"
)

type describedFunc struct {
	helpers.Recorder
}

func (d *describedFunc) Info() api.FunctionInfo {
	return api.FunctionInfo{
		Name:        "ignored",
		Description: "described",
		Params:      []api.Name{"a"},
	}
}

func TestRegistryInvokeOnce(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	rec := helpers.NewRecorder(42)
	reg.Register("answer", rec)

	params := api.Args{"a": 1, "b": "two"}
	res, err := reg.Invoke(context.Background(), "answer", params)
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 1, rec.Count())
	assert.Equal(t, []api.Args{params}, rec.Calls())
}

func TestRegistryNotFound(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	_, err := reg.Invoke(context.Background(), "missing", api.Args{})
	assert.ErrorIs(t, err, api.ErrFunctionNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistryWrapsErrors(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	reg.RegisterFunc("fails",
		func(context.Context, api.Args) (any, error) {
			return nil, errors.New("valuation service down")
		},
	)
	reg.RegisterFunc("panics",
		func(context.Context, api.Args) (any, error) {
			panic("nil property")
		},
	)

	_, err := reg.Invoke(context.Background(), "fails", nil)
	assert.ErrorIs(t, err, api.ErrFunctionExecution)
	assert.Contains(t, err.Error(), "valuation service down")

	_, err = reg.Invoke(context.Background(), "panics", nil)
	assert.ErrorIs(t, err, api.ErrFunctionExecution)
	assert.Contains(t, err.Error(), "nil property")
}

func TestRegistryReplaceAndUnregister(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	reg.Register("f", helpers.NewRecorder(1))
	reg.Register("f", helpers.NewRecorder(2))
	assert.Equal(t, 1, reg.Len())

	res, err := reg.Invoke(context.Background(), "f", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res)

	assert.True(t, reg.Unregister("f"))
	assert.False(t, reg.Unregister("f"))
	_, ok := reg.Lookup("f")
	assert.False(t, ok)
}

func TestRegistryList(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	reg.Register("zeta", helpers.NewRecorder(nil))
	reg.Register("alpha", &describedFunc{})

	assert.Equal(t, []api.FunctionName{"alpha", "zeta"}, reg.Names())

	infos := reg.List()
	require.Len(t, infos, 2)
	assert.Equal(t, api.FunctionName("alpha"), infos[0].Name)
	assert.Equal(t, "described", infos[0].Description)
	assert.Equal(t, api.FunctionInfo{Name: "zeta"}, infos[1])
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := engine.NewFunctionRegistry()
	rec := helpers.NewRecorder("ok")
	reg.Register("f", rec)

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			_, err := reg.Invoke(context.Background(), "f", api.Args{})
			assert.NoError(t, err)
		})
		wg.Go(func() {
			reg.Register("other", helpers.NewRecorder(nil))
			_ = reg.List()
		})
	}
	wg.Wait()
	assert.Equal(t, 50, rec.Count())
}
