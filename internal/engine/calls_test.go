package engine_test

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/levyline/taxflow/internal/assert"
	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/pkg/api"
)

func TestInvokeFunction(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()
	as := assert.New(t)

	rec := helpers.NewRecorder(map[string]any{"amount": 6127.5})
	env.Engine.RegisterFunction("compute", rec)

	params := api.Args{"assessed_value": 310000, "mill_rate": 21.5}
	res := env.Engine.InvokeFunction(context.Background(),
		&api.FunctionCallRequest{
			FunctionName: "compute",
			Parameters:   params,
			CallID:       "call-1",
		},
	)

	as.Equal(api.StatusCompleted, res.Status)
	as.Equal(api.CallID("call-1"), res.CallID)
	as.Equal(map[string]any{"amount": 6127.5}, res.Result)
	as.Nil(res.Error)
	as.False(res.Timestamp.IsZero())
	as.Equal([]api.Args{params}, rec.Calls())
}

func TestInvokeFunctionGeneratesCallID(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()
	as := assert.New(t)

	env.Engine.RegisterFunction("noop", helpers.NewRecorder(nil))

	first := env.Engine.InvokeFunction(context.Background(),
		&api.FunctionCallRequest{FunctionName: "noop"},
	)
	second := env.Engine.InvokeFunction(context.Background(),
		&api.FunctionCallRequest{FunctionName: "noop"},
	)
	as.NotEmpty(first.CallID)
	as.NotEqual(first.CallID, second.CallID)
	as.Equal(api.StatusCompleted, first.Status)
}

func TestInvokeFunctionErrors(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()

	env.Engine.RegisterFunction("broken", helpers.NewFailingRecorder())

	tests := []struct {
		name string
		fn   api.FunctionName
		code api.ErrorCode
	}{
		{"missing name", "", api.CodeInvalidRequest},
		{"unknown function", "missing", api.CodeFunctionNotFound},
		{"function error", "broken", api.CodeFunctionExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := assert.New(t)
			res := env.Engine.InvokeFunction(context.Background(),
				&api.FunctionCallRequest{FunctionName: tt.fn},
			)
			as.Equal(api.StatusFailed, res.Status)
			as.Require.NotNil(res.Error)
			as.Equal(tt.code, res.Error.Code)
			as.Nil(res.Result)
			as.NotEmpty(res.CallID)
		})
	}
}

func TestInvokeFunctionTimeout(t *testing.T) {
	cfg := helpers.NewTestConfig()
	cfg.StepTimeout = 20
	env := helpers.NewTestEngineWithConfig(t, cfg)
	defer env.Cleanup()
	as := assert.New(t)

	env.Engine.RegisterFunc("slow", helpers.Block())

	res := env.Engine.InvokeFunction(context.Background(),
		&api.FunctionCallRequest{FunctionName: "slow"},
	)
	as.Equal(api.StatusFailed, res.Status)
	as.Require.NotNil(res.Error)
	as.Equal(api.CodeFunctionExecution, res.Error.Code)
	as.Contains(res.Error.Message, api.ErrStepTimeout.Error())
}

func TestInvokeFunctionMetrics(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()
	as := assert.New(t)

	env.Engine.RegisterFunction("ok", helpers.NewRecorder(1))
	for range 2 {
		env.Engine.InvokeFunction(context.Background(),
			&api.FunctionCallRequest{FunctionName: "ok"},
		)
	}
	env.Engine.InvokeFunction(context.Background(),
		&api.FunctionCallRequest{FunctionName: "missing"},
	)

	as.NoError(testutil.GatherAndCompare(env.Registry, strings.NewReader(`
# HELP taxflow_function_calls_total Total number of direct function calls
# TYPE taxflow_function_calls_total counter
taxflow_function_calls_total{function="missing",status="failed"} 1
taxflow_function_calls_total{function="ok",status="completed"} 2
`), "taxflow_function_calls_total"))
}
