package functions_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/internal/client"
	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/internal/functions"
	"github.com/levyline/taxflow/internal/script"
	"github.com/levyline/taxflow/pkg/api"
)

func newBuilder() *functions.Builder {
	return functions.NewBuilder(
		script.NewLuaEnv(), script.NewAleEnv(),
		client.NewHTTPClient(5*time.Second),
	)
}

func TestBuildScript(t *testing.T) {
	fn, err := newBuilder().Build(&api.FunctionDefinition{
		Name:        "homestead_cap",
		Description: "Caps annual assessed value growth at 10%",
		Type:        api.FunctionTypeScript,
		Params:      []api.Name{"previous", "current"},
		Script: &api.ScriptConfig{
			Language: api.ScriptLangLua,
			Script:   "return math.min(current, previous * 1.1)",
		},
	})
	require.NoError(t, err)

	res, err := fn.Invoke(context.Background(), api.Args{
		"previous": 300000, "current": 360000,
	})
	require.NoError(t, err)
	assert.InDelta(t, 330000.0, res, 0.001)

	info := fn.(engine.Describer).Info()
	assert.Equal(t, api.FunctionName("homestead_cap"), info.Name)
	assert.Equal(t, []api.Name{"previous", "current"}, info.Params)
}

func TestBuildAleScript(t *testing.T) {
	b := newBuilder()
	fn, err := b.Build(&api.FunctionDefinition{
		Name:   "total_due",
		Type:   api.FunctionTypeScript,
		Params: []api.Name{"tax", "penalty"},
		Script: &api.ScriptConfig{
			Language: "Ale",
			Script:   "{:total (+ tax penalty)}",
		},
	})
	require.NoError(t, err)

	res, err := fn.Invoke(context.Background(), api.Args{
		"tax": 6127.5, "penalty": 183.83,
	})
	require.NoError(t, err)
	total := res.(map[string]any)["total"]
	assert.InDelta(t, 6311.33, total, 0.001)

	_, err = b.Build(&api.FunctionDefinition{
		Name: "broken",
		Type: api.FunctionTypeScript,
		Script: &api.ScriptConfig{
			Language: api.ScriptLangAle,
			Script:   "(+ 1",
		},
	})
	assert.ErrorIs(t, err, api.ErrInvalidRequest)
	assert.ErrorIs(t, err, script.ErrAleCompile)
}

func TestBuildHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var req api.FunctionInvocation
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(api.FunctionResult{
				Success: true,
				Result:  req.Arguments["county"],
			})
		},
	))
	defer server.Close()

	fn, err := newBuilder().Build(&api.FunctionDefinition{
		Name: "echo_county",
		Type: api.FunctionTypeHTTP,
		HTTP: &api.HTTPConfig{Endpoint: server.URL},
	})
	require.NoError(t, err)

	res, err := fn.Invoke(context.Background(), api.Args{"county": "Travis"})
	require.NoError(t, err)
	assert.Equal(t, "Travis", res)
}

func TestBuildErrors(t *testing.T) {
	b := newBuilder()

	_, err := b.Build(&api.FunctionDefinition{Name: "x", Type: "grpc"})
	assert.ErrorIs(t, err, api.ErrInvalidFunctionType)

	_, err = b.Build(&api.FunctionDefinition{
		Name: "broken",
		Type: api.FunctionTypeScript,
		Script: &api.ScriptConfig{
			Script: "return (",
		},
	})
	assert.ErrorIs(t, err, api.ErrInvalidRequest)
	assert.ErrorIs(t, err, script.ErrLuaCompile)

	_, err = b.Build(&api.FunctionDefinition{
		Name: "remote",
		Type: api.FunctionTypeHTTP,
	})
	assert.ErrorIs(t, err, api.ErrHTTPRequired)
}

func TestRegisterBuiltins(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()

	store, err := functions.LoadPropertyFixtures(fixturePath)
	require.NoError(t, err)
	functions.RegisterBuiltins(env.Engine, store)

	infos := env.Engine.ListFunctions()
	names := make([]api.FunctionName, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	assert.Equal(t, []api.FunctionName{
		"calculate", "compute_tax", "get_property", "latest_valuation",
	}, names)
	assert.NotEmpty(t, infos[0].Description)
}

func TestRegisterBuiltinsWithoutProperties(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()

	functions.RegisterBuiltins(env.Engine, nil)
	fns, _ := env.Engine.Stats()
	assert.Equal(t, 2, fns)
}

func TestAssessmentWorkflow(t *testing.T) {
	env := helpers.NewTestEngine(t)
	defer env.Cleanup()

	store, err := functions.LoadPropertyFixtures(fixturePath)
	require.NoError(t, err)
	functions.RegisterBuiltins(env.Engine, store)

	def := &api.WorkflowDefinition{
		Name: "assess_property",
		Steps: []*api.StepSpec{
			{
				Name:     "property",
				Function: functions.GetPropertyName,
				Parameters: api.Params{
					"property_id": api.InputRef("property_id"),
				},
				Output: map[api.Name]string{"owner": "owner"},
			},
			{
				Name:     "valuation",
				Function: functions.LatestValuationName,
				Parameters: api.Params{
					"property_id": api.StepRef("property", "id"),
				},
				Output: map[api.Name]string{"tax_year": "year"},
			},
			{
				Name:     "tax",
				Function: functions.ComputeTaxName,
				Parameters: api.Params{
					"assessed_value": api.StepRef("valuation", "assessed_value"),
					"mill_rate":      api.StepRef("property", "mill_rate"),
					"exemptions":     api.StepRef("property", "exemptions"),
				},
				Output: map[api.Name]string{"tax_due": "amount"},
			},
		},
	}
	require.NoError(t, env.Engine.RegisterWorkflow(def))

	ex, err := env.Engine.ExecuteWorkflow(context.Background(),
		"assess_property", api.Args{"property_id": "p-100"},
	)
	require.NoError(t, err)
	assert.Equal(t, api.StatusCompleted, ex.Status)
	assert.Equal(t, api.Args{
		"owner":    "Rivera Holdings LLC",
		"tax_year": 2024.0,
		"tax_due":  6127.5,
	}, ex.Output)
}
