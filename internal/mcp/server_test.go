package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levyline/taxflow/internal/assert/helpers"
	"github.com/levyline/taxflow/internal/functions"
	taxmcp "github.com/levyline/taxflow/internal/mcp"
	"github.com/levyline/taxflow/pkg/api"
)

type testMCPEnv struct {
	*helpers.TestEngineEnv
	Server *taxmcp.Server
}

func testMCP(t *testing.T) *testMCPEnv {
	t.Helper()
	env := helpers.NewTestEngine(t)
	functions.RegisterBuiltins(env.Engine, nil)

	step := helpers.NewStep("calc", functions.CalculateName)
	step = helpers.WithParam(step, "operation", api.Literal("add"))
	step = helpers.WithParam(step, "values", api.InputRef("values"))
	step = helpers.WithOutput(step, "sum", "")
	require.NoError(t, env.Engine.RegisterWorkflow(
		helpers.NewWorkflow("total", step),
	))

	return &testMCPEnv{
		TestEngineEnv: env,
		Server:        taxmcp.NewServer(env.Engine),
	}
}

func (e *testMCPEnv) call(
	t *testing.T, name string, args map[string]any,
) *mcp.CallToolResult {
	t.Helper()
	tool := e.Server.MCPServer().GetTool(name)
	require.NotNil(t, tool)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decodeResult[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func TestToolsRegistered(t *testing.T) {
	env := testMCP(t)
	defer env.Cleanup()

	tools := env.Server.MCPServer().ListTools()
	for _, name := range []string{
		taxmcp.ToolListFunctions,
		taxmcp.ToolCallFunction,
		taxmcp.ToolListWorkflows,
		taxmcp.ToolExecuteWorkflow,
		taxmcp.ToolGetExecution,
	} {
		assert.Contains(t, tools, name)
	}
}

func TestListFunctionsTool(t *testing.T) {
	env := testMCP(t)
	defer env.Cleanup()

	res := env.call(t, taxmcp.ToolListFunctions, nil)
	assert.False(t, res.IsError)
	list := decodeResult[api.FunctionsListResponse](t, res)
	assert.Equal(t, 2, list.Count)
}

func TestCallFunctionTool(t *testing.T) {
	env := testMCP(t)
	defer env.Cleanup()

	res := env.call(t, taxmcp.ToolCallFunction, map[string]any{
		"function_name": "calculate",
		"parameters": map[string]any{
			"operation": "add",
			"values":    []any{2, 3},
		},
		"call_id": "mcp-1",
	})
	assert.False(t, res.IsError)
	out := decodeResult[api.FunctionCallResponse](t, res)
	assert.Equal(t, api.CallID("mcp-1"), out.CallID)
	assert.Equal(t, 5.0, out.Result)

	res = env.call(t, taxmcp.ToolCallFunction, map[string]any{
		"function_name": "missing",
	})
	assert.True(t, res.IsError)
	out = decodeResult[api.FunctionCallResponse](t, res)
	assert.Equal(t, api.CodeFunctionNotFound, out.Error.Code)

	res = env.call(t, taxmcp.ToolCallFunction, map[string]any{})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "function_name is required")

	res = env.call(t, taxmcp.ToolCallFunction, map[string]any{
		"function_name": 12,
	})
	assert.True(t, res.IsError)
}

func TestWorkflowTools(t *testing.T) {
	env := testMCP(t)
	defer env.Cleanup()

	res := env.call(t, taxmcp.ToolListWorkflows, nil)
	list := decodeResult[api.WorkflowsListResponse](t, res)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, api.WorkflowName("total"), list.Workflows[0].Name)

	res = env.call(t, taxmcp.ToolExecuteWorkflow, map[string]any{
		"workflow_name": "total",
		"input":         map[string]any{"values": []any{2, 3}},
	})
	assert.False(t, res.IsError)
	run := decodeResult[api.WorkflowResponse](t, res)
	assert.Equal(t, api.StatusCompleted, run.Status)
	assert.Equal(t, api.Args{"sum": 5.0}, run.Output)

	res = env.call(t, taxmcp.ToolGetExecution, map[string]any{
		"execution_id": string(run.ExecutionID),
	})
	assert.False(t, res.IsError)
	ex := decodeResult[api.Execution](t, res)
	assert.Equal(t, api.StatusCompleted, ex.Status)

	res = env.call(t, taxmcp.ToolExecuteWorkflow, map[string]any{
		"workflow_name": "missing",
	})
	assert.True(t, res.IsError)
	run = decodeResult[api.WorkflowResponse](t, res)
	assert.Equal(t, api.CodeWorkflowNotFound, run.Error.Code)
}

func TestGetExecutionToolErrors(t *testing.T) {
	env := testMCP(t)
	defer env.Cleanup()

	res := env.call(t, taxmcp.ToolGetExecution, map[string]any{})
	assert.True(t, res.IsError)

	res = env.call(t, taxmcp.ToolGetExecution, map[string]any{
		"execution_id": "nope",
	})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), string(api.CodeExecutionNotFound))
}
