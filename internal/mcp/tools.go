package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/levyline/taxflow/pkg/api"
)

type getExecutionArgs struct {
	ExecutionID api.ExecutionID `json:"execution_id"`
}

const (
	ToolListFunctions   = "list_functions"
	ToolCallFunction    = "call_function"
	ToolListWorkflows   = "list_workflows"
	ToolExecuteWorkflow = "execute_workflow"
	ToolGetExecution    = "get_execution"
)

var ErrInvalidParams = errors.New("invalid params")

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(ToolListFunctions,
			mcp.WithDescription("List the functions registered in the engine"),
		),
		s.listFunctions,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolCallFunction,
			mcp.WithDescription("Call a single function with parameters"),
			mcp.WithString("function_name",
				mcp.Required(),
				mcp.Description("Name of the function to call"),
			),
			mcp.WithObject("parameters",
				mcp.Description("Arguments passed to the function"),
			),
			mcp.WithString("call_id",
				mcp.Description("Optional caller-chosen correlation id"),
			),
		),
		s.callFunction,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolListWorkflows,
			mcp.WithDescription("List the registered workflow definitions"),
		),
		s.listWorkflows,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolExecuteWorkflow,
			mcp.WithDescription(
				"Execute a workflow to completion and return its output",
			),
			mcp.WithString("workflow_name",
				mcp.Required(),
				mcp.Description("Name of the workflow to execute"),
			),
			mcp.WithObject("input",
				mcp.Description("Workflow input"),
			),
		),
		s.executeWorkflow,
	)

	s.mcp.AddTool(
		mcp.NewTool(ToolGetExecution,
			mcp.WithDescription("Fetch an execution record by id"),
			mcp.WithString("execution_id",
				mcp.Required(),
				mcp.Description("Execution id"),
			),
		),
		s.getExecution,
	)
}

func (s *Server) listFunctions(
	context.Context, mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	functions := s.engine.ListFunctions()
	return mcp.NewToolResultJSON(api.FunctionsListResponse{
		Functions: functions,
		Count:     len(functions),
	})
}

func (s *Server) callFunction(
	ctx context.Context, req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	var call api.FunctionCallRequest
	if err := bindArgs(req, &call); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if call.FunctionName == "" {
		return errInvalidParams("function_name is required"), nil
	}
	return jsonResult(s.engine.InvokeFunction(ctx, &call),
		func(res *api.FunctionCallResponse) bool {
			return res.Status == api.StatusFailed
		},
	)
}

func (s *Server) listWorkflows(
	ctx context.Context, _ mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	workflows, err := s.engine.ListWorkflows(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("failed to list workflows", err),
			nil
	}
	return mcp.NewToolResultJSON(api.WorkflowsListResponse{
		Workflows: workflows,
		Count:     len(workflows),
	})
}

func (s *Server) executeWorkflow(
	ctx context.Context, req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	var run api.WorkflowRequest
	if err := bindArgs(req, &run); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if run.WorkflowName == "" {
		return errInvalidParams("workflow_name is required"), nil
	}
	if run.Input == nil {
		run.Input = api.Args{}
	}
	return jsonResult(s.engine.RunWorkflow(ctx, &run),
		func(res *api.WorkflowResponse) bool {
			return res.Status == api.StatusFailed
		},
	)
}

func (s *Server) getExecution(
	ctx context.Context, req mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	var args getExecutionArgs
	if err := bindArgs(req, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.ExecutionID == "" {
		return errInvalidParams("execution_id is required"), nil
	}

	ex, err := s.engine.GetExecution(ctx, args.ExecutionID)
	if err != nil {
		return mcp.NewToolResultError(api.NewErrorDetail(err).Error()), nil
	}
	return mcp.NewToolResultJSON(ex)
}

// bindArgs decodes the tool arguments into dst through their JSON form
func bindArgs(req mcp.CallToolRequest, dst any) error {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

func jsonResult[T any](res T, failed func(T) bool) (*mcp.CallToolResult, error) {
	out, err := mcp.NewToolResultJSON(res)
	if err != nil {
		return nil, err
	}
	out.IsError = failed(res)
	return out, nil
}

func errInvalidParams(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(
		fmt.Sprintf("%s: %s", ErrInvalidParams, message),
	)
}
