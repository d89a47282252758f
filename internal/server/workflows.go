package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levyline/taxflow/pkg/api"
)

func (s *Server) listWorkflows(c *gin.Context) {
	workflows, err := s.engine.ListWorkflows(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.WorkflowsListResponse{
		Workflows: workflows,
		Count:     len(workflows),
	})
}

func (s *Server) registerWorkflow(c *gin.Context) {
	var def api.WorkflowDefinition
	if !bindJSON(c, &def) {
		return
	}

	register := s.engine.RegisterWorkflow
	if c.Query("replace") == "true" {
		register = s.engine.ReplaceWorkflow
	}
	if err := register(&def); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.WorkflowRegisteredResponse{
		Workflow: &def,
		Message:  fmt.Sprintf("workflow %s registered", def.Name),
	})
}

func (s *Server) getWorkflow(c *gin.Context) {
	name := api.WorkflowName(c.Param("name"))
	def, err := s.engine.GetWorkflow(c.Request.Context(), name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) executeWorkflow(c *gin.Context) {
	input := api.Args{}
	if !bindJSON(c, &input) {
		return
	}
	s.run(c, api.WorkflowName(c.Param("name")), input)
}

func (s *Server) execute(c *gin.Context) {
	var req api.WorkflowRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.WorkflowName == "" {
		writeWorkflowError(c,
			fmt.Errorf("%w: workflow_name is required", api.ErrInvalidRequest),
		)
		return
	}
	s.run(c, req.WorkflowName, req.Input)
}

// run executes a workflow synchronously, or in the background when the
// async query parameter is set. Failures that prevent the execution from
// starting map to error statuses; a failed execution is still a 200
// carrying its error detail. Both use the workflow response body
func (s *Server) run(c *gin.Context, name api.WorkflowName, input api.Args) {
	if input == nil {
		input = api.Args{}
	}
	ctx := c.Request.Context()

	if c.Query("async") == "true" {
		id, err := s.engine.StartWorkflow(ctx, name, input)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, api.WorkflowResponse{
			ExecutionID: id,
			Status:      api.StatusRunning,
		})
		return
	}

	ex, err := s.engine.ExecuteWorkflow(ctx, name, input)
	if ex == nil {
		writeWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewWorkflowResponse(ex, err))
}

func writeWorkflowError(c *gin.Context, err error) {
	res := api.NewWorkflowResponse(nil, err)
	status := http.StatusInternalServerError
	if res.Error != nil {
		status = statusFor(res.Error.Code)
	}
	c.JSON(status, res)
}
