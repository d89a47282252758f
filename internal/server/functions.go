package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/pkg/api"
)

func (s *Server) listFunctions(c *gin.Context) {
	functions := s.engine.ListFunctions()
	c.JSON(http.StatusOK, api.FunctionsListResponse{
		Functions: functions,
		Count:     len(functions),
	})
}

func (s *Server) registerFunction(c *gin.Context) {
	if s.builder == nil {
		c.JSON(http.StatusNotImplemented, api.ErrorResponse{
			Error:  "function registration is not enabled",
			Status: http.StatusNotImplemented,
		})
		return
	}

	var def api.FunctionDefinition
	if !bindJSON(c, &def) {
		return
	}

	fn, err := s.builder.Build(&def)
	if err != nil {
		writeError(c, err)
		return
	}
	s.engine.RegisterFunction(def.Name, fn)

	info := def.Info()
	if d, ok := fn.(engine.Describer); ok {
		info = d.Info()
	}
	c.JSON(http.StatusCreated, api.FunctionRegisteredResponse{
		Function: info,
		Message:  fmt.Sprintf("function %s registered", def.Name),
	})
}

func (s *Server) callFunction(c *gin.Context) {
	var req api.FunctionCallRequest
	if !bindJSON(c, &req) {
		return
	}

	res := s.engine.InvokeFunction(c.Request.Context(), &req)
	status := http.StatusOK
	if res.Error != nil {
		switch res.Error.Code {
		case api.CodeInvalidRequest, api.CodeFunctionNotFound:
			status = statusFor(res.Error.Code)
		}
	}
	c.JSON(status, res)
}
