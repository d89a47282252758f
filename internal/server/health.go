package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levyline/taxflow"
	"github.com/levyline/taxflow/pkg/api"
)

func (s *Server) handleHealth(c *gin.Context) {
	functions, workflows := s.engine.Stats()
	c.JSON(http.StatusOK, api.HealthResponse{
		Service:   taxflow.Name,
		Version:   taxflow.Version,
		Status:    "healthy",
		Functions: functions,
		Workflows: workflows,
	})
}
