package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/levyline/taxflow/pkg/api"
)

func (s *Server) getExecution(c *gin.Context) {
	id := api.ExecutionID(c.Param("id"))
	ex, err := s.engine.GetExecution(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}
