package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	glog "github.com/gin-contrib/slog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/levyline/taxflow/internal/engine"
	"github.com/levyline/taxflow/internal/events"
	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/util"
)

type (
	// Server implements the HTTP API server for the engine
	Server struct {
		engine   *engine.Engine
		eventHub *events.Hub
		builder  FunctionBuilder
		gatherer prometheus.Gatherer
		sockets  util.Set[*Client]
		mu       sync.Mutex
	}

	// FunctionBuilder turns a function definition into a callable function
	FunctionBuilder interface {
		Build(def *api.FunctionDefinition) (engine.Invocable, error)
	}
)

var ErrInvalidJSON = errors.New("invalid JSON")

// NewServer creates a new HTTP API server. The builder enables function
// registration and the gatherer enables the metrics endpoint; either may
// be nil
func NewServer(
	eng *engine.Engine, hub *events.Hub, builder FunctionBuilder,
	gatherer prometheus.Gatherer,
) *Server {
	return &Server{
		engine:   eng,
		eventHub: hub,
		builder:  builder,
		gatherer: gatherer,
		sockets:  util.Set[*Client]{},
	}
}

// SetupRoutes configures and returns the HTTP router with all API endpoints
func (s *Server) SetupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(glog.SetLogger(
		glog.WithLogger(func(c *gin.Context, l *slog.Logger) *slog.Logger {
			return slog.Default()
		}),
	))

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set(
			"Access-Control-Allow-Methods", "GET, POST, OPTIONS",
		)
		c.Writer.Header().Set(
			"Access-Control-Allow-Headers",
			"Content-Type, Authorization",
		)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}),
		))
	}

	eng := router.Group("/engine")
	{
		// Function endpoints
		eng.GET("/function", s.listFunctions)
		eng.POST("/function", s.registerFunction)
		eng.POST("/function/call", s.callFunction)

		// Workflow endpoints
		eng.GET("/workflow", s.listWorkflows)
		eng.POST("/workflow", s.registerWorkflow)
		eng.GET("/workflow/:name", s.getWorkflow)
		eng.POST("/workflow/:name/execute", s.executeWorkflow)
		eng.POST("/execute", s.execute)

		// Execution endpoints
		eng.GET("/execution/:id", s.getExecution)

		// WebSocket
		eng.GET("/ws", s.handleWebSocket)
	}

	return router
}

func (s *Server) registerWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Add(c)
}

func (s *Server) unregisterWebSocket(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sockets.Remove(c)
}

// CloseWebSockets closes all active WebSocket connections
func (s *Server) CloseWebSockets() {
	s.mu.Lock()
	conns := make([]*Client, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// bindJSON decodes the request body into dst. An empty body leaves dst
// untouched
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	c.JSON(http.StatusBadRequest, api.ErrorResponse{
		Error:  fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
		Code:   api.CodeInvalidRequest,
		Status: http.StatusBadRequest,
	})
	return false
}

func writeError(c *gin.Context, err error) {
	code := api.CodeOf(err)
	status := statusFor(code)
	c.JSON(status, api.ErrorResponse{
		Error:  err.Error(),
		Code:   code,
		Status: status,
	})
}

func statusFor(code api.ErrorCode) int {
	switch code {
	case api.CodeInvalidRequest:
		return http.StatusBadRequest
	case api.CodeFunctionNotFound, api.CodeWorkflowNotFound,
		api.CodeExecutionNotFound:
		return http.StatusNotFound
	case api.CodeConflict:
		return http.StatusConflict
	case api.CodeExecutionTimeout:
		return http.StatusGatewayTimeout
	case api.CodeExecutionCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
