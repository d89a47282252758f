// Package mcp exposes the engine as Model Context Protocol tools
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/levyline/taxflow"
	"github.com/levyline/taxflow/internal/engine"
)

// Server serves engine tools to MCP clients
type Server struct {
	engine *engine.Engine
	mcp    *server.MCPServer
}

// NewServer constructs an MCP server backed by eng
func NewServer(eng *engine.Engine) *Server {
	s := &Server{
		engine: eng,
		mcp: server.NewMCPServer(
			taxflow.Name, taxflow.Version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve runs the server over the provided streams until ctx is done or
// the input is closed
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(
		slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
	)
	return stdio.Listen(ctx, in, out)
}
