// Package mcp exposes codex search over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/project-codex/internal/branching"
)

// ServerName and ServerVersion identify the server to MCP clients.
const (
	ServerName    = "codex-mcp"
	ServerVersion = "1.0.0"
)

// ServerConfig wires the searchers behind the MCP tools.
type ServerConfig struct {
	Search         CellSearcher
	Branch         BranchSearcher
	BranchDefaults branching.Options
	Status         StatusFunc
	Logger         zerolog.Logger
}

// Server is an MCP server with the codex tools registered.
type Server struct {
	mcp    *server.MCPServer
	logger zerolog.Logger
}

// NewServer registers a tool for each non-nil searcher in cfg.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Search == nil && cfg.Branch == nil && cfg.Status == nil {
		return nil, fmt.Errorf("mcp server needs at least one tool backend")
	}

	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(true))

	if cfg.Search != nil {
		AddCodexSearchTool(s, cfg.Search)
	}
	if cfg.Branch != nil {
		AddCodexBranchSearchTool(s, cfg.Branch, cfg.BranchDefaults)
	}
	if cfg.Status != nil {
		AddCodexIndexStatsTool(s, cfg.Status)
	}

	return &Server{mcp: s, logger: cfg.Logger}, nil
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve speaks MCP over stdin/stdout until ctx is cancelled or the
// transport fails. Logs must not go to stdout while serving.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("server", ServerName).Msg("starting MCP server on stdio")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("mcp server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("stopping MCP server")
		return nil
	}
}
