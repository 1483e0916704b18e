package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// AddCodexIndexStatsTool registers the codex_index_stats tool.
func AddCodexIndexStatsTool(s *server.MCPServer, status StatusFunc) {
	tool := mcp.NewTool(
		"codex_index_stats",
		mcp.WithDescription("Report index document counts per resource type, cell counts per side, pending ledger changes and when the index was last rebuilt."),
	)

	s.AddTool(tool, createCodexIndexStatsHandler(status))
}

func createCodexIndexStatsHandler(status StatusFunc) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := status(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to collect index status: %w", err)
		}
		return jsonResult(st)
	}
}
