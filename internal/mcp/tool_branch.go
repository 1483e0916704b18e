package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/project-codex/internal/branching"
)

// AddCodexBranchSearchTool registers the codex_branch_search tool.
// defaults supplies the configured coverage weight and restart budget.
func AddCodexBranchSearchTool(s *server.MCPServer, searcher BranchSearcher, defaults branching.Options) {
	tool := mcp.NewTool(
		"codex_branch_search",
		mcp.WithDescription("Find translation pairs that together cover a long or multi-clause query. Each pick removes the words it covers and the remainder is searched again, so results span different parts of the query."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Passage or phrase to cover (e.g. 'the light shines in the darkness and the darkness has not overcome it')")),
		mcp.WithNumber("limit",
			mcp.Description("Number of translation pairs to return (default: 5)")),
		mcp.WithNumber("max_restarts",
			mcp.Description("How many times to restart from the full query when branches run out; negative disables restarts")),
	)

	s.AddTool(tool, createCodexBranchSearchHandler(searcher, defaults))
}

func createCodexBranchSearchHandler(searcher BranchSearcher, defaults branching.Options) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req BranchSearchRequest
		if err := bindArguments(request, &req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if strings.TrimSpace(req.Query) == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		opts := defaults
		if req.Limit > 0 {
			opts.Limit = min(req.Limit, maxLimit)
		}
		if req.MaxRestarts != nil {
			opts.MaxRestarts = *req.MaxRestarts
		}

		matches, err := searcher.Search(ctx, req.Query, opts)
		if err != nil {
			return nil, fmt.Errorf("branch search failed: %w", err)
		}
		if matches == nil {
			matches = []branching.Match{}
		}

		return jsonResult(&BranchSearchResponse{Query: req.Query, Matches: matches, Total: len(matches)})
	}
}
