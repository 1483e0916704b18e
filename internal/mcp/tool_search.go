package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/project-codex/internal/model"
	"github.com/mvp-joe/project-codex/internal/search"
)

// AddCodexSearchTool registers the codex_search tool with an MCP server.
func AddCodexSearchTool(s *server.MCPServer, searcher CellSearcher) {
	tool := mcp.NewTool(
		"codex_search",
		mcp.WithDescription("Fuzzy search over indexed cells. 'fuzzy' ranks exact, prefix, full-text and typo-tolerant matches; 'similarity' ranks by string similarity; 'phonetic' finds words that sound alike (e.g. names spelled differently)."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words or phrase to look for (e.g. 'in the begining', 'Jesus wept')")),
		mcp.WithString("mode",
			mcp.Enum(ModeFuzzy, ModeSimilarity, ModePhonetic),
			mcp.Description("Search mode (default: fuzzy)")),
		mcp.WithString("resource_type",
			mcp.Description("Restrict to one resource type: translation_pair, source_text, zero_draft, dynamic_table, verse_ref")),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (1-%d, default: %d)", maxLimit, search.DefaultLimit))),
		mcp.WithNumber("fuzziness",
			mcp.Description("Maximum edit distance for fuzzy mode; overrides the configured default")),
		mcp.WithNumber("min_similarity",
			mcp.Description(fmt.Sprintf("Minimum similarity in [0,1] for similarity mode (default: %g)", search.DefaultMinSimilarity))),
	)

	s.AddTool(tool, createCodexSearchHandler(searcher))
}

func createCodexSearchHandler(searcher CellSearcher) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var req SearchRequest
		if err := bindArguments(request, &req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if strings.TrimSpace(req.Query) == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		opts := search.Options{Limit: clampLimit(req.Limit), Fuzziness: req.Fuzziness}
		if req.ResourceType != "" {
			rt, err := model.ParseResourceType(req.ResourceType)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			opts.ResourceType = rt
		}

		mode := strings.ToLower(req.Mode)
		if mode == "" {
			mode = ModeFuzzy
		}

		var results []search.Result
		var err error
		switch mode {
		case ModeFuzzy:
			results, err = searcher.Search(ctx, req.Query, opts)
		case ModeSimilarity:
			minSim := req.MinSimilarity
			if minSim <= 0 {
				minSim = search.DefaultMinSimilarity
			}
			results, err = searcher.SimilaritySearch(ctx, req.Query, opts, minSim)
		case ModePhonetic:
			results, err = searcher.PhoneticSearch(ctx, req.Query, opts)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown mode '%s' (valid: fuzzy, similarity, phonetic)", req.Mode)), nil
		}
		if err != nil {
			return nil, fmt.Errorf("search failed: %w", err)
		}
		if results == nil {
			results = []search.Result{}
		}

		return jsonResult(&SearchResponse{Query: req.Query, Mode: mode, Results: results, Total: len(results)})
	}
}

// clampLimit applies the default and bounds a requested result count.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return search.DefaultLimit
	case limit > maxLimit:
		return maxLimit
	}
	return limit
}

// jsonResult returns v marshaled as a text result (mcp-go convention).
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
