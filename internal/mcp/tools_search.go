package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type toolSearchInput struct {
	Query    string `json:"query" jsonschema:"Regex or plain text matched against tool names, descriptions and keywords"`
	Category string `json:"category,omitempty" jsonschema:"Restrict to a category: capture, entities, model, search"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default 5)"`
}

type toolMatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Score       int    `json:"score"`
	MatchReason string `json:"match_reason"`
}

type toolSearchOutput struct {
	Query      string      `json:"query"`
	Results    []toolMatch `json:"results"`
	Count      int         `json:"count"`
	TotalTools int         `json:"total_tools"`
}

func (s *Server) registerSearchTools() {
	addTool(s, &mcp.Tool{
		Name:        "tool_search",
		Description: "Search the available voxnotes tools by name, description or keyword.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, CategorySearch, []string{"discover", "help"},
		func(_ context.Context, _ *mcp.CallToolRequest, in toolSearchInput) (*mcp.CallToolResult, toolSearchOutput, error) {
			if in.Query == "" {
				return nil, toolSearchOutput{}, validationError("query is required")
			}
			limit := in.Limit
			if limit <= 0 {
				limit = 5
			}

			var found []*SearchResult
			if in.Category != "" {
				found = s.toolRegistry.SearchByCategory(in.Query, ToolCategory(in.Category))
			} else {
				found = s.toolRegistry.Search(in.Query)
			}
			if len(found) > limit {
				found = found[:limit]
			}

			out := toolSearchOutput{Query: in.Query, Results: make([]toolMatch, 0, len(found)), TotalTools: s.toolRegistry.Count()}
			names := make([]string, 0, len(found))
			for _, r := range found {
				out.Results = append(out.Results, toolMatch{
					Name:        r.Tool.Name,
					Description: r.Tool.Description,
					Category:    string(r.Tool.Category),
					Score:       r.Score,
					MatchReason: r.MatchReason,
				})
				names = append(names, r.Tool.Name)
			}
			out.Count = len(out.Results)

			text := fmt.Sprintf("No tools found matching: %s", in.Query)
			if len(names) > 0 {
				text = fmt.Sprintf("Found %d tool(s) for %q: %s", len(names), in.Query, strings.Join(names, ", "))
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, out, nil
		})
}
