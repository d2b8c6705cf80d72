package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/designgen/internal/design"
)

// NewMCPServer creates an MCP server with the designgen tools registered.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"designgen",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("designgen: match design components against the local library and generate code for them."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("match_component",
			mcp.WithDescription("Score a design component against the indexed library and report the closest matches."),
			mcp.WithString("component", mcp.Description("Component record as JSON"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of candidates (default 5)")),
		),
		mcpMatchComponent(deps),
	)

	s.AddTool(
		mcp.NewTool("list_components",
			mcp.WithDescription("List components stored in the library."),
			mcp.WithString("type", mcp.Description("Only components classified with this tag")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of components (default 50)")),
		),
		mcpListComponents(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_component",
			mcp.WithDescription("Run the generation pipeline for one design component and return the generated code with its stage report."),
			mcp.WithString("component", mcp.Description("Component record as JSON"), mcp.Required()),
		),
		mcpGenerateComponent(deps),
	)

	return s
}

// toolInput decodes the single record passed in the "component" argument.
func toolInput(req mcp.CallToolRequest) (design.Input, *mcp.CallToolResult) {
	raw, err := req.RequireString("component")
	if err != nil {
		return design.Input{}, mcpError("component is required")
	}
	inputs, err := design.Decode([]byte(raw), "mcp")
	if err != nil {
		return design.Input{}, mcpError(err.Error())
	}
	if len(inputs) != 1 {
		return design.Input{}, mcpError(fmt.Sprintf("expected one component, got %d", len(inputs)))
	}
	return inputs[0], nil
}

func mcpMatchComponent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, bad := toolInput(req)
		if bad != nil {
			return bad, nil
		}
		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		rep, err := deps.Indexer.Search(ctx, deps.Scorer, in, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("match failed: %v", err)), nil
		}
		return mcpJSON(rep)
	}
}

func mcpListComponents(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		out, err := listComponents(ctx, deps.Store, req.GetString("type", ""), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing components failed: %v", err)), nil
		}
		if len(out) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(out)
	}
}

func mcpGenerateComponent(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Runner == nil {
			return mcpError("generation is not configured"), nil
		}
		in, bad := toolInput(req)
		if bad != nil {
			return bad, nil
		}
		sum := deps.Runner.RunBatch(ctx, []design.Input{in})
		if len(sum.Outcomes) != 1 {
			return mcpError("pipeline returned no result"), nil
		}
		res := sum.Outcomes[0].Result
		b, err := json.Marshal(res)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		if !res.Success {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
