package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bananabit/fluxgate/internal/dispatch"
	"github.com/bananabit/fluxgate/internal/tool"
)

// mcpHandler exposes every registered tool over the MCP streamable HTTP
// transport. Calls flow through the same dispatcher as the REST and
// WebSocket surfaces, so the global concurrency cap applies uniformly.
func (s *Server) mcpHandler() http.Handler {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "fluxgate",
		Version: "1.0.0",
	}, nil)

	for _, desc := range s.dispatcher.Registry().List() {
		server.AddTool(&mcpsdk.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: schemaFor(desc),
		}, s.mcpToolHandler(desc.Name))
	}

	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return server
	}, nil)
}

func (s *Server) mcpToolHandler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := make(map[string]any)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toolError("invalid arguments: " + err.Error()), nil
			}
		}

		inv := dispatch.NewInvocation(name, args)
		result, err := s.dispatcher.Dispatch(ctx, inv)
		if err != nil {
			if derr, ok := dispatch.AsError(err); ok {
				return toolError(derr.Message), nil
			}
			return toolError("internal error"), nil
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return toolError("failed to encode result: " + err.Error()), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(payload)}},
		}, nil
	}
}

func toolError(msg string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		IsError: true,
	}
}

// schemaFor translates a tool descriptor's parameter list into a JSON
// schema for MCP discovery.
func schemaFor(desc *tool.Descriptor) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema),
	}
	for _, p := range desc.Params {
		prop := &jsonschema.Schema{
			Type:        string(p.Type),
			Description: p.Description,
		}
		if p.Default != nil {
			if raw, err := json.Marshal(p.Default); err == nil {
				prop.Default = raw
			}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}
