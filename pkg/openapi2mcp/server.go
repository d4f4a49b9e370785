// server.go
package openapi2mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// ToolCaller executes a generated tool by name. Failures come back as error text with isError
// set rather than as Go errors.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (text string, isError bool)
}

// ResourceReader serves resources/read requests.
type ResourceReader interface {
	Contents(ctx context.Context, uri string) ([]mcp.ResourceContents, error)
}

// NewServer creates a new MCP server, registers one tool per definition and one resource or
// resource template per descriptor, and returns the server.
// Example usage for NewServer:
//
//	tools, resources := openapi2mcp.Generate(doc.Root)
//	srv := openapi2mcp.NewServer("petstore", doc.Version, tools, resources, engine, mapper)
//	openapi2mcp.ServeStdio(srv)
func NewServer(name, version string, tools []ToolDefinition, resources []ResourceDescriptor,
	caller ToolCaller, reader ResourceReader, opts ...mcpserver.ServerOption) *mcpserver.MCPServer {

	opts = append([]mcpserver.ServerOption{
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	}, opts...)
	srv := mcpserver.NewMCPServer(name, version, opts...)

	RegisterTools(srv, tools, caller)
	RegisterResources(srv, resources, reader)
	return srv
}

// RegisterTools adds every definition to srv with its raw input schema.
func RegisterTools(srv *mcpserver.MCPServer, tools []ToolDefinition, caller ToolCaller) {
	for _, tool := range tools {
		schema, err := tool.InputSchema.MarshalJSON()
		if tool.InputSchema == nil || err != nil {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		srv.AddTool(mcp.NewToolWithRawSchema(tool.Name, tool.Description, schema), toolHandler(tool.Name, caller))
	}
}

func toolHandler(name string, caller ToolCaller) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		text, isError := caller.CallTool(ctx, name, args)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(text)},
			IsError: isError,
		}, nil
	}
}

// RegisterResources adds static resources and resource templates to srv.
func RegisterResources(srv *mcpserver.MCPServer, resources []ResourceDescriptor, reader ResourceReader) {
	handler := func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return reader.Contents(ctx, request.Params.URI)
	}
	for _, r := range resources {
		if r.IsTemplate() {
			srv.AddResourceTemplate(mcp.NewResourceTemplate(r.URITemplate, r.Name,
				mcp.WithTemplateDescription(r.Description),
				mcp.WithTemplateMIMEType(r.MIMEType),
			), handler)
			continue
		}
		srv.AddResource(mcp.NewResource(r.URI, r.Name,
			mcp.WithResourceDescription(r.Description),
			mcp.WithMIMEType(r.MIMEType),
		), handler)
	}
}

// ServeStdio starts the MCP server using stdio (wraps mcpserver.ServeStdio).
func ServeStdio(server *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(server)
}
