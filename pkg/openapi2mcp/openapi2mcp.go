// Package openapi2mcp transforms OpenAPI 3.x documents into MCP (Model Context Protocol) tools
// and resources.
//
// Generation is a pure function of a resolved document tree (see package spec). Every operation
// becomes one ToolDefinition whose input schema merges the operation's parameters and, when the
// request body is a plain JSON object, the body's properties. Read-only GET operations are also
// exposed as resources under the api:// scheme, and the document itself is always available as
// openapi://spec.
//
// # Quick Start
//
//	doc, err := loader.NewLoader().Load(ctx, "petstore.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	tools, resources := openapi2mcp.Generate(doc.Root)
//	srv := openapi2mcp.NewServer("petstore", doc.Version, tools, resources, engine, mapper)
//	openapi2mcp.ServeStdio(srv)
//
// Tool execution and resource reads are delegated to a ToolCaller and a ResourceReader; the
// executor and resources packages provide the HTTP-backed implementations.
package openapi2mcp

import (
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

// ParamLocation records where an input argument goes in the HTTP request.
type ParamLocation string

const (
	LocationPath   ParamLocation = "path"
	LocationQuery  ParamLocation = "query"
	LocationHeader ParamLocation = "header"
	LocationCookie ParamLocation = "cookie"
	LocationBody   ParamLocation = "body"
)

// BodyArgument is the synthetic argument carrying a request body that could not be flattened.
const BodyArgument = "_body"

// OpenAPIOperation describes a single OpenAPI operation to be mapped to an MCP tool.
// Parameters holds the merged path-level and operation-level parameters.
type OpenAPIOperation struct {
	OperationID string
	Summary     string
	Description string
	Path        string
	Method      string
	Parameters  []*spec.Node
	RequestBody *spec.Node
	Tags        []string
}

// ToolDefinition is one generated tool. InputSchema is a JSON Schema object; ParamLocations maps
// every input property to its place in the request.
type ToolDefinition struct {
	Name           string
	Description    string
	Method         string
	Path           string
	InputSchema    *spec.Node
	ParamLocations map[string]ParamLocation
	HasRequestBody bool
	Tags           []string
}

// Location returns where the named argument belongs and whether it was declared.
func (t ToolDefinition) Location(name string) (ParamLocation, bool) {
	loc, ok := t.ParamLocations[name]
	return loc, ok
}

// ResourceDescriptor is a read-only resource. Exactly one of URI and URITemplate is set.
type ResourceDescriptor struct {
	URI         string
	URITemplate string
	Name        string
	Description string
	MIMEType    string
}

// IsTemplate reports whether the descriptor is parameterized.
func (r ResourceDescriptor) IsTemplate() bool {
	return r.URITemplate != ""
}

// Address returns the URI or the URI template.
func (r ResourceDescriptor) Address() string {
	if r.IsTemplate() {
		return r.URITemplate
	}
	return r.URI
}
