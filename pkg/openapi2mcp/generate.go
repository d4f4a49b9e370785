package openapi2mcp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

// SpecResourceURI addresses the OpenAPI document itself.
const SpecResourceURI = "openapi://spec"

// APIResourceScheme prefixes resources backed by GET operations.
const APIResourceScheme = "api://"

const resourceMIMEType = "application/json"

var httpMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true,
	"delete": true, "head": true, "options": true, "trace": true,
}

var nonAlnumRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ExtractOpenAPIOperations walks paths and their HTTP methods in document order.
func ExtractOpenAPIOperations(root *spec.Node) []OpenAPIOperation {
	paths := root.Get("paths")
	if paths == nil || paths.Kind != spec.KindObject {
		return nil
	}

	var ops []OpenAPIOperation
	for _, path := range paths.Keys {
		item := paths.Get(path)
		if item == nil || item.Kind != spec.KindObject {
			continue
		}
		pathParams := item.Get("parameters")
		for _, key := range item.Keys {
			method := strings.ToLower(key)
			if !httpMethods[method] {
				continue
			}
			op := item.Get(key)
			if op == nil || op.Kind != spec.KindObject {
				continue
			}
			ops = append(ops, OpenAPIOperation{
				OperationID: op.Get("operationId").StringOr(""),
				Summary:     op.Get("summary").StringOr(""),
				Description: op.Get("description").StringOr(""),
				Path:        path,
				Method:      strings.ToUpper(method),
				Parameters:  mergeParameters(pathParams, op.Get("parameters")),
				RequestBody: op.Get("requestBody"),
				Tags:        stringList(op.Get("tags")),
			})
		}
	}
	return ops
}

// Generate derives tool definitions and resource descriptors from a resolved document. The result
// depends only on the document, in document order.
func Generate(root *spec.Node) ([]ToolDefinition, []ResourceDescriptor) {
	ops := ExtractOpenAPIOperations(root)
	tools := make([]ToolDefinition, 0, len(ops))
	var resources []ResourceDescriptor
	used := map[string]int{}

	for _, op := range ops {
		schema, locations, hasBody := BuildInputSchema(op)
		tool := ToolDefinition{
			Name:           uniqueName(ToolName(op), used),
			Description:    toolDescription(op),
			Method:         op.Method,
			Path:           op.Path,
			InputSchema:    schema,
			ParamLocations: locations,
			HasRequestBody: hasBody,
			Tags:           op.Tags,
		}
		tools = append(tools, tool)

		if op.Method == "GET" {
			resources = append(resources, resourceFor(tool))
		}
	}

	title := root.Path("info", "title").StringOr("OpenAPI document")
	resources = append(resources, ResourceDescriptor{
		URI:         SpecResourceURI,
		Name:        "openapi-spec",
		Description: "OpenAPI document for " + title,
		MIMEType:    resourceMIMEType,
	})
	return tools, resources
}

// ToolName is the operationId, or "<method>_<path>" with non-alphanumeric runs collapsed to "_".
func ToolName(op OpenAPIOperation) string {
	if op.OperationID != "" {
		return op.OperationID
	}
	raw := strings.ToLower(op.Method) + "_" + op.Path
	return strings.Trim(nonAlnumRun.ReplaceAllString(raw, "_"), "_")
}

func uniqueName(name string, used map[string]int) string {
	used[name]++
	if used[name] == 1 {
		return name
	}
	for n := used[name]; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if used[candidate] == 0 {
			used[name] = n
			used[candidate] = 1
			return candidate
		}
	}
}

func toolDescription(op OpenAPIOperation) string {
	switch {
	case op.Description != "":
		return op.Description
	case op.Summary != "":
		return op.Summary
	}
	return op.Method + " " + op.Path
}

func resourceFor(tool ToolDefinition) ResourceDescriptor {
	uri := APIResourceScheme + strings.TrimPrefix(tool.Path, "/")
	r := ResourceDescriptor{
		Name:        tool.Name,
		Description: tool.Description,
		MIMEType:    resourceMIMEType,
	}
	if hasPathParams(tool) {
		r.URITemplate = uri
	} else {
		r.URI = uri
	}
	return r
}

func hasPathParams(tool ToolDefinition) bool {
	for _, loc := range tool.ParamLocations {
		if loc == LocationPath {
			return true
		}
	}
	return strings.Contains(tool.Path, "{")
}

func stringList(n *spec.Node) []string {
	if n == nil || n.Kind != spec.KindArray {
		return nil
	}
	out := make([]string, 0, len(n.Items))
	for _, it := range n.Items {
		if s, ok := it.Str(); ok {
			out = append(out, s)
		}
	}
	return out
}
