package openapi2mcp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

const petstore = `{
  "openapi": "3.0.0",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "paths": {
    "/pets": {
      "get": {
        "operationId": "listPets",
        "summary": "List pets",
        "tags": ["pets"],
        "parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer"}, "description": "page size"}]
      },
      "post": {
        "operationId": "createPet",
        "tags": ["pets"],
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/NewPet"}}}
        }
      }
    },
    "/pets/{petId}": {
      "parameters": [
        {"name": "petId", "in": "path", "required": true, "schema": {"type": "string"}, "description": "path level"},
        {"name": "X-Trace", "in": "header"}
      ],
      "get": {
        "description": "Fetch one pet",
        "summary": "ignored",
        "parameters": [{"name": "petId", "in": "path", "required": true, "schema": {"type": "integer"}}]
      },
      "put": {
        "requestBody": {
          "content": {"application/json": {"schema": {"type": "array", "items": {"type": "string"}}}}
        }
      },
      "summary": "not an operation"
    }
  },
  "components": {
    "schemas": {
      "NewPet": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}, "tag": {"type": "string"}}}
    }
  }
}`

func generate(t *testing.T, doc string) ([]ToolDefinition, []ResourceDescriptor) {
	t.Helper()
	root, err := spec.Parse([]byte(doc))
	require.NoError(t, err)
	return Generate(spec.Resolve(root))
}

func toolByName(t *testing.T, tools []ToolDefinition, name string) ToolDefinition {
	t.Helper()
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %q not generated", name)
	return ToolDefinition{}
}

func TestGenerateToolsInDocumentOrder(t *testing.T) {
	tools, _ := generate(t, petstore)

	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}
	assert.Equal(t, []string{"listPets", "createPet", "get_pets_petId", "put_pets_petId"}, names)
}

func TestGenerateParameters(t *testing.T) {
	tools, _ := generate(t, petstore)

	list := toolByName(t, tools, "listPets")
	assert.Equal(t, "GET", list.Method)
	assert.Equal(t, "List pets", list.Description)
	assert.Equal(t, LocationQuery, list.ParamLocations["limit"])
	limit := list.InputSchema.Path("properties", "limit")
	assert.Equal(t, "integer", limit.Get("type").StringOr(""))
	assert.Equal(t, "page size", limit.Get("description").StringOr(""))
	assert.Nil(t, list.InputSchema.Get("required"))
	assert.False(t, list.HasRequestBody)

	get := toolByName(t, tools, "get_pets_petId")
	assert.Equal(t, "Fetch one pet", get.Description)
	petID := get.InputSchema.Path("properties", "petId")
	assert.Equal(t, "integer", petID.Get("type").StringOr(""), "operation-level parameter wins")
	assert.Nil(t, petID.Get("description"))
	assert.Equal(t, LocationPath, get.ParamLocations["petId"])
	assert.Equal(t, LocationHeader, get.ParamLocations["X-Trace"])
	assert.Equal(t, "string", get.InputSchema.Path("properties", "X-Trace", "type").StringOr(""), "default schema")
	assert.Equal(t, []any{"petId"}, get.InputSchema.Get("required").Interface())
}

func TestGenerateFlattensObjectBody(t *testing.T) {
	tools, _ := generate(t, petstore)

	create := toolByName(t, tools, "createPet")
	assert.True(t, create.HasRequestBody)
	assert.Equal(t, LocationBody, create.ParamLocations["name"])
	assert.Equal(t, LocationBody, create.ParamLocations["tag"])
	assert.Equal(t, []string{"name", "tag"}, create.InputSchema.Get("properties").Keys)
	assert.Equal(t, []any{"name"}, create.InputSchema.Get("required").Interface())
	assert.Nil(t, create.InputSchema.Path("properties", BodyArgument))
}

func TestGenerateOpaqueBody(t *testing.T) {
	tools, _ := generate(t, petstore)

	put := toolByName(t, tools, "put_pets_petId")
	assert.True(t, put.HasRequestBody)
	assert.Equal(t, LocationBody, put.ParamLocations[BodyArgument])
	assert.Equal(t, "array", put.InputSchema.Path("properties", BodyArgument, "type").StringOr(""))
	assert.Equal(t, "PUT /pets/{petId}", put.Description)
	assert.Equal(t, []any{"petId"}, put.InputSchema.Get("required").Interface(), "body not required")
}

func TestGenerateResidualReferenceBecomesBody(t *testing.T) {
	doc := `{
	  "paths": {"/nodes": {"post": {
	    "operationId": "createNode",
	    "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Node"}}}}
	  }}},
	  "components": {"schemas": {"Node": {"type": "object", "properties": {"child": {"$ref": "#/components/schemas/Node"}}}}}
	}`
	tools, _ := generate(t, doc)
	require.Len(t, tools, 1)

	tool := tools[0]
	assert.Equal(t, LocationBody, tool.ParamLocations[BodyArgument])
	assert.True(t, tool.InputSchema.Path("properties", BodyArgument).HasRef())
	assert.Equal(t, []any{BodyArgument}, tool.InputSchema.Get("required").Interface())
}

func TestGenerateSkipsReferenceParameters(t *testing.T) {
	doc := `{"paths": {"/a": {"get": {"parameters": [{"$ref": "#/components/parameters/Missing"}, {"name": "q", "in": "query"}]}}}}`
	tools, _ := generate(t, doc)
	require.Len(t, tools, 1)

	assert.Equal(t, []string{"q"}, tools[0].InputSchema.Get("properties").Keys)
}

func TestGenerateUndeclaredPathPlaceholders(t *testing.T) {
	doc := `{"paths": {"/items/{id}/parts/{part}": {"get": {
	  "operationId": "getItem",
	  "parameters": [{"name": "part", "in": "path", "required": true, "schema": {"type": "integer"}}]
	}}}}`
	tools, _ := generate(t, doc)
	require.Len(t, tools, 1)

	tool := tools[0]
	assert.Equal(t, LocationPath, tool.ParamLocations["id"])
	assert.Equal(t, "string", tool.InputSchema.Path("properties", "id", "type").StringOr(""))
	assert.Equal(t, "integer", tool.InputSchema.Path("properties", "part", "type").StringOr(""), "declared parameter kept")
	assert.Equal(t, []string{"part", "id"}, tool.InputSchema.Get("properties").Keys)
	assert.Equal(t, []any{"part", "id"}, tool.InputSchema.Get("required").Interface())
}

func TestToolNameFallback(t *testing.T) {
	cases := map[string]OpenAPIOperation{
		"get_users_id_posts":   {Method: "GET", Path: "/users/{id}/posts"},
		"delete_v1_items_item": {Method: "DELETE", Path: "/v1/items/{item}/"},
		"custom":               {Method: "GET", Path: "/x", OperationID: "custom"},
		"post_a_b_c":           {Method: "POST", Path: "/a--b..c"},
	}
	for want, op := range cases {
		assert.Equal(t, want, ToolName(op))
	}
}

func TestGenerateDeduplicatesNames(t *testing.T) {
	doc := `{"paths": {
	  "/a": {"get": {"operationId": "dup"}, "post": {"operationId": "dup"}},
	  "/b": {"get": {"operationId": "dup"}}
	}}`
	tools, _ := generate(t, doc)
	require.Len(t, tools, 3)

	assert.Equal(t, "dup", tools[0].Name)
	assert.Equal(t, "dup_2", tools[1].Name)
	assert.Equal(t, "dup_3", tools[2].Name)
}

func TestGenerateResources(t *testing.T) {
	_, resources := generate(t, petstore)
	require.Len(t, resources, 3)

	assert.Equal(t, "api://pets", resources[0].URI)
	assert.False(t, resources[0].IsTemplate())
	assert.Equal(t, "listPets", resources[0].Name)

	assert.Equal(t, "api://pets/{petId}", resources[1].URITemplate)
	assert.True(t, resources[1].IsTemplate())
	assert.Empty(t, resources[1].URI)

	assert.Equal(t, SpecResourceURI, resources[2].URI)
	for _, r := range resources {
		assert.Equal(t, "application/json", r.MIMEType)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	first, _ := generate(t, petstore)
	second, _ := generate(t, petstore)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.True(t, first[i].InputSchema.Equal(second[i].InputSchema))
	}
}

func TestGenerateWithoutPaths(t *testing.T) {
	tools, resources := generate(t, `{"openapi": "3.0.0"}`)
	assert.Empty(t, tools)
	require.Len(t, resources, 1)
	assert.Equal(t, SpecResourceURI, resources[0].URI)
}

func TestPrintToolSummary(t *testing.T) {
	tools, resources := generate(t, petstore)

	var buf bytes.Buffer
	PrintToolSummary(&buf, tools, resources)
	out := buf.String()

	assert.Contains(t, out, "Total tools: 4")
	assert.Contains(t, out, "createPet (body)")
	assert.Contains(t, out, "pets: 2")
	assert.Contains(t, out, "Resources: 3")
	assert.Contains(t, out, "api://pets/{petId} (template)")
}
