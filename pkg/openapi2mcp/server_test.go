package openapi2mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCaller struct {
	name string
	args map[string]any
}

func (c *recordingCaller) CallTool(_ context.Context, name string, args map[string]any) (string, bool) {
	c.name = name
	c.args = args
	if name == "createPet" {
		return "HTTP 400: bad pet", true
	}
	return `{"ok": true}`, false
}

type staticReader map[string]string

func (r staticReader) Contents(_ context.Context, uri string) ([]mcp.ResourceContents, error) {
	text, ok := r[uri]
	if !ok {
		return nil, errors.New("unknown resource " + uri)
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: text}}, nil
}

func rpc(t *testing.T, handle func(context.Context, json.RawMessage) mcp.JSONRPCMessage, body string) map[string]any {
	t.Helper()
	resp := handle(context.Background(), json.RawMessage(body))
	require.NotNil(t, resp)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestNewServerListsAndCallsTools(t *testing.T) {
	tools, resources := generate(t, petstore)
	caller := &recordingCaller{}
	srv := NewServer("petstore", "1.0.0", tools, resources, caller, staticReader{})

	list := rpc(t, srv.HandleMessage, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	listed := list["result"].(map[string]any)["tools"].([]any)
	require.Len(t, listed, 4)

	byName := map[string]map[string]any{}
	for _, item := range listed {
		tool := item.(map[string]any)
		byName[tool["name"].(string)] = tool
	}
	schema := byName["createPet"]["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "name")

	call := rpc(t, srv.HandleMessage,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"listPets","arguments":{"limit":5}}}`)
	result := call["result"].(map[string]any)
	assert.NotEqual(t, true, result["isError"])
	content := result["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", content["type"])
	assert.Equal(t, `{"ok": true}`, content["text"])
	assert.Equal(t, "listPets", caller.name)
	assert.Equal(t, float64(5), caller.args["limit"])

	failed := rpc(t, srv.HandleMessage,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"createPet","arguments":{}}}`)
	assert.Equal(t, true, failed["result"].(map[string]any)["isError"])
}

func TestNewServerResources(t *testing.T) {
	tools, resources := generate(t, petstore)
	srv := NewServer("petstore", "1.0.0", tools, resources, &recordingCaller{}, staticReader{
		SpecResourceURI: `{"openapi": "3.0.0"}`,
	})

	list := rpc(t, srv.HandleMessage, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	listed := list["result"].(map[string]any)["resources"].([]any)
	assert.Len(t, listed, 2)

	templates := rpc(t, srv.HandleMessage, `{"jsonrpc":"2.0","id":2,"method":"resources/templates/list"}`)
	listedTemplates := templates["result"].(map[string]any)["resourceTemplates"].([]any)
	require.Len(t, listedTemplates, 1)
	assert.Equal(t, "api://pets/{petId}", listedTemplates[0].(map[string]any)["uriTemplate"])

	read := rpc(t, srv.HandleMessage,
		`{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{"uri":"openapi://spec"}}`)
	contents := read["result"].(map[string]any)["contents"].([]any)
	require.Len(t, contents, 1)
	assert.Equal(t, `{"openapi": "3.0.0"}`, contents[0].(map[string]any)["text"])
}
