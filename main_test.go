package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
)

const petstoreYAML = `openapi: 3.0.3
info:
  title: Petstore
  version: 1.2.0
paths:
  /pets/{petId}:
    get:
      operationId: getPet
      parameters:
        - name: petId
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: ok
`

func newTestBridge(t *testing.T, upstream string) *bridge {
	t.Helper()
	path := filepath.Join(t.TempDir(), "petstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(petstoreYAML), 0o600))

	cfg := server.NewDefaultConfig()
	cfg.SpecLocation = path
	cfg.APIBaseAddress = upstream
	cfg.APICredential = "Bearer secret"
	cfg.TransportMode = server.TransportHTTP
	cfg.Session.Heartbeat = server.Duration{}
	require.NoError(t, cfg.Validate())

	b, err := newBridge(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestHTTPSurface(t *testing.T) {
	var (
		mu               sync.Mutex
		gotAuth, gotPath string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7","name":"Rex"}`))
	}))
	defer upstream.Close()

	b := newTestBridge(t, upstream.URL)
	assert.Equal(t, "Petstore", b.name())
	require.Len(t, b.tools, 1)

	sessions, cleanup, err := newSessionRouter(context.Background(), b)
	require.NoError(t, err)
	defer cleanup()
	srv := httptest.NewServer(newHTTPHandler(b, sessions))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health server.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "Petstore", health.Spec)
	assert.Equal(t, 1, health.Tools)
	assert.Equal(t, 0, health.Sessions)

	post := func(sessionID, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/mcp", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if sessionID != "" {
			req.Header.Set(mcpserver.HeaderKeySessionID, sessionID)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp = post("", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	id := resp.Header.Get(mcpserver.HeaderKeySessionID)
	require.NotEmpty(t, id)

	resp = post(id, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"getPet","arguments":{"petId":"7"}}}`)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `Rex`)
	mu.Lock()
	assert.Equal(t, "/pets/7", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	mu.Unlock()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `openapi_mcp_tool_calls_total{outcome="ok",tool="getPet"} 1`)
	assert.Contains(t, string(metrics), `openapi_mcp_sessions 1`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, 1, health.Sessions)
}

func TestServeHTTPStopsOnCancel(t *testing.T) {
	b := newTestBridge(t, "http://127.0.0.1:1")
	b.cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, b) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}
}

func TestNewBridgeFailsOnMissingSpec(t *testing.T) {
	cfg := server.NewDefaultConfig()
	cfg.SpecLocation = filepath.Join(t.TempDir(), "nope.yaml")

	_, err := newBridge(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}
