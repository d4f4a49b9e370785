package loader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
)

const petstore = `{
	"openapi": "3.0.0",
	"info": {"title": "Pets", "version": "1.2.3"},
	"paths": {"/pets": {"post": {"requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}}, "responses": {"200": {"description": "ok"}}}}},
	"components": {"schemas": {"Pet": {"type": "object", "properties": {"name": {"type": "string"}}}}}
}`

func fastRetry(attempts int) Option {
	return WithRetryPolicy(RetryPolicy{Attempts: attempts, Delay: time.Millisecond})
}

func TestLoadFromURLRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(petstore))
	}))
	defer srv.Close()

	doc, err := NewLoader(fastRetry(5)).Load(context.Background(), srv.URL+"/openapi.json")
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, "Pets", doc.Title)
	assert.Equal(t, "1.2.3", doc.Version)
	schema := doc.Root.Path("paths", "/pets", "post", "requestBody", "content", "application/json", "schema")
	assert.Equal(t, "object", schema.Get("type").StringOr(""), "references are resolved")
}

func TestLoadFromURLExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewLoader(fastRetry(4)).Load(context.Background(), srv.URL)
	require.Error(t, err)

	assert.True(t, server.IsType(err, server.ErrorTypeSpecUnavailable))
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestLoadFromURLMalformedIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"openapi": `))
	}))
	defer srv.Close()

	_, err := NewLoader(fastRetry(5)).Load(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeSpecMalformed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestLoadStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewLoader(WithRetryPolicy(RetryPolicy{Attempts: 10, Delay: time.Hour}))
	_, err := l.Load(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, server.IsType(err, server.ErrorTypeSpecUnavailable))
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(good, []byte("openapi: 3.0.0\ninfo:\n  title: Local\n  version: '1'\npaths: {}\n"), 0o600))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"paths": [`), 0o600))
	list := filepath.Join(dir, "list.json")
	require.NoError(t, os.WriteFile(list, []byte(`[]`), 0o600))

	l := NewLoader(fastRetry(3))

	doc, err := l.Load(context.Background(), good)
	require.NoError(t, err)
	assert.Equal(t, "Local", doc.Title)

	_, err = l.Load(context.Background(), bad)
	assert.True(t, server.IsType(err, server.ErrorTypeSpecMalformed))

	_, err = l.Load(context.Background(), list)
	assert.True(t, server.IsType(err, server.ErrorTypeSpecMalformed))

	_, err = l.Load(context.Background(), filepath.Join(dir, "missing.json"))
	assert.True(t, server.IsType(err, server.ErrorTypeSpecUnavailable))
}

type fakeSource map[string]*models.OpenAPISpec

func (f fakeSource) Fetch(_ context.Context, name string) (*models.OpenAPISpec, error) {
	s, ok := f[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return s, nil
}

func TestLoadFromDatabase(t *testing.T) {
	stored := models.NewOpenAPISpec("pets", petstore, "json")
	token := "Bearer stored"
	stored.ApiKeyToken = &token

	l := NewLoader(WithSpecSource(fakeSource{"pets": stored}))

	doc, err := l.Load(context.Background(), "db:pets")
	require.NoError(t, err)
	assert.Equal(t, "Pets", doc.Title)
	assert.Equal(t, "Bearer stored", doc.Credential)
	assert.Equal(t, "db:pets", doc.Source)

	_, err = l.Load(context.Background(), "db:other")
	assert.True(t, server.IsType(err, server.ErrorTypeSpecUnavailable))

	_, err = NewLoader().Load(context.Background(), "db:pets")
	assert.True(t, server.IsType(err, server.ErrorTypeSpecUnavailable))
}
