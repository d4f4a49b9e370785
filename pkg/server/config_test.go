package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAPI_SPEC_URL", "API_BASE_URL", "API_KEY", "TRANSPORT_MODE", "VALIDATION_MODE",
		"DATABASE_URL", "SESSION_STORE", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "GROQ_API_KEY",
		"CHAT_MODEL", "PORT", "ALLOWED_ORIGINS", "SPEC_RETRY_ATTEMPTS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/openapi.json", cfg.SpecLocation)
	assert.Equal(t, "http://localhost:8000", cfg.APIBaseAddress)
	assert.Equal(t, TransportStdio, cfg.TransportMode)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/mcp", cfg.Endpoint)
	assert.Equal(t, 10, cfg.Retry.Attempts)
	assert.Equal(t, 3*time.Second, cfg.Retry.Delay.Duration)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.Chat.Model)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigLayers(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "bridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
spec_location = "./petstore.yaml"
transport_mode = "http"
port = 8080
allowed_origins = ["https://a.example"]

[retry]
attempts = 3
delay = "250ms"

[session]
store = "redis"
redis_url = "redis://localhost:6379/0"
ttl = "10m"
`), 0o600))

	t.Setenv("PORT", "9090")
	t.Setenv("API_KEY", "Bearer env")
	t.Setenv("ALLOWED_ORIGINS", "https://b.example, https://c.example")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "./petstore.yaml", cfg.SpecLocation)
	assert.Equal(t, TransportHTTP, cfg.TransportMode)
	assert.Equal(t, 9090, cfg.Port, "environment beats the file")
	assert.Equal(t, "Bearer env", cfg.APICredential)
	assert.Equal(t, []string{"https://b.example", "https://c.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Session.TTL.Duration)
	assert.Equal(t, 30*time.Second, cfg.Session.Heartbeat.Duration, "unset keys keep defaults")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--port", "7070", "--transport", "stdio"}))
	cfg.ApplyFlags(flags)
	assert.Equal(t, 7070, cfg.Port, "flags beat the environment")
	assert.Equal(t, TransportStdio, cfg.TransportMode)
	assert.Equal(t, "./petstore.yaml", cfg.SpecLocation, "unset flags change nothing")
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("port = \"x\"\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	t.Setenv("PORT", "eighty")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty spec", func(c *Config) { c.SpecLocation = " " }},
		{"empty base", func(c *Config) { c.APIBaseAddress = "" }},
		{"unknown mode", func(c *Config) { c.TransportMode = "sse" }},
		{"unknown validation", func(c *Config) { c.Validation = "paranoid" }},
		{"bad port", func(c *Config) { c.TransportMode = TransportHTTP; c.Port = 0 }},
		{"bad endpoint", func(c *Config) { c.TransportMode = TransportHTTP; c.Endpoint = "mcp" }},
		{"redis without url", func(c *Config) { c.Session.Store = "redis" }},
		{"unknown store", func(c *Config) { c.Session.Store = "disk" }},
		{"db without database", func(c *Config) { c.SpecLocation = "db:pets" }},
		{"no attempts", func(c *Config) { c.Retry.Attempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestHandleHealth(t *testing.T) {
	handler := HandleHealth(HealthInfo{
		Service:   "openapi-mcp-bridge",
		Spec:      "Petstore",
		Version:   "1.0.0",
		Tools:     4,
		Resources: 2,
		Sessions:  func() int { return 3 },
	}, nil)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "Petstore", body.Spec)
	assert.Equal(t, 4, body.Tools)
	assert.Equal(t, 3, body.Sessions)
}
