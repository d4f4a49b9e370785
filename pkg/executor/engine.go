// Package executor turns tool invocations into HTTP calls against the target API.
//
// Execute never fails across its boundary: every problem, from an unknown tool to a refused
// connection, comes back as a Result with IsError set, so one bad invocation never takes a
// session down.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
)

// Result is the outcome of one invocation. Kind and Status are set for failures; Status also
// carries the upstream status code on success.
type Result struct {
	Text    string
	IsError bool
	Kind    server.ErrorType
	Status  int
}

// Err returns the failure as a *server.ServerError, or nil.
func (r Result) Err() error {
	if !r.IsError {
		return nil
	}
	return server.NewError(r.Kind, r.Text, "")
}

func failure(kind server.ErrorType, status int, format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...), IsError: true, Kind: kind, Status: status}
}

// Engine executes generated tools against one base URL.
type Engine struct {
	baseURL    string
	client     *http.Client
	credential auth.Provider
	tools      []openapi2mcp.ToolDefinition
	index      map[string]int
	validator  Validator
	policy     Policy
	metrics    *server.Metrics
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithCredential forwards value as the Authorization header of every call. It replaces any
// Authorization header argument of the invocation.
func WithCredential(value string) Option {
	return func(e *Engine) { e.credential = auth.StaticCredential(value) }
}

// WithValidation validates arguments against the tool schema under policy.
func WithValidation(policy Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithValidator replaces the default schema validator.
func WithValidator(v Validator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithMetrics records tool and upstream metrics.
func WithMetrics(m *server.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine for tools, sending requests under baseURL.
func NewEngine(baseURL string, tools []openapi2mcp.ToolDefinition, opts ...Option) *Engine {
	e := &Engine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		tools:   tools,
		index:   make(map[string]int, len(tools)),
		policy:  PolicyLenient,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "executor"))
	if e.validator == nil {
		e.validator = NewSchemaValidator(e.logger)
	}
	if e.credential != nil {
		e.client = auth.NewClient(e.client, e.credential)
	}
	for i, t := range tools {
		if _, dup := e.index[t.Name]; !dup {
			e.index[t.Name] = i
		}
	}
	return e
}

// Tools returns the registered definitions in generation order.
func (e *Engine) Tools() []openapi2mcp.ToolDefinition {
	return e.tools
}

// Tool looks up a definition by name.
func (e *Engine) Tool(name string) (openapi2mcp.ToolDefinition, bool) {
	i, ok := e.index[name]
	if !ok {
		return openapi2mcp.ToolDefinition{}, false
	}
	return e.tools[i], true
}

// Call executes the named tool.
func (e *Engine) Call(ctx context.Context, name string, args map[string]any) Result {
	tool, ok := e.Tool(name)
	if !ok {
		e.metrics.ObserveToolCall(name, string(server.ErrorTypeToolNotFound))
		return failure(server.ErrorTypeToolNotFound, 0, "Tool not found: %s", name)
	}
	return e.Execute(ctx, tool, args)
}

// CallTool implements openapi2mcp.ToolCaller.
func (e *Engine) CallTool(ctx context.Context, name string, args map[string]any) (string, bool) {
	res := e.Call(ctx, name, args)
	return res.Text, res.IsError
}

// Execute validates args, sends the request and maps the response.
func (e *Engine) Execute(ctx context.Context, tool openapi2mcp.ToolDefinition, args map[string]any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool execution panicked", zap.String("tool", tool.Name), zap.Any("panic", r))
			res = failure(server.ErrorTypeInternal, 0, "Internal error executing %s", tool.Name)
		}
		outcome := "ok"
		if res.IsError {
			outcome = string(res.Kind)
		}
		e.metrics.ObserveToolCall(tool.Name, outcome)
	}()

	if args == nil {
		args = map[string]any{}
	}

	if err := e.validator.Validate(tool, args); err != nil {
		if e.policy == PolicyStrict {
			return failure(server.ErrorTypeValidation, 0, "Validation failed: %v", err)
		}
		e.logger.Warn("argument validation failed, proceeding",
			zap.String("tool", tool.Name), zap.Error(err))
	}

	req, err := buildRequest(ctx, e.baseURL, tool, args)
	if err != nil {
		return failure(server.ErrorTypeInternal, 0, "Failed to build request for %s: %v", tool.Name, err)
	}
	if e.credential != nil {
		for key := range e.credential.Headers(ctx) {
			if req.Header.Get(key) != "" {
				e.logger.Debug("configured credential overrides header argument",
					zap.String("tool", tool.Name), zap.String("header", key))
			}
		}
	}

	e.logger.Debug("calling upstream",
		zap.String("tool", tool.Name),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()))

	start := time.Now()
	resp, err := e.client.Do(req)
	e.metrics.ObserveUpstream(req.Method, time.Since(start))
	if err != nil {
		return failure(server.ErrorTypeUpstreamNetwork, 0, "Request to %s failed: %v", tool.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(server.ErrorTypeUpstreamNetwork, resp.StatusCode, "Failed to read response from %s: %v", tool.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure(server.ErrorTypeUpstreamHTTP, resp.StatusCode, "HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return Result{Text: formatBody(raw), Status: resp.StatusCode}
}

// formatBody renders a successful response: indented JSON, "{}" when empty, verbatim otherwise.
func formatBody(raw []byte) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "{}"
	}
	if !json.Valid(trimmed) {
		return string(raw)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, trimmed, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}

func sortedArgNames(args map[string]any) []string {
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
