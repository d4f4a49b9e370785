// Package resources serves MCP resource reads: the OpenAPI document itself and api:// URIs that
// map back onto GET operations of the target API.
package resources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/yosida95/uritemplate/v3"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

type template struct {
	descriptor openapi2mcp.ResourceDescriptor
	compiled   *uritemplate.Template
}

// Mapper resolves resource URIs to text.
type Mapper struct {
	baseURL    string
	document   *spec.Node
	client     *http.Client
	credential auth.Provider
	static     map[string]openapi2mcp.ResourceDescriptor
	templates  []template
	metrics    *server.Metrics
	logger     *zap.Logger
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithHTTPClient sets the client used for api:// reads.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Mapper) { m.client = c }
}

// WithCredential forwards value as the Authorization header, as the executor does.
func WithCredential(value string) Option {
	return func(m *Mapper) { m.credential = auth.StaticCredential(value) }
}

// WithMetrics records upstream latency.
func WithMetrics(metrics *server.Metrics) Option {
	return func(m *Mapper) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mapper) { m.logger = logger }
}

// NewMapper indexes the descriptors produced by openapi2mcp.Generate. Templates that fail to
// compile are logged and skipped.
func NewMapper(baseURL string, document *spec.Node, descriptors []openapi2mcp.ResourceDescriptor, opts ...Option) *Mapper {
	m := &Mapper{
		baseURL:  strings.TrimRight(baseURL, "/"),
		document: document,
		client:   &http.Client{Timeout: 30 * time.Second},
		static:   map[string]openapi2mcp.ResourceDescriptor{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "resources"))
	if m.credential != nil {
		m.client = auth.NewClient(m.client, m.credential)
	}

	for _, d := range descriptors {
		if !d.IsTemplate() {
			m.static[d.URI] = d
			continue
		}
		compiled, err := uritemplate.New(d.URITemplate)
		if err != nil {
			m.logger.Warn("skipping resource template", zap.String("template", d.URITemplate), zap.Error(err))
			continue
		}
		m.templates = append(m.templates, template{descriptor: d, compiled: compiled})
	}
	return m
}

// Lookup returns the descriptor a URI belongs to.
func (m *Mapper) Lookup(uri string) (openapi2mcp.ResourceDescriptor, bool) {
	if d, ok := m.static[uri]; ok {
		return d, true
	}
	for _, t := range m.templates {
		if t.compiled.Match(uri) != nil {
			return t.descriptor, true
		}
	}
	return openapi2mcp.ResourceDescriptor{}, false
}

// Read returns the text behind uri. openapi://spec is the resolved document as indented JSON;
// api://<path> is fetched with GET under the base URL.
func (m *Mapper) Read(ctx context.Context, uri string) (string, error) {
	if uri == openapi2mcp.SpecResourceURI {
		text, err := m.document.Indented()
		if err != nil {
			return "", server.WrapWithContext(ctx, err, server.ErrorTypeInternal, "failed to render OpenAPI document")
		}
		return text, nil
	}

	if !strings.HasPrefix(uri, openapi2mcp.APIResourceScheme) {
		return "", server.NewErrorWithContext(ctx, server.ErrorTypeResourceUnavailable, "unsupported resource URI", uri)
	}
	if _, ok := m.Lookup(uri); !ok {
		return "", server.NewErrorWithContext(ctx, server.ErrorTypeResourceUnavailable, "unknown resource", uri)
	}
	return m.fetch(ctx, uri)
}

func (m *Mapper) fetch(ctx context.Context, uri string) (string, error) {
	target := m.baseURL + "/" + strings.TrimPrefix(uri, openapi2mcp.APIResourceScheme)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", server.WrapWithContext(ctx, err, server.ErrorTypeResourceUnavailable, "invalid resource URL")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	m.metrics.ObserveUpstream(http.MethodGet, time.Since(start))
	if err != nil {
		return "", server.WrapWithContext(ctx, err, server.ErrorTypeResourceUnavailable, "resource request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", server.WrapWithContext(ctx, err, server.ErrorTypeResourceUnavailable, "failed to read resource")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", server.NewErrorWithContext(ctx, server.ErrorTypeResourceUnavailable,
			fmt.Sprintf("HTTP %d reading %s", resp.StatusCode, uri), string(body))
	}
	return string(body), nil
}

// Contents adapts Read to the MCP resources/read result shape.
func (m *Mapper) Contents(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	text, err := m.Read(ctx, uri)
	if err != nil {
		m.logger.Debug("resource read failed", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	mime := "application/json"
	if d, ok := m.Lookup(uri); ok && d.MIMEType != "" {
		mime = d.MIMEType
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: mime, Text: text},
	}, nil
}
