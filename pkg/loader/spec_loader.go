package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/auth"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/models"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/server"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

// DatabasePrefix selects a spec stored in the database: "db:<name>".
const DatabasePrefix = "db:"

// RetryPolicy bounds the fetch loop for network locations.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is 10 attempts with a fixed 3 second delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 10, Delay: 3 * time.Second}
}

// SpecSource returns stored specs by name.
type SpecSource interface {
	Fetch(ctx context.Context, name string) (*models.OpenAPISpec, error)
}

// Document is a loaded OpenAPI document with references resolved.
type Document struct {
	Source   string
	Title    string
	Version  string
	Root     *spec.Node
	Raw      []byte
	LoadedAt time.Time
	// Credential stored alongside a database spec, if any.
	Credential string
}

// Loader fetches OpenAPI documents from URLs, local files or the database
type Loader struct {
	retry  RetryPolicy
	client *http.Client
	source SpecSource
	logger *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(l *Loader) {
		if p.Attempts < 1 {
			p.Attempts = 1
		}
		if p.Delay < 0 {
			p.Delay = 0
		}
		l.retry = p
	}
}

// WithHTTPClient sets the client used for network locations.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithSpecSource enables "db:<name>" locations.
func WithSpecSource(s SpecSource) Option {
	return func(l *Loader) { l.source = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader for OpenAPI documents
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		retry:  DefaultRetryPolicy(),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.With(zap.String("component", "spec_loader"))
	return l
}

// Load reads the document at location. Network locations are retried per
// the retry policy and fail with spec_unavailable once attempts run out;
// local files and stored specs are read once. Unparsable documents fail with
// spec_malformed and are never retried.
func (l *Loader) Load(ctx context.Context, location string) (*Document, error) {
	switch {
	case isURL(location):
		content, err := l.fetchWithRetry(ctx, location)
		if err != nil {
			return nil, err
		}
		return l.processSpec(ctx, location, content, "")
	case strings.HasPrefix(location, DatabasePrefix):
		return l.loadFromDatabase(ctx, strings.TrimPrefix(location, DatabasePrefix))
	default:
		content, err := l.loadFromLocalFile(ctx, location)
		if err != nil {
			return nil, err
		}
		return l.processSpec(ctx, location, content, "")
	}
}

func (l *Loader) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= l.retry.Attempts; attempt++ {
		content, err := l.loadFromURL(ctx, url)
		if err == nil {
			if attempt > 1 {
				l.logger.Info("spec fetched after retry", zap.String("url", url), zap.Int("attempt", attempt))
			}
			return content, nil
		}
		lastErr = err
		l.logger.Warn("failed to load spec",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", l.retry.Attempts),
			zap.Error(err))

		if attempt == l.retry.Attempts {
			break
		}
		timer := time.NewTimer(l.retry.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, server.WrapWithContext(ctx, ctx.Err(), server.ErrorTypeSpecUnavailable, "spec fetch cancelled")
		case <-timer.C:
		}
	}
	return nil, server.WrapWithContext(ctx, lastErr, server.ErrorTypeSpecUnavailable,
		fmt.Sprintf("spec unavailable after %d attempts", l.retry.Attempts))
}

// loadFromURL performs one fetch attempt
func (l *Loader) loadFromURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spec from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("HTTP %d when fetching spec", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec body: %w", err)
	}
	return content, nil
}

// loadFromLocalFile reads an OpenAPI document from disk
func (l *Loader) loadFromLocalFile(ctx context.Context, filePath string) ([]byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeSpecUnavailable, "failed to read spec file")
	}
	return content, nil
}

func (l *Loader) loadFromDatabase(ctx context.Context, name string) (*Document, error) {
	if l.source == nil {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeSpecUnavailable,
			"spec storage not configured", "set a database URL to load "+DatabasePrefix+name)
	}
	stored, err := l.source.Fetch(ctx, name)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeSpecUnavailable, "failed to load spec from database")
	}
	return l.processSpec(ctx, DatabasePrefix+name, []byte(stored.SpecContent), stored.Token())
}

// processSpec turns raw content into a resolved Document
func (l *Loader) processSpec(ctx context.Context, source string, content []byte, credential string) (*Document, error) {
	root, err := spec.Parse(content)
	if err != nil {
		return nil, server.WrapWithContext(ctx, err, server.ErrorTypeSpecMalformed, "failed to parse OpenAPI spec")
	}
	if root.Kind != spec.KindObject {
		return nil, server.NewErrorWithContext(ctx, server.ErrorTypeSpecMalformed,
			"failed to parse OpenAPI spec", "document root is a "+root.Kind.String()+", not a mapping")
	}

	resolved := spec.Resolve(root)
	doc := &Document{
		Source:     source,
		Title:      resolved.Path("info", "title").StringOr(""),
		Version:    resolved.Path("info", "version").StringOr(""),
		Root:       resolved,
		Raw:        content,
		LoadedAt:   time.Now(),
		Credential: credential,
	}

	l.checkStructure(source, content)

	l.logger.Info("spec loaded",
		zap.String("source", source),
		zap.String("title", doc.Title),
		zap.String("version", doc.Version),
		zap.Int("paths", resolved.Get("paths").Len()))
	return doc, nil
}

// checkStructure runs kin-openapi over the document. Findings are reported
// but never block loading: tool generation tolerates imprecise documents.
func (l *Loader) checkStructure(source string, content []byte) {
	kin := openapi3.NewLoader()
	doc, err := kin.LoadFromData(content)
	if err != nil {
		l.logger.Warn("spec structure check failed", zap.String("source", source), zap.Error(err))
		return
	}

	for _, scheme := range auth.DescribeSchemes(doc) {
		l.logger.Info("spec declares security scheme",
			zap.String("source", source),
			zap.String("scheme", scheme.Name),
			zap.String("type", scheme.Type),
			zap.String("location", scheme.Location))
	}
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
