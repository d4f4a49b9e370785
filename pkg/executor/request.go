package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
)

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// buckets holds the arguments sorted by request location.
type buckets struct {
	query   url.Values
	headers map[string]string
	cookies map[string]string
	body    map[string]any
	// rawBody is a non-object _body, sent as the whole body.
	rawBody    any
	hasRawBody bool
}

func (b *buckets) hasBody() bool {
	return b.hasRawBody || len(b.body) > 0
}

// substitutePath replaces every {name} placeholder that has an argument. Placeholders without an
// argument stay verbatim. It returns the set of consumed argument names.
func substitutePath(path string, args map[string]any) (string, map[string]bool) {
	used := map[string]bool{}
	out := placeholder.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := args[name]
		if !ok || v == nil {
			return m
		}
		used[name] = true
		return url.PathEscape(stringify(v))
	})
	return out, used
}

// bucketArgs sorts arguments by their recorded location. Names the tool does not declare go to
// the query for GET and HEAD and to the body for everything else.
func bucketArgs(tool openapi2mcp.ToolDefinition, args map[string]any, consumed map[string]bool) *buckets {
	b := &buckets{
		query:   url.Values{},
		headers: map[string]string{},
		cookies: map[string]string{},
		body:    map[string]any{},
	}
	for _, name := range sortedArgNames(args) {
		if consumed[name] {
			continue
		}
		value := args[name]
		loc, declared := tool.Location(name)
		if !declared {
			loc = openapi2mcp.LocationBody
			if !methodAllowsBody(tool.Method) {
				loc = openapi2mcp.LocationQuery
			}
		}

		switch loc {
		case openapi2mcp.LocationPath:
			// declared path parameter without a placeholder in the template; nowhere to put it
		case openapi2mcp.LocationHeader:
			b.headers[name] = stringify(value)
		case openapi2mcp.LocationCookie:
			b.cookies[name] = stringify(value)
		case openapi2mcp.LocationBody:
			if name == openapi2mcp.BodyArgument {
				if obj, ok := value.(map[string]any); ok {
					for k, v := range obj {
						b.body[k] = v
					}
				} else {
					b.rawBody = value
					b.hasRawBody = true
				}
				continue
			}
			b.body[name] = value
		default:
			addQuery(b.query, name, value)
		}
	}
	return b
}

func addQuery(q url.Values, name string, value any) {
	if items, ok := value.([]any); ok {
		for _, it := range items {
			q.Add(name, stringify(it))
		}
		return
	}
	q.Add(name, stringify(value))
}

// stringify renders an argument for a path, query, header or cookie position.
func stringify(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err == nil {
			return string(raw)
		}
	}
	return cast.ToString(v)
}

func methodAllowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		return false
	}
	return true
}

// buildRequest turns a tool invocation into an HTTP request against baseURL.
func buildRequest(ctx context.Context, baseURL string, tool openapi2mcp.ToolDefinition, args map[string]any) (*http.Request, error) {
	path, consumed := substitutePath(tool.Path, args)
	b := bucketArgs(tool, args, consumed)

	target, err := url.Parse(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL: %w", err)
	}
	if len(b.query) > 0 {
		q := target.Query()
		for k, vs := range b.query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if methodAllowsBody(tool.Method) && b.hasBody() {
		payload := any(b.body)
		if b.hasRawBody {
			payload = b.rawBody
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(tool.Method), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	for _, name := range sortedKeys(b.cookies) {
		req.AddCookie(&http.Cookie{Name: name, Value: b.cookies[name]})
	}
	return req, nil
}
