package auth

import (
	"context"
	"net/http"
)

// Provider supplies the headers that authenticate outbound API calls.
type Provider interface {
	Headers(ctx context.Context) map[string]string
}

// StaticCredential forwards one fixed value as the Authorization header.
// The value is sent verbatim, so it carries its own scheme ("Bearer ...").
type StaticCredential string

// Headers implements Provider. An empty credential adds nothing.
func (c StaticCredential) Headers(context.Context) map[string]string {
	if c == "" {
		return nil
	}
	return map[string]string{"Authorization": string(c)}
}

// Apply sets the provider's headers on req.
func Apply(p Provider, req *http.Request) {
	if p == nil {
		return
	}
	for key, value := range p.Headers(req.Context()) {
		req.Header.Set(key, value)
	}
}
