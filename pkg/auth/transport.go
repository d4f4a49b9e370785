package auth

import (
	"net/http"
)

// RoundTripper adds the provider's credential to every request it carries
type RoundTripper struct {
	base     http.RoundTripper
	provider Provider
}

// NewRoundTripper wraps base (http.DefaultTransport when nil).
func NewRoundTripper(base http.RoundTripper, provider Provider) *RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RoundTripper{base: base, provider: provider}
}

// RoundTrip clones the request before touching headers, as the
// http.RoundTripper contract requires.
func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := req.Clone(req.Context())
	Apply(t.provider, cloned)
	return t.base.RoundTrip(cloned)
}

// NewClient returns an http.Client whose transport forwards the credential.
func NewClient(base *http.Client, provider Provider) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	c := *base
	c.Transport = NewRoundTripper(base.Transport, provider)
	return &c
}
