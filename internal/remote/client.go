package remote

import (
	"net/http"
	"time"
)

// DefaultUserAgent identifies qrmax to remote hosts.
const DefaultUserAgent = "qrmax/1.0"

// Option customizes the HTTP client used by a Fetcher or Uploader.
type Option func(*http.Client)

// WithTransport replaces the client's transport, e.g. with an httptest
// server's TLS-aware transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

func newClient(timeout time.Duration, checkRedirect func(*http.Request, []*http.Request) error, opts []Option) *http.Client {
	c := &http.Client{
		Timeout:       timeout,
		CheckRedirect: checkRedirect,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
