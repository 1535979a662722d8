package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// MaxRedirects caps the redirect chain of a single fetch.
const MaxRedirects = 5

// Fetcher performs bounded GET requests for images.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

var _ admission.Fetcher = (*Fetcher)(nil)

// NewFetcher returns a Fetcher whose requests time out after timeout.
// checkURL, if non-nil, is applied to every redirect target; a non-nil
// result aborts the fetch.
func NewFetcher(timeout time.Duration, userAgent string, checkURL func(string) error, opts ...Option) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	checkRedirect := func(req *http.Request, via []*http.Request) error {
		if len(via) >= MaxRedirects {
			return errors.New("too many redirects")
		}
		if checkURL != nil {
			if err := checkURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect to %s rejected: %w", req.URL.Redacted(), err)
			}
		}
		return nil
	}
	return &Fetcher{
		client:    newClient(timeout, checkRedirect, opts),
		userAgent: userAgent,
	}
}

// Fetch issues the GET. The returned body is unread and must be closed by
// the caller.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*admission.FetchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return &admission.FetchResponse{
		Status:        resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}
