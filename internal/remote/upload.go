package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// DefaultCatboxEndpoint is the catbox.moe upload API.
const DefaultCatboxEndpoint = "https://catbox.moe/user/api.php"

// maxResponseBytes bounds how much of the upload answer is read. catbox
// answers with a single URL.
const maxResponseBytes = 64 << 10

// CatboxUploader posts files to the catbox.moe API.
type CatboxUploader struct {
	endpoint  string
	userHash  string
	userAgent string
	client    *http.Client
}

var _ admission.Uploader = (*CatboxUploader)(nil)

// NewCatboxUploader returns an uploader for endpoint. userHash is optional
// and attaches uploads to a catbox account. Redirects are not followed.
func NewCatboxUploader(endpoint, userHash, userAgent string, timeout time.Duration, opts ...Option) *CatboxUploader {
	if endpoint == "" {
		endpoint = DefaultCatboxEndpoint
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	noRedirect := func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &CatboxUploader{
		endpoint:  endpoint,
		userHash:  userHash,
		userAgent: userAgent,
		client:    newClient(timeout, noRedirect, opts),
	}
}

// Upload sends data as a PNG file part named fileToUpload. The raw status
// and body are returned; interpreting them is up to the caller.
func (u *CatboxUploader) Upload(ctx context.Context, filename string, data []byte) (*admission.UploadResponse, error) {
	body, contentType, err := u.form(filename, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", u.userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &admission.UploadResponse{Status: resp.StatusCode, Body: string(text)}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (u *CatboxUploader) form(filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("reqtype", "fileupload"); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if u.userHash != "" {
		if err := w.WriteField("userhash", u.userHash); err != nil {
			return nil, "", fmt.Errorf("write form: %w", err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="fileToUpload"; filename="%s"`, quoteEscaper.Replace(filename)))
	h.Set("Content-Type", "image/png")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("write form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
