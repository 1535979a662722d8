package admission

import (
	"context"
	"image"
	"io"
	"net/http"
)

// Encoder renders text as a QR code image whose sides are at least minSize
// pixels.
type Encoder interface {
	Encode(content string, minSize int) (image.Image, error)
}

// Candidate is one QR code located by a Scanner. Exactly one of Payload and
// Err is meaningful.
type Candidate struct {
	Payload []byte
	Err     error
}

// Scanner locates and decodes QR codes in a luma image. Candidates are
// returned in discovery order; an empty slice means nothing was located.
type Scanner interface {
	Scan(img *image.Gray) []Candidate
}

// Codec converts between encoded image bytes and pixels.
type Codec interface {
	// Probe decodes only the image header.
	Probe(data []byte) (image.Config, string, error)
	Decode(data []byte) (image.Image, error)
	Luma(img image.Image) *image.Gray
	EncodePNG(img image.Image) ([]byte, error)
}

// FetchResponse is the unread result of a Fetch. The caller owns Body.
type FetchResponse struct {
	Status int
	Header http.Header
	// ContentLength is the declared body length, or -1 when unknown.
	ContentLength int64
	Body          io.ReadCloser
}

// Fetcher performs a GET against an already validated URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*FetchResponse, error)
}

// UploadResponse is what the file host answered to an upload.
type UploadResponse struct {
	Status int
	Body   string
}

// Uploader publishes a PNG file and returns the host's raw answer.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (*UploadResponse, error)
}
