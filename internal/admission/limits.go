package admission

import (
	"errors"
	"time"
)

// Limits is the immutable configuration of a Pipeline.
//
// It is passed by value to New and never read from process-wide state, so
// tests can shrink any ceiling without touching globals.
type Limits struct {
	// MaxContentLength bounds the generate input, in bytes.
	MaxContentLength int

	// MaxInlineSize bounds the encoded (base64) length of an inline image.
	MaxInlineSize int

	// MaxFileSize bounds the raw image bytes from any source, and the
	// serialized PNG handed to the uploader.
	MaxFileSize int64

	// MaxImageDimension bounds both width and height after header decode.
	MaxImageDimension int

	// MinRenderSize is the minimum side length of a generated QR image.
	MinRenderSize int

	FetchTimeout  time.Duration
	UploadTimeout time.Duration

	// AllowedDomains lists hosts a decode URL may point at. Subdomains of an
	// entry are accepted as well.
	AllowedDomains []string

	// ImageExtensions lists accepted URL path suffixes, lower-case with dot.
	ImageExtensions []string

	// UploadHost is the domain a returned upload reference must live under.
	UploadHost string
}

// DefaultLimits returns the stock qrmax limits.
func DefaultLimits() Limits {
	return Limits{
		MaxContentLength:  2048,
		MaxInlineSize:     10 * 1024 * 1024,
		MaxFileSize:       5 * 1024 * 1024,
		MaxImageDimension: 2048,
		MinRenderSize:     100,
		FetchTimeout:      10 * time.Second,
		UploadTimeout:     30 * time.Second,
		AllowedDomains:    []string{"catbox.moe", "files.catbox.moe"},
		ImageExtensions:   []string{".png", ".jpg", ".jpeg", ".gif", ".webp"},
		UploadHost:        "catbox.moe",
	}
}

// Validate reports the first unusable field.
func (l Limits) Validate() error {
	switch {
	case l.MaxContentLength <= 0:
		return errors.New("max content length must be positive")
	case l.MaxInlineSize <= 0:
		return errors.New("max inline size must be positive")
	case l.MaxFileSize <= 0:
		return errors.New("max file size must be positive")
	case l.MaxImageDimension <= 0:
		return errors.New("max image dimension must be positive")
	case l.MinRenderSize <= 0:
		return errors.New("min render size must be positive")
	case l.FetchTimeout <= 0 || l.UploadTimeout <= 0:
		return errors.New("timeouts must be positive")
	case l.FetchTimeout > l.UploadTimeout:
		return errors.New("fetch timeout must not exceed upload timeout")
	case len(l.AllowedDomains) == 0:
		return errors.New("at least one allowed domain is required")
	case len(l.ImageExtensions) == 0:
		return errors.New("at least one image extension is required")
	case l.UploadHost == "":
		return errors.New("upload host is required")
	}
	return nil
}

// clone copies the slices so a caller mutating its Limits after New cannot
// affect a running pipeline.
func (l Limits) clone() Limits {
	l.AllowedDomains = append([]string(nil), l.AllowedDomains...)
	l.ImageExtensions = append([]string(nil), l.ImageExtensions...)
	return l
}
