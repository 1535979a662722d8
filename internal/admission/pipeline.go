package admission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Provenance records where the bytes of an admitted image came from. It is
// used for diagnostics only; both sources pass the same checks.
type Provenance string

const (
	ProvenanceInline  Provenance = "inline"
	ProvenanceFetched Provenance = "fetched"
)

// AdmittedImage is image data that passed every size and URL check. It is
// never retained beyond a single Decode call.
type AdmittedImage struct {
	Data       []byte
	Provenance Provenance
}

// GenerateResult is the success value of Generate.
type GenerateResult struct {
	URL string `json:"url"`
}

// DecodeResult is the success value of Decode.
type DecodeResult struct {
	Content string `json:"content"`
}

// Deps bundles the collaborators a Pipeline drives.
type Deps struct {
	Encoder  Encoder
	Scanner  Scanner
	Codec    Codec
	Fetcher  Fetcher
	Uploader Uploader
	Logger   *slog.Logger

	// FileName names uploaded files. Defaults to "qr-<uuid>.png".
	FileName func() string
}

// Pipeline gates untrusted input in front of the codec, the scanner and the
// network collaborators. It holds no per-request state and is safe for
// concurrent use when its collaborators are.
type Pipeline struct {
	limits   Limits
	encoder  Encoder
	scanner  Scanner
	codec    Codec
	fetcher  Fetcher
	uploader Uploader
	logger   *slog.Logger
	fileName func() string
}

// New builds a Pipeline. All collaborators are required.
func New(limits Limits, deps Deps) (*Pipeline, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if deps.Encoder == nil || deps.Scanner == nil || deps.Codec == nil || deps.Fetcher == nil || deps.Uploader == nil {
		return nil, errors.New("admission: missing collaborator")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fileName := deps.FileName
	if fileName == nil {
		fileName = func() string { return "qr-" + uuid.NewString() + ".png" }
	}
	return &Pipeline{
		limits:   limits.clone(),
		encoder:  deps.Encoder,
		scanner:  deps.Scanner,
		codec:    deps.Codec,
		fetcher:  deps.Fetcher,
		uploader: deps.Uploader,
		logger:   logger,
		fileName: fileName,
	}, nil
}

// Limits returns a copy of the pipeline's limits.
func (p *Pipeline) Limits() Limits {
	return p.limits.clone()
}

// Generate renders content as a QR code, uploads the PNG and returns the
// published URL.
func (p *Pipeline) Generate(ctx context.Context, content string) (*GenerateResult, error) {
	if err := CheckSize(int64(len(content)), int64(p.limits.MaxContentLength), KindContentTooLong); err != nil {
		return nil, err
	}
	// go-qrcode has no representation for an empty payload.
	if content == "" {
		return nil, fail(KindEncodingFailed, errors.New("empty content"))
	}
	content = UpgradeScheme(content)

	img, err := p.encoder.Encode(content, p.limits.MinRenderSize)
	if err != nil {
		return nil, fail(KindEncodingFailed, err)
	}

	data, err := p.codec.EncodePNG(img)
	if err != nil {
		return nil, fail(KindSerializationFail, err)
	}

	ref, err := p.upload(ctx, data)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{URL: ref}, nil
}

// upload collapses every failure mode into KindUploadFailed. The cause is
// kept on the error for server-side logs.
func (p *Pipeline) upload(ctx context.Context, data []byte) (string, error) {
	if err := CheckSize(int64(len(data)), p.limits.MaxFileSize, KindUploadFailed); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.limits.UploadTimeout)
	defer cancel()

	name := p.fileName()
	resp, err := p.uploader.Upload(ctx, name, data)
	if err != nil {
		return "", fail(KindUploadFailed, err)
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return "", fail(KindUploadFailed, fmt.Errorf("upload status %d", resp.Status))
	}

	ref := strings.TrimSpace(resp.Body)
	if !p.trustedReference(ref) {
		return "", fail(KindUploadFailed, fmt.Errorf("unexpected upload reference %q", ref))
	}
	p.logger.Debug("uploaded qr image", "file", name, "bytes", len(data), "url", ref)
	return ref, nil
}

// trustedReference reports whether ref is an https URL on the upload host.
func (p *Pipeline) trustedReference(ref string) bool {
	if !strings.HasPrefix(ref, securePrefix) {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return HostAllowed(u.Hostname(), []string{p.limits.UploadHost})
}

// Decode extracts the text payload of the first decodable QR code in the
// image referenced by imageData (inline base64 or an allow-listed URL).
func (p *Pipeline) Decode(ctx context.Context, imageData string) (*DecodeResult, error) {
	admitted, err := p.Admit(ctx, imageData)
	if err != nil {
		return nil, err
	}

	cfg, format, err := p.codec.Probe(admitted.Data)
	if err != nil {
		return nil, fail(KindImageLoadFailed, err)
	}
	if cfg.Width > p.limits.MaxImageDimension || cfg.Height > p.limits.MaxImageDimension {
		return nil, fail(KindImageTooLarge, fmt.Errorf("%dx%d %s exceeds %d", cfg.Width, cfg.Height, format, p.limits.MaxImageDimension))
	}

	img, err := p.codec.Decode(admitted.Data)
	if err != nil {
		return nil, fail(KindImageLoadFailed, err)
	}
	// Headers can disagree with the decoded pixel grid.
	if b := img.Bounds(); b.Dx() > p.limits.MaxImageDimension || b.Dy() > p.limits.MaxImageDimension {
		return nil, fail(KindImageTooLarge, fmt.Errorf("decoded %dx%d exceeds %d", b.Dx(), b.Dy(), p.limits.MaxImageDimension))
	}

	p.logger.Debug("admitted image",
		"provenance", admitted.Provenance,
		"format", format,
		"width", cfg.Width,
		"height", cfg.Height,
		"bytes", len(admitted.Data))

	candidates := p.scanner.Scan(p.codec.Luma(img))
	for i, c := range candidates {
		if c.Err != nil {
			p.logger.Debug("qr candidate failed", "index", i, "error", c.Err)
			continue
		}
		return &DecodeResult{Content: LossyString(c.Payload)}, nil
	}
	return nil, fail(KindNoCodeFound, fmt.Errorf("%d candidates", len(candidates)))
}

// Admit turns untrusted image input into bounded raw bytes. URL input is
// validated before any network access happens; inline input is size-checked
// before it is base64 decoded.
func (p *Pipeline) Admit(ctx context.Context, imageData string) (*AdmittedImage, error) {
	imageData = UpgradeScheme(imageData)

	if LooksLikeURL(imageData) {
		data, err := p.fetch(ctx, imageData)
		if err != nil {
			return nil, err
		}
		return &AdmittedImage{Data: data, Provenance: ProvenanceFetched}, nil
	}

	data, err := DecodeInline(imageData, p.limits.MaxInlineSize)
	if err != nil {
		return nil, err
	}
	if err := CheckSize(int64(len(data)), p.limits.MaxFileSize, KindInvalidFileSize); err != nil {
		return nil, err
	}
	return &AdmittedImage{Data: data, Provenance: ProvenanceInline}, nil
}

func (p *Pipeline) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateURL(rawURL, p.limits.AllowedDomains, p.limits.ImageExtensions); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.limits.FetchTimeout)
	defer cancel()

	resp, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fail(KindDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fail(KindHTTPStatus, fmt.Errorf("status %d", resp.Status))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return nil, fail(KindNotAnImage, fmt.Errorf("content type %q", ct))
	}
	// The declared length is caller controlled; it only allows an early exit.
	if err := CheckSize(resp.ContentLength, p.limits.MaxFileSize, KindDeclaredTooLarge); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.limits.MaxFileSize+1))
	if err != nil {
		return nil, fail(KindReadFailed, err)
	}
	if err := CheckSize(int64(len(data)), p.limits.MaxFileSize, KindInvalidFileSize); err != nil {
		return nil, err
	}
	return data, nil
}
