package admission

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// === fakes ===

type fakeEncoder struct {
	calls   int
	content string
	minSize int
	err     error
}

func (e *fakeEncoder) Encode(content string, minSize int) (image.Image, error) {
	e.calls++
	e.content = content
	e.minSize = minSize
	if e.err != nil {
		return nil, e.err
	}
	return image.NewGray(image.Rect(0, 0, minSize, minSize)), nil
}

type fakeScanner struct {
	calls      int
	candidates []Candidate
}

func (s *fakeScanner) Scan(img *image.Gray) []Candidate {
	s.calls++
	return s.candidates
}

type fakeCodec struct {
	probes  int
	decodes int
	pngErr  error
}

func (c *fakeCodec) Probe(data []byte) (image.Config, string, error) {
	c.probes++
	return image.DecodeConfig(bytes.NewReader(data))
}

func (c *fakeCodec) Decode(data []byte) (image.Image, error) {
	c.decodes++
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func (c *fakeCodec) Luma(img image.Image) *image.Gray {
	g := image.NewGray(img.Bounds())
	draw.Draw(g, g.Bounds(), img, img.Bounds().Min, draw.Src)
	return g
}

func (c *fakeCodec) EncodePNG(img image.Image) ([]byte, error) {
	if c.pngErr != nil {
		return nil, c.pngErr
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

type fakeFetcher struct {
	calls       int
	url         string
	hadDeadline bool
	resp        *FetchResponse
	err         error
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*FetchResponse, error) {
	f.calls++
	f.url = rawURL
	_, f.hadDeadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type fakeUploader struct {
	calls    int
	filename string
	data     []byte
	resp     *UploadResponse
	err      error
	block    bool
}

func (u *fakeUploader) Upload(ctx context.Context, filename string, data []byte) (*UploadResponse, error) {
	u.calls++
	u.filename = filename
	u.data = data
	if u.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if u.err != nil {
		return nil, u.err
	}
	return u.resp, nil
}

type harness struct {
	encoder  *fakeEncoder
	scanner  *fakeScanner
	codec    *fakeCodec
	fetcher  *fakeFetcher
	uploader *fakeUploader
}

func newHarness(t *testing.T, limits Limits) (*Pipeline, *harness) {
	t.Helper()
	h := &harness{
		encoder:  &fakeEncoder{},
		scanner:  &fakeScanner{},
		codec:    &fakeCodec{},
		fetcher:  &fakeFetcher{},
		uploader: &fakeUploader{resp: &UploadResponse{Status: 200, Body: "https://files.catbox.moe/xyz.png\n"}},
	}
	p, err := New(limits, Deps{
		Encoder:  h.encoder,
		Scanner:  h.scanner,
		Codec:    h.codec,
		Fetcher:  h.fetcher,
		Uploader: h.uploader,
		FileName: func() string { return "qr.png" },
	})
	require.NoError(t, err)
	return p, h
}

// pngBytes renders a white w x h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageResponse(body []byte) *FetchResponse {
	return &FetchResponse{
		Status:        200,
		Header:        http.Header{"Content-Type": []string{"image/png"}},
		ContentLength: int64(len(body)),
		Body:          &trackingBody{Reader: bytes.NewReader(body)},
	}
}

// === construction ===

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(DefaultLimits(), Deps{})
	assert.Error(t, err)

	bad := DefaultLimits()
	bad.MaxFileSize = 0
	_, err = New(bad, Deps{Encoder: &fakeEncoder{}, Scanner: &fakeScanner{}, Codec: &fakeCodec{}, Fetcher: &fakeFetcher{}, Uploader: &fakeUploader{}})
	assert.Error(t, err)
}

func TestNew_CopiesLimits(t *testing.T) {
	limits := DefaultLimits()
	p, _ := newHarness(t, limits)
	limits.AllowedDomains[0] = "evil.com"
	assert.Equal(t, "catbox.moe", p.Limits().AllowedDomains[0])
}

// === generate ===

func TestGenerate_Success(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())

	res, err := p.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "https://files.catbox.moe/xyz.png", res.URL)

	assert.Equal(t, "hello", h.encoder.content)
	assert.Equal(t, 100, h.encoder.minSize)
	assert.Equal(t, "qr.png", h.uploader.filename)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(h.uploader.data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 100, cfg.Width)
}

func TestGenerate_UpgradesInsecureURLContent(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())

	_, err := p.Generate(context.Background(), "http://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", h.encoder.content)
}

func TestGenerate_ContentTooLong(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxContentLength = 8
	p, h := newHarness(t, limits)

	_, err := p.Generate(context.Background(), "123456789")
	require.Error(t, err)
	assert.Equal(t, "Content too long", err.Error())
	assert.Zero(t, h.encoder.calls)
	assert.Zero(t, h.uploader.calls)

	_, err = p.Generate(context.Background(), "12345678")
	assert.NoError(t, err)
}

func TestGenerate_EncodingFailed(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	h.encoder.err = errors.New("data too long")

	_, err := p.Generate(context.Background(), "hello")
	assert.Equal(t, KindEncodingFailed, KindOf(err))
	assert.Equal(t, "QR creation failed", err.Error())
	assert.Zero(t, h.uploader.calls)
}

func TestGenerate_EmptyContent(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())

	_, err := p.Generate(context.Background(), "")
	assert.Equal(t, KindEncodingFailed, KindOf(err))
	assert.Equal(t, "QR creation failed", err.Error())
	assert.Zero(t, h.encoder.calls)
	assert.Zero(t, h.uploader.calls)
}

func TestGenerate_SerializationFailed(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	h.codec.pngErr = errors.New("png: invalid format")

	_, err := p.Generate(context.Background(), "hello")
	assert.Equal(t, KindSerializationFail, KindOf(err))
	assert.Equal(t, "Image encoding failed", err.Error())
	assert.Equal(t, 1, h.encoder.calls)
	assert.Zero(t, h.uploader.calls)
}

func TestGenerate_UploadFailuresAreOpaque(t *testing.T) {
	tests := []struct {
		name string
		resp *UploadResponse
		err  error
	}{
		{"transport", nil, errors.New("dial tcp: connection refused")},
		{"status", &UploadResponse{Status: 500, Body: "https://files.catbox.moe/xyz.png"}, nil},
		{"insecure reference", &UploadResponse{Status: 200, Body: "http://files.catbox.moe/xyz.png"}, nil},
		{"foreign host", &UploadResponse{Status: 200, Body: "https://evil.com/catbox.moe/xyz.png"}, nil},
		{"lookalike host", &UploadResponse{Status: 200, Body: "https://catbox.moe.evil.com/xyz.png"}, nil},
		{"provider error text", &UploadResponse{Status: 200, Body: "No files given"}, nil},
		{"empty", &UploadResponse{Status: 200, Body: ""}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, h := newHarness(t, DefaultLimits())
			h.uploader.resp = tt.resp
			h.uploader.err = tt.err

			_, err := p.Generate(context.Background(), "hello")
			require.Error(t, err)
			assert.Equal(t, KindUploadFailed, KindOf(err))
			assert.Equal(t, "Upload failed", err.Error())

			var aerr *Error
			require.True(t, errors.As(err, &aerr))
			assert.NotNil(t, aerr.Err, "cause should be kept for logging")
		})
	}
}

func TestGenerate_OversizedImageIsNotUploaded(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFileSize = 16
	p, h := newHarness(t, limits)

	_, err := p.Generate(context.Background(), "hello")
	assert.Equal(t, KindUploadFailed, KindOf(err))
	assert.Zero(t, h.uploader.calls)
}

func TestGenerate_UploadTimeout(t *testing.T) {
	limits := DefaultLimits()
	limits.FetchTimeout = 50 * time.Millisecond
	limits.UploadTimeout = 50 * time.Millisecond
	p, h := newHarness(t, limits)
	h.uploader.block = true

	start := time.Now()
	_, err := p.Generate(context.Background(), "hello")
	assert.Equal(t, KindUploadFailed, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// === decode: inline ===

func TestDecode_InlineSuccess(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	h.scanner.candidates = []Candidate{
		{Err: errors.New("checksum mismatch")},
		{Payload: []byte("hello")},
		{Payload: []byte("second")},
	}

	data := base64.StdEncoding.EncodeToString(pngBytes(t, 20, 20))
	res, err := p.Decode(context.Background(), "data:image/png;base64,"+data)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Zero(t, h.fetcher.calls)
}

func TestDecode_LossyPayload(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	h.scanner.candidates = []Candidate{{Payload: []byte{'a', 0xff, 0xfe, 'b'}}}

	res, err := p.Decode(context.Background(), base64.StdEncoding.EncodeToString(pngBytes(t, 4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFD\uFFFDb", res.Content)
}

func TestDecode_NoCodeFound(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
	}{
		{"none located", nil},
		{"none decodable", []Candidate{{Err: errors.New("a")}, {Err: errors.New("b")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, h := newHarness(t, DefaultLimits())
			h.scanner.candidates = tt.candidates

			_, err := p.Decode(context.Background(), base64.StdEncoding.EncodeToString(pngBytes(t, 4, 4)))
			assert.Equal(t, KindNoCodeFound, KindOf(err))
			assert.Equal(t, "No QR code found", err.Error())
		})
	}
}

func TestDecode_InlineTooLargeSkipsCodec(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxInlineSize = 64
	p, h := newHarness(t, limits)

	_, err := p.Decode(context.Background(), strings.Repeat("A", 65))
	assert.Equal(t, KindPayloadTooLarge, KindOf(err))
	assert.Zero(t, h.codec.probes)
	assert.Zero(t, h.codec.decodes)
	assert.Zero(t, h.scanner.calls)
}

func TestDecode_InlineDecodedTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFileSize = 10
	p, h := newHarness(t, limits)

	_, err := p.Decode(context.Background(), base64.StdEncoding.EncodeToString(make([]byte, 11)))
	assert.Equal(t, KindInvalidFileSize, KindOf(err))
	assert.Zero(t, h.codec.probes)
}

func TestDecode_InlineMalformed(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())

	_, err := p.Decode(context.Background(), "not base64 at all!")
	assert.Equal(t, KindBase64Invalid, KindOf(err))
	assert.Zero(t, h.codec.probes)
}

func TestDecode_ImageLoadFailed(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())

	_, err := p.Decode(context.Background(), base64.StdEncoding.EncodeToString([]byte("GIF89a but not really")))
	assert.Equal(t, KindImageLoadFailed, KindOf(err))
	assert.Zero(t, h.scanner.calls)
}

func TestDecode_ImageTooLarge(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxImageDimension = 20
	p, h := newHarness(t, limits)

	for _, size := range [][2]int{{21, 5}, {5, 21}} {
		data := base64.StdEncoding.EncodeToString(pngBytes(t, size[0], size[1]))
		_, err := p.Decode(context.Background(), data)
		assert.Equal(t, KindImageTooLarge, KindOf(err), "size %v", size)
	}
	assert.Zero(t, h.codec.decodes, "pixels must not be decoded past the header")
	assert.Zero(t, h.scanner.calls)

	h.scanner.candidates = []Candidate{{Payload: []byte("ok")}}
	_, err := p.Decode(context.Background(), base64.StdEncoding.EncodeToString(pngBytes(t, 20, 20)))
	assert.NoError(t, err)
}

// === decode: remote ===

func TestDecode_URLSuccess(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	body := pngBytes(t, 8, 8)
	h.fetcher.resp = imageResponse(body)
	h.scanner.candidates = []Candidate{{Payload: []byte("remote")}}

	res, err := p.Decode(context.Background(), "https://files.catbox.moe/xyz.png")
	require.NoError(t, err)
	assert.Equal(t, "remote", res.Content)
	assert.True(t, h.fetcher.hadDeadline)
	assert.True(t, h.fetcher.resp.Body.(*trackingBody).closed)
}

func TestDecode_InsecureURLIsUpgraded(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	h.fetcher.resp = imageResponse(pngBytes(t, 8, 8))
	h.scanner.candidates = []Candidate{{Payload: []byte("remote")}}

	res, err := p.Decode(context.Background(), "http://files.catbox.moe/xyz.png")
	require.NoError(t, err)
	assert.Equal(t, "remote", res.Content)
	assert.Equal(t, "https://files.catbox.moe/xyz.png", h.fetcher.url)
}

func TestDecode_RejectedURLsNeverFetch(t *testing.T) {
	tests := []struct {
		url  string
		want Kind
	}{
		{"https://evilcatbox.moe/xyz.png", KindDomainNotAllowed},
		{"https://catbox.moe.evil.com/xyz.png", KindDomainNotAllowed},
		{"http://catbox.moe.evil.com/xyz.png", KindDomainNotAllowed},
		{"http://localhost/xyz.png", KindDomainNotAllowed},
		{"ftp://files.catbox.moe/xyz.png", KindInsecureScheme},
		{"https://files.catbox.moe/xyz.html", KindNotImageExtension},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			p, h := newHarness(t, DefaultLimits())
			_, err := p.Decode(context.Background(), tt.url)
			assert.Equal(t, tt.want, KindOf(err))
			assert.Zero(t, h.fetcher.calls)
		})
	}
}

func TestDecode_FetchFailures(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFileSize = 1024

	big := bytes.Repeat([]byte{0x89}, 2048)

	tests := []struct {
		name string
		resp *FetchResponse
		err  error
		want Kind
	}{
		{
			name: "transport",
			err:  errors.New("no such host"),
			want: KindDownloadFailed,
		},
		{
			name: "status",
			resp: &FetchResponse{Status: 404, ContentLength: -1, Body: &trackingBody{Reader: strings.NewReader("")}},
			want: KindHTTPStatus,
		},
		{
			name: "content type",
			resp: &FetchResponse{Status: 200, Header: http.Header{"Content-Type": []string{"text/html"}}, ContentLength: -1, Body: &trackingBody{Reader: strings.NewReader("<html>")}},
			want: KindNotAnImage,
		},
		{
			name: "declared length",
			resp: &FetchResponse{Status: 200, ContentLength: 4096, Body: &trackingBody{Reader: bytes.NewReader(big)}},
			want: KindDeclaredTooLarge,
		},
		{
			name: "under reported length",
			resp: &FetchResponse{Status: 200, Header: http.Header{"Content-Type": []string{"image/png"}}, ContentLength: 10, Body: &trackingBody{Reader: bytes.NewReader(big)}},
			want: KindInvalidFileSize,
		},
		{
			name: "unknown length",
			resp: &FetchResponse{Status: 200, ContentLength: -1, Body: &trackingBody{Reader: bytes.NewReader(big)}},
			want: KindInvalidFileSize,
		},
		{
			name: "read error",
			resp: &FetchResponse{Status: 200, ContentLength: -1, Body: &trackingBody{Reader: errReader{}}},
			want: KindReadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, h := newHarness(t, limits)
			h.fetcher.resp = tt.resp
			h.fetcher.err = tt.err

			_, err := p.Decode(context.Background(), "https://files.catbox.moe/xyz.png")
			assert.Equal(t, tt.want, KindOf(err))
			assert.Zero(t, h.codec.probes)
			if tt.resp != nil {
				assert.True(t, tt.resp.Body.(*trackingBody).closed)
			}
		})
	}
}

func TestDecode_MissingContentTypeIsAccepted(t *testing.T) {
	p, h := newHarness(t, DefaultLimits())
	resp := imageResponse(pngBytes(t, 8, 8))
	resp.Header = nil
	h.fetcher.resp = resp
	h.scanner.candidates = []Candidate{{Payload: []byte("ok")}}

	_, err := p.Decode(context.Background(), "https://files.catbox.moe/xyz.png")
	assert.NoError(t, err)
}
