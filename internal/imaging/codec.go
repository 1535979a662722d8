package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Codec converts between encoded image bytes and pixels.
//
// Supported input formats are PNG, JPEG, GIF and WebP. Output is always PNG.
// Codec holds no state and is safe for concurrent use.
//
// Codec never enforces size limits itself. Callers are expected to bound the
// byte length before calling any method, and to check the dimensions reported
// by Probe before calling Decode.
type Codec struct {
	// Background is composited under transparent pixels by Luma. Defaults to
	// white, which matches the quiet zone of a printed QR code.
	Background color.Color
}

// NewCodec returns a Codec with a white background.
func NewCodec() *Codec {
	return &Codec{Background: color.White}
}

// Probe decodes only the image header.
//
// Returns:
//   - image.Config: Width, height and color model as declared by the header.
//   - string: The registered format name ("png", "jpeg", "gif" or "webp").
//   - error: Non-nil if the header is not a supported format.
//
// Probe allocates no pixel buffer, so it is safe to call on small inputs that
// declare huge dimensions.
func (c *Codec) Probe(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", fmt.Errorf("failed to decode image header: %w", err)
	}
	return cfg, format, nil
}

// Decode decodes the full pixel grid.
//
// The concrete type depends on the format and color model (e.g. *image.NRGBA,
// *image.YCbCr, *image.Paletted).
func (c *Codec) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Luma flattens img onto the background color and converts it to 8-bit
// grayscale. The result always starts at (0,0).
func (c *Codec) Luma(img image.Image) *image.Gray {
	bg := c.Background
	if bg == nil {
		bg = color.White
	}
	b := img.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), bg), img, image.Pt(0, 0), 1.0)
	gray := imaging.Grayscale(flat)

	// imaging returns NRGBA with equal R, G and B; keep one channel.
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// EncodePNG serializes img as PNG in memory using best compression.
func (c *Codec) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
