// Package imaging provides the pixel codec used by the QR admission pipeline.
//
// The package turns encoded image bytes into pixels and back. It deliberately
// performs no admission checks of its own: byte-length and dimension limits
// are enforced by the caller, which is why header probing (Probe) is separate
// from full decoding (Decode).
//
// # Supported Formats
//
// Decoding: PNG, JPEG, GIF (first frame) and WebP. Formats are detected from
// the leading magic bytes, never from a file name or URL extension.
//
// Encoding: PNG only.
//
// # Grayscale Conversion
//
// QR scanners work on luminance. Luma composites transparent pixels over the
// codec's background color before converting, so a QR code drawn on a
// transparent canvas still has a light quiet zone.
//
// # Thread Safety
//
// Codec is stateless apart from its background color and may be shared.
package imaging
