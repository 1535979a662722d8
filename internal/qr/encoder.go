package qr

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	qrcode "github.com/skip2/go-qrcode"
)

// minModulePixels keeps modules at least this wide so large symbols stay
// scannable.
const minModulePixels = 2

// Encoder renders text as a QR code image.
type Encoder struct {
	Level      qrcode.RecoveryLevel
	Foreground color.Color
	Background color.Color
}

// NewEncoder builds an Encoder from config strings. level is one of low,
// medium, high or highest; colors are hex strings such as "#000000".
func NewEncoder(level, foreground, background string) (*Encoder, error) {
	lvl, err := ParseRecoveryLevel(level)
	if err != nil {
		return nil, err
	}
	fg, err := colorful.Hex(foreground)
	if err != nil {
		return nil, fmt.Errorf("invalid foreground color %q: %w", foreground, err)
	}
	bg, err := colorful.Hex(background)
	if err != nil {
		return nil, fmt.Errorf("invalid background color %q: %w", background, err)
	}
	// Scanners rely on dark modules over a light background.
	fl, _, _ := fg.Lab()
	bl, _, _ := bg.Lab()
	if bl-fl < 0.4 {
		return nil, fmt.Errorf("foreground %s must be clearly darker than background %s", foreground, background)
	}
	return &Encoder{Level: lvl, Foreground: fg, Background: bg}, nil
}

// ParseRecoveryLevel maps a config name to a go-qrcode recovery level.
func ParseRecoveryLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "l":
		return qrcode.Low, nil
	case "", "medium", "m":
		return qrcode.Medium, nil
	case "high", "q":
		return qrcode.High, nil
	case "highest", "h":
		return qrcode.Highest, nil
	}
	return qrcode.Medium, fmt.Errorf("unknown recovery level %q", s)
}

// Encode renders content with a 4-module quiet zone. Modules are scaled by a
// whole number of pixels so the image is at least minSize pixels square.
func (e *Encoder) Encode(content string, minSize int) (image.Image, error) {
	q, err := qrcode.New(content, e.Level)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}
	if e.Foreground != nil {
		q.ForegroundColor = e.Foreground
	}
	if e.Background != nil {
		q.BackgroundColor = e.Background
	}

	modules := len(q.Bitmap())
	scale := (minSize + modules - 1) / modules
	if scale < minModulePixels {
		scale = minModulePixels
	}
	// A negative size asks go-qrcode for that many pixels per module.
	return q.Image(-scale), nil
}
