package qr

import (
	"image"

	"github.com/anthonynsimon/bild/segment"
	"github.com/makiuchi-d/gozxing"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// DefaultThreshold is the luma cut-off for the binarized retry pass.
const DefaultThreshold uint8 = 128

// Scanner locates and decodes QR codes with gozxing.
//
// Passes run in order and stop at the first pass that yields a payload:
//
//  1. multi-code detection on the luma image, in discovery order
//  2. single-code detection with TRY_HARDER
//  3. single-code detection on a globally thresholded copy, if enabled
//
// Every failed pass contributes one candidate carrying its error.
type Scanner struct {
	// Threshold is the cut-off for pass 3. Zero disables the pass.
	Threshold uint8
}

// NewScanner returns a Scanner with the binarized retry enabled.
func NewScanner() *Scanner {
	return &Scanner{Threshold: DefaultThreshold}
}

var _ admission.Scanner = (*Scanner)(nil)

// Scan implements admission.Scanner.
func (s *Scanner) Scan(img *image.Gray) []admission.Candidate {
	candidates := scanMultiple(img)
	if hasPayload(candidates) {
		return candidates
	}

	c := scanSingle(img)
	candidates = append(candidates, c)
	if c.Err == nil || s.Threshold == 0 {
		return candidates
	}

	return append(candidates, scanSingle(segment.Threshold(img, s.Threshold)))
}

func decodeHints(tryHarder bool) map[gozxing.DecodeHintType]interface{} {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_CHARACTER_SET: "UTF-8",
	}
	if tryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}
	return hints
}

func scanMultiple(img image.Image) []admission.Candidate {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return []admission.Candidate{{Err: err}}
	}
	results, err := multiqr.NewQRCodeMultiReader().DecodeMultiple(bmp, decodeHints(false))
	if err != nil {
		return []admission.Candidate{{Err: err}}
	}
	out := make([]admission.Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, admission.Candidate{Payload: []byte(r.GetText())})
	}
	return out
}

func scanSingle(img image.Image) admission.Candidate {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return admission.Candidate{Err: err}
	}
	r, err := qrcode.NewQRCodeReader().Decode(bmp, decodeHints(true))
	if err != nil {
		return admission.Candidate{Err: err}
	}
	return admission.Candidate{Payload: []byte(r.GetText())}
}

func hasPayload(candidates []admission.Candidate) bool {
	for _, c := range candidates {
		if c.Err == nil {
			return true
		}
	}
	return false
}
