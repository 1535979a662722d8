package server

import (
	"context"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/ironsheep/qr-tools-mcp/internal/admission"
)

// Pipeline is the part of admission.Pipeline the QR tools use.
type Pipeline interface {
	Generate(ctx context.Context, content string) (*admission.GenerateResult, error)
	Decode(ctx context.Context, imageData string) (*admission.DecodeResult, error)
}

// GenerateTool is generate_qr_code.
type GenerateTool struct {
	Pipeline Pipeline
}

func (GenerateTool) Name() string { return "generate_qr_code" }

func (GenerateTool) Description() string {
	return "Generate QR code from text or URL input"
}

func (GenerateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Text to encode in QR code",
			},
		},
		"required": []string{"content"},
	}
}

func (t GenerateTool) Invoke(ctx context.Context, args json.RawMessage) (interface{}, error) {
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}
	return t.Pipeline.Generate(ctx, content)
}

// DecodeTool is decode_qr_code.
type DecodeTool struct {
	Pipeline Pipeline
}

func (DecodeTool) Name() string { return "decode_qr_code" }

func (DecodeTool) Description() string {
	return "Decode QR code from base64 image data or HTTPS image URL (trusted domains only)"
}

func (DecodeTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"image_data": map[string]interface{}{
				"type":        "string",
				"description": "Base64 encoded image data (PNG/JPEG) or HTTPS URL to an image from trusted domains (catbox.moe, files.catbox.moe)",
			},
		},
		"required": []string{"image_data"},
	}
}

func (t DecodeTool) Invoke(ctx context.Context, args json.RawMessage) (interface{}, error) {
	imageData, err := stringArg(args, "image_data")
	if err != nil {
		return nil, err
	}
	return t.Pipeline.Decode(ctx, imageData)
}

// stringArg extracts a required string member from a tool's arguments. An
// absent member, a non-string value or non-object arguments all count as
// missing.
func stringArg(args json.RawMessage, name string) (string, error) {
	v := gjson.GetBytes(args, name)
	if v.Type != gjson.String {
		return "", admission.MissingParameter(name)
	}
	return v.String(), nil
}
